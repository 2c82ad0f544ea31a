package dashboard

import (
	"context"
	"log"

	"github.com/lox/jwstcurves/internal/align"
	"github.com/lox/jwstcurves/internal/matrix"
	"github.com/lox/jwstcurves/internal/models"
)

// MinMatrixSelections is the smallest selection a scatter matrix is drawn for.
const MinMatrixSelections = 2

const errTooFewSelections = "Please select at least 2 items to generate matrix plot."

// BandMatrix is the scatter matrix for one band.
type BandMatrix struct {
	Band    models.Band
	Dataset *models.Dataset
	Stats   *matrix.Stats
	Cells   []matrix.Cell
	// FocusRangeMax is the colour-scale ceiling used for Cells; ScaleMax is
	// the top of the colour scale actually applied.
	FocusRangeMax float64
	ScaleMax      float64
}

type MatrixView struct {
	Settings   models.ViewSettings
	Generation uint64
	Bands      []BandMatrix
	Failures   []Failure
}

// Band returns the matrix for band, if any series of that band loaded.
func (mv *MatrixView) Band(band models.Band) (BandMatrix, bool) {
	for _, b := range mv.Bands {
		if b.Band == band {
			return b, true
		}
	}
	return BandMatrix{}, false
}

// Matrix aligns the selected series of each band on a shared time axis and
// scores every pair of columns.
func (e *Engine) Matrix(ctx context.Context, v models.ViewSettings) (*MatrixView, error) {
	if len(v.Selections()) < MinMatrixSelections {
		return nil, &ValidationError{Msg: errTooFewSelections}
	}
	if err := checkSettings(v); err != nil {
		return nil, err
	}
	gen := e.matrixGen.Add(1)
	key := matrixKey(v)

	mv, ok := e.matrices.get(key)
	if !ok {
		res, err := e.shared(ctx, singleflightKey("matrix", key), func(ctx context.Context) (any, error) {
			mv, err := e.computeMatrix(ctx, v)
			if err != nil {
				return nil, err
			}
			if len(mv.Failures) == 0 {
				e.matrices.put(key, mv)
			}
			return mv, nil
		})
		if err != nil {
			return nil, err
		}
		mv = res.(*MatrixView)
	}
	out := mv.withGeneration(gen)
	e.retainMatrix(out, gen)
	return out, nil
}

func (mv *MatrixView) withGeneration(gen uint64) *MatrixView {
	c := *mv
	c.Generation = gen
	return &c
}

func (e *Engine) computeMatrix(ctx context.Context, v models.ViewSettings) (*MatrixView, error) {
	selections := v.Selections()
	sets, failed := e.load(ctx, selections)

	mv := &MatrixView{Settings: v, Failures: failed}
	for _, band := range models.Bands {
		var series []align.Series
		for _, sel := range selections {
			key := sel.Key(band)
			if set, ok := sets[key]; ok {
				series = append(series, align.FromSamples(key.ColumnName(), set.Time))
			}
		}
		if len(series) == 0 {
			continue
		}

		ds := align.Align(series, v.DataType(), v.Chunk())
		stats := matrix.Compute(ds, v.ColorBy())
		focus := matrix.NextFocusRangeMax(v.FocusRangeMax(), v.FocusRangeMaxManuallySet(), stats.GlobalMaxRaw)
		mv.Bands = append(mv.Bands, BandMatrix{
			Band:          band,
			Dataset:       ds,
			Stats:         stats,
			Cells:         matrix.Layout(stats, focus),
			FocusRangeMax: focus,
			ScaleMax:      matrix.ScaleMax(v.ColorBy(), focus),
		})
		log.Printf("dashboard: matrix %s %d columns, %d rows, order %v", band, len(ds.Columns), len(ds.Rows), stats.Order)
	}
	return mv, nil
}
