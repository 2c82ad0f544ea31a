package dashboard

import (
	"context"
	"fmt"
	"log"

	"github.com/lox/jwstcurves/internal/aggregate"
	"github.com/lox/jwstcurves/internal/metrics"
	"github.com/lox/jwstcurves/internal/models"
	"github.com/lox/jwstcurves/internal/numeric"
	"github.com/lox/jwstcurves/internal/traces"
)

// DrillDown expands one plotted point into the raw samples behind it.
type DrillDown struct {
	ID     aggregate.PointID
	Title  string
	Points []aggregate.RawPoint
	// Y and Err are the weighted average recomputed from Points.
	Y        float64
	Err      float64
	Extremes []aggregate.RawPoint
	// Images holds one reference per distinct thumbnail among Extremes.
	Images []ImageRef
	Color  string
	Traces []traces.PlotTrace
}

// DrillDown resolves id against the light curve computed for v. A point that
// is not in the index is logged and reported with ok false. It leaves the
// current light curve alone, so a click against older settings cannot
// replace a newer view.
func (e *Engine) DrillDown(ctx context.Context, v models.ViewSettings, id aggregate.PointID) (*DrillDown, bool, error) {
	if err := checkSettings(v); err != nil {
		return nil, false, err
	}
	lc, err := e.lightCurve(ctx, v)
	if err != nil {
		return nil, false, err
	}
	points, ok := lc.Index.Lookup(id)
	if !ok {
		metrics.DrillDownMisses.Inc()
		log.Printf("dashboard: drill-down miss for %s (%d indexed points)", id, lc.Index.Len())
		return nil, false, nil
	}

	dd, err := e.buildDrillDown(id, points, v, lc.ColorOf(pointSelection(id)))
	if err != nil {
		return nil, false, err
	}
	return dd, true, nil
}

func (e *Engine) buildDrillDown(id aggregate.PointID, points []aggregate.RawPoint, v models.ViewSettings, color string) (*DrillDown, error) {
	n := len(points)
	xs := make([]float64, n)
	ys := make([]float64, n)
	errs := make([]float64, n)
	custom := make([]any, n)
	for i, p := range points {
		xs[i], ys[i], errs[i] = p.X, p.Y, p.Err
		custom[i] = p.Meta
	}

	dd := &DrillDown{
		ID:       id,
		Title:    fmt.Sprintf("Raw Points for %s at Phase %s", id.Type, id.X),
		Points:   points,
		Extremes: aggregate.ExtremePoints(points),
		Color:    color,
	}
	dd.Y, dd.Err = numeric.WeightedAverage(ys, errs)

	seen := make(map[string]bool)
	for _, p := range dd.Extremes {
		ref, ok := e.images.Resolve(p.Meta.Filename())
		if !ok || seen[ref.Thumbnail] {
			continue
		}
		seen[ref.Thumbnail] = true
		dd.Images = append(dd.Images, ref)
	}

	ts, err := traces.Build(traces.Series{
		X:      traces.ForAxis(v.XAxis(), xs),
		Y:      ys,
		Err:    errs,
		Custom: custom,
		Name:   "Raw Points",
	}, v.ErrorBars(), traces.StyleFrom(v, color))
	if err != nil {
		return nil, fmt.Errorf("drill-down %s: %w", id, err)
	}
	dd.Traces = ts
	return dd, nil
}
