// Package align merges independently sampled series onto one time axis for
// the scatter-matrix view.
package align

import (
	"database/sql"
	"math"
	"sort"

	"github.com/lox/jwstcurves/internal/models"
	"github.com/lox/jwstcurves/internal/numeric"
)

// Epsilon is the tolerance for matching a sample time to a master tick.
const Epsilon = 1e-6

type Series struct {
	Name   string
	Times  []float64
	Values []float64
	Errors []float64
}

// FromSamples builds a series from time-ordered samples using MJD as the
// time base.
func FromSamples(name string, samples []models.RawSample) Series {
	return Series{
		Name:   name,
		Times:  models.Column(samples, func(s models.RawSample) float64 { return s.MJD }),
		Values: models.Column(samples, models.Flux),
		Errors: models.Column(samples, models.FluxErr),
	}
}

type cell struct {
	value float64
	err   float64
	ok    bool
}

// Align places every series on the sorted union of their distinct timestamps.
// In raw mode there is one row per tick. In average mode the ticks are cut
// into contiguous chunks of chunk rows, the last possibly shorter, and each
// column is the weighted average of its present values in the chunk.
func Align(series []Series, mode models.DataType, chunk int) *models.Dataset {
	ds := &models.Dataset{Columns: make([]string, len(series))}
	for i, s := range series {
		ds.Columns[i] = s.Name
	}

	master := masterAxis(series)
	grid := make([][]cell, len(master))
	for r := range grid {
		grid[r] = make([]cell, len(series))
	}
	for c, s := range series {
		m := newMatcher(s)
		for r, tick := range master {
			if k, ok := m.find(tick); ok {
				grid[r][c] = cell{value: s.Values[k], err: errAt(s, k), ok: true}
			}
		}
	}

	if mode != models.DataTypeAverage {
		ds.Times = master
		ds.Rows = make([]models.Row, len(grid))
		for r, cells := range grid {
			row := make(models.Row, len(cells))
			for c, cl := range cells {
				if cl.ok {
					row[c] = sql.NullFloat64{Float64: cl.value, Valid: true}
				}
			}
			ds.Rows[r] = row
		}
		return ds
	}

	if chunk < 1 {
		chunk = 1
	}
	for start := 0; start < len(master); start += chunk {
		end := min(start+chunk, len(master))
		row := make(models.Row, len(series))
		for c := range series {
			var vals, errs []float64
			for r := start; r < end; r++ {
				if grid[r][c].ok {
					vals = append(vals, grid[r][c].value)
					errs = append(errs, grid[r][c].err)
				}
			}
			if len(vals) == 0 {
				continue
			}
			mean, _ := numeric.WeightedAverage(vals, errs)
			row[c] = sql.NullFloat64{Float64: mean, Valid: true}
		}
		ds.Times = append(ds.Times, numeric.Mean(master[start:end]))
		ds.Rows = append(ds.Rows, row)
	}
	return ds
}

func errAt(s Series, k int) float64 {
	if k < len(s.Errors) {
		return s.Errors[k]
	}
	return math.NaN()
}

// masterAxis is the ascending union of distinct finite timestamps.
func masterAxis(series []Series) []float64 {
	seen := make(map[float64]struct{})
	var out []float64
	for _, s := range series {
		for _, t := range s.Times {
			if !models.IsFinite(t) {
				continue
			}
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	sort.Float64s(out)
	return out
}

// matcher finds the sample nearest in time order to a tick within Epsilon.
type matcher struct {
	times []float64
	idx   []int
}

func newMatcher(s Series) *matcher {
	n := min(len(s.Times), len(s.Values))
	m := &matcher{}
	for i := 0; i < n; i++ {
		if models.IsFinite(s.Times[i]) {
			m.idx = append(m.idx, i)
		}
	}
	sort.SliceStable(m.idx, func(a, b int) bool { return s.Times[m.idx[a]] < s.Times[m.idx[b]] })
	m.times = make([]float64, len(m.idx))
	for i, k := range m.idx {
		m.times[i] = s.Times[k]
	}
	return m
}

// find returns the source index of the earliest sample with
// |t - tick| < Epsilon.
func (m *matcher) find(tick float64) (int, bool) {
	i := sort.SearchFloat64s(m.times, tick-Epsilon)
	for ; i < len(m.times) && m.times[i] < tick+Epsilon; i++ {
		if math.Abs(m.times[i]-tick) < Epsilon {
			return m.idx[i], true
		}
	}
	return 0, false
}
