// Package aggregate turns a loaded series into the point arrays plotted on
// the light curve: phase-binned, time-chunked, or raw.
package aggregate

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lox/jwstcurves/internal/metrics"
	"github.com/lox/jwstcurves/internal/models"
	"github.com/lox/jwstcurves/internal/numeric"
)

type Params struct {
	Mode  models.DataType
	XAxis models.XAxis
	Bins  int
	Chunk int
}

// ParamsFrom extracts the aggregation inputs from view settings.
func ParamsFrom(v models.ViewSettings) Params {
	return Params{Mode: v.DataType(), XAxis: v.XAxis(), Bins: v.Bins(), Chunk: v.Chunk()}
}

// CustomData is attached to every aggregated point so the presentation layer
// can route clicks back to the drill-down index.
type CustomData struct {
	Type   string  `json:"type"`
	Epoch  string  `json:"epoch"`
	RIn    string  `json:"r_in"`
	ROut   string  `json:"r_out"`
	Phase  string  `json:"phase"`
	AvgErr float64 `json:"avgErr"`
}

func (c CustomData) MarshalJSON() ([]byte, error) {
	type plain CustomData
	return json.Marshal(struct {
		plain
		AvgErr *float64 `json:"avgErr"`
	}{plain(c), finite(c.AvgErr)})
}

// ID rebuilds the point identity carried by the custom data.
func (c CustomData) ID() PointID {
	return PointID{Type: c.Type, Epoch: c.Epoch, RIn: c.RIn, ROut: c.ROut, X: c.Phase}
}

// Result holds parallel plotting arrays. For phase output Wrapped is set and
// the second half repeats the first with x shifted by one; the repeated
// Custom entries are the same values, not copies, and must be treated as
// read-only.
type Result struct {
	Key     models.SeriesKey
	X       []float64
	Y       []float64
	Err     []float64
	Custom  []any
	Index   *RawPointIndex
	Wrapped bool
}

func (r *Result) Len() int { return len(r.Y) }

// Aggregate reduces set according to p. Raw mode passes samples through;
// average mode bins by phase when the axis is phase and chunks in acquisition
// order otherwise.
func Aggregate(set *models.RawSampleSet, p Params) (*Result, error) {
	start := time.Now()
	defer func() {
		metrics.AggregationDuration.WithLabelValues(string(p.Mode), string(p.XAxis)).Observe(time.Since(start).Seconds())
	}()

	switch p.Mode {
	case models.DataTypeRaw:
		return raw(set, p.XAxis), nil
	case models.DataTypeAverage:
		if p.XAxis == models.XAxisPhase {
			if p.Bins < 1 {
				return nil, fmt.Errorf("aggregate %s: bins must be positive, got %d", set.Key, p.Bins)
			}
			return phaseBins(set, p.Bins), nil
		}
		if p.Chunk < 1 {
			return nil, fmt.Errorf("aggregate %s: chunk must be positive, got %d", set.Key, p.Chunk)
		}
		return timeChunks(set, p.XAxis, p.Chunk), nil
	}
	return nil, fmt.Errorf("aggregate %s: unknown data type %q", set.Key, p.Mode)
}

func phaseBins(set *models.RawSampleSet, bins int) *Result {
	res := &Result{Key: set.Key, Index: NewRawPointIndex()}
	edges := numeric.UniformEdges(bins)
	phases := models.Column(set.Phase, func(s models.RawSample) float64 { return s.Phase })

	members := make([][]models.RawSample, bins)
	for i, d := range numeric.Digitize(phases, edges, false) {
		b := d - 1
		if b < 0 || b >= bins {
			continue
		}
		members[b] = append(members[b], set.Phase[i])
	}

	for b, group := range members {
		if len(group) == 0 {
			continue
		}
		center := (edges[b] + edges[b+1]) / 2
		res.addAverage(center, group, func(s models.RawSample) float64 { return s.Phase })
	}

	res.wrap()
	return res
}

func timeChunks(set *models.RawSampleSet, axis models.XAxis, chunk int) *Result {
	res := &Result{Key: set.Key, Index: NewRawPointIndex()}
	field := axis.Field()

	for start := 0; start < len(set.Time); start += chunk {
		end := min(start+chunk, len(set.Time))
		group := set.Time[start:end]
		// chunk position is the plain mean of its times, not flux-weighted
		center := numeric.Mean(models.Column(group, field))
		res.addAverage(center, group, field)
	}
	return res
}

func (r *Result) addAverage(x float64, group []models.RawSample, field func(models.RawSample) float64) {
	mean, meanErr := numeric.WeightedAverage(
		models.Column(group, models.Flux),
		models.Column(group, models.FluxErr),
	)
	id := NewPointID(r.Key, x)

	r.X = append(r.X, x)
	r.Y = append(r.Y, mean)
	r.Err = append(r.Err, meanErr)
	r.Custom = append(r.Custom, CustomData{
		Type:   id.Type,
		Epoch:  id.Epoch,
		RIn:    id.RIn,
		ROut:   id.ROut,
		Phase:  id.X,
		AvgErr: meanErr,
	})

	pts := make([]RawPoint, len(group))
	for i, s := range group {
		pts[i] = newRawPoint(field(s), s)
	}
	r.Index.add(id, pts)
}

func raw(set *models.RawSampleSet, axis models.XAxis) *Result {
	samples := set.Time
	if axis == models.XAxisPhase {
		samples = set.Phase
	}
	field := axis.Field()

	res := &Result{
		Key:    set.Key,
		X:      models.Column(samples, field),
		Y:      models.Column(samples, models.Flux),
		Err:    models.Column(samples, models.FluxErr),
		Custom: make([]any, len(samples)),
	}
	for i, s := range samples {
		res.Custom[i] = s.Meta
	}
	if axis == models.XAxisPhase {
		res.wrap()
	}
	return res
}

// wrap appends a copy of every point shifted one phase to the right so the
// curve reads across two cycles.
func (r *Result) wrap() {
	n := len(r.X)
	for i := 0; i < n; i++ {
		r.X = append(r.X, r.X[i]+1)
	}
	r.Y = append(r.Y, r.Y[:n]...)
	r.Err = append(r.Err, r.Err[:n]...)
	r.Custom = append(r.Custom, r.Custom[:n]...)
	r.Wrapped = true
}
