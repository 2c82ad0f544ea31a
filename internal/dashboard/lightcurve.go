package dashboard

import (
	"context"
	"fmt"
	"log"

	"github.com/lox/jwstcurves/internal/aggregate"
	"github.com/lox/jwstcurves/internal/models"
	"github.com/lox/jwstcurves/internal/traces"
)

// Axis names for the stacked light-curve figure: SW on top, LW below, one
// shared x axis.
const (
	SharedXAxis = "x2"
	SWYAxis     = "y"
	LWYAxis     = "y2"
)

// LightCurve is the computed light-curve figure for one set of view
// settings.
type LightCurve struct {
	Settings   models.ViewSettings
	Generation uint64
	Traces     []traces.PlotTrace
	// Results holds the aggregated series that loaded, in selection order
	// with SW before LW for each selection.
	Results []*aggregate.Result
	// Index resolves the identity of any plotted point to its raw samples.
	Index    *aggregate.RawPointIndex
	Colors   map[string]string
	Failures []Failure
}

// TracesFor returns the traces plotted on the band's y axis.
func (lc *LightCurve) TracesFor(band models.Band) []traces.PlotTrace {
	yaxis := SWYAxis
	if band == models.BandLW {
		yaxis = LWYAxis
	}
	var out []traces.PlotTrace
	for _, t := range lc.Traces {
		if t.YAxis == yaxis {
			out = append(out, t)
		}
	}
	return out
}

// ColorOf returns the colour assigned to a selection, or the default colour.
func (lc *LightCurve) ColorOf(sel models.Selection) string {
	if c, ok := lc.Colors[sel.ID()]; ok {
		return c
	}
	return traces.DefaultColor
}

// LightCurve loads the selected series in both bands and builds the figure.
// Series that fail to load are reported in Failures and otherwise skipped.
// The result becomes Current unless a newer request has already completed.
func (e *Engine) LightCurve(ctx context.Context, v models.ViewSettings) (*LightCurve, error) {
	if err := checkSettings(v); err != nil {
		return nil, err
	}
	gen := e.curveGen.Add(1)
	lc, err := e.lightCurve(ctx, v)
	if err != nil {
		return nil, err
	}
	out := lc.withGeneration(gen)
	e.retainCurve(out, gen)
	return out, nil
}

// lightCurve returns the figure for v from the memo or a shared computation.
// Figures missing a series are not memoized so the next request retries it.
func (e *Engine) lightCurve(ctx context.Context, v models.ViewSettings) (*LightCurve, error) {
	key := paramsKey(v)
	if lc, ok := e.curves.get(key); ok {
		return lc, nil
	}
	res, err := e.shared(ctx, singleflightKey("lightcurve", key), func(ctx context.Context) (any, error) {
		lc, err := e.computeLightCurve(ctx, v)
		if err != nil {
			return nil, err
		}
		if len(lc.Failures) == 0 {
			e.curves.put(key, lc)
		}
		return lc, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*LightCurve), nil
}

// withGeneration returns a shallow copy stamped with gen.
func (lc *LightCurve) withGeneration(gen uint64) *LightCurve {
	c := *lc
	c.Generation = gen
	return &c
}

func (e *Engine) computeLightCurve(ctx context.Context, v models.ViewSettings) (*LightCurve, error) {
	selections := v.Selections()
	sets, failed := e.load(ctx, selections)

	lc := &LightCurve{
		Settings: v,
		Index:    aggregate.NewRawPointIndex(),
		Colors:   make(map[string]string, len(selections)),
		Failures: failed,
	}
	params := aggregate.ParamsFrom(v)
	for i, sel := range selections {
		color := traces.ColorFor(i)
		if _, ok := lc.Colors[sel.ID()]; !ok {
			lc.Colors[sel.ID()] = color
		}
		style := traces.StyleFrom(v, color)

		for _, band := range models.Bands {
			set, ok := sets[sel.Key(band)]
			if !ok {
				continue
			}
			res, err := aggregate.Aggregate(set, params)
			if err != nil {
				return nil, err
			}
			ts, err := traces.Build(traces.Series{
				X:      traces.ForAxis(v.XAxis(), res.X),
				Y:      res.Y,
				Err:    res.Err,
				Custom: res.Custom,
				Name:   sel.Label(),
				Band:   band,
			}, v.ErrorBars(), style)
			if err != nil {
				return nil, fmt.Errorf("light curve %s: %w", set.Key, err)
			}
			yaxis := SWYAxis
			if band == models.BandLW {
				yaxis = LWYAxis
			}
			lc.Traces = append(lc.Traces, traces.OnAxes(ts, SharedXAxis, yaxis)...)
			lc.Results = append(lc.Results, res)
			lc.Index.Merge(res.Index)
		}
	}
	log.Printf("dashboard: light curve %d series, %d traces, %d indexed points, %d failures",
		len(lc.Results), len(lc.Traces), lc.Index.Len(), len(lc.Failures))
	return lc, nil
}
