// Package traces converts aggregated or raw series into renderable plot
// traces. Building is a pure function of its inputs.
package traces

import (
	"encoding/json"
	"fmt"

	"github.com/lox/jwstcurves/internal/models"
)

// Palette is the series colour cycle, assigned by selection index.
var Palette = []string{
	"rgb(0, 0, 216)",
	"rgb(253, 192, 69)",
	"rgb(92, 53, 248)",
	"rgb(220, 145, 18)",
	"rgb(153, 97, 255)",
	"rgb(178, 102, 1)",
	"rgb(206, 139, 255)",
	"rgb(134, 64, 0)",
	"rgb(231, 191, 251)",
	"rgb(92, 27, 0)",
}

func ColorFor(i int) string {
	if i < 0 {
		i = -i
	}
	return Palette[i%len(Palette)]
}

// DefaultColor is used for single series that carry no selection colour.
const DefaultColor = "#1f77b4"

type Series struct {
	X      XValues
	Y      []float64
	Err    []float64
	Custom []any
	Name   string
	// Band is empty for series that do not belong to a legend group.
	Band models.Band
}

type Style struct {
	PlotType  models.PlotType
	Color     string
	PointSize float64
	LineWidth float64
}

// StyleFrom takes plot styling from view settings with the given colour.
func StyleFrom(v models.ViewSettings, color string) Style {
	return Style{PlotType: v.PlotType(), Color: color, PointSize: v.PointSize(), LineWidth: v.LineWidth()}
}

type Marker struct {
	Color string  `json:"color"`
	Size  float64 `json:"size"`
}

type Line struct {
	Color string  `json:"color"`
	Width float64 `json:"width"`
}

type ErrorY struct {
	Type  string    `json:"type"`
	Array []float64 `json:"array"`
}

type LegendGroupTitle struct {
	Text string `json:"text"`
}

type PlotTrace struct {
	Type             string            `json:"type"`
	Mode             models.PlotType   `json:"mode"`
	Name             string            `json:"name"`
	X                XValues           `json:"x"`
	Y                []float64         `json:"y"`
	Custom           []any             `json:"customdata,omitempty"`
	ErrorY           *ErrorY           `json:"error_y,omitempty"`
	Marker           Marker            `json:"marker"`
	Line             Line              `json:"line"`
	Opacity          float64           `json:"opacity"`
	LegendGroup      string            `json:"legendgroup,omitempty"`
	LegendGroupTitle *LegendGroupTitle `json:"legendgrouptitle,omitempty"`
	HoverInfo        string            `json:"hoverinfo"`
	XAxis            string            `json:"xaxis,omitempty"`
	YAxis            string            `json:"yaxis,omitempty"`
}

func (t PlotTrace) MarshalJSON() ([]byte, error) {
	type plain PlotTrace
	type errorY struct {
		Type  string     `json:"type"`
		Array []*float64 `json:"array"`
	}
	var ey *errorY
	if t.ErrorY != nil {
		ey = &errorY{Type: t.ErrorY.Type, Array: NullableFloats(t.ErrorY.Array)}
	}
	return json.Marshal(struct {
		plain
		Y      []*float64 `json:"y"`
		ErrorY *errorY    `json:"error_y,omitempty"`
	}{plain(t), NullableFloats(t.Y), ey})
}

// Validate checks that every per-point array matches the length of y.
func (t PlotTrace) Validate() error {
	n := len(t.Y)
	if err := t.X.check(n); err != nil {
		return fmt.Errorf("trace %q: %w", t.Name, err)
	}
	if t.Custom != nil && len(t.Custom) != n {
		return fmt.Errorf("trace %q: customdata has %d values, want %d", t.Name, len(t.Custom), n)
	}
	if t.ErrorY != nil && len(t.ErrorY.Array) != n {
		return fmt.Errorf("trace %q: error_y has %d values, want %d", t.Name, len(t.ErrorY.Array), n)
	}
	return nil
}

// Build returns one trace for hide and bar modes and three for separate:
// the series itself followed by y+err and y-err companions.
func Build(s Series, mode models.ErrorBarMode, style Style) ([]PlotTrace, error) {
	n := len(s.Y)
	if err := s.X.check(n); err != nil {
		return nil, fmt.Errorf("build %q: %w", s.Name, err)
	}
	if s.Custom != nil && len(s.Custom) != n {
		return nil, fmt.Errorf("build %q: customdata has %d values, want %d", s.Name, len(s.Custom), n)
	}
	if mode != models.ErrorBarsHide && len(s.Err) != n {
		return nil, fmt.Errorf("build %q: err has %d values, want %d", s.Name, len(s.Err), n)
	}

	common := PlotTrace{
		Type:      "scattergl",
		Mode:      style.PlotType,
		Name:      fmt.Sprintf("%s (%d)", s.Name, n),
		X:         s.X,
		Y:         s.Y,
		Custom:    s.Custom,
		Marker:    Marker{Color: style.Color, Size: style.PointSize},
		Line:      Line{Color: style.Color, Width: style.LineWidth},
		Opacity:   0.8,
		HoverInfo: "none",
	}
	if s.Band != "" {
		common.LegendGroup = s.Band.Type()
		common.LegendGroupTitle = &LegendGroupTitle{Text: string(s.Band) + " Group"}
	}

	switch mode {
	case models.ErrorBarsBar:
		common.ErrorY = &ErrorY{Type: "data", Array: s.Err}
		return []PlotTrace{common}, nil
	case models.ErrorBarsSeparate:
		upper, lower := common, common
		upper.Name = s.Name + " Error (+)"
		upper.Y = make([]float64, n)
		lower.Name = s.Name + " Error (-)"
		lower.Y = make([]float64, n)
		for i := range s.Y {
			upper.Y[i] = s.Y[i] + s.Err[i]
			lower.Y[i] = s.Y[i] - s.Err[i]
		}
		return []PlotTrace{common, upper, lower}, nil
	case models.ErrorBarsHide:
		return []PlotTrace{common}, nil
	}
	return nil, fmt.Errorf("build %q: unknown error bar mode %q", s.Name, mode)
}

// OnAxes assigns every trace to the given subplot axes.
func OnAxes(ts []PlotTrace, xaxis, yaxis string) []PlotTrace {
	out := make([]PlotTrace, len(ts))
	for i, t := range ts {
		t.XAxis, t.YAxis = xaxis, yaxis
		out[i] = t
	}
	return out
}
