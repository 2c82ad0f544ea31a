// Package render draws PNG previews of the light-curve and drill-down views.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"strings"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/lox/jwstcurves/internal/dashboard"
	"github.com/lox/jwstcurves/internal/models"
	"github.com/lox/jwstcurves/internal/traces"
)

const (
	DefaultWidth  = 900
	DefaultHeight = 420
	MaxWidth      = 4000
	MaxHeight     = 4000
)

// Size clamps requested dimensions, substituting defaults for zero values.
func Size(w, h int) (int, int) {
	if w <= 0 {
		w = DefaultWidth
	}
	if h <= 0 {
		h = DefaultHeight
	}
	return min(w, MaxWidth), min(h, MaxHeight)
}

// LightCurvePNG draws the traces of one light-curve panel. Points with a
// missing x or y are dropped. When nothing is drawable a placeholder is
// returned instead.
func LightCurvePNG(ts []traces.PlotTrace, title string, axis models.XAxis, w, h int) ([]byte, error) {
	w, h = Size(w, h)
	var series []chart.Series
	for _, t := range ts {
		if s, ok := toSeries(t); ok {
			series = append(series, s)
		}
	}
	if len(series) == 0 {
		return Placeholder("No data for "+title, w, h)
	}

	ch := chart.Chart{
		Title:      title,
		Width:      w,
		Height:     h,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 16}},
		XAxis:      chart.XAxis{Name: axis.Title()},
		YAxis:      chart.YAxis{Name: "Surf Bright (MJy/sr)"},
		Series:     series,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}

	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		log.Printf("render: %s: %v; drawing placeholder", title, err)
		return Placeholder(title+": "+err.Error(), w, h)
	}
	return buf.Bytes(), nil
}

// DrillDownPNG draws the raw points behind one plotted point, with the
// extreme points highlighted.
func DrillDownPNG(dd *dashboard.DrillDown, axis models.XAxis, w, h int) ([]byte, error) {
	ts := append([]traces.PlotTrace(nil), dd.Traces...)
	if len(dd.Extremes) > 0 {
		xs := make([]float64, len(dd.Extremes))
		ys := make([]float64, len(dd.Extremes))
		for i, p := range dd.Extremes {
			xs[i], ys[i] = p.X, p.Y
		}
		ts = append(ts, traces.PlotTrace{
			Name:   "Extreme Points",
			Mode:   models.PlotMarkers,
			X:      traces.ForAxis(axis, xs),
			Y:      ys,
			Marker: traces.Marker{Color: "red", Size: 10},
		})
	}
	return LightCurvePNG(ts, dd.Title, axis, w, h)
}

// toSeries converts a trace to a go-chart series, dropping non-finite points.
// go-chart needs two x values, so a single point is padded with a copy.
func toSeries(t traces.PlotTrace) (chart.Series, bool) {
	style := traceStyle(t)
	switch t.X.Kind {
	case traces.XInstant:
		var xs []time.Time
		var ys []float64
		for i, x := range t.X.Instants {
			if x.IsZero() || i >= len(t.Y) || !models.IsFinite(t.Y[i]) {
				continue
			}
			xs = append(xs, x)
			ys = append(ys, t.Y[i])
		}
		if len(xs) == 0 {
			return nil, false
		}
		if len(xs) == 1 {
			xs = append(xs, xs[0].Add(time.Second))
			ys = append(ys, ys[0])
		}
		return chart.TimeSeries{Name: t.Name, XValues: xs, YValues: ys, Style: style}, true
	case traces.XNumeric:
		var xs, ys []float64
		for i, x := range t.X.Numbers {
			if !models.IsFinite(x) || i >= len(t.Y) || !models.IsFinite(t.Y[i]) {
				continue
			}
			xs = append(xs, x)
			ys = append(ys, t.Y[i])
		}
		if len(xs) == 0 {
			return nil, false
		}
		if len(xs) == 1 {
			xs = append(xs, xs[0]+1e-6)
			ys = append(ys, ys[0])
		}
		return chart.ContinuousSeries{Name: t.Name, XValues: xs, YValues: ys, Style: style}, true
	}
	return nil, false
}

func traceStyle(t traces.PlotTrace) chart.Style {
	col := drawing.ParseColor(t.Marker.Color)
	if t.Marker.Color == "" {
		col = drawing.ParseColor(traces.DefaultColor)
	}
	st := chart.Style{StrokeWidth: chart.Disabled, DotWidth: dotWidth(t.Marker.Size), DotColor: col}
	if strings.Contains(string(t.Mode), "lines") {
		st.StrokeWidth = max(t.Line.Width, 1)
		st.StrokeColor = col
	}
	if !strings.Contains(string(t.Mode), "markers") && t.Mode != "" {
		st.DotWidth = chart.Disabled
	}
	return st
}

// dotWidth maps a browser marker size in pixels to a go-chart dot radius.
func dotWidth(size float64) float64 {
	if size <= 0 {
		return 3
	}
	return max(size/2, 1)
}

// Placeholder draws text on a dark background.
func Placeholder(text string, w, h int) ([]byte, error) {
	w, h = Size(w, h)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		progress := float64(y) / float64(h)
		c := color.RGBA{uint8(20 + progress*10), uint8(20 + progress*15), uint8(40 + progress*20), 255}
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}

	face := basicfont.Face7x13
	d := &font.Drawer{Dst: img, Src: image.NewUniform(color.RGBA{200, 200, 200, 255}), Face: face}
	tw := d.MeasureString(text).Ceil()
	x := max((w-tw)/2, 8)
	d.Dot = fixed.Point26_6{X: fixed.I(x), Y: fixed.I(h / 2)}
	d.DrawString(text)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode placeholder: %w", err)
	}
	return buf.Bytes(), nil
}
