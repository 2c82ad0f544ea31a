package api

import (
	"math"
	"time"

	"github.com/lox/jwstcurves/internal/aggregate"
	"github.com/lox/jwstcurves/internal/dashboard"
	"github.com/lox/jwstcurves/internal/matrix"
	"github.com/lox/jwstcurves/internal/models"
	"github.com/lox/jwstcurves/internal/store"
	"github.com/lox/jwstcurves/internal/traces"
)

// View models carry non-finite numbers as nil so they encode as JSON null.

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthStatus struct {
	Status  string           `json:"status"`
	Fetches *FetchHealthView `json:"fetches,omitempty"`
	Errors  []string         `json:"errors,omitempty"`
}

type FetchHealthView struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	CacheHits int `json:"cacheHits"`
}

func newFetchHealthView(h *store.FetchHealth) *FetchHealthView {
	return &FetchHealthView{Total: h.Total, Succeeded: h.Succeeded, Failed: h.Failed, CacheHits: h.CacheHits}
}

type CatalogEntryView struct {
	ID          string     `json:"id"`
	Epoch       string     `json:"epoch"`
	RIn         string     `json:"r_in"`
	ROut        string     `json:"r_out"`
	Label       string     `json:"label"`
	FirstSeenAt *time.Time `json:"firstSeenAt,omitempty"`
}

func newCatalogEntryView(sel models.Selection) CatalogEntryView {
	return CatalogEntryView{ID: sel.ID(), Epoch: sel.Epoch, RIn: sel.RIn, ROut: sel.ROut, Label: sel.Label()}
}

type AxisView struct {
	Title  string    `json:"title"`
	Type   string    `json:"type,omitempty"`
	Domain []float64 `json:"domain"`
	Anchor string    `json:"anchor"`
}

// FigureLayout stacks the SW panel above the LW panel on a shared x axis.
type FigureLayout struct {
	XAxis2 AxisView `json:"xaxis2"`
	YAxis  AxisView `json:"yaxis"`
	YAxis2 AxisView `json:"yaxis2"`
}

func newFigureLayout(axis models.XAxis) FigureLayout {
	x := AxisView{Title: axis.Title(), Domain: []float64{0, 1}, Anchor: "y2"}
	if axis == models.XAxisTime {
		x.Type = "date"
	}
	return FigureLayout{
		XAxis2: x,
		YAxis:  AxisView{Title: "SW: Surf Bright (MJy/sr)", Domain: []float64{0.51, 1}, Anchor: dashboard.SharedXAxis},
		YAxis2: AxisView{Title: "LW: Surf Bright (MJy/sr)", Domain: []float64{0, 0.49}, Anchor: dashboard.SharedXAxis},
	}
}

type LightCurveResponse struct {
	Generation  uint64              `json:"generation"`
	Traces      []traces.PlotTrace  `json:"traces"`
	Layout      FigureLayout        `json:"layout"`
	Colors      map[string]string   `json:"colors"`
	IndexedKeys int                 `json:"indexedPoints"`
	Failures    []dashboard.Failure `json:"failures,omitempty"`
}

func newLightCurveResponse(lc *dashboard.LightCurve) LightCurveResponse {
	ts := lc.Traces
	if ts == nil {
		ts = []traces.PlotTrace{}
	}
	return LightCurveResponse{
		Generation:  lc.Generation,
		Traces:      ts,
		Layout:      newFigureLayout(lc.Settings.XAxis()),
		Colors:      lc.Colors,
		IndexedKeys: lc.Index.Len(),
		Failures:    lc.Failures,
	}
}

type DrillDownResponse struct {
	ID       string               `json:"id"`
	Title    string               `json:"title"`
	Y        *float64             `json:"y"`
	Err      *float64             `json:"err"`
	Color    string               `json:"color"`
	Points   []aggregate.RawPoint `json:"points"`
	Extremes []aggregate.RawPoint `json:"extremes"`
	Images   []dashboard.ImageRef `json:"images"`
	Traces   []traces.PlotTrace   `json:"traces"`
}

func newDrillDownResponse(dd *dashboard.DrillDown) DrillDownResponse {
	images := dd.Images
	if images == nil {
		images = []dashboard.ImageRef{}
	}
	return DrillDownResponse{
		ID:       dd.ID.String(),
		Title:    dd.Title,
		Y:        nullable(dd.Y),
		Err:      nullable(dd.Err),
		Color:    dd.Color,
		Points:   dd.Points,
		Extremes: dd.Extremes,
		Images:   images,
		Traces:   dd.Traces,
	}
}

type CellView struct {
	Row      int             `json:"row"`
	Col      int             `json:"col"`
	XDim     string          `json:"xDim"`
	YDim     string          `json:"yDim"`
	Kind     matrix.CellKind `json:"kind"`
	Points   [][2]float64    `json:"points,omitempty"`
	Colors   []float64       `json:"colors,omitempty"`
	Score    *float64        `json:"score,omitempty"`
	Slope    *float64        `json:"slope,omitempty"`
	Identity bool            `json:"identity,omitempty"`
}

func newCellView(c matrix.Cell) CellView {
	v := CellView{Row: c.Row, Col: c.Col, XDim: c.ColDim, YDim: c.RowDim, Kind: c.Kind, Points: c.Points, Colors: c.Colors}
	if c.Kind == matrix.CellSummary {
		v.Score = nullable(c.Score)
		v.Slope = nullable(c.Slope)
		v.Identity = c.Identity
	}
	return v
}

type BandMatrixView struct {
	Band          models.Band `json:"band"`
	Order         []string    `json:"order"`
	Rows          int         `json:"rows"`
	FocusRangeMax float64     `json:"focusRangeMax"`
	ScaleMax      float64     `json:"scaleMax"`
	Cells         []CellView  `json:"cells"`
}

type MatrixResponse struct {
	Generation uint64              `json:"generation"`
	ColorBy    models.ColorBy      `json:"colorBy"`
	Bands      []BandMatrixView    `json:"bands"`
	Failures   []dashboard.Failure `json:"failures,omitempty"`
}

func newMatrixResponse(mv *dashboard.MatrixView) MatrixResponse {
	resp := MatrixResponse{
		Generation: mv.Generation,
		ColorBy:    mv.Settings.ColorBy(),
		Bands:      make([]BandMatrixView, 0, len(mv.Bands)),
		Failures:   mv.Failures,
	}
	for _, b := range mv.Bands {
		bv := BandMatrixView{
			Band:          b.Band,
			Order:         b.Stats.Order,
			Rows:          len(b.Dataset.Rows),
			FocusRangeMax: b.FocusRangeMax,
			ScaleMax:      b.ScaleMax,
			Cells:         make([]CellView, len(b.Cells)),
		}
		for i, c := range b.Cells {
			bv.Cells[i] = newCellView(c)
		}
		resp.Bands = append(resp.Bands, bv)
	}
	return resp
}

type FetchRunView struct {
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Source     string     `json:"source"`
	Path       string     `json:"path"`
	CacheHit   bool       `json:"cacheHit"`
	Success    bool       `json:"success"`
	SizeBytes  *int64     `json:"sizeBytes,omitempty"`
	Error      string     `json:"error,omitempty"`
}

func newFetchRunView(r store.FetchRun) FetchRunView {
	v := FetchRunView{
		StartedAt: r.StartedAt,
		Source:    r.Source,
		Path:      r.Path,
		CacheHit:  r.CacheHit,
		Success:   r.Success,
		Error:     r.ErrorMessage.String,
	}
	if r.FinishedAt.Valid {
		t := r.FinishedAt.Time
		v.FinishedAt = &t
	}
	if r.ResponseSizeBytes.Valid {
		n := r.ResponseSizeBytes.Int64
		v.SizeBytes = &n
	}
	return v
}

type FetchesResponse struct {
	Health *FetchHealthView `json:"health"`
	Runs   []FetchRunView   `json:"runs"`
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
