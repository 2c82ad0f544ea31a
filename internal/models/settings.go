package models

import (
	"database/sql"
	"fmt"
	"strings"
)

type XAxis string

const (
	XAxisPhase  XAxis = "phase"
	XAxisMJD    XAxis = "mjd"
	XAxisTime   XAxis = "time"
	XAxisSecond XAxis = "second"
	XAxisMinute XAxis = "minute"
	XAxisHour   XAxis = "hour"
	XAxisDay    XAxis = "day"
)

func ParseXAxis(s string) (XAxis, error) {
	switch a := XAxis(strings.ToLower(s)); a {
	case XAxisPhase, XAxisMJD, XAxisTime, XAxisSecond, XAxisMinute, XAxisHour, XAxisDay:
		return a, nil
	}
	return "", fmt.Errorf("unknown x axis %q", s)
}

// Field returns the sample accessor for the axis. The time axis reads MJD;
// conversion to instants happens when traces are built.
func (a XAxis) Field() func(RawSample) float64 {
	switch a {
	case XAxisPhase:
		return func(s RawSample) float64 { return s.Phase }
	case XAxisSecond:
		return func(s RawSample) float64 { return s.Second }
	case XAxisMinute:
		return func(s RawSample) float64 { return s.Minute }
	case XAxisHour:
		return func(s RawSample) float64 { return s.Hour }
	case XAxisDay:
		return func(s RawSample) float64 { return s.Day }
	default:
		return func(s RawSample) float64 { return s.MJD }
	}
}

// Title is the axis label shown on plots.
func (a XAxis) Title() string {
	switch a {
	case XAxisPhase:
		return "Phase"
	case XAxisMJD:
		return "MJD"
	case XAxisTime:
		return "Time (UTC)"
	default:
		return "Time (" + string(a) + ")"
	}
}

type DataType string

const (
	DataTypeAverage DataType = "average"
	DataTypeRaw     DataType = "raw"
)

type ErrorBarMode string

const (
	ErrorBarsBar      ErrorBarMode = "bar"
	ErrorBarsSeparate ErrorBarMode = "separate"
	ErrorBarsHide     ErrorBarMode = "hide"
)

type PlotType string

const (
	PlotMarkers      PlotType = "markers"
	PlotLines        PlotType = "lines"
	PlotLinesMarkers PlotType = "lines+markers"
)

type ColorBy string

const (
	ColorByDiff     ColorBy = "diff"
	ColorByDistance ColorBy = "distance"
)

const (
	MinBins  = 5
	MaxBins  = 1000
	MinChunk = 1
	MaxChunk = 1000
)

// ViewSettings is the full set of user-controlled view parameters. Values are
// immutable; the With methods return modified copies.
type ViewSettings struct {
	selections               []Selection
	dataType                 DataType
	xAxis                    XAxis
	errorBars                ErrorBarMode
	bins                     int
	chunk                    int
	plotType                 PlotType
	pointSize                float64
	lineWidth                float64
	colorBy                  ColorBy
	focusRangeMax            float64
	focusRangeMaxManuallySet bool
}

func DefaultViewSettings() ViewSettings {
	return ViewSettings{
		dataType:      DataTypeAverage,
		xAxis:         XAxisPhase,
		errorBars:     ErrorBarsHide,
		bins:          100,
		chunk:         100,
		plotType:      PlotMarkers,
		pointSize:     8,
		lineWidth:     2,
		colorBy:       ColorByDiff,
		focusRangeMax: 100,
	}
}

func (v ViewSettings) Selections() []Selection {
	out := make([]Selection, len(v.selections))
	copy(out, v.selections)
	return out
}

func (v ViewSettings) DataType() DataType { return v.dataType }
func (v ViewSettings) XAxis() XAxis { return v.xAxis }
func (v ViewSettings) ErrorBars() ErrorBarMode { return v.errorBars }
func (v ViewSettings) Bins() int { return v.bins }
func (v ViewSettings) Chunk() int { return v.chunk }
func (v ViewSettings) PlotType() PlotType { return v.plotType }
func (v ViewSettings) PointSize() float64 { return v.pointSize }
func (v ViewSettings) LineWidth() float64 { return v.lineWidth }
func (v ViewSettings) ColorBy() ColorBy { return v.colorBy }
func (v ViewSettings) FocusRangeMax() float64 { return v.focusRangeMax }
func (v ViewSettings) FocusRangeMaxManuallySet() bool { return v.focusRangeMaxManuallySet }

func (v ViewSettings) WithSelections(s []Selection) ViewSettings {
	v.selections = make([]Selection, len(s))
	copy(v.selections, s)
	return v
}

func (v ViewSettings) WithDataType(d DataType) ViewSettings { v.dataType = d; return v }
func (v ViewSettings) WithXAxis(a XAxis) ViewSettings { v.xAxis = a; return v }
func (v ViewSettings) WithErrorBars(m ErrorBarMode) ViewSettings { v.errorBars = m; return v }
func (v ViewSettings) WithBins(n int) ViewSettings { v.bins = n; return v }
func (v ViewSettings) WithChunk(n int) ViewSettings { v.chunk = n; return v }
func (v ViewSettings) WithPlotType(p PlotType) ViewSettings { v.plotType = p; return v }
func (v ViewSettings) WithPointSize(s float64) ViewSettings { v.pointSize = s; return v }
func (v ViewSettings) WithLineWidth(w float64) ViewSettings { v.lineWidth = w; return v }
func (v ViewSettings) WithColorBy(c ColorBy) ViewSettings { v.colorBy = c; return v }

// WithFocusRangeMax records a focus range chosen by the user, which disables
// automatic range fitting.
func (v ViewSettings) WithFocusRangeMax(max float64) ViewSettings {
	v.focusRangeMax = max
	v.focusRangeMaxManuallySet = true
	return v
}

// WithAutoFocusRangeMax stores a fitted focus range without marking it manual.
func (v ViewSettings) WithAutoFocusRangeMax(max float64) ViewSettings {
	v.focusRangeMax = max
	return v
}

func (v ViewSettings) Validate() error {
	switch v.dataType {
	case DataTypeAverage, DataTypeRaw:
	default:
		return fmt.Errorf("data type %q not supported", v.dataType)
	}
	if _, err := ParseXAxis(string(v.xAxis)); err != nil {
		return err
	}
	switch v.errorBars {
	case ErrorBarsBar, ErrorBarsSeparate, ErrorBarsHide:
	default:
		return fmt.Errorf("error bar mode %q not supported", v.errorBars)
	}
	switch v.plotType {
	case PlotMarkers, PlotLines, PlotLinesMarkers:
	default:
		return fmt.Errorf("plot type %q not supported", v.plotType)
	}
	switch v.colorBy {
	case ColorByDiff, ColorByDistance:
	default:
		return fmt.Errorf("color mode %q not supported", v.colorBy)
	}
	if v.bins < MinBins || v.bins > MaxBins {
		return fmt.Errorf("bins %d outside [%d, %d]", v.bins, MinBins, MaxBins)
	}
	if v.chunk < MinChunk || v.chunk > MaxChunk {
		return fmt.Errorf("chunk %d outside [%d, %d]", v.chunk, MinChunk, MaxChunk)
	}
	return nil
}

// CacheKey renders every input that affects derived results. Two settings
// with equal keys produce identical outputs.
func (v ViewSettings) CacheKey() string {
	ids := make([]string, len(v.selections))
	for i, s := range v.selections {
		ids[i] = s.ID()
	}
	return fmt.Sprintf("%s|%s|%s|%s|%d|%d|%s|%g|%g|%s",
		strings.Join(ids, ","), v.dataType, v.xAxis, v.errorBars, v.bins, v.chunk,
		v.plotType, v.pointSize, v.lineWidth, v.colorBy)
}

// Dataset is a set of series aligned on a shared time axis. Rows[i][j] is the
// value of Columns[j] at Times[i]; an invalid entry means no sample.
type Dataset struct {
	Columns []string
	Times   []float64
	Rows    []Row
}

type Row []sql.NullFloat64

// ColumnIndex returns the position of name in Columns, or -1.
func (d *Dataset) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}
