package api

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/lox/jwstcurves/internal/dashboard"
	"github.com/lox/jwstcurves/internal/models"
)

// parseSettings builds view settings from query parameters, starting from
// the defaults. Bins and chunk sizes are clamped to their allowed ranges;
// any other malformed value is an error.
func parseSettings(q url.Values) (models.ViewSettings, error) {
	v := models.DefaultViewSettings()

	var selections []models.Selection
	for _, raw := range q["selection"] {
		for _, id := range strings.Split(raw, ",") {
			if strings.TrimSpace(id) == "" {
				continue
			}
			sel, err := models.ParseSelection(id)
			if err != nil {
				return v, err
			}
			selections = append(selections, sel)
		}
	}
	v = v.WithSelections(selections)

	if s := q.Get("dataType"); s != "" {
		v = v.WithDataType(models.DataType(strings.ToLower(s)))
	}
	if s := q.Get("xAxis"); s != "" {
		axis, err := models.ParseXAxis(s)
		if err != nil {
			return v, err
		}
		v = v.WithXAxis(axis)
	}
	if s := q.Get("errorBars"); s != "" {
		v = v.WithErrorBars(models.ErrorBarMode(strings.ToLower(s)))
	}
	if s := q.Get("plotType"); s != "" {
		v = v.WithPlotType(models.PlotType(strings.ToLower(s)))
	}
	if s := q.Get("colorBy"); s != "" {
		v = v.WithColorBy(models.ColorBy(strings.ToLower(s)))
	}

	if s := q.Get("bins"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return v, fmt.Errorf("bins: %w", err)
		}
		v = v.WithBins(clamp(n, models.MinBins, models.MaxBins))
	}
	if s := q.Get("chunk"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return v, fmt.Errorf("chunk: %w", err)
		}
		v = v.WithChunk(clamp(n, models.MinChunk, models.MaxChunk))
	}

	if s := q.Get("pointSize"); s != "" {
		f, err := parsePositive(s)
		if err != nil {
			return v, fmt.Errorf("pointSize: %w", err)
		}
		v = v.WithPointSize(f)
	}
	if s := q.Get("lineWidth"); s != "" {
		f, err := parsePositive(s)
		if err != nil {
			return v, fmt.Errorf("lineWidth: %w", err)
		}
		v = v.WithLineWidth(f)
	}

	if s := q.Get("focusRangeMax"); s != "" {
		f, err := parsePositive(s)
		if err != nil {
			return v, fmt.Errorf("focusRangeMax: %w", err)
		}
		manual := true
		if m := q.Get("focusManual"); m != "" {
			manual, err = strconv.ParseBool(m)
			if err != nil {
				return v, fmt.Errorf("focusManual: %w", err)
			}
		}
		if manual {
			v = v.WithFocusRangeMax(f)
		} else {
			v = v.WithAutoFocusRangeMax(f)
		}
	}

	if err := v.Validate(); err != nil {
		return v, &dashboard.ValidationError{Msg: err.Error()}
	}
	return v, nil
}

func clamp(n, lo, hi int) int {
	return max(lo, min(n, hi))
}

func parsePositive(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if !models.IsFinite(f) || f <= 0 {
		return 0, fmt.Errorf("%q must be a positive number", s)
	}
	return f, nil
}

// parseSize reads optional width and height parameters.
func parseSize(q url.Values) (int, int) {
	w, _ := strconv.Atoi(q.Get("width"))
	h, _ := strconv.Atoi(q.Get("height"))
	return w, h
}
