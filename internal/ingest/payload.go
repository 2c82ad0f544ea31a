package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/lox/jwstcurves/internal/models"
)

// ErrMalformed marks a payload that is not valid JSON or whose parallel
// arrays disagree in length.
var ErrMalformed = errors.New("malformed payload")

// number decodes a JSON number, numeric string or null. Anything that is not
// a real number becomes NaN so it poisons the group it lands in.
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = number(math.NaN())
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			f = math.NaN()
		}
		*n = number(f)
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		f = math.NaN()
	}
	*n = number(f)
	return nil
}

type seriesPayload struct {
	FluxTime    []number          `json:"psf_flux_time"`
	FluxErrTime []number          `json:"psf_flux_unc_time"`
	TimeMJD     []number          `json:"time_mjd"`
	TimeSecond  []number          `json:"time_second"`
	TimeMinute  []number          `json:"time_minute"`
	TimeHour    []number          `json:"time_hour"`
	TimeDay     []number          `json:"time_day"`
	CustomTime  []json.RawMessage `json:"customdata_time"`

	FluxPhase    []number          `json:"psf_flux_phase"`
	FluxErrPhase []number          `json:"psf_flux_unc_phase"`
	PhaseValues  []number          `json:"phase_values_phase"`
	CustomPhase  []json.RawMessage `json:"customdata_phase"`
}

// DecodeSeries parses a series payload. Every array sharing a suffix must
// have the same length; optional arrays may be absent. Values the other
// ordering provides are copied across by index when the lengths agree.
func DecodeSeries(key models.SeriesKey, data []byte) (*models.RawSampleSet, error) {
	var p seriesPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode %s: %w: %v", key.Path(), ErrMalformed, err)
	}

	nt := len(p.FluxTime)
	if err := sameLength(nt, map[string]int{
		"psf_flux_unc_time": len(p.FluxErrTime),
	}, map[string]int{
		"time_mjd":        len(p.TimeMJD),
		"time_second":     len(p.TimeSecond),
		"time_minute":     len(p.TimeMinute),
		"time_hour":       len(p.TimeHour),
		"time_day":        len(p.TimeDay),
		"customdata_time": len(p.CustomTime),
	}); err != nil {
		return nil, fmt.Errorf("decode %s: time arrays: %w", key.Path(), err)
	}

	np := len(p.FluxPhase)
	if err := sameLength(np, map[string]int{
		"psf_flux_unc_phase": len(p.FluxErrPhase),
		"phase_values_phase": len(p.PhaseValues),
	}, map[string]int{
		"customdata_phase": len(p.CustomPhase),
	}); err != nil {
		return nil, fmt.Errorf("decode %s: phase arrays: %w", key.Path(), err)
	}

	set := &models.RawSampleSet{
		Key:   key,
		Time:  make([]models.RawSample, nt),
		Phase: make([]models.RawSample, np),
	}
	for i := 0; i < nt; i++ {
		set.Time[i] = models.RawSample{
			Flux:    float64(p.FluxTime[i]),
			FluxErr: float64(p.FluxErrTime[i]),
			Phase:   at(p.PhaseValues, i, nt),
			MJD:     at(p.TimeMJD, i, nt),
			Second:  at(p.TimeSecond, i, nt),
			Minute:  at(p.TimeMinute, i, nt),
			Hour:    at(p.TimeHour, i, nt),
			Day:     at(p.TimeDay, i, nt),
			Meta:    metadataAt(p.CustomTime, i),
		}
	}
	for i := 0; i < np; i++ {
		set.Phase[i] = models.RawSample{
			Flux:    float64(p.FluxPhase[i]),
			FluxErr: float64(p.FluxErrPhase[i]),
			Phase:   float64(p.PhaseValues[i]),
			MJD:     at(p.TimeMJD, i, np),
			Second:  at(p.TimeSecond, i, np),
			Minute:  at(p.TimeMinute, i, np),
			Hour:    at(p.TimeHour, i, np),
			Day:     at(p.TimeDay, i, np),
			Meta:    metadataAt(p.CustomPhase, i),
		}
	}
	return set, nil
}

// sameLength checks required arrays against n, and optional arrays against n
// when they are present at all.
func sameLength(n int, required, optional map[string]int) error {
	for name, l := range required {
		if l != n {
			return fmt.Errorf("%w: %s has %d values, want %d", ErrMalformed, name, l, n)
		}
	}
	for name, l := range optional {
		if l != 0 && l != n {
			return fmt.Errorf("%w: %s has %d values, want %d", ErrMalformed, name, l, n)
		}
	}
	return nil
}

// at reads xs[i] when xs is parallel to a sequence of length n.
func at(xs []number, i, n int) float64 {
	if len(xs) != n || i >= len(xs) {
		return math.NaN()
	}
	return float64(xs[i])
}

func metadataAt(raw []json.RawMessage, i int) models.Metadata {
	if i >= len(raw) {
		return nil
	}
	var m models.Metadata
	if err := json.Unmarshal(raw[i], &m); err == nil {
		return m
	}
	var v any
	if err := json.Unmarshal(raw[i], &v); err != nil || v == nil {
		return nil
	}
	return models.Metadata{"value": v}
}

// DecodeCatalog parses the catalog file, a JSON array of selection ids.
// Entries that do not parse are reported in skipped.
func DecodeCatalog(data []byte) (selections []models.Selection, skipped []string, err error) {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, nil, fmt.Errorf("decode catalog: %w: %v", ErrMalformed, err)
	}
	for _, id := range ids {
		sel, err := models.ParseSelection(id)
		if err != nil {
			skipped = append(skipped, id)
			continue
		}
		selections = append(selections, sel)
	}
	return selections, skipped, nil
}
