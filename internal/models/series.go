package models

import (
	"fmt"
	"math"
	"strings"
)

type Band string

const (
	BandSW Band = "SW"
	BandLW Band = "LW"
)

// Bands lists both detector bands in display order.
var Bands = []Band{BandSW, BandLW}

// Type is the lowercase band tag used in point identities, legend groups and data paths.
func (b Band) Type() string {
	return strings.ToLower(string(b))
}

func ParseBand(s string) (Band, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SW":
		return BandSW, nil
	case "LW":
		return BandLW, nil
	}
	return "", fmt.Errorf("unknown band %q", s)
}

// Selection identifies an epoch and aperture pair, independent of band.
type Selection struct {
	Epoch string
	RIn   string
	ROut  string
}

// ParseSelection parses a catalog identifier of the form "{epoch}_{r_in}_{r_out}".
func ParseSelection(id string) (Selection, error) {
	parts := strings.Split(strings.TrimSpace(id), "_")
	if len(parts) != 3 {
		return Selection{}, fmt.Errorf("selection %q: want epoch_rin_rout", id)
	}
	for _, p := range parts {
		if p == "" {
			return Selection{}, fmt.Errorf("selection %q: empty component", id)
		}
	}
	return Selection{Epoch: parts[0], RIn: parts[1], ROut: parts[2]}, nil
}

func (s Selection) ID() string {
	return s.Epoch + "_" + s.RIn + "_" + s.ROut
}

func (s Selection) Label() string {
	return s.Epoch + "." + s.RIn + "." + s.ROut
}

func (s Selection) Key(band Band) SeriesKey {
	return SeriesKey{Epoch: s.Epoch, RIn: s.RIn, ROut: s.ROut, Band: band}
}

type SeriesKey struct {
	Epoch string
	RIn   string
	ROut  string
	Band  Band
}

func (k SeriesKey) Selection() Selection {
	return Selection{Epoch: k.Epoch, RIn: k.RIn, ROut: k.ROut}
}

// Path is the payload location relative to the rawdata root.
func (k SeriesKey) Path() string {
	return fmt.Sprintf("%s/%s/%s/%s.json", k.Epoch, k.Band.Type(), k.RIn, k.ROut)
}

// ColumnName names the series in an aligned dataset. The epoch is part of
// the name so the same aperture from two epochs stays distinct.
func (k SeriesKey) ColumnName() string {
	return string(k.Band) + "." + k.Epoch + "." + k.RIn + "." + k.ROut
}

func (k SeriesKey) Label() string {
	return k.Selection().Label()
}

func (k SeriesKey) String() string {
	return k.Band.Type() + "_" + k.Selection().ID()
}

// Metadata is the opaque per-sample record carried alongside the flux.
type Metadata map[string]any

// Filename returns the exposure image name if the record carries one.
func (m Metadata) Filename() string {
	if m == nil {
		return ""
	}
	s, _ := m["filename"].(string)
	return s
}

// RawSample is one photometric measurement. Time variants and phase that the
// payload does not provide for this ordering are NaN.
type RawSample struct {
	Flux    float64
	FluxErr float64
	Phase   float64
	MJD     float64
	Second  float64
	Minute  float64
	Hour    float64
	Day     float64
	Meta    Metadata
}

// RawSampleSet is everything loaded for one series. Time holds samples in
// acquisition order and Phase holds them in phase order.
type RawSampleSet struct {
	Key   SeriesKey
	Time  []RawSample
	Phase []RawSample
}

func (s *RawSampleSet) Len() int {
	return len(s.Time) + len(s.Phase)
}

// Column extracts one axis field from samples.
func Column(samples []RawSample, field func(RawSample) float64) []float64 {
	out := make([]float64, len(samples))
	for i, sm := range samples {
		out[i] = field(sm)
	}
	return out
}

func Flux(s RawSample) float64    { return s.Flux }
func FluxErr(s RawSample) float64 { return s.FluxErr }

func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
