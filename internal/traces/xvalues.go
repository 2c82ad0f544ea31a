package traces

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/lox/jwstcurves/internal/models"
)

type XKind int

const (
	XNumeric XKind = iota
	XCategorical
	XInstant
)

func (k XKind) String() string {
	switch k {
	case XCategorical:
		return "categorical"
	case XInstant:
		return "instant"
	}
	return "numeric"
}

// XValues is a homogeneous x array: exactly one of the slices is populated,
// selected by Kind.
type XValues struct {
	Kind     XKind
	Numbers  []float64
	Labels   []string
	Instants []time.Time
}

func Numbers(xs []float64) XValues { return XValues{Kind: XNumeric, Numbers: xs} }
func Labels(xs []string) XValues { return XValues{Kind: XCategorical, Labels: xs} }
func Instants(xs []time.Time) XValues { return XValues{Kind: XInstant, Instants: xs} }

func (x XValues) Len() int {
	switch x.Kind {
	case XCategorical:
		return len(x.Labels)
	case XInstant:
		return len(x.Instants)
	}
	return len(x.Numbers)
}

// Float returns the i-th value as a number for numeric and instant arrays.
// Instants are returned as MJD.
func (x XValues) Float(i int) (float64, bool) {
	switch x.Kind {
	case XNumeric:
		return x.Numbers[i], true
	case XInstant:
		if x.Instants[i].IsZero() {
			return math.NaN(), true
		}
		return TimeToMJD(x.Instants[i]), true
	}
	return 0, false
}

func (x XValues) MarshalJSON() ([]byte, error) {
	switch x.Kind {
	case XCategorical:
		return json.Marshal(x.Labels)
	case XInstant:
		out := make([]*string, len(x.Instants))
		for i, t := range x.Instants {
			if t.IsZero() {
				continue
			}
			s := t.UTC().Format("2006-01-02T15:04:05.000Z")
			out[i] = &s
		}
		return json.Marshal(out)
	}
	return json.Marshal(NullableFloats(x.Numbers))
}

// mjdEpoch is MJD 0.
var mjdEpoch = time.Date(1858, time.November, 17, 0, 0, 0, 0, time.UTC)

// MJDToTime converts a modified Julian date to a UTC instant. Non-finite input
// yields the zero time.
func MJDToTime(mjd float64) time.Time {
	if !models.IsFinite(mjd) {
		return time.Time{}
	}
	return mjdEpoch.Add(time.Duration(mjd * float64(24*time.Hour)))
}

func TimeToMJD(t time.Time) float64 {
	return float64(t.Sub(mjdEpoch)) / float64(24*time.Hour)
}

// ForAxis types raw x values for the given axis. The time axis carries MJD
// and is converted to instants; every other axis stays numeric.
func ForAxis(axis models.XAxis, xs []float64) XValues {
	if axis != models.XAxisTime {
		return Numbers(xs)
	}
	out := make([]time.Time, len(xs))
	for i, x := range xs {
		out[i] = MJDToTime(x)
	}
	return Instants(out)
}

// NullableFloats maps non-finite values to nil so they encode as JSON null.
func NullableFloats(xs []float64) []*float64 {
	out := make([]*float64, len(xs))
	for i := range xs {
		if models.IsFinite(xs[i]) {
			v := xs[i]
			out[i] = &v
		}
	}
	return out
}

func (x XValues) check(n int) error {
	if x.Len() != n {
		return fmt.Errorf("x has %d values, want %d", x.Len(), n)
	}
	return nil
}
