package ingest

import (
	"encoding/json"
	"math"

	"github.com/lox/jwstcurves/internal/models"
)

const (
	FlagUncertaintyNonPositive = "uncertainty_non_positive"
	FlagUncertaintyInvalid     = "uncertainty_invalid"
	FlagFluxInvalid            = "flux_invalid"
	FlagPhaseOutOfRange        = "phase_out_of_range"
	FlagTimeInvalid            = "time_invalid"
	FlagFilenameMissing        = "filename_missing"
)

// ValidateSamples reports data quality problems in a loaded set. Flags are
// informational; the samples are kept as loaded and NaN values poison
// whatever group they are averaged into.
func ValidateSamples(set *models.RawSampleSet) []string {
	seen := make(map[string]bool)
	var flags []string
	add := func(flag string) {
		if !seen[flag] {
			seen[flag] = true
			flags = append(flags, flag)
		}
	}

	check := func(s models.RawSample) {
		if !models.IsFinite(s.Flux) {
			add(FlagFluxInvalid)
		}
		switch {
		case !models.IsFinite(s.FluxErr):
			add(FlagUncertaintyInvalid)
		case s.FluxErr <= 0:
			add(FlagUncertaintyNonPositive)
		}
		if s.Meta.Filename() == "" {
			add(FlagFilenameMissing)
		}
	}

	for _, s := range set.Time {
		check(s)
		if !models.IsFinite(s.MJD) {
			add(FlagTimeInvalid)
		}
	}
	for _, s := range set.Phase {
		check(s)
		if math.IsNaN(s.Phase) || s.Phase < 0 || s.Phase >= 1 {
			add(FlagPhaseOutOfRange)
		}
	}
	return flags
}

func QualityFlagsToJSON(flags []string) string {
	if len(flags) == 0 {
		return ""
	}
	b, _ := json.Marshal(flags)
	return string(b)
}
