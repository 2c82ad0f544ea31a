package aggregate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lox/jwstcurves/internal/models"
)

// PointID identifies one aggregated point across recomputations. It is only
// ever built by NewPointID so the x formatting stays consistent between the
// aggregator and drill-down lookups.
type PointID struct {
	Type  string
	Epoch string
	RIn   string
	ROut  string
	X     string
}

func NewPointID(key models.SeriesKey, x float64) PointID {
	return PointID{
		Type:  key.Band.Type(),
		Epoch: key.Epoch,
		RIn:   key.RIn,
		ROut:  key.ROut,
		X:     FormatX(x),
	}
}

// FormatX renders an aggregate x with five fixed decimals.
func FormatX(x float64) string {
	return strconv.FormatFloat(x, 'f', 5, 64)
}

func (p PointID) String() string {
	return strings.Join([]string{p.Type, p.Epoch, p.RIn, p.ROut, p.X}, "_")
}

func (p PointID) SeriesKey() models.SeriesKey {
	band := models.BandSW
	if p.Type == models.BandLW.Type() {
		band = models.BandLW
	}
	return models.SeriesKey{Epoch: p.Epoch, RIn: p.RIn, ROut: p.ROut, Band: band}
}

func ParsePointID(s string) (PointID, error) {
	parts := strings.Split(s, "_")
	if len(parts) != 5 {
		return PointID{}, fmt.Errorf("point id %q: want type_epoch_rin_rout_x", s)
	}
	if _, err := models.ParseBand(parts[0]); err != nil {
		return PointID{}, fmt.Errorf("point id %q: %w", s, err)
	}
	x, err := strconv.ParseFloat(parts[4], 64)
	if err != nil {
		return PointID{}, fmt.Errorf("point id %q: %w", s, err)
	}
	return PointID{
		Type:  strings.ToLower(parts[0]),
		Epoch: parts[1],
		RIn:   parts[2],
		ROut:  parts[3],
		X:     FormatX(x),
	}, nil
}

func (p PointID) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *PointID) UnmarshalText(b []byte) error {
	id, err := ParsePointID(string(b))
	if err != nil {
		return err
	}
	*p = id
	return nil
}
