package aggregate

import (
	"encoding/json"
	"log"
	"math"

	"github.com/lox/jwstcurves/internal/models"
)

// RawPoint is a source sample enriched with every time variant, as shown when
// an aggregated point is expanded.
type RawPoint struct {
	X      float64         `json:"x"`
	Y      float64         `json:"y"`
	Err    float64         `json:"err"`
	Phase  float64         `json:"phase"`
	MJD    float64         `json:"mjd"`
	Second float64         `json:"second"`
	Minute float64         `json:"minute"`
	Hour   float64         `json:"hour"`
	Day    float64         `json:"day"`
	Meta   models.Metadata `json:"customdata,omitempty"`
}

func newRawPoint(x float64, s models.RawSample) RawPoint {
	return RawPoint{
		X:      x,
		Y:      s.Flux,
		Err:    s.FluxErr,
		Phase:  s.Phase,
		MJD:    s.MJD,
		Second: s.Second,
		Minute: s.Minute,
		Hour:   s.Hour,
		Day:    s.Day,
		Meta:   s.Meta,
	}
}

func (p RawPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		X      *float64        `json:"x"`
		Y      *float64        `json:"y"`
		Err    *float64        `json:"err"`
		Phase  *float64        `json:"phase"`
		MJD    *float64        `json:"mjd"`
		Second *float64        `json:"second"`
		Minute *float64        `json:"minute"`
		Hour   *float64        `json:"hour"`
		Day    *float64        `json:"day"`
		Meta   models.Metadata `json:"customdata,omitempty"`
	}{finite(p.X), finite(p.Y), finite(p.Err), finite(p.Phase), finite(p.MJD),
		finite(p.Second), finite(p.Minute), finite(p.Hour), finite(p.Day), p.Meta})
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// RawPointIndex maps aggregated point identities to the samples that formed
// them. Entries are never mutated after insertion.
type RawPointIndex struct {
	points map[PointID][]RawPoint
	order  []PointID
}

func NewRawPointIndex() *RawPointIndex {
	return &RawPointIndex{points: make(map[PointID][]RawPoint)}
}

// add registers members under id. A second registration of the same id keeps
// the first entry.
func (ix *RawPointIndex) add(id PointID, members []RawPoint) {
	if _, exists := ix.points[id]; exists {
		log.Printf("aggregate: duplicate point id %s, keeping first", id)
		return
	}
	ix.points[id] = members
	ix.order = append(ix.order, id)
}

func (ix *RawPointIndex) Lookup(id PointID) ([]RawPoint, bool) {
	if ix == nil {
		return nil, false
	}
	pts, ok := ix.points[id]
	return pts, ok
}

func (ix *RawPointIndex) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.order)
}

// IDs returns identities in insertion order.
func (ix *RawPointIndex) IDs() []PointID {
	if ix == nil {
		return nil
	}
	out := make([]PointID, len(ix.order))
	copy(out, ix.order)
	return out
}

// Merge copies every entry of other into ix.
func (ix *RawPointIndex) Merge(other *RawPointIndex) {
	for _, id := range other.IDs() {
		ix.add(id, other.points[id])
	}
}

// ExtremePoints returns the points sitting at the minimum or maximum of x or
// y, in their original order. Non-finite coordinates never qualify.
func ExtremePoints(points []RawPoint) []RawPoint {
	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, p := range points {
		if models.IsFinite(p.X) {
			minX = math.Min(minX, p.X)
			maxX = math.Max(maxX, p.X)
		}
		if models.IsFinite(p.Y) {
			minY = math.Min(minY, p.Y)
			maxY = math.Max(maxY, p.Y)
		}
	}

	var out []RawPoint
	for _, p := range points {
		if p.X == minX || p.X == maxX || p.Y == minY || p.Y == maxY {
			out = append(out, p)
		}
	}
	return out
}
