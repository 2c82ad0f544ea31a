// Package matrix computes pairwise agreement statistics between aligned
// series for the scatter-matrix view.
package matrix

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/lox/jwstcurves/internal/models"
)

// PercentDiff is |x-y| relative to the mean magnitude, in percent. Two zeros
// agree perfectly.
func PercentDiff(x, y float64) float64 {
	denom := (math.Abs(x) + math.Abs(y)) / 2
	if denom == 0 {
		return 0
	}
	return math.Abs(x-y) / denom * 100
}

// DistToXY is the log-compressed distance of (x, y) from the identity line.
func DistToXY(x, y float64) float64 {
	return math.Log10(1 + math.Abs(x-y)/math.Sqrt2)
}

func ScoreFunc(c models.ColorBy) func(x, y float64) float64 {
	if c == models.ColorByDistance {
		return DistToXY
	}
	return PercentDiff
}

// Pair is an ordered pair of column names: A on the x axis, B on the y axis.
type Pair struct {
	A string
	B string
}

func (p Pair) String() string { return p.A + "|" + p.B }

type PairwiseStat struct {
	// Score is the mean of PerPoint, or 0 when no row had both values.
	Score float64
	// Slope of B regressed on A; NaN when the fit is undefined.
	Slope float64
	// PerPoint holds raw percent differences for diff scoring and globally
	// normalized distances for distance scoring, aligned with Points.
	PerPoint []float64
	Points   [][2]float64
	// Identity is set when the slope rounds to 1.00.
	Identity bool
}

type Stats struct {
	ColorBy      models.ColorBy
	Columns      []string
	Pairs        map[Pair]*PairwiseStat
	Order        []string
	GlobalMaxRaw float64
}

// Compute scores every ordered pair of distinct columns over the rows where
// both values are finite, then orders columns by descending mean score.
func Compute(ds *models.Dataset, colorBy models.ColorBy) *Stats {
	score := ScoreFunc(colorBy)
	st := &Stats{
		ColorBy: colorBy,
		Columns: append([]string(nil), ds.Columns...),
		Pairs:   make(map[Pair]*PairwiseStat),
	}

	var all []float64
	for i, a := range ds.Columns {
		for j, b := range ds.Columns {
			if i == j {
				continue
			}
			ps := &PairwiseStat{}
			var xs, ys []float64
			for _, row := range ds.Rows {
				x, y := row[i], row[j]
				if !x.Valid || !y.Valid || !models.IsFinite(x.Float64) || !models.IsFinite(y.Float64) {
					continue
				}
				xs = append(xs, x.Float64)
				ys = append(ys, y.Float64)
				ps.Points = append(ps.Points, [2]float64{x.Float64, y.Float64})
				ps.PerPoint = append(ps.PerPoint, score(x.Float64, y.Float64))
			}
			ps.Slope = slope(xs, ys)
			ps.Identity = fmt.Sprintf("%.2f", ps.Slope) == "1.00"
			all = append(all, ps.PerPoint...)
			st.Pairs[Pair{A: a, B: b}] = ps
		}
	}

	if len(all) > 0 {
		st.GlobalMaxRaw = math.Max(0, floats.Max(all))
	}

	if colorBy == models.ColorByDistance && len(all) > 0 {
		lo, hi := floats.Min(all), floats.Max(all)
		span := hi - lo
		if span == 0 {
			span = 1
		}
		for _, ps := range st.Pairs {
			for k, v := range ps.PerPoint {
				ps.PerPoint[k] = (v - lo) / span
			}
		}
	}

	for _, ps := range st.Pairs {
		if len(ps.PerPoint) > 0 {
			ps.Score = stat.Mean(ps.PerPoint, nil)
		}
	}

	st.Order = st.order()
	return st
}

func slope(xs, ys []float64) float64 {
	if len(xs) < 2 {
		return math.NaN()
	}
	_, beta := stat.LinearRegression(xs, ys, nil, false)
	if !models.IsFinite(beta) {
		return math.NaN()
	}
	return beta
}

// ColumnScore is the mean score of col against every other column.
func (s *Stats) ColumnScore(col string) float64 {
	if len(s.Columns) < 2 {
		return 0
	}
	var sum float64
	for _, other := range s.Columns {
		if other == col {
			continue
		}
		if ps, ok := s.Pairs[Pair{A: col, B: other}]; ok {
			sum += ps.Score
		} else if ps, ok := s.Pairs[Pair{A: other, B: col}]; ok {
			sum += ps.Score
		}
	}
	return sum / float64(len(s.Columns)-1)
}

// order sorts columns by descending ColumnScore; ties keep column order.
func (s *Stats) order() []string {
	order := append([]string(nil), s.Columns...)
	scores := make(map[string]float64, len(order))
	for _, c := range order {
		scores[c] = s.ColumnScore(c)
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})
	return order
}

func (s *Stats) Pair(a, b string) (*PairwiseStat, bool) {
	ps, ok := s.Pairs[Pair{A: a, B: b}]
	return ps, ok
}

// DefaultFocusRangeMax is the focus range used until data or the user sets one.
const DefaultFocusRangeMax = 100

// NextFocusRangeMax proposes the colour-scale ceiling for diff scoring. A
// manually set value is always kept. Otherwise the range is refit when it is
// still the default or the data exceeds it, capped at 100.
func NextFocusRangeMax(current float64, manual bool, globalMaxRaw float64) float64 {
	if manual || globalMaxRaw <= 0 {
		return current
	}
	if current == DefaultFocusRangeMax || globalMaxRaw > current {
		if globalMaxRaw > DefaultFocusRangeMax {
			return DefaultFocusRangeMax
		}
		return math.Ceil(globalMaxRaw)
	}
	return current
}
