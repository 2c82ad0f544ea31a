package matrix

import (
	"math"

	"github.com/lox/jwstcurves/internal/models"
)

type CellKind string

const (
	CellLabel   CellKind = "label"
	CellScatter CellKind = "scatter"
	CellSummary CellKind = "summary"
)

// Cell is one square of the scatter matrix. Row and Col index Stats.Order;
// the pair shown is (ColDim on x, RowDim on y).
type Cell struct {
	Row    int
	Col    int
	RowDim string
	ColDim string
	Kind   CellKind
	// Points and Colors are set for scatter cells. Colors are on [0, ScaleMax].
	Points [][2]float64
	Colors []float64
	// Score, Slope and Identity are set for summary cells.
	Score    float64
	Slope    float64
	Identity bool
}

// ScaleMax is the top of the colour scale: the focus range for diff scoring,
// 1 for normalized distances.
func ScaleMax(colorBy models.ColorBy, focusRangeMax float64) float64 {
	if colorBy == models.ColorByDistance {
		return 1
	}
	return focusRangeMax
}

// Layout arranges the ordered columns into an n×n grid: labels on the
// diagonal, scatter plots below it and pair summaries above it.
func Layout(s *Stats, focusRangeMax float64) []Cell {
	scaleMax := ScaleMax(s.ColorBy, focusRangeMax)
	n := len(s.Order)
	cells := make([]Cell, 0, n*n)
	for row, yDim := range s.Order {
		for col, xDim := range s.Order {
			c := Cell{Row: row, Col: col, RowDim: yDim, ColDim: xDim}
			switch {
			case row == col:
				c.Kind = CellLabel
			case row > col:
				c.Kind = CellScatter
				if ps, ok := s.Pair(xDim, yDim); ok {
					c.Points = ps.Points
					c.Colors = make([]float64, len(ps.PerPoint))
					for i, v := range ps.PerPoint {
						c.Colors[i] = math.Min(math.Max(v, 0), scaleMax)
					}
				}
			default:
				c.Kind = CellSummary
				if ps, ok := s.Pair(xDim, yDim); ok {
					c.Score, c.Slope, c.Identity = ps.Score, ps.Slope, ps.Identity
				}
			}
			cells = append(cells, c)
		}
	}
	return cells
}
