// Package numeric holds the small set of statistics the light-curve views are
// built from: inverse-variance averaging, plain averaging and binning.
package numeric

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// WeightedAverage returns the inverse-variance weighted mean of values and its
// propagated uncertainty, 1/sqrt(sum(1/err^2)). A non-finite value, or an
// error that is non-finite or not positive, poisons the whole group; no
// partial exclusion is attempted.
func WeightedAverage(values, errs []float64) (mean, meanErr float64) {
	if !usable(values, errs) {
		return math.NaN(), math.NaN()
	}

	weights := make([]float64, len(errs))
	for i, e := range errs {
		weights[i] = 1 / (e * e)
	}
	sumW := floats.Sum(weights)
	mean = floats.Dot(weights, values) / sumW
	meanErr = 1 / math.Sqrt(sumW)
	return mean, meanErr
}

// PlainAverage returns the arithmetic mean of values with error
// sqrt(sum(err^2))/n. It is poisoned by the same inputs as WeightedAverage.
func PlainAverage(values, errs []float64) (mean, meanErr float64) {
	if !usable(values, errs) {
		return math.NaN(), math.NaN()
	}
	n := float64(len(values))
	return floats.Sum(values) / n, math.Sqrt(floats.Dot(errs, errs)) / n
}

// usable reports whether a group can be averaged: equal non-zero lengths,
// finite values and finite positive errors.
func usable(values, errs []float64) bool {
	if len(values) == 0 || len(values) != len(errs) {
		return false
	}
	for i := range values {
		if !finite(values[i]) || !finite(errs[i]) || errs[i] <= 0 {
			return false
		}
	}
	return true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Mean is the unweighted mean, NaN for no values.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return stat.Mean(values, nil)
}

// Digitize returns, for each value, the index of the first edge that bounds it
// from above: v < edge for left-closed bins, v <= edge when right is set.
// Values past the last edge, and NaN, map to len(edges). Edges must be
// ascending.
func Digitize(values, edges []float64, right bool) []int {
	out := make([]int, len(values))
	for i, v := range values {
		out[i] = len(edges)
		for j, e := range edges {
			if (right && v <= e) || (!right && v < e) {
				out[i] = j
				break
			}
		}
	}
	return out
}

// UniformEdges returns n+1 evenly spaced edges over [0, 1].
func UniformEdges(n int) []float64 {
	edges := make([]float64, n+1)
	for i := range edges {
		edges[i] = float64(i) / float64(n)
	}
	return edges
}
