// Package stats holds the numeric kernels shared by the analytics engine.
//
// All standard deviations are population deviations (denominator N). A
// column whose values are all equal has zero variance and every z-score in
// it is defined as 0.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// zTolerance absorbs rounding when comparing a z-score against a threshold.
// With a single outlier among n values the population z-score is exactly
// sqrt(n-1), which floating point may land a hair either side of.
const zTolerance = 1e-9

// Summary is the full set of descriptive statistics for one sample
type Summary struct {
	Mean   float64
	Median float64
	Std    float64
	Min    float64
	Max    float64
	Count  int
}

// Summarize computes descriptive statistics for x. x must not be empty.
func Summarize(x []float64) Summary {
	mean, std := PopMeanStd(x)
	return Summary{
		Mean:   mean,
		Median: Median(x),
		Std:    std,
		Min:    floats.Min(x),
		Max:    floats.Max(x),
		Count:  len(x),
	}
}

// Mean returns the arithmetic mean of x, or 0 for an empty slice. Finite
// inputs whose sum overflows fall back to a running mean.
func Mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	if m := stat.Mean(x, nil); AllFinite(m) || !AllFinite(x...) {
		return m
	}
	return runningMean(x)
}

func runningMean(x []float64) float64 {
	var m float64
	for i, v := range x {
		m += (v - m) / float64(i+1)
	}
	return m
}

// PopMeanStd returns the mean and population standard deviation of x.
// Constant and single-element inputs have std 0.
func PopMeanStd(x []float64) (mean, std float64) {
	switch len(x) {
	case 0:
		return 0, 0
	case 1:
		return x[0], 0
	}
	if isConstant(x) {
		return x[0], 0
	}
	mean, variance := stat.PopMeanVariance(x, nil)
	if !AllFinite(mean) {
		mean = Mean(x)
	}
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}

// Median returns the middle value of x, averaging the two middle values for
// even lengths. x is not modified.
func Median(x []float64) float64 {
	n := len(x)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, x)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	lo, hi := sorted[n/2-1], sorted[n/2]
	if (lo < 0) != (hi < 0) {
		return (lo + hi) / 2
	}
	return lo + (hi-lo)/2
}

// ZScores returns (x_i - mean) / std for every element using x itself as the
// reference population. Zero-variance input yields all zeros.
func ZScores(x []float64) []float64 {
	out := make([]float64, len(x))
	if len(x) < 2 || isConstant(x) {
		return out
	}
	mean, std := PopMeanStd(x)
	if std == 0 {
		return out
	}
	for i, v := range x {
		out[i] = stat.StdScore(v, mean, std)
	}
	return out
}

// AtLeast reports whether |z| reaches threshold
func AtLeast(z, threshold float64) bool {
	return math.Abs(z) >= threshold-zTolerance
}

// AllFinite reports whether every value is neither NaN nor infinite
func AllFinite(x ...float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Round2 rounds to two decimal places. Values of 2^52 and above are already
// integral and are returned unchanged.
func Round2(v float64) float64 {
	if math.Abs(v) >= 1<<52 {
		return v
	}
	return math.Round(v*100) / 100
}

// Clamp restricts v to [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func isConstant(x []float64) bool {
	return floats.Max(x) == floats.Min(x)
}
