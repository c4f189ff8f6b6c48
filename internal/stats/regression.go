package stats

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrTooFewPoints is returned when a regression has fewer than two points
var ErrTooFewPoints = errors.New("regression needs at least two points")

// Trend is an ordinary least-squares fit of y against x
type Trend struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	RValue    float64 `json:"rvalue"`
	PValue    float64 `json:"pvalue"`
	StdErr    float64 `json:"stderr"`
}

// LinearTrend fits y = intercept + slope*x.
//
// The p-value is the two-sided test of slope == 0 under Student's t with
// n-2 degrees of freedom. With two points the fit is exact and carries no
// evidence, so PValue is 1 and StdErr is 0. A constant y gives a flat trend
// with RValue 0.
func LinearTrend(x, y []float64) (Trend, error) {
	n := len(x)
	if n != len(y) {
		return Trend{}, errors.New("regression inputs differ in length")
	}
	if n < 2 {
		return Trend{}, ErrTooFewPoints
	}
	if isConstant(x) {
		return Trend{}, errors.New("regression x values are constant")
	}
	if isConstant(y) {
		return Trend{Intercept: y[0], PValue: 1}, nil
	}

	intercept, slope := stat.LinearRegression(x, y, nil, false)
	r := stat.Correlation(x, y, nil)
	r = Clamp(r, -1, 1)

	t := Trend{Slope: slope, Intercept: intercept, RValue: r, PValue: 1}
	df := float64(n - 2)
	if df <= 0 {
		return t, nil
	}
	if math.Abs(r) == 1 {
		t.PValue = 0
		return t, nil
	}

	tStat := r * math.Sqrt(df/((1-r)*(1+r)))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	t.PValue = 2 * dist.Survival(math.Abs(tStat))

	ssx := stat.PopVariance(x, nil)
	ssy := stat.PopVariance(y, nil)
	t.StdErr = math.Sqrt((1 - r*r) * ssy / ssx / df)
	return t, nil
}
