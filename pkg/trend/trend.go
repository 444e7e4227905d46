// Package trend fits ordinary least squares lines over ranked series.
package trend

import (
	"errors"
	"fmt"

	"github.com/iwvelando/capacity-trend/pkg/constants"
)

// ErrInsufficientData is returned when fewer than two points are available,
// which would leave the fit without a unique solution.
var ErrInsufficientData = errors.New("insufficient data for trend")

// Line is a fitted straight line y = Intercept + Slope*x.
type Line struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	N         int     `json:"n"`
}

// Fit regresses values against their 1-based rank.
func Fit(values []float64) (Line, error) {
	return FitRange(values, 1, len(values))
}

// FitRange regresses values[first-1:last] against the absolute ranks
// first..last (both inclusive, 1-based).
func FitRange(values []float64, first, last int) (Line, error) {
	if first < 1 || last > len(values) {
		return Line{}, fmt.Errorf("rank range [%d, %d] outside 1..%d", first, last, len(values))
	}
	n := last - first + 1
	if n < constants.MinTrendPoints {
		return Line{}, fmt.Errorf("%w: %d point(s)", ErrInsufficientData, max(n, 0))
	}

	var sumX, sumX2, sumY, sumXY float64
	for i := first; i <= last; i++ {
		x := float64(i)
		y := values[i-1]
		sumX += x
		sumX2 += x * x
		sumY += y
		sumXY += x * y
	}

	nf := float64(n)
	denominator := nf*sumX2 - sumX*sumX
	return Line{
		Slope:     (nf*sumXY - sumX*sumY) / denominator,
		Intercept: (sumY*sumX2 - sumX*sumXY) / denominator,
		N:         n,
	}, nil
}

// Project returns the fitted value at the given rank.
func (l Line) Project(rank int) float64 {
	return l.Intercept + float64(rank)*l.Slope
}

// ProjectAll returns the fitted value for ranks 1..n.
func (l Line) ProjectAll(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = l.Project(i + 1)
	}
	return out
}
