// Package mathutil provides common mathematical utility functions.
package mathutil

import (
	"math"

	"github.com/iwvelando/capacity-trend/pkg/constants"
)

// WithinTolerance checks if two values are within a specified tolerance
func WithinTolerance(val1, val2, tolerance float64) bool {
	return math.Abs(val1-val2) <= tolerance
}

// EffectiveCapacity substitutes the fallback denominator for a capacity that
// is not strictly positive.
func EffectiveCapacity(capacity float64) float64 {
	if capacity > 0 {
		return capacity
	}
	return constants.FallbackCapacity
}

// Utilization expresses estimate as a percentage of capacity. It never
// divides by zero: see EffectiveCapacity.
func Utilization(estimate, capacity float64) float64 {
	return estimate / EffectiveCapacity(capacity) * constants.PercentageMultiplier
}

// AxisCeiling rounds the largest value up to the next multiple of step,
// always leaving headroom above it.
func AxisCeiling(values []float64, step float64) float64 {
	if len(values) == 0 || step <= 0 {
		return step
	}
	highest := values[0]
	for _, v := range values[1:] {
		highest = max(highest, v)
	}
	return (math.Floor(highest/step) + 1) * step
}
