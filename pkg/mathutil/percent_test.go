package mathutil

import (
	"math"
	"testing"

	"github.com/iwvelando/capacity-trend/pkg/constants"
)

func TestUtilization(t *testing.T) {
	tests := []struct {
		name     string
		estimate float64
		capacity float64
		expected float64
	}{
		{"Half loaded", 50, 100, 50},
		{"Fully loaded", 90, 90, 100},
		{"Overloaded", 150, 100, 150},
		{"No estimate", 0, 40, 0},
		{"Zero capacity uses fallback", 50, 0, 0.05},
		{"Negative capacity uses fallback", 50, -10, 0.05},
		{"Negative estimate propagates", -20, 100, -20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Utilization(tt.estimate, tt.capacity)
			if !WithinTolerance(got, tt.expected, constants.Tolerance) {
				t.Errorf("Utilization(%v, %v) = %v, expected %v", tt.estimate, tt.capacity, got, tt.expected)
			}
			if math.IsNaN(got) || math.IsInf(got, 0) {
				t.Errorf("Utilization(%v, %v) is not finite", tt.estimate, tt.capacity)
			}
		})
	}
}

func TestAxisCeiling(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		expected float64
	}{
		{"Empty", nil, 50},
		{"Below first step", []float64{12, 30}, 50},
		{"Exactly on a step gets headroom", []float64{50, 80, 100}, 150},
		{"Overloaded", []float64{20, 173}, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AxisCeiling(tt.values, constants.AxisStep)
			if got != tt.expected {
				t.Errorf("AxisCeiling(%v) = %v, expected %v", tt.values, got, tt.expected)
			}
		})
	}
}
