package trend

import (
	"errors"
	"math"
	"testing"
)

const tolerance = 1e-9

func TestFit(t *testing.T) {
	tests := []struct {
		name              string
		values            []float64
		expectedSlope     float64
		expectedIntercept float64
	}{
		{
			name:              "Perfectly linear",
			values:            []float64{2, 4, 6, 8},
			expectedSlope:     2,
			expectedIntercept: 0,
		},
		{
			name:              "Constant",
			values:            []float64{5, 5, 5},
			expectedSlope:     0,
			expectedIntercept: 5,
		},
		{
			name:              "Noisy utilization",
			values:            []float64{50, 80, 90},
			expectedSlope:     20,
			expectedIntercept: 100.0 / 3,
		},
		{
			name:              "Two points",
			values:            []float64{10, 30},
			expectedSlope:     20,
			expectedIntercept: -10,
		},
		{
			name:              "Falling",
			values:            []float64{100, 75, 50},
			expectedSlope:     -25,
			expectedIntercept: 125,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := Fit(tt.values)
			if err != nil {
				t.Fatalf("Fit() error = %v", err)
			}
			if math.Abs(line.Slope-tt.expectedSlope) > tolerance {
				t.Errorf("Fit() slope = %v, expected %v", line.Slope, tt.expectedSlope)
			}
			if math.Abs(line.Intercept-tt.expectedIntercept) > tolerance {
				t.Errorf("Fit() intercept = %v, expected %v", line.Intercept, tt.expectedIntercept)
			}
			if line.N != len(tt.values) {
				t.Errorf("Fit() n = %d, expected %d", line.N, len(tt.values))
			}
		})
	}
}

func TestProjectReproducesLinearInput(t *testing.T) {
	values := []float64{2, 4, 6, 8}
	line, err := Fit(values)
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	for i, want := range values {
		if got := line.Project(i + 1); math.Abs(got-want) > tolerance {
			t.Errorf("Project(%d) = %v, expected %v", i+1, got, want)
		}
	}
}

func TestProjectAll(t *testing.T) {
	line, err := Fit([]float64{50, 80, 90})
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	expected := []float64{160.0 / 3, 220.0 / 3, 280.0 / 3}
	got := line.ProjectAll(3)
	for i := range expected {
		if math.Abs(got[i]-expected[i]) > tolerance {
			t.Errorf("ProjectAll()[%d] = %v, expected %v", i, got[i], expected[i])
		}
	}
}

func TestFitInsufficientData(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
	}{
		{"Empty", nil},
		{"Single point", []float64{42}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Fit(tt.values)
			if !errors.Is(err, ErrInsufficientData) {
				t.Errorf("Fit() error = %v, expected ErrInsufficientData", err)
			}
		})
	}
}

func TestFitRange(t *testing.T) {
	// Only ranks 2..4 take part; x keeps its absolute rank.
	values := []float64{1000, 4, 6, 8}
	line, err := FitRange(values, 2, 4)
	if err != nil {
		t.Fatalf("FitRange() error = %v", err)
	}
	if math.Abs(line.Slope-2) > tolerance || math.Abs(line.Intercept-0) > tolerance {
		t.Errorf("FitRange() = %+v, expected slope 2 intercept 0", line)
	}
	if line.N != 3 {
		t.Errorf("FitRange() n = %d, expected 3", line.N)
	}
}

func TestFitRangeOutOfBounds(t *testing.T) {
	values := []float64{1, 2, 3}
	if _, err := FitRange(values, 0, 2); err == nil {
		t.Error("FitRange() expected error for first rank 0")
	}
	if _, err := FitRange(values, 1, 4); err == nil {
		t.Error("FitRange() expected error for last rank past the end")
	}
}
