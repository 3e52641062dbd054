package formulas

import (
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestMean(t *testing.T) {
	tests := []struct {
		name     string
		data     []float64
		expected float64
	}{
		{"simple", []float64{1, 2, 3, 4, 5}, 3.0},
		{"single value", []float64{42}, 42.0},
		{"empty", []float64{}, 0.0},
		{"negatives", []float64{-2, 2}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Mean(tt.data); !almostEqual(got, tt.expected, 1e-9) {
				t.Errorf("Mean(%v) = %v, want %v", tt.data, got, tt.expected)
			}
		})
	}
}

func TestStdDev(t *testing.T) {
	// Sample standard deviation of 2,4,4,4,5,5,7,9 is ~2.138
	got := StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if !almostEqual(got, 2.138, 0.001) {
		t.Errorf("StdDev = %v, want ~2.138", got)
	}

	if got := StdDev([]float64{5}); got != 0 {
		t.Errorf("StdDev of one value = %v, want 0", got)
	}
	if got := StdDev(nil); got != 0 {
		t.Errorf("StdDev of nil = %v, want 0", got)
	}
}

func TestCalculateReturns(t *testing.T) {
	returns := CalculateReturns([]float64{100, 110, 99})
	if len(returns) != 2 {
		t.Fatalf("got %d returns, want 2", len(returns))
	}
	if !almostEqual(returns[0], 0.10, 1e-9) {
		t.Errorf("first return = %v, want 0.10", returns[0])
	}
	if !almostEqual(returns[1], -0.10, 1e-9) {
		t.Errorf("second return = %v, want -0.10", returns[1])
	}

	if got := CalculateReturns([]float64{100}); len(got) != 0 {
		t.Errorf("expected no returns for a single price, got %v", got)
	}
}

func TestAnnualizedVolatility(t *testing.T) {
	if got := AnnualizedVolatility(nil); got != 0 {
		t.Errorf("AnnualizedVolatility(nil) = %v, want 0", got)
	}

	daily := []float64{0.01, -0.02, 0.015, -0.005, 0.01, 0.0, -0.01}
	want := StdDev(daily) * math.Sqrt(252)
	if got := AnnualizedVolatility(daily); !almostEqual(got, want, 1e-9) {
		t.Errorf("AnnualizedVolatility = %v, want %v", got, want)
	}
}
