package formulas

import (
	"math"
	"testing"
)

func risingCloses(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	return closes
}

func TestCalculateRSI(t *testing.T) {
	if got := CalculateRSI(risingCloses(10), 14); got != nil {
		t.Errorf("expected nil for insufficient data, got %v", *got)
	}

	rsi := CalculateRSI(risingCloses(60), 14)
	if rsi == nil {
		t.Fatal("expected RSI, got nil")
	}
	// A strictly rising series saturates RSI at 100
	if !almostEqual(*rsi, 100, 0.01) {
		t.Errorf("RSI of rising series = %v, want ~100", *rsi)
	}
	if math.IsNaN(*rsi) {
		t.Error("RSI is NaN")
	}
}

func TestCalculateSMA(t *testing.T) {
	if got := CalculateSMA(risingCloses(10), 20); got != nil {
		t.Errorf("expected nil for insufficient data, got %v", *got)
	}

	// Last 20 of 100..129 are 110..129, mean 119.5
	sma := CalculateSMA(risingCloses(30), 20)
	if sma == nil {
		t.Fatal("expected SMA, got nil")
	}
	if !almostEqual(*sma, 119.5, 1e-9) {
		t.Errorf("SMA = %v, want 119.5", *sma)
	}
}

func TestCalculateMACD(t *testing.T) {
	macd, signal := CalculateMACD(risingCloses(10))
	if macd != nil || signal != nil {
		t.Error("expected nils for insufficient data")
	}

	macd, signal = CalculateMACD(risingCloses(120))
	if macd == nil || signal == nil {
		t.Fatal("expected MACD values, got nil")
	}
	// Constant rise keeps the MACD line positive
	if *macd <= 0 {
		t.Errorf("MACD of rising series = %v, want > 0", *macd)
	}
}
