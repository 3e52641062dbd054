package formulas

import (
	"github.com/markcheno/go-talib"
)

// CalculateRSI returns the current Relative Strength Index, or nil when
// there is not enough data for the requested period.
func CalculateRSI(closes []float64, length int) *float64 {
	if len(closes) < length+1 {
		return nil
	}
	rsi := talib.Rsi(closes, length)
	return lastValid(rsi)
}

// CalculateSMA returns the current simple moving average, or nil when there
// is not enough data.
func CalculateSMA(closes []float64, length int) *float64 {
	if len(closes) < length {
		return nil
	}
	sma := talib.Sma(closes, length)
	return lastValid(sma)
}

// CalculateMACD returns the current MACD line and signal line values using
// the standard 12/26/9 configuration, or nils when there is not enough data.
func CalculateMACD(closes []float64) (*float64, *float64) {
	if len(closes) < 35 {
		return nil, nil
	}
	macd, signal, _ := talib.Macd(closes, 12, 26, 9)
	return lastValid(macd), lastValid(signal)
}

func lastValid(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	v := values[len(values)-1]
	if v != v { // NaN
		return nil
	}
	return &v
}
