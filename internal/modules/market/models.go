// Package market provides the market-context lookups shown next to a
// session: recent price action and a technical indicator summary for the
// ticker under analysis.
package market

import "time"

// Context is the indicator summary for one ticker.
type Context struct {
	Ticker       string    `json:"ticker" msgpack:"ticker"`
	AsOf         time.Time `json:"as_of" msgpack:"as_of"`
	LastClose    float64   `json:"last_close" msgpack:"last_close"`
	ChangePct1W  *float64  `json:"change_pct_1w,omitempty" msgpack:"change_pct_1w,omitempty"`
	RSI14        *float64  `json:"rsi_14,omitempty" msgpack:"rsi_14,omitempty"`
	SMA20        *float64  `json:"sma_20,omitempty" msgpack:"sma_20,omitempty"`
	SMA50        *float64  `json:"sma_50,omitempty" msgpack:"sma_50,omitempty"`
	MACD         *float64  `json:"macd,omitempty" msgpack:"macd,omitempty"`
	MACDSignal   *float64  `json:"macd_signal,omitempty" msgpack:"macd_signal,omitempty"`
	Volatility   float64   `json:"annualized_volatility" msgpack:"annualized_volatility"`
	Trend        string    `json:"trend" msgpack:"trend"`
	SamplePoints int       `json:"sample_points" msgpack:"sample_points"`
}
