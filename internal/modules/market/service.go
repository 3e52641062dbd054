package market

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradescope/pkg/formulas"
)

// CandleSource fetches daily bars for a ticker.
type CandleSource interface {
	GetDailyCandles(ticker string, rng string) ([]Candle, error)
}

// Service computes market contexts, consulting the cache first.
type Service struct {
	source CandleSource
	cache  *CacheRepository
	log    zerolog.Logger
}

// NewService creates a new market service
func NewService(source CandleSource, cache *CacheRepository, log zerolog.Logger) *Service {
	return &Service{
		source: source,
		cache:  cache,
		log:    log.With().Str("service", "market").Logger(),
	}
}

// GetContext returns the market context for a ticker, fetching fresh data
// when the cache is missing or stale.
func (s *Service) GetContext(ticker string) (*Context, error) {
	if cached, err := s.cache.Get(ticker); err != nil {
		s.log.Warn().Err(err).Str("ticker", ticker).Msg("Cache lookup failed, fetching fresh")
	} else if cached != nil {
		s.log.Debug().Str("ticker", ticker).Msg("Market context cache hit")
		return cached, nil
	}

	candles, err := s.source.GetDailyCandles(ticker, "6mo")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candles for %s: %w", ticker, err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("no price data available for %s", ticker)
	}

	ctx := BuildContext(ticker, candles)

	if err := s.cache.Put(ctx); err != nil {
		s.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to cache market context")
	}

	return ctx, nil
}

// BuildContext computes the indicator summary from daily candles.
func BuildContext(ticker string, candles []Candle) *Context {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	lastClose := closes[len(closes)-1]
	returns := formulas.CalculateReturns(closes)

	ctx := &Context{
		Ticker:       ticker,
		AsOf:         time.Now().UTC(),
		LastClose:    lastClose,
		RSI14:        formulas.CalculateRSI(closes, 14),
		SMA20:        formulas.CalculateSMA(closes, 20),
		SMA50:        formulas.CalculateSMA(closes, 50),
		Volatility:   formulas.AnnualizedVolatility(returns),
		SamplePoints: len(closes),
	}
	ctx.MACD, ctx.MACDSignal = formulas.CalculateMACD(closes)

	// Change over the last 5 trading days
	if len(closes) > 5 {
		prev := closes[len(closes)-6]
		if prev != 0 {
			change := (lastClose - prev) / prev * 100
			ctx.ChangePct1W = &change
		}
	}

	ctx.Trend = classifyTrend(lastClose, ctx.SMA20, ctx.SMA50)

	return ctx
}

func classifyTrend(lastClose float64, sma20, sma50 *float64) string {
	if sma20 == nil || sma50 == nil {
		return "unknown"
	}
	switch {
	case lastClose > *sma20 && *sma20 > *sma50:
		return "uptrend"
	case lastClose < *sma20 && *sma20 < *sma50:
		return "downtrend"
	default:
		return "sideways"
	}
}
