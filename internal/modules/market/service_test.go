package market

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tradescope/internal/database"
)

var testDBCounter int64

func setupTestDB(t *testing.T) *sql.DB {
	dsn := fmt.Sprintf("file:market_test_%d?mode=memory&cache=shared",
		atomic.AddInt64(&testDBCounter, 1))
	db, err := database.New(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, InitSchema(db.Conn()))
	return db.Conn()
}

func testCandles(n int) []Candle {
	candles := make([]Candle, n)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		price := 100 + float64(i)*0.5
		candles[i] = Candle{
			Date:   base.AddDate(0, 0, i),
			Open:   price,
			High:   price + 1,
			Low:    price - 1,
			Close:  price,
			Volume: 1000,
		}
	}
	return candles
}

type fakeSource struct {
	candles []Candle
	err     error
	calls   int
}

func (f *fakeSource) GetDailyCandles(ticker, rng string) ([]Candle, error) {
	f.calls++
	return f.candles, f.err
}

func TestBuildContext(t *testing.T) {
	ctx := BuildContext("AAPL", testCandles(120))

	assert.Equal(t, "AAPL", ctx.Ticker)
	assert.Equal(t, 100+119*0.5, ctx.LastClose)
	assert.Equal(t, 120, ctx.SamplePoints)
	require.NotNil(t, ctx.RSI14)
	require.NotNil(t, ctx.SMA20)
	require.NotNil(t, ctx.SMA50)
	require.NotNil(t, ctx.MACD)
	require.NotNil(t, ctx.ChangePct1W)
	// Steadily rising series
	assert.Equal(t, "uptrend", ctx.Trend)
	assert.Greater(t, *ctx.ChangePct1W, 0.0)
}

func TestBuildContext_ShortSeries(t *testing.T) {
	ctx := BuildContext("AAPL", testCandles(5))

	assert.Nil(t, ctx.RSI14)
	assert.Nil(t, ctx.SMA20)
	assert.Nil(t, ctx.SMA50)
	assert.Nil(t, ctx.MACD)
	assert.Nil(t, ctx.ChangePct1W)
	assert.Equal(t, "unknown", ctx.Trend)
}

func TestCacheRepository_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	cache := NewCacheRepository(db, 15*time.Minute, zerolog.Nop())

	miss, err := cache.Get("AAPL")
	require.NoError(t, err)
	assert.Nil(t, miss)

	ctx := BuildContext("AAPL", testCandles(120))
	require.NoError(t, cache.Put(ctx))

	hit, err := cache.Get("AAPL")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, ctx.Ticker, hit.Ticker)
	assert.Equal(t, ctx.LastClose, hit.LastClose)
	assert.Equal(t, ctx.Trend, hit.Trend)
	require.NotNil(t, hit.RSI14)
	assert.InDelta(t, *ctx.RSI14, *hit.RSI14, 1e-9)

	// Replacing overwrites the row
	ctx2 := BuildContext("AAPL", testCandles(60))
	require.NoError(t, cache.Put(ctx2))
	hit2, err := cache.Get("AAPL")
	require.NoError(t, err)
	assert.Equal(t, ctx2.LastClose, hit2.LastClose)
}

func TestCacheRepository_TTL(t *testing.T) {
	db := setupTestDB(t)
	cache := NewCacheRepository(db, 15*time.Minute, zerolog.Nop())

	require.NoError(t, cache.Put(BuildContext("AAPL", testCandles(60))))

	// Backdate the entry past the TTL
	old := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339Nano)
	_, err := db.Exec(`UPDATE market_cache SET cached_at = ?`, old)
	require.NoError(t, err)

	stale, err := cache.Get("AAPL")
	require.NoError(t, err)
	assert.Nil(t, stale)

	purged, err := cache.Purge()
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}

func TestService_CacheHitSkipsFetch(t *testing.T) {
	db := setupTestDB(t)
	cache := NewCacheRepository(db, 15*time.Minute, zerolog.Nop())
	source := &fakeSource{candles: testCandles(120)}
	svc := NewService(source, cache, zerolog.Nop())

	first, err := svc.GetContext("AAPL")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 1, source.calls)

	second, err := svc.GetContext("AAPL")
	require.NoError(t, err)
	assert.Equal(t, first.LastClose, second.LastClose)
	assert.Equal(t, 1, source.calls, "second lookup must come from cache")
}

func TestService_FetchError(t *testing.T) {
	db := setupTestDB(t)
	cache := NewCacheRepository(db, 15*time.Minute, zerolog.Nop())
	source := &fakeSource{err: errors.New("rate limited")}
	svc := NewService(source, cache, zerolog.Nop())

	_, err := svc.GetContext("AAPL")
	assert.Error(t, err)
}

func TestService_NoData(t *testing.T) {
	db := setupTestDB(t)
	cache := NewCacheRepository(db, 15*time.Minute, zerolog.Nop())
	svc := NewService(&fakeSource{}, cache, zerolog.Nop())

	_, err := svc.GetContext("AAPL")
	assert.Error(t, err)
}

func TestHandleGetContext(t *testing.T) {
	db := setupTestDB(t)
	cache := NewCacheRepository(db, 15*time.Minute, zerolog.Nop())
	svc := NewService(&fakeSource{candles: testCandles(120)}, cache, zerolog.Nop())
	h := NewHandlers(svc, zerolog.Nop())

	router := chi.NewRouter()
	router.Route("/api/market", h.Routes)

	req := httptest.NewRequest("GET", "/api/market/aapl", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ticker":"AAPL"`)
	assert.Contains(t, w.Body.String(), `"trend":"uptrend"`)
}

func TestHandleGetContext_UpstreamFailure(t *testing.T) {
	db := setupTestDB(t)
	cache := NewCacheRepository(db, 15*time.Minute, zerolog.Nop())
	svc := NewService(&fakeSource{err: errors.New("down")}, cache, zerolog.Nop())
	h := NewHandlers(svc, zerolog.Nop())

	router := chi.NewRouter()
	router.Route("/api/market", h.Routes)

	req := httptest.NewRequest("GET", "/api/market/AAPL", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}
