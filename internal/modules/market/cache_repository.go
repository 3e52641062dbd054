package market

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// CacheRepository stores computed market contexts as msgpack blobs with a TTL.
type CacheRepository struct {
	db  *sql.DB
	ttl time.Duration
	log zerolog.Logger
}

// NewCacheRepository creates a new market cache repository
func NewCacheRepository(db *sql.DB, ttl time.Duration, log zerolog.Logger) *CacheRepository {
	return &CacheRepository{
		db:  db,
		ttl: ttl,
		log: log.With().Str("repository", "market_cache").Logger(),
	}
}

// Get returns the cached context for a ticker, or nil when missing or stale.
func (r *CacheRepository) Get(ticker string) (*Context, error) {
	var (
		payload  []byte
		cachedAt string
	)
	err := r.db.QueryRow(`
		SELECT payload, cached_at FROM market_cache WHERE ticker = ?
	`, ticker).Scan(&payload, &cachedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query market cache: %w", err)
	}

	at, err := time.Parse(time.RFC3339Nano, cachedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cached_at: %w", err)
	}
	if time.Since(at) > r.ttl {
		return nil, nil
	}

	var ctx Context
	if err := msgpack.Unmarshal(payload, &ctx); err != nil {
		return nil, fmt.Errorf("failed to decode cached context: %w", err)
	}

	return &ctx, nil
}

// Put stores a context, replacing any previous entry for the ticker.
func (r *CacheRepository) Put(ctx *Context) error {
	payload, err := msgpack.Marshal(ctx)
	if err != nil {
		return fmt.Errorf("failed to encode context: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO market_cache (ticker, payload, cached_at)
		VALUES (?, ?, ?)
		ON CONFLICT(ticker) DO UPDATE SET
			payload = excluded.payload,
			cached_at = excluded.cached_at
	`, ctx.Ticker, payload, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to store context: %w", err)
	}

	return nil
}

// Purge removes entries older than the TTL.
func (r *CacheRepository) Purge() (int64, error) {
	cutoff := time.Now().Add(-r.ttl).UTC().Format(time.RFC3339Nano)
	result, err := r.db.Exec(`DELETE FROM market_cache WHERE cached_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge market cache: %w", err)
	}
	return result.RowsAffected()
}
