package market

import (
	"github.com/rs/zerolog"
)

// CachePurgeJob drops stale market cache rows so the table does not grow
// with tickers nobody looks at anymore.
type CachePurgeJob struct {
	cache *CacheRepository
	log   zerolog.Logger
}

// NewCachePurgeJob creates a new cache purge job
func NewCachePurgeJob(cache *CacheRepository, log zerolog.Logger) *CachePurgeJob {
	return &CachePurgeJob{
		cache: cache,
		log:   log.With().Str("job", "market_cache_purge").Logger(),
	}
}

// Name returns the job name
func (j *CachePurgeJob) Name() string {
	return "market_cache_purge"
}

// Run purges expired cache entries
func (j *CachePurgeJob) Run() error {
	purged, err := j.cache.Purge()
	if err != nil {
		return err
	}
	if purged > 0 {
		j.log.Info().Int64("purged", purged).Msg("Purged stale market cache entries")
	}
	return nil
}
