// Package cleanup provides data cleanup and maintenance functionality.
package cleanup

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradescope/internal/events"
	"github.com/aristath/tradescope/internal/modules/analysis"
)

// SessionCleanupJob removes terminal analysis sessions past retention.
// Children (reports, agent executions, events, messages) go with the
// session via cascade.
type SessionCleanupJob struct {
	sessions      *analysis.SessionRepository
	eventManager  *events.Manager
	retentionDays int
	log           zerolog.Logger
}

// NewSessionCleanupJob creates a new session cleanup job
func NewSessionCleanupJob(sessions *analysis.SessionRepository, em *events.Manager, retentionDays int, log zerolog.Logger) *SessionCleanupJob {
	return &SessionCleanupJob{
		sessions:      sessions,
		eventManager:  em,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "session_cleanup").Logger(),
	}
}

// Name returns the job name
func (j *SessionCleanupJob) Name() string {
	return "session_cleanup"
}

// Run executes the cleanup job
func (j *SessionCleanupJob) Run() error {
	cutoff := time.Now().UTC().AddDate(0, 0, -j.retentionDays)
	j.log.Info().Time("cutoff", cutoff).Msg("Starting session cleanup")

	removed, err := j.sessions.DeleteTerminalOlderThan(cutoff)
	if err != nil {
		return fmt.Errorf("session cleanup failed: %w", err)
	}

	if removed > 0 {
		j.log.Info().Int64("removed", removed).Msg("Old sessions removed")
		j.eventManager.Emit(events.SessionsCleaned, "cleanup", map[string]interface{}{
			"removed":        removed,
			"retention_days": j.retentionDays,
		})
	}
	return nil
}
