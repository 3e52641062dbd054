package cleanup

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/tradescope/internal/events"
	"github.com/aristath/tradescope/internal/modules/analysis"
)

// Registry is the subset of the analysis manager used to tell live sessions
// from orphaned rows.
type Registry interface {
	IsActive(sessionID string) bool
}

// OrphanSweepJob finalizes sessions persisted as pending/running/paused that
// no longer have a registry entry. Those rows are leftovers of a crash or
// restart; nothing will ever drive them again.
type OrphanSweepJob struct {
	sessions     *analysis.SessionRepository
	registry     Registry
	eventManager *events.Manager
	log          zerolog.Logger
}

// NewOrphanSweepJob creates a new orphan sweep job
func NewOrphanSweepJob(sessions *analysis.SessionRepository, registry Registry, em *events.Manager, log zerolog.Logger) *OrphanSweepJob {
	return &OrphanSweepJob{
		sessions:     sessions,
		registry:     registry,
		eventManager: em,
		log:          log.With().Str("job", "orphan_sweep").Logger(),
	}
}

// Name returns the job name
func (j *OrphanSweepJob) Name() string {
	return "orphan_sweep"
}

// Run executes the sweep
func (j *OrphanSweepJob) Run() error {
	ids, err := j.sessions.NonTerminalIDs()
	if err != nil {
		return fmt.Errorf("orphan sweep failed: %w", err)
	}

	swept := 0
	for _, id := range ids {
		if j.registry.IsActive(id) {
			continue
		}

		s, err := j.sessions.Get(id)
		if err != nil {
			j.log.Warn().Err(err).Str("session_id", id).Msg("Failed to load orphaned session")
			continue
		}
		if err := s.FailAnalysis("orphaned by restart", "no task was driving this session"); err != nil {
			j.log.Warn().Err(err).Str("session_id", id).Msg("Failed to finalize orphaned session")
			continue
		}
		if err := j.sessions.Update(s); err != nil {
			j.log.Warn().Err(err).Str("session_id", id).Msg("Failed to persist orphaned session")
			continue
		}
		swept++
	}

	if swept > 0 {
		j.log.Info().Int("swept", swept).Msg("Orphaned sessions finalized")
		j.eventManager.Emit(events.SessionsOrphaned, "cleanup", map[string]interface{}{
			"swept": swept,
		})
	}
	return nil
}
