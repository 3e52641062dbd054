package analysis

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradescope/internal/database"
	"github.com/aristath/tradescope/internal/events"
	"github.com/aristath/tradescope/internal/pipeline"
)

// StreamHandler applies one pipeline chunk to the session store. All writes
// for a chunk commit in a single transaction; a failed commit leaves both the
// database and the in-memory session untouched.
type StreamHandler struct {
	db       *database.DB
	sessions *SessionRepository
	reports  *ReportRepository
	logs     *LogRepository
	events   *events.Manager
	log      zerolog.Logger
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(
	db *database.DB,
	sessions *SessionRepository,
	reports *ReportRepository,
	logs *LogRepository,
	em *events.Manager,
	log zerolog.Logger,
) *StreamHandler {
	return &StreamHandler{
		db:       db,
		sessions: sessions,
		reports:  reports,
		logs:     logs,
		events:   em,
		log:      log.With().Str("component", "stream_handler").Logger(),
	}
}

// ApplyChunk performs the upserts and log appends for one chunk. The session
// is mutated only after the transaction commits, so a persistence failure
// discards the chunk's effects entirely.
func (h *StreamHandler) ApplyChunk(s *Session, chunk *pipeline.Chunk) error {
	tx, err := h.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin chunk transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	work := *s

	// 1. Report sections implied present by non-empty chunk fields.
	updates := chunk.Sections()
	for _, u := range updates {
		if err := h.reports.UpsertSection(tx, work.ID, u); err != nil {
			return err
		}
		if u.Section == pipeline.SectionFinalDecision {
			// Raw verdict; normalized into an action at completion.
			work.FinalDecision = u.Content
		}
		if err := h.logs.AppendEvent(tx, ProgressEvent{
			SessionID:  work.ID,
			EventType:  EventReportCompleted,
			Stage:      work.CurrentStage,
			AgentName:  u.Agent,
			Percentage: work.ProgressPercentage,
			Detail:     string(u.Section),
		}); err != nil {
			return err
		}
	}

	// 2. The same presence check marks the producing agents done.
	for _, u := range updates {
		if err := h.reports.MarkAgentCompleted(tx, work.ID, u.Agent, *chunk); err != nil {
			return err
		}
		work.CurrentAgent = u.Agent
		if err := h.logs.AppendEvent(tx, ProgressEvent{
			SessionID: work.ID,
			EventType: EventAgentCompleted,
			Stage:     work.CurrentStage,
			AgentName: u.Agent,
		}); err != nil {
			return err
		}
	}
	if len(updates) > 0 {
		// Recount instead of incrementing: a replayed section must not
		// double-count its agent.
		completed, err := h.reports.CompletedAgentCount(tx, work.ID)
		if err != nil {
			return err
		}
		work.AgentsCompleted = completed
	}

	// 3. Transcript messages, in chunk order.
	for _, msg := range chunk.Messages {
		toolName := ""
		if len(msg.ToolCalls) > 0 {
			toolName = msg.ToolCalls[0].Name
		}
		seq, err := h.logs.AppendMessage(tx, work.ID, string(msg.Kind), msg.Content, toolName)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		work.MessageCount = seq
		work.LastMessage = msg.Content
		work.LastMessageTimestamp = &now
	}

	// Usage accounting for the chunk.
	work.LLMCallCount += chunk.LLMCalls
	work.ToolCallCount += countToolCalls(*chunk)
	work.TotalTokensUsed += chunk.TokensUsed
	work.TotalCostUSD += chunk.CostUSD

	// 4. Progress recompute; never written backward.
	newProgress := EstimateProgress(work.AgentsCompleted, work.TotalAgents())
	if newProgress > work.ProgressPercentage {
		crossed := CrossedMilestone(work.ProgressPercentage, newProgress)
		work.ProgressPercentage = newProgress
		work.EstimatedSecondsLeft = EstimateSecondsLeft(work.StartedAt, newProgress, time.Now().UTC())

		if stage := StageFor(newProgress); stage != work.CurrentStage {
			work.CurrentStage = stage
			if err := h.logs.AppendEvent(tx, ProgressEvent{
				SessionID:  work.ID,
				EventType:  EventStageChanged,
				Stage:      stage,
				Percentage: newProgress,
			}); err != nil {
				return err
			}
		}
		if crossed {
			if err := h.logs.AppendEvent(tx, ProgressEvent{
				SessionID:  work.ID,
				EventType:  EventMilestone,
				Stage:      work.CurrentStage,
				Percentage: newProgress,
			}); err != nil {
				return err
			}
		}
	}

	if err := h.sessions.UpdateIn(tx, &work); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunk: %w", err)
	}

	*s = work

	for _, u := range updates {
		h.events.Emit(events.ReportCompleted, "analysis", map[string]interface{}{
			"session_id": s.ID,
			"section":    string(u.Section),
			"agent":      u.Agent,
		})
	}

	return nil
}

// RecordChunkError appends an error-kind transcript entry for a chunk whose
// commit failed. Runs in its own transaction; best effort. The session's
// denormalized message fields are mutated only after the commit so they stay
// consistent with the message_logs rows.
func (h *StreamHandler) RecordChunkError(s *Session, chunkErr error) {
	tx, err := h.db.Begin()
	if err != nil {
		h.log.Error().Err(err).Str("session_id", s.ID).Msg("Failed to record chunk error")
		return
	}
	defer tx.Rollback() //nolint:errcheck

	seq, err := h.logs.AppendMessage(tx, s.ID, string(pipeline.MessageError), chunkErr.Error(), "")
	if err != nil {
		h.log.Error().Err(err).Str("session_id", s.ID).Msg("Failed to append chunk error message")
		return
	}
	now := time.Now().UTC()
	if _, err := tx.Exec(`
		UPDATE analysis_sessions
		SET message_count = ?, last_message = ?, last_message_timestamp = ?
		WHERE session_id = ?
	`, seq, chunkErr.Error(), formatTime(now), s.ID); err != nil {
		h.log.Error().Err(err).Str("session_id", s.ID).Msg("Failed to update message counters")
		return
	}
	if err := tx.Commit(); err != nil {
		h.log.Error().Err(err).Str("session_id", s.ID).Msg("Failed to commit chunk error message")
		return
	}

	s.MessageCount = seq
	s.LastMessage = chunkErr.Error()
	s.LastMessageTimestamp = &now
}
