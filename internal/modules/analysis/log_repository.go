package analysis

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// LogRepository handles the append-only progress events and message log.
type LogRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewLogRepository creates a new log repository
func NewLogRepository(db *sql.DB, log zerolog.Logger) *LogRepository {
	return &LogRepository{
		db:  db,
		log: log.With().Str("repository", "log").Logger(),
	}
}

// AppendEvent records one progress event. Events are never mutated.
func (r *LogRepository) AppendEvent(tx dbtx, e ProgressEvent) error {
	_, err := tx.Exec(`
		INSERT INTO progress_events
		(session_id, event_type, stage, agent_name, percentage, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		e.SessionID,
		e.EventType,
		e.Stage,
		e.AgentName,
		e.Percentage,
		e.Detail,
		formatTime(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("failed to append progress event: %w", err)
	}
	return nil
}

// RecordEvent appends one progress event outside any chunk transaction.
func (r *LogRepository) RecordEvent(e ProgressEvent) error {
	return r.AppendEvent(r.db, e)
}

// AppendMessage appends one transcript entry, allocating the next sequence
// number inside the caller's transaction. Safe without row locks because
// exactly one task writes a given session.
func (r *LogRepository) AppendMessage(tx dbtx, sessionID, kind, content, toolName string) (int, error) {
	var next int
	err := tx.QueryRow(`
		SELECT COALESCE(MAX(sequence_number), 0) + 1
		FROM message_logs WHERE session_id = ?
	`, sessionID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate sequence number: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO message_logs
		(session_id, sequence_number, kind, content, tool_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		sessionID,
		next,
		kind,
		content,
		toolName,
		formatTime(time.Now().UTC()),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append message %d: %w", next, err)
	}
	return next, nil
}

// Tail returns the most recent messages for a session in ascending sequence
// order. A limit <= 0 defaults to 50.
func (r *LogRepository) Tail(sessionID string, limit int) ([]MessageLog, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(`
		SELECT id, session_id, sequence_number, kind, content, tool_name, created_at
		FROM (
			SELECT * FROM message_logs
			WHERE session_id = ?
			ORDER BY sequence_number DESC
			LIMIT ?
		)
		ORDER BY sequence_number ASC
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query message tail: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// Messages returns all messages for a session in sequence order.
func (r *LogRepository) Messages(sessionID string) ([]MessageLog, error) {
	rows, err := r.db.Query(`
		SELECT id, session_id, sequence_number, kind, content, tool_name, created_at
		FROM message_logs
		WHERE session_id = ?
		ORDER BY sequence_number ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// Events returns all progress events for a session in insertion order.
func (r *LogRepository) Events(sessionID string) ([]ProgressEvent, error) {
	rows, err := r.db.Query(`
		SELECT id, session_id, event_type, stage, agent_name, percentage, detail, created_at
		FROM progress_events
		WHERE session_id = ?
		ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query progress events: %w", err)
	}
	defer rows.Close()

	var events []ProgressEvent
	for rows.Next() {
		var (
			e         ProgressEvent
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.EventType, &e.Stage, &e.AgentName, &e.Percentage, &e.Detail, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanMessages(rows *sql.Rows) ([]MessageLog, error) {
	var messages []MessageLog
	for rows.Next() {
		var (
			m         MessageLog
			createdAt string
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.SequenceNumber, &m.Kind, &m.Content, &m.ToolName, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
