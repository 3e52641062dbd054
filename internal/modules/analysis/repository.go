package analysis

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx. Write paths that must join
// the per-chunk transaction take a dbtx instead of hitting the pool directly.
type dbtx interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// SessionRepository handles persistence for analysis sessions.
type SessionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *sql.DB, log zerolog.Logger) *SessionRepository {
	return &SessionRepository{
		db:  db,
		log: log.With().Str("repository", "session").Logger(),
	}
}

const sessionColumns = `session_id, owner, ticker, trade_date, config_json, status,
	started_at, completed_at, execution_time_seconds,
	current_stage, current_agent, progress_percentage, estimated_seconds_left,
	llm_call_count, tool_call_count, agents_completed, agents_failed,
	message_count, total_tokens_used, total_cost_usd,
	last_message, last_message_timestamp,
	final_decision, confidence_score, confidence_level,
	error_message, error_details, created_at, updated_at`

// Create inserts a new session row.
func (r *SessionRepository) Create(s *Session) error {
	configJSON, err := json.Marshal(s.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config snapshot: %w", err)
	}

	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now

	_, err = r.db.Exec(`
		INSERT INTO analysis_sessions
		(session_id, owner, ticker, trade_date, config_json, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.ID,
		s.Owner,
		s.Ticker,
		s.TradeDate,
		string(configJSON),
		string(s.Status),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// Get loads one session by id.
func (r *SessionRepository) Get(sessionID string) (*Session, error) {
	row := r.db.QueryRow(`SELECT `+sessionColumns+` FROM analysis_sessions WHERE session_id = ?`, sessionID)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	return s, err
}

// Update persists all mutable session fields. Sessions have exactly one
// writer (the driving loop), so a full-row update is safe.
func (r *SessionRepository) Update(s *Session) error {
	return r.UpdateIn(r.db, s)
}

// UpdateIn is Update running against a caller-supplied executor, typically
// the per-chunk transaction.
func (r *SessionRepository) UpdateIn(tx dbtx, s *Session) error {
	s.UpdatedAt = time.Now().UTC()

	_, err := tx.Exec(`
		UPDATE analysis_sessions SET
			status = ?,
			started_at = ?,
			completed_at = ?,
			execution_time_seconds = ?,
			current_stage = ?,
			current_agent = ?,
			progress_percentage = ?,
			estimated_seconds_left = ?,
			llm_call_count = ?,
			tool_call_count = ?,
			agents_completed = ?,
			agents_failed = ?,
			message_count = ?,
			total_tokens_used = ?,
			total_cost_usd = ?,
			last_message = ?,
			last_message_timestamp = ?,
			final_decision = ?,
			confidence_score = ?,
			confidence_level = ?,
			error_message = ?,
			error_details = ?,
			updated_at = ?
		WHERE session_id = ?
	`,
		string(s.Status),
		formatTimePtr(s.StartedAt),
		formatTimePtr(s.CompletedAt),
		s.ExecutionTimeSeconds,
		s.CurrentStage,
		s.CurrentAgent,
		s.ProgressPercentage,
		s.EstimatedSecondsLeft,
		s.LLMCallCount,
		s.ToolCallCount,
		s.AgentsCompleted,
		s.AgentsFailed,
		s.MessageCount,
		s.TotalTokensUsed,
		s.TotalCostUSD,
		s.LastMessage,
		formatTimePtr(s.LastMessageTimestamp),
		s.FinalDecision,
		s.ConfidenceScore,
		s.ConfidenceLevel,
		s.ErrorMessage,
		s.ErrorDetails,
		formatTime(s.UpdatedAt),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session %s: %w", s.ID, err)
	}
	return nil
}

// GetIn loads one session through a caller-supplied executor.
func (r *SessionRepository) GetIn(tx dbtx, sessionID string) (*Session, error) {
	row := tx.QueryRow(`SELECT `+sessionColumns+` FROM analysis_sessions WHERE session_id = ?`, sessionID)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	return s, err
}

// List returns sessions, newest first, optionally filtered by status and
// ticker. A limit <= 0 defaults to 50.
func (r *SessionRepository) List(status, ticker string, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + sessionColumns + ` FROM analysis_sessions WHERE 1=1`
	args := []interface{}{}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	if ticker != "" {
		query += ` AND ticker = ?`
		args = append(args, ticker)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Delete removes a session; children are removed by cascade.
func (r *SessionRepository) Delete(sessionID string) error {
	res, err := r.db.Exec(`DELETE FROM analysis_sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// NonTerminalIDs returns ids of sessions persisted as running, paused or
// pending. Used by the stale-session sweep after a restart.
func (r *SessionRepository) NonTerminalIDs() ([]string, error) {
	rows, err := r.db.Query(`
		SELECT session_id FROM analysis_sessions
		WHERE status IN (?, ?, ?)
	`, string(StatusPending), string(StatusRunning), string(StatusPaused))
	if err != nil {
		return nil, fmt.Errorf("failed to query non-terminal sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteTerminalOlderThan removes terminal sessions completed before cutoff.
// Returns the number of sessions removed.
func (r *SessionRepository) DeleteTerminalOlderThan(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(`
		DELETE FROM analysis_sessions
		WHERE status IN (?, ?, ?) AND completed_at IS NOT NULL AND completed_at < ?
	`,
		string(StatusCompleted), string(StatusFailed), string(StatusCancelled),
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old sessions: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		s           Session
		configJSON  string
		status      string
		startedAt   sql.NullString
		completedAt sql.NullString
		execTime    sql.NullFloat64
		etaSeconds  sql.NullFloat64
		lastMsgAt   sql.NullString
		confidence  sql.NullFloat64
		createdAt   string
		updatedAt   string
	)

	err := row.Scan(
		&s.ID, &s.Owner, &s.Ticker, &s.TradeDate, &configJSON, &status,
		&startedAt, &completedAt, &execTime,
		&s.CurrentStage, &s.CurrentAgent, &s.ProgressPercentage, &etaSeconds,
		&s.LLMCallCount, &s.ToolCallCount, &s.AgentsCompleted, &s.AgentsFailed,
		&s.MessageCount, &s.TotalTokensUsed, &s.TotalCostUSD,
		&s.LastMessage, &lastMsgAt,
		&s.FinalDecision, &confidence, &s.ConfidenceLevel,
		&s.ErrorMessage, &s.ErrorDetails, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(configJSON), &s.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config snapshot for %s: %w", s.ID, err)
	}

	s.Status = Status(status)
	s.StartedAt = parseTimePtr(startedAt)
	s.CompletedAt = parseTimePtr(completedAt)
	if execTime.Valid {
		s.ExecutionTimeSeconds = &execTime.Float64
	}
	if etaSeconds.Valid {
		s.EstimatedSecondsLeft = &etaSeconds.Float64
	}
	s.LastMessageTimestamp = parseTimePtr(lastMsgAt)
	if confidence.Valid {
		s.ConfidenceScore = &confidence.Float64
	}
	s.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	s.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	return &s, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
