package analysis

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradescope/internal/pipeline"
)

// ReportRepository handles report sections and agent executions.
type ReportRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *sql.DB, log zerolog.Logger) *ReportRepository {
	return &ReportRepository{
		db:  db,
		log: log.With().Str("repository", "report").Logger(),
	}
}

// UpsertSection writes a report section, replacing the previous content for
// the same (session, section_type, agent_name) key.
func (r *ReportRepository) UpsertSection(tx dbtx, sessionID string, update pipeline.SectionUpdate) error {
	_, err := tx.Exec(`
		INSERT INTO report_sections
		(session_id, section_type, agent_name, content, content_length, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, section_type, agent_name) DO UPDATE SET
			content = excluded.content,
			content_length = excluded.content_length,
			updated_at = excluded.updated_at
	`,
		sessionID,
		string(update.Section),
		update.Agent,
		update.Content,
		len(update.Content),
		formatTime(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert report section %s/%s: %w", sessionID, update.Section, err)
	}
	return nil
}

// GetSections returns all report sections for a session in insertion order.
func (r *ReportRepository) GetSections(sessionID string) ([]ReportSection, error) {
	rows, err := r.db.Query(`
		SELECT id, session_id, section_type, agent_name, content, content_length, updated_at
		FROM report_sections
		WHERE session_id = ?
		ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query report sections: %w", err)
	}
	defer rows.Close()

	var sections []ReportSection
	for rows.Next() {
		var (
			sec       ReportSection
			section   string
			updatedAt string
		)
		if err := rows.Scan(&sec.ID, &sec.SessionID, &section, &sec.AgentName, &sec.Content, &sec.ContentLength, &updatedAt); err != nil {
			return nil, err
		}
		sec.SectionType = pipeline.SectionType(section)
		sec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		sections = append(sections, sec)
	}
	return sections, rows.Err()
}

// MarkAgentCompleted upserts an agent execution to completed, accumulating
// per-agent usage counters. The first write for an agent also stamps
// started_at so a single-chunk agent still gets a timing row.
func (r *ReportRepository) MarkAgentCompleted(tx dbtx, sessionID, agentName string, usage pipeline.Chunk) error {
	now := formatTime(time.Now().UTC())
	_, err := tx.Exec(`
		INSERT INTO agent_executions
		(session_id, agent_name, status, started_at, completed_at, llm_calls, tool_calls, tokens_used)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, agent_name) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			llm_calls = agent_executions.llm_calls + excluded.llm_calls,
			tool_calls = agent_executions.tool_calls + excluded.tool_calls,
			tokens_used = agent_executions.tokens_used + excluded.tokens_used
	`,
		sessionID,
		agentName,
		string(AgentCompleted),
		now,
		now,
		usage.LLMCalls,
		countToolCalls(usage),
		usage.TokensUsed,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert agent execution %s/%s: %w", sessionID, agentName, err)
	}
	return nil
}

// GetAgentExecutions returns agent executions for a session.
func (r *ReportRepository) GetAgentExecutions(sessionID string) ([]AgentExecution, error) {
	rows, err := r.db.Query(`
		SELECT id, session_id, agent_name, status, started_at, completed_at, llm_calls, tool_calls, tokens_used
		FROM agent_executions
		WHERE session_id = ?
		ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query agent executions: %w", err)
	}
	defer rows.Close()

	var execs []AgentExecution
	for rows.Next() {
		var (
			e           AgentExecution
			status      string
			startedAt   sql.NullString
			completedAt sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.AgentName, &status, &startedAt, &completedAt, &e.LLMCalls, &e.ToolCalls, &e.TokensUsed); err != nil {
			return nil, err
		}
		e.Status = AgentStatus(status)
		e.StartedAt = parseTimePtr(startedAt)
		e.CompletedAt = parseTimePtr(completedAt)
		execs = append(execs, e)
	}
	return execs, rows.Err()
}

// CompletedAgentCount counts completed agent executions for a session.
func (r *ReportRepository) CompletedAgentCount(tx dbtx, sessionID string) (int, error) {
	var count int
	err := tx.QueryRow(`
		SELECT COUNT(*) FROM agent_executions
		WHERE session_id = ? AND status = ?
	`, sessionID, string(AgentCompleted)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count completed agents: %w", err)
	}
	return count, nil
}

func countToolCalls(c pipeline.Chunk) int {
	n := 0
	for _, m := range c.Messages {
		n += len(m.ToolCalls)
	}
	return n
}
