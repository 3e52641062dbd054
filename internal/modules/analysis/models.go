// Package analysis implements the analysis orchestration engine: persisted
// sessions, the per-session state machine, the stream update handler that
// consumes pipeline chunks, and the manager that drives concurrent runs.
package analysis

import (
	"fmt"
	"time"

	"github.com/aristath/tradescope/internal/pipeline"
)

// Status is the lifecycle status of an analysis session.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether the status is a terminal state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Stage labels reported while a session runs.
const (
	StageInitialization = "initialization"
	StageDataCollection = "data_collection"
	StageAnalysis       = "analysis"
	StageDecisionMaking = "decision_making"
	StageFinalized      = "finalized"
)

// AnalysisConfig is the immutable configuration snapshot stored with a session.
type AnalysisConfig struct {
	Ticker             string   `json:"ticker"`
	TradeDate          string   `json:"trade_date"` // YYYY-MM-DD
	SelectedAnalysts   []string `json:"selected_analysts"`
	DeepThinkingModel  string   `json:"deep_thinking_model"`
	QuickThinkingModel string   `json:"quick_thinking_model"`
	MaxDebateRounds    int      `json:"max_debate_rounds"`
}

// Validate checks the config before a session is admitted.
func (c AnalysisConfig) Validate() error {
	if c.Ticker == "" {
		return fmt.Errorf("%w: ticker is required", ErrInvalidConfig)
	}
	if _, err := time.Parse("2006-01-02", c.TradeDate); err != nil {
		return fmt.Errorf("%w: trade_date must be YYYY-MM-DD, got %q", ErrInvalidConfig, c.TradeDate)
	}
	if len(c.SelectedAnalysts) == 0 {
		return fmt.Errorf("%w: at least one analyst must be selected", ErrInvalidConfig)
	}
	for _, a := range c.SelectedAnalysts {
		switch a {
		case "market", "social", "news", "fundamentals":
		default:
			return fmt.Errorf("%w: unknown analyst %q", ErrInvalidConfig, a)
		}
	}
	return nil
}

// Session is one end-to-end orchestration run for a ticker/date.
type Session struct {
	ID        string
	Owner     string
	Ticker    string
	TradeDate string
	Config    AnalysisConfig

	Status Status

	StartedAt            *time.Time
	CompletedAt          *time.Time
	ExecutionTimeSeconds *float64

	CurrentStage         string
	CurrentAgent         string
	ProgressPercentage   float64
	EstimatedSecondsLeft *float64

	LLMCallCount    int
	ToolCallCount   int
	AgentsCompleted int
	AgentsFailed    int
	MessageCount    int
	TotalTokensUsed int
	TotalCostUSD    float64

	LastMessage          string
	LastMessageTimestamp *time.Time

	FinalDecision   string
	ConfidenceScore *float64
	ConfidenceLevel string

	ErrorMessage string
	ErrorDetails string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TotalAgents is the agent count used for progress estimation.
func (s *Session) TotalAgents() int {
	return len(s.Config.SelectedAnalysts)
}

// ConfidenceLevelFor buckets a confidence score into Low/Medium/High.
func ConfidenceLevelFor(score float64) string {
	switch {
	case score >= 0.8:
		return "High"
	case score >= 0.6:
		return "Medium"
	default:
		return "Low"
	}
}

// AgentStatus is the per-agent execution status.
type AgentStatus string

const (
	AgentPending   AgentStatus = "pending"
	AgentRunning   AgentStatus = "running"
	AgentCompleted AgentStatus = "completed"
	AgentFailed    AgentStatus = "failed"
	AgentSkipped   AgentStatus = "skipped"
)

// ReportSection is a named piece of produced content attributed to one agent.
// Unique per (session, section_type, agent_name); a second write replaces the
// content.
type ReportSection struct {
	ID            int64
	SessionID     string
	SectionType   pipeline.SectionType
	AgentName     string
	Content       string
	ContentLength int
	UpdatedAt     time.Time
}

// AgentExecution tracks one agent's run inside a session. Unique per
// (session, agent_name).
type AgentExecution struct {
	ID          int64
	SessionID   string
	AgentName   string
	Status      AgentStatus
	StartedAt   *time.Time
	CompletedAt *time.Time
	LLMCalls    int
	ToolCalls   int
	TokensUsed  int
}

// Progress event types. Rows are append-only and never mutated.
const (
	EventAnalysisStarted   = "analysis_started"
	EventStageChanged      = "stage_changed"
	EventReportCompleted   = "report_completed"
	EventAgentCompleted    = "agent_completed"
	EventMilestone         = "milestone"
	EventAnalysisDone      = "analysis_completed"
	EventAnalysisFailed    = "analysis_failed"
	EventAnalysisCancelled = "analysis_cancelled"
)

// ProgressEvent is an append-only record of a stage/milestone transition.
type ProgressEvent struct {
	ID         int64
	SessionID  string
	EventType  string
	Stage      string
	AgentName  string
	Percentage float64
	Detail     string
	CreatedAt  time.Time
}

// MessageLog is one entry of the append-only, strictly ordered session
// transcript. Sequence numbers are contiguous from 1 per session.
type MessageLog struct {
	ID             int64
	SessionID      string
	SequenceNumber int
	Kind           string
	Content        string
	ToolName       string
	CreatedAt      time.Time
}
