// Package pipeline defines the contract between the orchestration engine and
// the external multi-agent analysis pipeline. The engine never runs agents
// itself; it pulls incremental chunks from whatever implements Pipeline.
package pipeline

import (
	"context"
)

// State is the initial state handed to the pipeline for one run.
type State struct {
	Ticker    string
	TradeDate string // YYYY-MM-DD
}

// Options controls a single pipeline run.
type Options struct {
	SelectedAnalysts   []string
	DeepThinkingModel  string
	QuickThinkingModel string
	MaxDebateRounds    int
}

// Pipeline is the external analysis pipeline collaborator.
type Pipeline interface {
	// InitialState builds the starting state for a ticker/date run.
	InitialState(ticker, tradeDate string) State

	// RunOptions returns the default run options for this pipeline.
	RunOptions() Options

	// Stream starts a run and returns an incremental stream of chunks.
	// The pipeline owns its own wall-clock limits; the engine only cancels
	// via ctx.
	Stream(ctx context.Context, state State, opts Options) (ChunkStream, error)
}

// ChunkStream yields pipeline chunks one at a time.
// Next returns io.EOF when the run has produced its final chunk.
type ChunkStream interface {
	Next(ctx context.Context) (*Chunk, error)
}

// MessageKind classifies transcript messages carried by a chunk.
type MessageKind string

const (
	MessageReasoning MessageKind = "reasoning"
	MessageSystem    MessageKind = "system"
	MessageTool      MessageKind = "tool"
	MessageError     MessageKind = "error"
)

// ToolCall describes one tool invocation reported by an agent.
type ToolCall struct {
	Name string
	Args string
}

// Message is one transcript entry carried by a chunk.
type Message struct {
	Kind      MessageKind
	Content   string
	ToolCalls []ToolCall
}

// DebateState carries the bull/bear research debate as it evolves.
type DebateState struct {
	BullHistory     string
	BearHistory     string
	History         string
	CurrentResponse string
	JudgeDecision   string
	Round           int
}

// RiskDebateState carries the risky/safe/neutral risk discussion.
type RiskDebateState struct {
	RiskyHistory   string
	SafeHistory    string
	NeutralHistory string
	History        string
	LatestSpeaker  string
	JudgeDecision  string
	Round          int
}

// Chunk is one incremental delta emitted during a run. Fields are empty until
// the owning agent produces them; a non-empty field means that agent is done.
type Chunk struct {
	MarketReport       string
	SentimentReport    string
	NewsReport         string
	FundamentalsReport string

	InvestmentDebate     *DebateState
	TraderInvestmentPlan string
	RiskDebate           *RiskDebateState
	FinalTradeDecision   string

	Messages []Message

	// Usage accounting for this delta.
	LLMCalls   int
	TokensUsed int
	CostUSD    float64
}
