package pipeline

import (
	"context"
	"io"
	"time"
)

// Scripted is a deterministic Pipeline that replays a fixed chunk sequence.
// It backs DEV_MODE runs and tests; the real agent graph lives in a separate
// service and is consumed through the same interface.
type Scripted struct {
	chunks  []Chunk
	opts    Options
	delay   time.Duration
	initErr error
	// failAt injects a stream error after yielding failAt chunks; <0 disables.
	failAt  int
	failErr error
}

// NewScripted creates a scripted pipeline replaying the given chunks.
func NewScripted(chunks []Chunk, opts Options) *Scripted {
	return &Scripted{
		chunks: chunks,
		opts:   opts,
		failAt: -1,
	}
}

// WithDelay makes the stream sleep between chunks, to mimic a slow producer.
func (p *Scripted) WithDelay(d time.Duration) *Scripted {
	p.delay = d
	return p
}

// WithInitError makes Stream fail immediately with err.
func (p *Scripted) WithInitError(err error) *Scripted {
	p.initErr = err
	return p
}

// WithStreamError makes the stream fail after yielding n chunks.
func (p *Scripted) WithStreamError(n int, err error) *Scripted {
	p.failAt = n
	p.failErr = err
	return p
}

// InitialState builds the starting state for a ticker/date run.
func (p *Scripted) InitialState(ticker, tradeDate string) State {
	return State{Ticker: ticker, TradeDate: tradeDate}
}

// RunOptions returns the default run options for this pipeline.
func (p *Scripted) RunOptions() Options {
	return p.opts
}

// Stream starts a replay of the scripted chunks.
func (p *Scripted) Stream(ctx context.Context, state State, opts Options) (ChunkStream, error) {
	if p.initErr != nil {
		return nil, p.initErr
	}
	return &scriptedStream{pipeline: p}, nil
}

type scriptedStream struct {
	pipeline *Scripted
	pos      int
}

func (s *scriptedStream) Next(ctx context.Context) (*Chunk, error) {
	p := s.pipeline

	if p.failAt >= 0 && s.pos >= p.failAt {
		return nil, p.failErr
	}
	if s.pos >= len(p.chunks) {
		return nil, io.EOF
	}

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chunk := p.chunks[s.pos]
	s.pos++
	return &chunk, nil
}

// DemoChunks returns a canned full run for a ticker: four analyst reports,
// a research verdict, a trader plan and a final decision.
func DemoChunks(ticker string) []Chunk {
	return []Chunk{
		{
			MarketReport: "Technical indicators for " + ticker + " show a neutral trend with RSI near 50.",
			Messages: []Message{
				{Kind: MessageTool, Content: "fetching price history", ToolCalls: []ToolCall{{Name: "get_price_history", Args: ticker}}},
				{Kind: MessageReasoning, Content: "Market analyst report ready."},
			},
			LLMCalls: 2, TokensUsed: 1800, CostUSD: 0.004,
		},
		{
			SentimentReport: "Social sentiment for " + ticker + " is mildly positive over the past week.",
			Messages:        []Message{{Kind: MessageReasoning, Content: "Social analyst report ready."}},
			LLMCalls:        1, TokensUsed: 1200, CostUSD: 0.002,
		},
		{
			NewsReport: "No major headlines for " + ticker + "; macro backdrop stable.",
			Messages:   []Message{{Kind: MessageReasoning, Content: "News analyst report ready."}},
			LLMCalls:   1, TokensUsed: 1100, CostUSD: 0.002,
		},
		{
			FundamentalsReport: ticker + " fundamentals steady: margins flat, leverage unchanged.",
			Messages:           []Message{{Kind: MessageReasoning, Content: "Fundamentals analyst report ready."}},
			LLMCalls:           1, TokensUsed: 1500, CostUSD: 0.003,
		},
		{
			InvestmentDebate: &DebateState{
				History:       "bull vs bear, one round",
				JudgeDecision: "Research manager sides with the bull case on balance.",
				Round:         1,
			},
			Messages: []Message{{Kind: MessageReasoning, Content: "Research debate concluded."}},
			LLMCalls: 3, TokensUsed: 2600, CostUSD: 0.006,
		},
		{
			TraderInvestmentPlan: "Scale in over two sessions, stop below recent support.",
			Messages:             []Message{{Kind: MessageReasoning, Content: "Trader plan drafted."}},
			LLMCalls:             1, TokensUsed: 900, CostUSD: 0.002,
		},
		{
			FinalTradeDecision: "BUY",
			RiskDebate: &RiskDebateState{
				JudgeDecision: "BUY",
				LatestSpeaker: "neutral",
				Round:         1,
			},
			Messages: []Message{{Kind: MessageSystem, Content: "Final decision recorded."}},
			LLMCalls: 2, TokensUsed: 1300, CostUSD: 0.003,
		},
	}
}
