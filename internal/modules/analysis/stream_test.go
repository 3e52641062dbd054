package analysis

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tradescope/internal/database"
	"github.com/aristath/tradescope/internal/events"
	"github.com/aristath/tradescope/internal/pipeline"
)

func setupStreamHandler(t *testing.T) (*database.DB, *StreamHandler, *SessionRepository, *ReportRepository, *LogRepository) {
	db := setupTestDB(t)
	sessions := NewSessionRepository(db.Conn(), zerolog.Nop())
	reports := NewReportRepository(db.Conn(), zerolog.Nop())
	logs := NewLogRepository(db.Conn(), zerolog.Nop())
	handler := NewStreamHandler(db, sessions, reports, logs, events.NewManager(zerolog.Nop()), zerolog.Nop())
	return db, handler, sessions, reports, logs
}

func runningSession(t *testing.T, sessions *SessionRepository, id string) *Session {
	s := createSession(t, sessions, id)
	require.NoError(t, s.StartAnalysis())
	require.NoError(t, sessions.Update(s))
	return s
}

func TestApplyChunk_SingleReport(t *testing.T) {
	_, handler, sessions, reports, logs := setupStreamHandler(t)
	s := runningSession(t, sessions, "stream-1")

	chunk := &pipeline.Chunk{
		MarketReport: "RSI near 50, neutral trend.",
		Messages: []pipeline.Message{
			{Kind: pipeline.MessageTool, Content: "fetching prices", ToolCalls: []pipeline.ToolCall{{Name: "get_price_history"}}},
			{Kind: pipeline.MessageReasoning, Content: "Market report ready."},
		},
		LLMCalls:   2,
		TokensUsed: 1800,
		CostUSD:    0.004,
	}
	require.NoError(t, handler.ApplyChunk(s, chunk))

	// In-memory session reflects the chunk
	assert.Equal(t, 1, s.AgentsCompleted)
	assert.Equal(t, pipeline.AgentMarketAnalyst, s.CurrentAgent)
	assert.Equal(t, 2, s.LLMCallCount)
	assert.Equal(t, 1, s.ToolCallCount)
	assert.Equal(t, 1800, s.TotalTokensUsed)
	assert.Equal(t, 2, s.MessageCount)
	assert.Equal(t, "Market report ready.", s.LastMessage)
	// 10 + 1/4 * 70 = 27.5
	assert.Equal(t, 27.5, s.ProgressPercentage)
	assert.Equal(t, StageAnalysis, s.CurrentStage)

	// Persisted row agrees
	got, err := sessions.Get("stream-1")
	require.NoError(t, err)
	assert.Equal(t, s.ProgressPercentage, got.ProgressPercentage)
	assert.Equal(t, s.AgentsCompleted, got.AgentsCompleted)
	assert.Equal(t, s.MessageCount, got.MessageCount)

	sections, err := reports.GetSections("stream-1")
	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Equal(t, pipeline.SectionMarketReport, sections[0].SectionType)

	messages, err := logs.Messages("stream-1")
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

func TestApplyChunk_ProgressScenario(t *testing.T) {
	_, handler, sessions, _, logs := setupStreamHandler(t)
	s := runningSession(t, sessions, "stream-prog")

	require.NoError(t, handler.ApplyChunk(s, &pipeline.Chunk{MarketReport: "report one"}))
	assert.Equal(t, 27.5, s.ProgressPercentage)

	require.NoError(t, handler.ApplyChunk(s, &pipeline.Chunk{SentimentReport: "report two"}))
	// Two of four analysts done: 10 + 2/4*70 = 45
	assert.Equal(t, 45.0, s.ProgressPercentage)
	assert.Equal(t, StageAnalysis, s.CurrentStage)

	// One milestone event per chunk that crossed a 10-point boundary
	evts, err := logs.Events("stream-prog")
	require.NoError(t, err)
	milestones := 0
	for _, e := range evts {
		if e.EventType == EventMilestone {
			milestones++
		}
	}
	assert.Equal(t, 2, milestones)
}

func TestApplyChunk_ReplayedSectionDoesNotDoubleCount(t *testing.T) {
	_, handler, sessions, reports, _ := setupStreamHandler(t)
	s := runningSession(t, sessions, "stream-replay")

	require.NoError(t, handler.ApplyChunk(s, &pipeline.Chunk{MarketReport: "first draft"}))
	require.NoError(t, handler.ApplyChunk(s, &pipeline.Chunk{MarketReport: "revised draft"}))

	assert.Equal(t, 1, s.AgentsCompleted)
	assert.Equal(t, 27.5, s.ProgressPercentage)

	sections, err := reports.GetSections("stream-replay")
	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Equal(t, "revised draft", sections[0].Content)
}

func TestApplyChunk_FinalDecisionCached(t *testing.T) {
	_, handler, sessions, _, _ := setupStreamHandler(t)
	s := runningSession(t, sessions, "stream-final")

	require.NoError(t, handler.ApplyChunk(s, &pipeline.Chunk{FinalTradeDecision: "BUY"}))
	assert.Equal(t, "BUY", s.FinalDecision)
}

func TestApplyChunk_ProgressNeverDecreases(t *testing.T) {
	_, handler, sessions, _, _ := setupStreamHandler(t)
	s := runningSession(t, sessions, "stream-mono")
	s.ProgressPercentage = 90
	require.NoError(t, sessions.Update(s))

	require.NoError(t, handler.ApplyChunk(s, &pipeline.Chunk{MarketReport: "late report"}))
	assert.Equal(t, 90.0, s.ProgressPercentage)
}

func TestApplyChunk_EmptyChunk(t *testing.T) {
	_, handler, sessions, _, _ := setupStreamHandler(t)
	s := runningSession(t, sessions, "stream-empty")

	require.NoError(t, handler.ApplyChunk(s, &pipeline.Chunk{
		Messages: []pipeline.Message{{Kind: pipeline.MessageSystem, Content: "heartbeat"}},
	}))

	assert.Equal(t, 0, s.AgentsCompleted)
	assert.Equal(t, 1, s.MessageCount)
	assert.Equal(t, "heartbeat", s.LastMessage)
}

func TestRecordChunkError(t *testing.T) {
	_, handler, sessions, _, logs := setupStreamHandler(t)
	s := runningSession(t, sessions, "stream-err")

	handler.RecordChunkError(s, errors.New("disk full"))

	messages, err := logs.Messages(s.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, string(pipeline.MessageError), messages[0].Kind)
	assert.Equal(t, "disk full", messages[0].Content)

	// Both the row and the in-memory session carry the error entry
	got, err := sessions.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.MessageCount)
	assert.Equal(t, "disk full", got.LastMessage)
	assert.Equal(t, 1, s.MessageCount)
	assert.Equal(t, "disk full", s.LastMessage)
	assert.NotNil(t, s.LastMessageTimestamp)
}

func TestRecordChunkError_SurvivesLaterChunks(t *testing.T) {
	_, handler, sessions, _, logs := setupStreamHandler(t)
	s := runningSession(t, sessions, "stream-err-seq")

	require.NoError(t, handler.ApplyChunk(s, &pipeline.Chunk{
		Messages: []pipeline.Message{{Kind: pipeline.MessageReasoning, Content: "msg one"}},
	}))
	handler.RecordChunkError(s, errors.New("commit failed"))

	// A later chunk without messages must not roll the counters back
	require.NoError(t, handler.ApplyChunk(s, &pipeline.Chunk{MarketReport: "late report"}))

	messages, err := logs.Messages(s.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	got, err := sessions.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, len(messages), got.MessageCount)
	assert.Equal(t, "commit failed", got.LastMessage)
}

func TestApplyChunk_FullRunCapsBeforeFinalize(t *testing.T) {
	_, handler, sessions, _, _ := setupStreamHandler(t)
	s := runningSession(t, sessions, "stream-cap")

	for _, chunk := range pipeline.DemoChunks("DEMO") {
		c := chunk
		require.NoError(t, handler.ApplyChunk(s, &c))
		assert.LessOrEqual(t, s.ProgressPercentage, 80.0)
	}

	// Downstream agents overshoot the analyst denominator; the last 20
	// points are granted only by CompleteAnalysis.
	assert.Greater(t, s.AgentsCompleted, s.TotalAgents())
	assert.Equal(t, 80.0, s.ProgressPercentage)
	assert.Equal(t, StageDecisionMaking, s.CurrentStage)
	assert.Equal(t, StatusRunning, s.Status)

	require.NoError(t, s.CompleteAnalysis("BUY", 0.9))
	assert.Equal(t, 100.0, s.ProgressPercentage)
}
