package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/tradescope/internal/events"
	"github.com/aristath/tradescope/internal/pipeline"
)

// task is the in-memory handle for one running session. The flags are
// cooperative: the driving loop consults them at chunk boundaries only, so a
// stop or pause always lets the in-flight chunk finish.
type task struct {
	sessionID string
	cancel    context.CancelFunc
	done      chan struct{}

	mu       sync.Mutex
	stopping bool
	paused   bool
	resumeCh chan struct{}
}

func newTask(sessionID string, cancel context.CancelFunc) *task {
	return &task{
		sessionID: sessionID,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

func (t *task) requestStop() {
	t.mu.Lock()
	t.stopping = true
	// Unblock a paused loop so it can observe the stop.
	if t.resumeCh != nil {
		close(t.resumeCh)
		t.resumeCh = nil
		t.paused = false
	}
	t.mu.Unlock()
	// Abort the wait for the next chunk; chunk handling itself never checks
	// the context, so an in-flight chunk still completes.
	t.cancel()
}

func (t *task) requestPause() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopping || t.paused {
		return false
	}
	t.paused = true
	t.resumeCh = make(chan struct{})
	return true
}

func (t *task) requestResume() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.paused {
		return false
	}
	t.paused = false
	close(t.resumeCh)
	t.resumeCh = nil
	return true
}

func (t *task) isStopping() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopping
}

// pauseState returns (paused, channel closed on resume).
func (t *task) pauseState() (bool, <-chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused, t.resumeCh
}

// RuntimeStatus is the manager's in-memory view of a registered session.
type RuntimeStatus struct {
	SessionID    string     `json:"session_id"`
	Status       Status     `json:"status"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CurrentAgent string     `json:"current_agent,omitempty"`
	LastMessage  string     `json:"last_message,omitempty"`
}

// Manager owns the concurrency gate, the session registry and the driving
// loop for every running analysis. All durable state goes through the
// repositories; the registry map is the only shared mutable in-memory state.
type Manager struct {
	pipeline pipeline.Pipeline
	sessions *SessionRepository
	stream   *StreamHandler
	logs     *LogRepository
	events   *events.Manager
	log      zerolog.Logger

	maxConcurrent int

	mu      sync.Mutex
	running map[string]*task

	baseCtx  context.Context
	baseStop context.CancelFunc
	wg       sync.WaitGroup
}

// NewManager creates a new analysis manager
func NewManager(
	p pipeline.Pipeline,
	sessions *SessionRepository,
	stream *StreamHandler,
	logs *LogRepository,
	em *events.Manager,
	maxConcurrent int,
	log zerolog.Logger,
) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		pipeline:      p,
		sessions:      sessions,
		stream:        stream,
		logs:          logs,
		events:        em,
		log:           log.With().Str("component", "analysis_manager").Logger(),
		maxConcurrent: maxConcurrent,
		running:       make(map[string]*task),
		baseCtx:       ctx,
		baseStop:      cancel,
	}
}

// NewSessionID generates an opaque session id.
func NewSessionID() string {
	return uuid.New().String()
}

// Start admits a new analysis job. It validates the config, enforces the
// concurrency limit, persists the PENDING session row and launches the
// driving loop. This is the only operation that fails synchronously.
func (m *Manager) Start(sessionID string, cfg AnalysisConfig, owner string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(m.baseCtx)
	t := newTask(sessionID, cancel)

	m.mu.Lock()
	if _, exists := m.running[sessionID]; exists {
		m.mu.Unlock()
		cancel()
		return fmt.Errorf("%w: %s", ErrSessionExists, sessionID)
	}
	if len(m.running) >= m.maxConcurrent {
		m.mu.Unlock()
		cancel()
		return fmt.Errorf("%w: limit %d", ErrTooManyAnalyses, m.maxConcurrent)
	}
	m.running[sessionID] = t
	m.mu.Unlock()

	session := &Session{
		ID:        sessionID,
		Owner:     owner,
		Ticker:    cfg.Ticker,
		TradeDate: cfg.TradeDate,
		Config:    cfg,
		Status:    StatusPending,
	}
	if err := m.sessions.Create(session); err != nil {
		m.unregister(sessionID)
		cancel()
		return err
	}

	m.wg.Add(1)
	go m.run(ctx, t, session)

	return nil
}

// Stop requests cooperative cancellation. Returns false when the session is
// not currently registered.
func (m *Manager) Stop(sessionID string) bool {
	t := m.lookup(sessionID)
	if t == nil {
		return false
	}
	t.requestStop()
	return true
}

// Pause requests that the loop stop pulling chunks at the next boundary.
// Returns false when the session is not registered or already paused.
func (m *Manager) Pause(sessionID string) bool {
	t := m.lookup(sessionID)
	if t == nil {
		return false
	}
	return t.requestPause()
}

// Resume unblocks a paused loop. Returns false when the session is not
// registered or not paused.
func (m *Manager) Resume(sessionID string) bool {
	t := m.lookup(sessionID)
	if t == nil {
		return false
	}
	return t.requestResume()
}

// IsActive reports whether a session is currently registered. The registry,
// not the persisted row, is the authoritative signal of "currently running".
func (m *Manager) IsActive(sessionID string) bool {
	return m.lookup(sessionID) != nil
}

// ActiveCount returns the number of registered running sessions.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running)
}

// GetRuntimeStatus returns the live view of a registered session, or nil
// when the session is not registered (callers then poll the persisted row).
func (m *Manager) GetRuntimeStatus(sessionID string) *RuntimeStatus {
	if m.lookup(sessionID) == nil {
		return nil
	}
	s, err := m.sessions.Get(sessionID)
	if err != nil {
		return nil
	}
	return &RuntimeStatus{
		SessionID:    s.ID,
		Status:       s.Status,
		StartedAt:    s.StartedAt,
		CurrentAgent: s.CurrentAgent,
		LastMessage:  s.LastMessage,
	}
}

// ActiveSessionIDs returns the ids of all registered sessions.
func (m *Manager) ActiveSessionIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.running))
	for id := range m.running {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown stops all loops and waits for them to exit. Every running session
// is finalized as cancelled before Shutdown returns.
func (m *Manager) Shutdown(ctx context.Context) error {
	for _, id := range m.ActiveSessionIDs() {
		m.Stop(id)
	}
	m.baseStop()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) lookup(sessionID string) *task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running[sessionID]
}

func (m *Manager) unregister(sessionID string) {
	m.mu.Lock()
	delete(m.running, sessionID)
	m.mu.Unlock()
}

// run is the driving loop for one session. It owns every write to the
// session row for its lifetime (single-writer-per-session invariant).
func (m *Manager) run(ctx context.Context, t *task, s *Session) {
	log := m.log.With().Str("session_id", s.ID).Str("ticker", s.Ticker).Logger()

	defer m.wg.Done()
	defer close(t.done)
	// Removing the registry entry is the sole authoritative "no longer
	// active" signal; it must happen after the final row write.
	defer m.unregister(s.ID)
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Driving loop panicked")
			m.finalizeFailed(s, fmt.Sprintf("internal error: %v", r), "")
		}
	}()

	if err := s.StartAnalysis(); err != nil {
		log.Error().Err(err).Msg("Failed to start session")
		m.finalizeFailed(s, "failed to start analysis", err.Error())
		return
	}
	if err := m.sessions.Update(s); err != nil {
		log.Error().Err(err).Msg("Failed to persist RUNNING transition")
		m.finalizeFailed(s, "failed to persist start", err.Error())
		return
	}
	m.appendEvent(s, EventAnalysisStarted, "")
	m.events.Emit(events.AnalysisStarted, "analysis", map[string]interface{}{
		"session_id": s.ID,
		"ticker":     s.Ticker,
		"trade_date": s.TradeDate,
	})
	log.Info().Msg("Analysis started")

	opts := m.pipeline.RunOptions()
	opts.SelectedAnalysts = s.Config.SelectedAnalysts
	if s.Config.DeepThinkingModel != "" {
		opts.DeepThinkingModel = s.Config.DeepThinkingModel
	}
	if s.Config.QuickThinkingModel != "" {
		opts.QuickThinkingModel = s.Config.QuickThinkingModel
	}
	if s.Config.MaxDebateRounds > 0 {
		opts.MaxDebateRounds = s.Config.MaxDebateRounds
	}

	stream, err := m.pipeline.Stream(ctx, m.pipeline.InitialState(s.Ticker, s.TradeDate), opts)
	if err != nil {
		log.Error().Err(err).Msg("Pipeline failed to initialize")
		m.finalizeFailed(s, "pipeline initialization failed", err.Error())
		return
	}

	for {
		// Cooperative flags are observed only here, between chunks.
		if t.isStopping() {
			m.finalizeCancelled(s, log)
			return
		}
		if done := m.waitWhilePaused(t, s, log); done {
			m.finalizeCancelled(s, log)
			return
		}

		chunk, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				m.finalizeCompleted(s, log)
				return
			}
			if t.isStopping() || errors.Is(err, context.Canceled) {
				m.finalizeCancelled(s, log)
				return
			}
			log.Error().Err(err).Msg("Pipeline stream failed")
			m.finalizeFailed(s, "pipeline stream failed", err.Error())
			return
		}

		if err := m.stream.ApplyChunk(s, chunk); err != nil {
			// One chunk's commit failed: discard it and keep going.
			log.Warn().Err(err).Msg("Chunk discarded after persistence failure")
			m.stream.RecordChunkError(s, err)
		}
	}
}

// waitWhilePaused persists the PAUSED transition, blocks until resume or
// stop, and persists the transition back. Returns true when the session was
// stopped while paused.
func (m *Manager) waitWhilePaused(t *task, s *Session, log zerolog.Logger) bool {
	paused, resumeCh := t.pauseState()
	if !paused {
		return false
	}

	if err := s.Pause(); err == nil {
		if err := m.sessions.Update(s); err != nil {
			log.Error().Err(err).Msg("Failed to persist PAUSED transition")
		}
		m.events.Emit(events.AnalysisPaused, "analysis", map[string]interface{}{"session_id": s.ID})
		log.Info().Msg("Analysis paused")
	}

	<-resumeCh

	if t.isStopping() {
		return true
	}

	if err := s.Resume(); err == nil {
		if err := m.sessions.Update(s); err != nil {
			log.Error().Err(err).Msg("Failed to persist RUNNING transition after resume")
		}
		m.events.Emit(events.AnalysisResumed, "analysis", map[string]interface{}{"session_id": s.ID})
		log.Info().Msg("Analysis resumed")
	}
	return false
}

func (m *Manager) finalizeCompleted(s *Session, log zerolog.Logger) {
	decision, confidence := "HOLD", 0.0
	if s.FinalDecision != "" {
		decision, confidence = ExtractSignal(s.FinalDecision)
	}
	if err := s.CompleteAnalysis(decision, confidence); err != nil {
		log.Error().Err(err).Msg("Failed to complete session")
		m.finalizeFailed(s, "failed to finalize analysis", err.Error())
		return
	}
	if err := m.sessions.Update(s); err != nil {
		log.Error().Err(err).Msg("Failed to persist COMPLETED transition")
	}
	m.appendEvent(s, EventAnalysisDone, decision)
	m.events.Emit(events.AnalysisCompleted, "analysis", map[string]interface{}{
		"session_id": s.ID,
		"decision":   decision,
		"confidence": confidence,
	})
	log.Info().Str("decision", decision).Float64("confidence", confidence).Msg("Analysis completed")
}

func (m *Manager) finalizeCancelled(s *Session, log zerolog.Logger) {
	if err := s.CancelAnalysis(); err != nil {
		log.Error().Err(err).Msg("Failed to cancel session")
		return
	}
	if err := m.sessions.Update(s); err != nil {
		log.Error().Err(err).Msg("Failed to persist CANCELLED transition")
	}
	m.appendEvent(s, EventAnalysisCancelled, "")
	m.events.Emit(events.AnalysisCancelled, "analysis", map[string]interface{}{"session_id": s.ID})
	log.Info().Msg("Analysis cancelled")
}

// finalizeFailed is the best-effort FAILED transition. A secondary failure
// while persisting the failure is logged, not retried.
func (m *Manager) finalizeFailed(s *Session, message, details string) {
	if err := s.FailAnalysis(message, details); err != nil {
		m.log.Error().Err(err).Str("session_id", s.ID).Msg("Failed to mark session FAILED")
		return
	}
	if err := m.sessions.Update(s); err != nil {
		m.log.Error().Err(err).Str("session_id", s.ID).Msg("Failed to persist FAILED transition")
	}
	m.appendEvent(s, EventAnalysisFailed, message)
	m.events.Emit(events.AnalysisFailed, "analysis", map[string]interface{}{
		"session_id": s.ID,
		"error":      message,
	})
}

// appendEvent writes a lifecycle progress event outside chunk handling.
// Best effort: a failure here never affects the session outcome.
func (m *Manager) appendEvent(s *Session, eventType, detail string) {
	err := m.logs.RecordEvent(ProgressEvent{
		SessionID:  s.ID,
		EventType:  eventType,
		Stage:      s.CurrentStage,
		AgentName:  s.CurrentAgent,
		Percentage: s.ProgressPercentage,
		Detail:     detail,
	})
	if err != nil {
		m.log.Warn().Err(err).Str("session_id", s.ID).Str("event", eventType).Msg("Failed to append lifecycle event")
	}
}
