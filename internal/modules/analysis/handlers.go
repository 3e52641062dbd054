package analysis

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handlers contains HTTP handlers for the analysis API
type Handlers struct {
	manager  *Manager
	sessions *SessionRepository
	reports  *ReportRepository
	logs     *LogRepository
	defaults AnalysisConfig
	log      zerolog.Logger
}

// NewHandlers creates a new analysis handlers instance
func NewHandlers(
	manager *Manager,
	sessions *SessionRepository,
	reports *ReportRepository,
	logs *LogRepository,
	defaults AnalysisConfig,
	log zerolog.Logger,
) *Handlers {
	return &Handlers{
		manager:  manager,
		sessions: sessions,
		reports:  reports,
		logs:     logs,
		defaults: defaults,
		log:      log.With().Str("handler", "analysis").Logger(),
	}
}

// Routes mounts the analysis routes.
func (h *Handlers) Routes(r chi.Router) {
	r.Post("/", h.HandleStart)
	r.Get("/", h.HandleList)
	r.Get("/active", h.HandleActive)
	r.Get("/{sessionID}", h.HandleGet)
	r.Delete("/{sessionID}", h.HandleDelete)
	r.Post("/{sessionID}/stop", h.HandleStop)
	r.Post("/{sessionID}/pause", h.HandlePause)
	r.Post("/{sessionID}/resume", h.HandleResume)
	r.Get("/{sessionID}/messages", h.HandleMessages)
	r.Get("/{sessionID}/events", h.HandleEvents)
	r.Get("/{sessionID}/report", h.HandleReport)
}

type startRequest struct {
	Ticker             string   `json:"ticker"`
	TradeDate          string   `json:"trade_date"`
	Owner              string   `json:"owner"`
	SelectedAnalysts   []string `json:"selected_analysts"`
	DeepThinkingModel  string   `json:"deep_thinking_model"`
	QuickThinkingModel string   `json:"quick_thinking_model"`
	MaxDebateRounds    int      `json:"max_debate_rounds"`
}

// HandleStart creates and admits a new analysis session
// POST /api/analysis
func (h *Handlers) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	cfg := h.defaults
	cfg.Ticker = req.Ticker
	if req.TradeDate != "" {
		cfg.TradeDate = req.TradeDate
	} else if cfg.TradeDate == "" {
		cfg.TradeDate = time.Now().UTC().Format("2006-01-02")
	}
	if len(req.SelectedAnalysts) > 0 {
		cfg.SelectedAnalysts = req.SelectedAnalysts
	}
	if req.DeepThinkingModel != "" {
		cfg.DeepThinkingModel = req.DeepThinkingModel
	}
	if req.QuickThinkingModel != "" {
		cfg.QuickThinkingModel = req.QuickThinkingModel
	}
	if req.MaxDebateRounds > 0 {
		cfg.MaxDebateRounds = req.MaxDebateRounds
	}

	sessionID := NewSessionID()
	err := h.manager.Start(sessionID, cfg, req.Owner)
	switch {
	case errors.Is(err, ErrInvalidConfig):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, ErrTooManyAnalyses):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
		return
	case err != nil:
		h.log.Error().Err(err).Msg("Failed to start analysis")
		http.Error(w, "Failed to start analysis", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"session_id": sessionID,
		"status":     string(StatusPending),
		"ticker":     cfg.Ticker,
		"trade_date": cfg.TradeDate,
	})
}

// HandleStop requests cooperative cancellation
// POST /api/analysis/{sessionID}/stop
func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	h.handleSignal(w, r, h.manager.Stop, "stop")
}

// HandlePause requests the loop pause at the next chunk boundary
// POST /api/analysis/{sessionID}/pause
func (h *Handlers) HandlePause(w http.ResponseWriter, r *http.Request) {
	h.handleSignal(w, r, h.manager.Pause, "pause")
}

// HandleResume unblocks a paused session
// POST /api/analysis/{sessionID}/resume
func (h *Handlers) HandleResume(w http.ResponseWriter, r *http.Request) {
	h.handleSignal(w, r, h.manager.Resume, "resume")
}

func (h *Handlers) handleSignal(w http.ResponseWriter, r *http.Request, fn func(string) bool, action string) {
	sessionID := chi.URLParam(r, "sessionID")
	if !fn(sessionID) {
		http.Error(w, "Session is not currently running", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"action":     action,
		"accepted":   true,
	})
}

// HandleGet returns the persisted session row (the polling target)
// GET /api/analysis/{sessionID}
func (h *Handlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	s, err := h.sessions.Get(sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get session")
		http.Error(w, "Failed to get session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(s, h.manager.IsActive(sessionID)))
}

// HandleList returns sessions, newest first
// GET /api/analysis?status=&ticker=&limit=
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	sessions, err := h.sessions.List(r.URL.Query().Get("status"), r.URL.Query().Get("ticker"), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list sessions")
		http.Error(w, "Failed to list sessions", http.StatusInternalServerError)
		return
	}

	response := make([]map[string]interface{}, 0, len(sessions))
	for _, s := range sessions {
		response = append(response, sessionResponse(s, h.manager.IsActive(s.ID)))
	}
	writeJSON(w, http.StatusOK, response)
}

// HandleActive returns the manager's live view of registered sessions
// GET /api/analysis/active
func (h *Handlers) HandleActive(w http.ResponseWriter, r *http.Request) {
	ids := h.manager.ActiveSessionIDs()
	statuses := make([]*RuntimeStatus, 0, len(ids))
	for _, id := range ids {
		if rs := h.manager.GetRuntimeStatus(id); rs != nil {
			statuses = append(statuses, rs)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(statuses),
		"sessions": statuses,
	})
}

// HandleDelete removes a session and all its children
// DELETE /api/analysis/{sessionID}
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if h.manager.IsActive(sessionID) {
		http.Error(w, "Session is running; stop it first", http.StatusConflict)
		return
	}
	err := h.sessions.Delete(sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to delete session")
		http.Error(w, "Failed to delete session", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMessages returns the transcript tail
// GET /api/analysis/{sessionID}/messages?limit=N
func (h *Handlers) HandleMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}

	messages, err := h.logs.Tail(sessionID, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get messages")
		http.Error(w, "Failed to get messages", http.StatusInternalServerError)
		return
	}

	response := make([]map[string]interface{}, 0, len(messages))
	for _, m := range messages {
		response = append(response, map[string]interface{}{
			"sequence_number": m.SequenceNumber,
			"kind":            m.Kind,
			"content":         m.Content,
			"tool_name":       m.ToolName,
			"created_at":      m.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, response)
}

// HandleEvents returns the progress events for a session
// GET /api/analysis/{sessionID}/events
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	events, err := h.logs.Events(sessionID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get progress events")
		http.Error(w, "Failed to get progress events", http.StatusInternalServerError)
		return
	}

	response := make([]map[string]interface{}, 0, len(events))
	for _, e := range events {
		response = append(response, map[string]interface{}{
			"event_type": e.EventType,
			"stage":      e.Stage,
			"agent_name": e.AgentName,
			"percentage": e.Percentage,
			"detail":     e.Detail,
			"created_at": e.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, response)
}

// HandleReport assembles the produced report sections plus the decision
// GET /api/analysis/{sessionID}/report
func (h *Handlers) HandleReport(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	s, err := h.sessions.Get(sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get session")
		http.Error(w, "Failed to get session", http.StatusInternalServerError)
		return
	}

	sections, err := h.reports.GetSections(sessionID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get report sections")
		http.Error(w, "Failed to get report sections", http.StatusInternalServerError)
		return
	}

	sectionList := make([]map[string]interface{}, 0, len(sections))
	for _, sec := range sections {
		sectionList = append(sectionList, map[string]interface{}{
			"section_type":   string(sec.SectionType),
			"agent_name":     sec.AgentName,
			"content":        sec.Content,
			"content_length": sec.ContentLength,
			"updated_at":     sec.UpdatedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id":       s.ID,
		"ticker":           s.Ticker,
		"trade_date":       s.TradeDate,
		"status":           string(s.Status),
		"final_decision":   s.FinalDecision,
		"confidence_score": s.ConfidenceScore,
		"confidence_level": s.ConfidenceLevel,
		"sections":         sectionList,
	})
}

func sessionResponse(s *Session, active bool) map[string]interface{} {
	resp := map[string]interface{}{
		"session_id":             s.ID,
		"owner":                  s.Owner,
		"ticker":                 s.Ticker,
		"trade_date":             s.TradeDate,
		"status":                 string(s.Status),
		"active":                 active,
		"current_stage":          s.CurrentStage,
		"current_agent":          s.CurrentAgent,
		"progress_percentage":    s.ProgressPercentage,
		"estimated_seconds_left": s.EstimatedSecondsLeft,
		"llm_call_count":         s.LLMCallCount,
		"tool_call_count":        s.ToolCallCount,
		"agents_completed":       s.AgentsCompleted,
		"agents_failed":          s.AgentsFailed,
		"message_count":          s.MessageCount,
		"total_tokens_used":      s.TotalTokensUsed,
		"total_cost_usd":         s.TotalCostUSD,
		"last_message":           s.LastMessage,
		"final_decision":         s.FinalDecision,
		"confidence_score":       s.ConfidenceScore,
		"confidence_level":       s.ConfidenceLevel,
		"error_message":          s.ErrorMessage,
		"created_at":             s.CreatedAt.Format(time.RFC3339),
	}
	if s.StartedAt != nil {
		resp["started_at"] = s.StartedAt.Format(time.RFC3339)
	}
	if s.CompletedAt != nil {
		resp["completed_at"] = s.CompletedAt.Format(time.RFC3339)
		resp["execution_time_seconds"] = s.ExecutionTimeSeconds
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
