package analysis

import (
	"errors"
	"testing"
	"time"
)

func newTestSession() *Session {
	return &Session{
		ID:        "test-session",
		Ticker:    "AAPL",
		TradeDate: "2025-06-02",
		Config: AnalysisConfig{
			Ticker:           "AAPL",
			TradeDate:        "2025-06-02",
			SelectedAnalysts: []string{"market", "social", "news", "fundamentals"},
		},
		Status: StatusPending,
	}
}

func TestStartAnalysis(t *testing.T) {
	s := newTestSession()

	if err := s.StartAnalysis(); err != nil {
		t.Fatalf("StartAnalysis failed: %v", err)
	}
	if s.Status != StatusRunning {
		t.Errorf("status = %s, want running", s.Status)
	}
	if s.StartedAt == nil {
		t.Error("expected StartedAt to be stamped")
	}
	if s.CurrentStage != StageInitialization {
		t.Errorf("stage = %s, want initialization", s.CurrentStage)
	}

	// A second start is rejected
	if err := s.StartAnalysis(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestCompleteAnalysis(t *testing.T) {
	s := newTestSession()
	if err := s.StartAnalysis(); err != nil {
		t.Fatal(err)
	}

	if err := s.CompleteAnalysis("BUY", 0.85); err != nil {
		t.Fatalf("CompleteAnalysis failed: %v", err)
	}

	if s.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", s.Status)
	}
	if s.FinalDecision != "BUY" {
		t.Errorf("decision = %s, want BUY", s.FinalDecision)
	}
	if s.ConfidenceScore == nil || *s.ConfidenceScore != 0.85 {
		t.Errorf("confidence = %v, want 0.85", s.ConfidenceScore)
	}
	if s.ConfidenceLevel != "High" {
		t.Errorf("level = %s, want High", s.ConfidenceLevel)
	}
	if s.CompletedAt == nil {
		t.Error("expected CompletedAt to be stamped")
	}
	if s.ExecutionTimeSeconds == nil {
		t.Error("expected ExecutionTimeSeconds to be computed")
	}
	if s.ProgressPercentage != 100 {
		t.Errorf("progress = %.1f, want 100", s.ProgressPercentage)
	}
}

func TestTerminalStatesAreFinal(t *testing.T) {
	finalize := map[string]func(*Session) error{
		"completed": func(s *Session) error { return s.CompleteAnalysis("HOLD", 0.5) },
		"failed":    func(s *Session) error { return s.FailAnalysis("boom", "") },
		"cancelled": func(s *Session) error { return s.CancelAnalysis() },
	}

	for name, fn := range finalize {
		t.Run(name, func(t *testing.T) {
			s := newTestSession()
			if err := s.StartAnalysis(); err != nil {
				t.Fatal(err)
			}
			if err := fn(s); err != nil {
				t.Fatal(err)
			}

			if err := s.StartAnalysis(); !errors.Is(err, ErrTerminalState) {
				t.Errorf("StartAnalysis after %s: expected ErrTerminalState, got %v", name, err)
			}
			if err := s.Pause(); !errors.Is(err, ErrTerminalState) {
				t.Errorf("Pause after %s: expected ErrTerminalState, got %v", name, err)
			}
			if err := s.CancelAnalysis(); !errors.Is(err, ErrTerminalState) {
				t.Errorf("Cancel after %s: expected ErrTerminalState, got %v", name, err)
			}
			if err := s.CompleteAnalysis("BUY", 1.0); !errors.Is(err, ErrTerminalState) {
				t.Errorf("Complete after %s: expected ErrTerminalState, got %v", name, err)
			}
		})
	}
}

func TestPauseResume(t *testing.T) {
	s := newTestSession()

	// Cannot pause before starting
	if err := s.Pause(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}

	if err := s.StartAnalysis(); err != nil {
		t.Fatal(err)
	}
	if err := s.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if s.Status != StatusPaused {
		t.Errorf("status = %s, want paused", s.Status)
	}

	// Double pause is rejected
	if err := s.Pause(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}

	if err := s.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if s.Status != StatusRunning {
		t.Errorf("status = %s, want running", s.Status)
	}

	// A paused session can still be cancelled
	if err := s.Pause(); err != nil {
		t.Fatal(err)
	}
	if err := s.CancelAnalysis(); err != nil {
		t.Fatalf("CancelAnalysis from paused failed: %v", err)
	}
	if s.Status != StatusCancelled {
		t.Errorf("status = %s, want cancelled", s.Status)
	}
}

func TestFailBeforeStart(t *testing.T) {
	s := newTestSession()

	// Pipeline init errors fail a session that never ran
	if err := s.FailAnalysis("pipeline init failed", "connection refused"); err != nil {
		t.Fatalf("FailAnalysis failed: %v", err)
	}
	if s.Status != StatusFailed {
		t.Errorf("status = %s, want failed", s.Status)
	}
	if s.ErrorMessage != "pipeline init failed" {
		t.Errorf("error message = %q", s.ErrorMessage)
	}
	// Never started, so no execution time
	if s.ExecutionTimeSeconds != nil {
		t.Errorf("expected nil execution time, got %v", *s.ExecutionTimeSeconds)
	}
	if s.CompletedAt == nil {
		t.Error("expected CompletedAt to be stamped")
	}
}

func TestFinalizeClearsEstimate(t *testing.T) {
	s := newTestSession()
	if err := s.StartAnalysis(); err != nil {
		t.Fatal(err)
	}
	est := 42.0
	s.EstimatedSecondsLeft = &est

	if err := s.CancelAnalysis(); err != nil {
		t.Fatal(err)
	}
	if s.EstimatedSecondsLeft != nil {
		t.Error("expected estimate to be cleared on finalize")
	}
	if s.CompletedAt == nil || s.CompletedAt.After(time.Now().UTC().Add(time.Second)) {
		t.Error("expected a sane CompletedAt")
	}
}

func TestConfidenceLevelFor(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0.95, "High"},
		{0.8, "High"},
		{0.79, "Medium"},
		{0.6, "Medium"},
		{0.59, "Low"},
		{0.0, "Low"},
	}

	for _, tt := range tests {
		if got := ConfidenceLevelFor(tt.score); got != tt.want {
			t.Errorf("ConfidenceLevelFor(%.2f) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestAnalysisConfigValidate(t *testing.T) {
	valid := AnalysisConfig{
		Ticker:           "NVDA",
		TradeDate:        "2025-06-02",
		SelectedAnalysts: []string{"market"},
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*AnalysisConfig)
	}{
		{"missing ticker", func(c *AnalysisConfig) { c.Ticker = "" }},
		{"bad trade date", func(c *AnalysisConfig) { c.TradeDate = "06/02/2025" }},
		{"no analysts", func(c *AnalysisConfig) { c.SelectedAnalysts = nil }},
		{"unknown analyst", func(c *AnalysisConfig) { c.SelectedAnalysts = []string{"astrology"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
