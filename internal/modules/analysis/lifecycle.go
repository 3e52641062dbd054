package analysis

import (
	"fmt"
	"time"
)

// The session state machine:
//
//	PENDING → RUNNING → {COMPLETED, FAILED, CANCELLED}
//	RUNNING ⇄ PAUSED
//
// Terminal states are final: re-entry is rejected with ErrTerminalState.
// Transitions mutate the in-memory session; callers persist via the
// repository afterwards.

func (s *Session) transition(to Status) error {
	if s.Status.IsTerminal() {
		return fmt.Errorf("%w: %s → %s", ErrTerminalState, s.Status, to)
	}
	allowed := false
	switch to {
	case StatusRunning:
		allowed = s.Status == StatusPending || s.Status == StatusPaused
	case StatusPaused:
		allowed = s.Status == StatusRunning
	case StatusCompleted, StatusFailed, StatusCancelled:
		// Any non-terminal state may finalize; a PENDING session can fail
		// before its first chunk (pipeline init errors).
		allowed = true
	}
	if !allowed {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, s.Status, to)
	}
	s.Status = to
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// finalize stamps completion time and execution duration for terminal states.
func (s *Session) finalize(now time.Time) {
	s.CompletedAt = &now
	if s.StartedAt != nil {
		secs := now.Sub(*s.StartedAt).Seconds()
		s.ExecutionTimeSeconds = &secs
	}
	s.EstimatedSecondsLeft = nil
}

// StartAnalysis moves PENDING → RUNNING and stamps the start time.
func (s *Session) StartAnalysis() error {
	if s.Status != StatusPending {
		if s.Status.IsTerminal() {
			return fmt.Errorf("%w: %s → %s", ErrTerminalState, s.Status, StatusRunning)
		}
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, s.Status, StatusRunning)
	}
	if err := s.transition(StatusRunning); err != nil {
		return err
	}
	now := time.Now().UTC()
	s.StartedAt = &now
	s.CurrentStage = StageInitialization
	s.ProgressPercentage = 0
	return nil
}

// CompleteAnalysis finalizes the session with a decision and confidence.
func (s *Session) CompleteAnalysis(decision string, confidence float64) error {
	if err := s.transition(StatusCompleted); err != nil {
		return err
	}
	s.finalize(time.Now().UTC())
	s.FinalDecision = decision
	s.ConfidenceScore = &confidence
	s.ConfidenceLevel = ConfidenceLevelFor(confidence)
	s.CurrentStage = StageFinalized
	s.ProgressPercentage = 100
	return nil
}

// FailAnalysis finalizes the session with an error payload.
func (s *Session) FailAnalysis(message, details string) error {
	if err := s.transition(StatusFailed); err != nil {
		return err
	}
	s.finalize(time.Now().UTC())
	s.ErrorMessage = message
	s.ErrorDetails = details
	return nil
}

// CancelAnalysis finalizes the session as cancelled.
func (s *Session) CancelAnalysis() error {
	if err := s.transition(StatusCancelled); err != nil {
		return err
	}
	s.finalize(time.Now().UTC())
	return nil
}

// Pause moves RUNNING → PAUSED. No timestamp side effects.
func (s *Session) Pause() error {
	if s.Status != StatusRunning {
		if s.Status.IsTerminal() {
			return fmt.Errorf("%w: %s → %s", ErrTerminalState, s.Status, StatusPaused)
		}
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, s.Status, StatusPaused)
	}
	return s.transition(StatusPaused)
}

// Resume moves PAUSED → RUNNING. No timestamp side effects.
func (s *Session) Resume() error {
	if s.Status != StatusPaused {
		if s.Status.IsTerminal() {
			return fmt.Errorf("%w: %s → %s", ErrTerminalState, s.Status, StatusRunning)
		}
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, s.Status, StatusRunning)
	}
	return s.transition(StatusRunning)
}
