package analysis

import "errors"

// Sentinel errors surfaced by the engine. Start is the only operation that
// returns an error synchronously to callers; everything else is observed
// through persisted session fields.
var (
	// ErrTooManyAnalyses is returned by Start when the number of registered
	// running sessions equals the configured limit. No queuing: callers
	// retry later.
	ErrTooManyAnalyses = errors.New("maximum concurrent analyses reached")

	// ErrInvalidConfig rejects a session before it starts.
	ErrInvalidConfig = errors.New("invalid analysis config")

	// ErrSessionExists is returned when a session id is already registered.
	ErrSessionExists = errors.New("session already running")

	// ErrSessionNotFound is returned by reads for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTerminalState rejects lifecycle transitions out of a terminal
	// status. Completed, failed and cancelled sessions never change again.
	ErrTerminalState = errors.New("session is in a terminal state")

	// ErrInvalidTransition rejects any other disallowed status change.
	ErrInvalidTransition = errors.New("invalid status transition")
)
