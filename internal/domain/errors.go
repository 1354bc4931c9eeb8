package domain

import (
	"errors"
	"fmt"
)

// Common domain errors returned by session and scoring operations.
var (
	// ErrSessionNotFound indicates the session id does not exist: it was
	// never created, or the expiry sweep already removed it.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionCompleted indicates an operation that requires an active
	// session was attempted on a completed one. Double completion is
	// rejected to prevent double scoring.
	ErrSessionCompleted = errors.New("session already completed")

	// ErrChallengeNotFound indicates the referenced challenge id does
	// not exist.
	ErrChallengeNotFound = errors.New("challenge not found")

	// ErrEmptySubmission indicates a rubric-graded submission with no
	// body. Rubric grading requires content to judge.
	ErrEmptySubmission = errors.New("submission is empty")

	// ErrBudgetExceeded indicates the session's configured usage budget
	// (tokens, cost, or turns) has been exhausted.
	ErrBudgetExceeded = errors.New("session budget exceeded")
)

// SessionError carries the session id and operation for errors raised by
// ledger mutations, so callers and logs can correlate failures.
type SessionError struct {
	// SessionID is the session involved in the failed operation.
	SessionID string

	// Op names the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface for SessionError.
func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s: %s: %v", e.SessionID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *SessionError) Unwrap() error { return e.Err }

// NewSessionError creates a SessionError with the given details.
func NewSessionError(sessionID, op string, err error) *SessionError {
	return &SessionError{SessionID: sessionID, Op: op, Err: err}
}
