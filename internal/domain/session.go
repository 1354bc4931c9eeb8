// Package domain contains pure, dependency-free domain models and types
// for the arena scoring engine.
package domain

import (
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser marks a message written by the candidate.
	RoleUser Role = "user"

	// RoleAssistant marks a message produced by the model.
	RoleAssistant Role = "assistant"

	// RoleSystem marks an instruction message injected by the platform.
	RoleSystem Role = "system"
)

// Message is a single entry in a session's conversation log.
// The log is append-only; every turn writes exactly one user and one
// assistant message.
type Message struct {
	// Role identifies who authored the message.
	Role Role `json:"role"`

	// Content is the message body.
	Content string `json:"content"`
}

// SessionStatus represents the lifecycle state of a scoring session.
// Sessions have exactly two states; expired sessions are removed
// entirely rather than transitioning to a third state.
type SessionStatus string

const (
	// SessionActive means the session accepts turns and can be submitted.
	SessionActive SessionStatus = "active"

	// SessionCompleted is terminal. All further mutation attempts are
	// rejected or dropped.
	SessionCompleted SessionStatus = "completed"
)

// ScoringSession is the server-authoritative ledger for one candidate's
// attempt at one challenge, from start to submit. All usage figures are
// accumulated server-side; nothing in this struct is ever taken from a
// client report.
type ScoringSession struct {
	// ID uniquely identifies this session (a UUID).
	ID string `json:"id"`

	// ChallengeID references the challenge being attempted.
	ChallengeID string `json:"challenge_id"`

	// Username identifies the candidate.
	Username string `json:"username"`

	// Model is the LLM model name used for this attempt. It selects the
	// pricing row for cost accounting.
	Model string `json:"model"`

	// StartedAt is the wall-clock instant of session creation.
	StartedAt time.Time `json:"started_at"`

	// FrozenAt, when non-nil, pins the elapsed-time computation to this
	// instant instead of "now". It is set when a test run reaches a full
	// pass and cleared if a later run regresses below it.
	FrozenAt *time.Time `json:"frozen_at,omitempty"`

	// ServerProcessingSeconds accumulates time spent inside grading and
	// test-execution calls. It is subtracted from elapsed time so the
	// candidate is not billed for server overhead.
	ServerProcessingSeconds float64 `json:"server_processing_seconds"`

	// TotalInputTokens is the cumulative prompt token count.
	TotalInputTokens int64 `json:"total_input_tokens"`

	// TotalOutputTokens is the cumulative completion token count.
	TotalOutputTokens int64 `json:"total_output_tokens"`

	// TotalTurns counts prompt/response exchanges. It always equals
	// len(Conversation)/2.
	TotalTurns int64 `json:"total_turns"`

	// TotalCost is the accumulated monetary cost in dollars, derived
	// from per-model pricing.
	TotalCost float64 `json:"total_cost"`

	// Conversation is the ordered, append-only message log.
	Conversation []Message `json:"conversation"`

	// LastTestAccuracy caches the pass rate of the most recent test run
	// so submission can reuse it instead of re-executing the suite.
	LastTestAccuracy *float64 `json:"last_test_accuracy,omitempty"`

	// Status is the lifecycle state. Terminal once SessionCompleted.
	Status SessionStatus `json:"status"`
}

// TotalTokens returns the combined input and output token count.
func (s *ScoringSession) TotalTokens() int64 {
	return s.TotalInputTokens + s.TotalOutputTokens
}

// ElapsedSeconds computes the net elapsed time attributed to the
// candidate at the given instant: (frozen-at or now) minus started-at,
// minus accumulated server processing time. Never negative.
func (s *ScoringSession) ElapsedSeconds(now time.Time) float64 {
	end := now
	if s.FrozenAt != nil {
		end = *s.FrozenAt
	}

	elapsed := end.Sub(s.StartedAt).Seconds() - s.ServerProcessingSeconds
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// Expired reports whether the session has outlived the given TTL at the
// given instant. Expiry is based solely on StartedAt, regardless of
// status or freeze state.
func (s *ScoringSession) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.StartedAt) > ttl
}

// Clone returns a deep copy of the session. Snapshots handed out by the
// session store are clones so readers always observe a consistent state
// and cannot reach back into the ledger.
func (s *ScoringSession) Clone() ScoringSession {
	out := *s

	if s.FrozenAt != nil {
		frozen := *s.FrozenAt
		out.FrozenAt = &frozen
	}
	if s.LastTestAccuracy != nil {
		acc := *s.LastTestAccuracy
		out.LastTestAccuracy = &acc
	}
	if s.Conversation != nil {
		out.Conversation = make([]Message, len(s.Conversation))
		copy(out.Conversation, s.Conversation)
	}

	return out
}
