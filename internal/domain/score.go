package domain

import (
	"time"
)

// CompositeScore is the immutable output of scoring a completed session.
// Each sub-score is a [0,1] fraction rounded to a 0-1000 integer scale.
// Rubric-graded sessions carry their 0-100 rubric total in Composite
// instead of the weighted formula result.
type CompositeScore struct {
	// AccuracyScore is the correctness sub-score.
	AccuracyScore int `json:"accuracy_score"`

	// SpeedScore is the elapsed-time sub-score.
	SpeedScore int `json:"speed_score"`

	// TokenScore is the token-efficiency sub-score.
	TokenScore int `json:"token_score"`

	// TurnScore is the turn-efficiency sub-score.
	TurnScore int `json:"turn_score"`

	// Composite is the single combined score.
	Composite int `json:"composite_score"`
}

// AccuracyResult is the tagged outcome of an accuracy verification.
// A degraded result means an external dependency (sandbox, vision judge,
// rubric LLM) failed and the score fell back to a conservative default;
// callers can distinguish "really scored 0" from "verification failed".
type AccuracyResult struct {
	// Score is the correctness signal in [0,1].
	Score float64 `json:"score"`

	// Degraded is true when Score is a fallback default rather than a
	// real verification outcome.
	Degraded bool `json:"degraded,omitempty"`

	// Reason describes why verification degraded, for operator logs.
	Reason string `json:"reason,omitempty"`
}

// OkAccuracy wraps a genuinely verified score, clamped to [0,1].
func OkAccuracy(score float64) AccuracyResult {
	return AccuracyResult{Score: ClampUnit(score)}
}

// DegradedAccuracy tags a fallback score with the failure reason.
func DegradedAccuracy(score float64, reason string) AccuracyResult {
	return AccuracyResult{Score: ClampUnit(score), Degraded: true, Reason: reason}
}

// ClampUnit clamps v to the [0,1] interval.
func ClampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ResultSummary is the durable record of a completed session, persisted
// alongside the full conversation log.
type ResultSummary struct {
	// ResultID uniquely identifies the persisted result.
	ResultID string `json:"result_id"`

	// SessionID references the session that produced this result.
	SessionID string `json:"session_id"`

	// ChallengeID references the attempted challenge.
	ChallengeID string `json:"challenge_id"`

	// Username identifies the candidate.
	Username string `json:"username"`

	// Model is the LLM model used for the attempt.
	Model string `json:"model"`

	// Score holds the final sub-scores and composite.
	Score CompositeScore `json:"score"`

	// Accuracy is the raw [0,1] correctness signal behind AccuracyScore.
	Accuracy float64 `json:"accuracy"`

	// AccuracyDegraded is true when accuracy verification fell back to
	// a default because an external dependency failed.
	AccuracyDegraded bool `json:"accuracy_degraded,omitempty"`

	// ElapsedSeconds is the net attributed time used for the speed
	// sub-score.
	ElapsedSeconds float64 `json:"elapsed_seconds"`

	// TotalTokens is the combined input and output token count.
	TotalTokens int64 `json:"total_tokens"`

	// TotalTurns is the number of prompt/response exchanges.
	TotalTurns int64 `json:"total_turns"`

	// TotalCost is the accumulated dollar cost.
	TotalCost float64 `json:"total_cost"`

	// CompletedAt records when the session was finalized.
	CompletedAt time.Time `json:"completed_at"`
}
