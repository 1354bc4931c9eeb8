// Package scoring computes the accuracy, efficiency, and composite
// scores for completed scoring sessions. Accuracy strategies are
// dispatched by challenge category; efficiency sub-scores are pure
// functions of usage relative to difficulty baselines.
package scoring

import (
	"github.com/arenalabs/go-arena/internal/domain"
)

// Baselines holds the per-difficulty median expectations used to
// normalize efficiency sub-scores. A candidate finishing exactly at the
// median scores 0.5; finishing at half the median (or better) saturates
// at 1.0.
type Baselines struct {
	// SpeedSeconds is the expected completion time per difficulty.
	SpeedSeconds map[domain.Difficulty]float64 `yaml:"speed_seconds" validate:"required,dive,gt=0"`

	// Tokens is the expected total token count per difficulty.
	Tokens map[domain.Difficulty]float64 `yaml:"tokens" validate:"required,dive,gt=0"`

	// Turns is the expected turn count per difficulty.
	Turns map[domain.Difficulty]float64 `yaml:"turns" validate:"required,dive,gt=0"`
}

// DefaultBaselines returns the compiled-in median expectations.
// Values are overridable via configuration.
func DefaultBaselines() Baselines {
	return Baselines{
		SpeedSeconds: map[domain.Difficulty]float64{
			domain.DifficultyEasy:   300,
			domain.DifficultyMedium: 600,
			domain.DifficultyHard:   1200,
		},
		Tokens: map[domain.Difficulty]float64{
			domain.DifficultyEasy:   2000,
			domain.DifficultyMedium: 5000,
			domain.DifficultyHard:   12000,
		},
		Turns: map[domain.Difficulty]float64{
			domain.DifficultyEasy:   4,
			domain.DifficultyMedium: 8,
			domain.DifficultyHard:   12,
		},
	}
}

// efficiencyRatio implements the shared sub-score shape: the baseline to
// value ratio, capped at 2x, normalized to [0,1]. A non-positive value
// is the perfect case.
func efficiencyRatio(baseline, value float64) float64 {
	if value <= 0 {
		return 1.0
	}
	ratio := baseline / value
	if ratio > 2.0 {
		ratio = 2.0
	}
	return ratio / 2.0
}

// baselineFor looks up a difficulty's baseline, falling back to the
// medium row for unknown difficulties.
func baselineFor(m map[domain.Difficulty]float64, d domain.Difficulty) float64 {
	if v, ok := m[d]; ok {
		return v
	}
	return m[domain.DifficultyMedium]
}

// Speed converts net elapsed seconds into a [0,1] sub-score relative to
// the difficulty's expected completion time.
func (b Baselines) Speed(elapsedSeconds float64, d domain.Difficulty) float64 {
	return efficiencyRatio(baselineFor(b.SpeedSeconds, d), elapsedSeconds)
}

// TokenEfficiency converts a total token count into a [0,1] sub-score
// relative to the difficulty's expected token usage.
func (b Baselines) TokenEfficiency(totalTokens int64, d domain.Difficulty) float64 {
	return efficiencyRatio(baselineFor(b.Tokens, d), float64(totalTokens))
}

// TurnEfficiency converts a turn count into a [0,1] sub-score relative
// to the difficulty's expected turn count.
func (b Baselines) TurnEfficiency(totalTurns int64, d domain.Difficulty) float64 {
	return efficiencyRatio(baselineFor(b.Turns, d), float64(totalTurns))
}
