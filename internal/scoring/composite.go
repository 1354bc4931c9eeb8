package scoring

import (
	"fmt"
	"math"

	"github.com/arenalabs/go-arena/internal/domain"
)

// Mode selects the composite weighting strategy for a challenge.
type Mode string

const (
	// ModeAccuracyWeighted is the canonical formula: accuracy gates the
	// efficiency blend, so a wrong answer delivered quickly scores
	// nothing.
	ModeAccuracyWeighted Mode = "accuracy_weighted"

	// ModeEfficiencyOnly applies to challenges with no accuracy signal
	// at all. The efficiency blend is scaled to a 700-point ceiling,
	// reserving 1000 for accuracy-graded work, and the accuracy
	// sub-score is forced to zero.
	ModeEfficiencyOnly Mode = "efficiency_only"
)

// Composite weighting constants. The blend is weighted toward turn
// efficiency: converging in few prompts is the strongest efficiency
// signal this platform measures.
const (
	WeightSpeed = 0.30
	WeightToken = 0.25
	WeightTurn  = 0.45

	// EfficiencyOnlyCeiling caps efficiency-only composites below the
	// accuracy-graded maximum.
	EfficiencyOnlyCeiling = 700

	// ScoreScale is the integer scale for all sub-scores.
	ScoreScale = 1000
)

// Calculator combines accuracy and efficiency signals into the final
// CompositeScore. It is stateless and safe for concurrent use.
type Calculator struct {
	baselines Baselines
}

// NewCalculator creates a Calculator using the given efficiency
// baselines.
func NewCalculator(baselines Baselines) *Calculator {
	return &Calculator{baselines: baselines}
}

// Compute produces the 0-1000 scaled sub-scores and composite for a
// session's final ledger figures. Accuracy is clamped to [0,1] before
// use. Unknown modes fall back to the canonical accuracy-weighted
// formula.
func (c *Calculator) Compute(
	mode Mode,
	accuracy float64,
	elapsedSeconds float64,
	totalTokens, totalTurns int64,
	difficulty domain.Difficulty,
) domain.CompositeScore {
	accuracy = domain.ClampUnit(accuracy)

	speed := c.baselines.Speed(elapsedSeconds, difficulty)
	tokenEff := c.baselines.TokenEfficiency(totalTokens, difficulty)
	turnEff := c.baselines.TurnEfficiency(totalTurns, difficulty)

	blend := WeightSpeed*speed + WeightToken*tokenEff + WeightTurn*turnEff

	score := domain.CompositeScore{
		SpeedScore: scaled(speed),
		TokenScore: scaled(tokenEff),
		TurnScore:  scaled(turnEff),
	}

	switch mode {
	case ModeEfficiencyOnly:
		score.AccuracyScore = 0
		score.Composite = int(math.Round(blend * EfficiencyOnlyCeiling))
	default:
		score.AccuracyScore = scaled(accuracy)
		score.Composite = scaled(accuracy * blend)
	}

	return score
}

// ModeFor selects the weighting strategy for a challenge. Only product
// challenges without a rubric lack an accuracy signal entirely.
func ModeFor(ch *domain.Challenge) Mode {
	if ch.Category == domain.CategoryProduct && ch.Rubric == nil {
		return ModeEfficiencyOnly
	}
	return ModeAccuracyWeighted
}

// scaled rounds a [0,1] fraction to the 0-1000 integer scale.
func scaled(fraction float64) int {
	return int(math.Round(domain.ClampUnit(fraction) * ScoreScale))
}

// ClampComposite bounds an externally supplied composite override, such
// as a rubric total, to the given ceiling.
func ClampComposite(value, ceiling int) int {
	if value < 0 {
		return 0
	}
	if value > ceiling {
		return ceiling
	}
	return value
}

// String returns the mode name, for logs and config errors.
func (m Mode) String() string { return string(m) }

// ParseMode validates a configured mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeAccuracyWeighted, ModeEfficiencyOnly:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown scoring mode: %q", s)
	}
}
