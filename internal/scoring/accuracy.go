package scoring

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/arenalabs/go-arena/internal/domain"
	"github.com/arenalabs/go-arena/internal/ports"
)

// foldCaser is a package-level Unicode case folder shared by the text
// strategies.
var foldCaser = cases.Fold()

// TextStrategy names a text-similarity algorithm for generic and debug
// challenges.
type TextStrategy string

const (
	// StrategyTokenOverlap is the canonical bag-of-words strategy:
	// the fraction of the target's whitespace-delimited tokens present
	// in the generated text. It measures vocabulary coverage, not
	// semantics.
	StrategyTokenOverlap TextStrategy = "token_overlap"

	// StrategyLevenshtein scores by normalized edit distance. Stricter
	// about ordering and structure than token overlap.
	StrategyLevenshtein TextStrategy = "levenshtein"
)

// Reconciler computes a [0,1] correctness signal for a generated
// artifact, dispatching on challenge category. External dependency
// failures degrade to a conservative default instead of aborting
// scoring: a submission always produces some score.
type Reconciler struct {
	sandbox      ports.SandboxRunner
	vision       ports.VisionComparer
	textStrategy TextStrategy
	logger       *zap.Logger
	tracer       trace.Tracer
}

// ReconcilerOption configures optional Reconciler behavior.
type ReconcilerOption func(*Reconciler)

// WithTextStrategy overrides the canonical token-overlap text strategy.
func WithTextStrategy(s TextStrategy) ReconcilerOption {
	return func(r *Reconciler) { r.textStrategy = s }
}

// WithVision attaches a vision judge for UI challenges. Without one, UI
// grading uses the heuristic code-structure fallback.
func WithVision(v ports.VisionComparer) ReconcilerOption {
	return func(r *Reconciler) { r.vision = v }
}

// NewReconciler creates a Reconciler. The sandbox runner may be nil when
// no function challenges are served; function grading then degrades.
func NewReconciler(sandbox ports.SandboxRunner, logger *zap.Logger, opts ...ReconcilerOption) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reconciler{
		sandbox:      sandbox,
		textStrategy: StrategyTokenOverlap,
		logger:       logger,
		tracer:       otel.Tracer("accuracy-reconciler"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ComputeAccuracy returns the correctness signal for the artifact under
// the challenge's category strategy. cachedTestAccuracy, when non-nil,
// is a prior test-run pass rate reused to avoid redundant sandbox
// execution. Product challenges are graded by the rubric path and
// return zero here.
func (r *Reconciler) ComputeAccuracy(
	ctx context.Context,
	ch *domain.Challenge,
	artifact string,
	cachedTestAccuracy *float64,
) domain.AccuracyResult {
	ctx, span := r.tracer.Start(ctx, "Reconciler.ComputeAccuracy",
		trace.WithAttributes(
			attribute.String("challenge.id", ch.ID),
			attribute.String("challenge.category", string(ch.Category)),
		),
	)
	defer span.End()

	var result domain.AccuracyResult
	switch ch.Category {
	case domain.CategoryFunction:
		result = r.testAccuracy(ctx, ch, artifact, cachedTestAccuracy)
	case domain.CategoryUI:
		result = r.visionAccuracy(ctx, ch, artifact)
	case domain.CategoryProduct:
		// Rubric grading bypasses this path entirely.
		result = domain.OkAccuracy(0)
	default:
		result = r.textAccuracy(ch.TargetText, artifact)
	}

	span.SetAttributes(
		attribute.Float64("accuracy.score", result.Score),
		attribute.Bool("accuracy.degraded", result.Degraded),
	)
	if result.Degraded {
		r.logger.Warn("accuracy verification degraded",
			zap.String("challenge_id", ch.ID),
			zap.String("category", string(ch.Category)),
			zap.String("reason", result.Reason),
		)
	}
	return result
}

// textAccuracy scores generated text against the target using the
// configured strategy. An empty target yields zero.
func (r *Reconciler) textAccuracy(target, generated string) domain.AccuracyResult {
	switch r.textStrategy {
	case StrategyLevenshtein:
		return domain.OkAccuracy(levenshteinSimilarity(foldCaser.String(generated), foldCaser.String(target)))
	default:
		return domain.OkAccuracy(TokenOverlap(generated, target))
	}
}

// TokenOverlap computes |generated tokens ∩ target tokens| over the
// target token count. Both texts are case-folded and split on
// whitespace. Returns 0 for an empty target.
func TokenOverlap(generated, target string) float64 {
	targetTokens := tokenSet(target)
	if len(targetTokens) == 0 {
		return 0
	}

	generatedTokens := tokenSet(generated)
	matched := 0
	for tok := range targetTokens {
		if _, ok := generatedTokens[tok]; ok {
			matched++
		}
	}

	return float64(matched) / float64(len(targetTokens))
}

// tokenSet folds case and splits text into a set of whitespace-delimited
// tokens.
func tokenSet(text string) map[string]struct{} {
	fields := strings.Fields(foldCaser.String(text))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// levenshteinSimilarity converts edit distance into a [0,1] similarity,
// normalized by the longer rune count. Two empty strings are identical.
func levenshteinSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}

	distance := levenshtein.ComputeDistance(a, b)

	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 1.0
	}

	return domain.ClampUnit(1.0 - float64(distance)/float64(maxLen))
}

// testAccuracy computes the unit-test pass rate, preferring a cached
// result from an earlier run over re-executing the suite.
func (r *Reconciler) testAccuracy(
	ctx context.Context,
	ch *domain.Challenge,
	code string,
	cached *float64,
) domain.AccuracyResult {
	if cached != nil {
		return domain.OkAccuracy(*cached)
	}

	if len(ch.Tests) == 0 {
		return domain.OkAccuracy(0)
	}
	if strings.TrimSpace(code) == "" {
		return domain.OkAccuracy(0)
	}
	if r.sandbox == nil {
		return domain.DegradedAccuracy(0, "no sandbox runner configured")
	}

	results, err := r.sandbox.RunTests(ctx, code, ch.Tests)
	if err != nil {
		return domain.DegradedAccuracy(0, fmt.Sprintf("sandbox execution failed: %v", err))
	}

	return domain.OkAccuracy(PassRate(results))
}

// RunSuite executes a test suite against in-progress code without any
// caching or fallback. Callers own what happens with the results; the
// submission path goes through ComputeAccuracy instead.
func (r *Reconciler) RunSuite(ctx context.Context, code string, tests []domain.TestCase) ([]ports.TestResult, error) {
	if r.sandbox == nil {
		return nil, fmt.Errorf("no sandbox runner configured")
	}
	return r.sandbox.RunTests(ctx, code, tests)
}

// PassRate returns passed/total for a suite result, 0 for an empty
// suite.
func PassRate(results []ports.TestResult) float64 {
	if len(results) == 0 {
		return 0
	}
	passed := 0
	for _, res := range results {
		if res.Passed {
			passed++
		}
	}
	return float64(passed) / float64(len(results))
}

// visionAccuracy grades a UI artifact by vision comparison against the
// reference image, falling back to heuristic code-structure scoring
// when the judge is unavailable or fails.
func (r *Reconciler) visionAccuracy(ctx context.Context, ch *domain.Challenge, artifact string) domain.AccuracyResult {
	if strings.TrimSpace(artifact) == "" {
		return domain.OkAccuracy(0)
	}

	if r.vision == nil || ch.ReferenceImageURL == "" {
		return domain.DegradedAccuracy(StructureHeuristic(artifact), "vision comparison unavailable")
	}

	verdict, err := r.vision.Compare(ctx, ch.ReferenceImageURL, artifact, ch.Description)
	if err != nil {
		return domain.DegradedAccuracy(StructureHeuristic(artifact), fmt.Sprintf("vision comparison failed: %v", err))
	}

	return domain.OkAccuracy(verdict.Similarity)
}

// StructureHeuristic estimates UI artifact quality from the presence of
// HTML, CSS, and script markers: 0.2/0.15/0.15 respectively, with a 0.1
// bonus when all three are present. A weak stand-in for real visual
// comparison, used only on the degraded path.
func StructureHeuristic(artifact string) float64 {
	lower := strings.ToLower(artifact)

	score := 0.0
	hasHTML := strings.Contains(lower, "<html") || strings.Contains(lower, "<!doctype")
	hasCSS := strings.Contains(lower, "<style") || strings.Contains(lower, "css")
	hasJS := strings.Contains(lower, "<script")

	if hasHTML {
		score += 0.2
	}
	if hasCSS {
		score += 0.15
	}
	if hasJS {
		score += 0.15
	}
	if hasHTML && hasCSS && hasJS {
		score += 0.1
	}

	return domain.ClampUnit(score)
}
