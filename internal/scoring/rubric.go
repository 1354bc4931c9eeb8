package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/arenalabs/go-arena/internal/domain"
	"github.com/arenalabs/go-arena/internal/ports"
)

const (
	// DimensionMaxPoints is the per-dimension ceiling.
	DimensionMaxPoints = 10.0

	// RubricCeiling is the maximum rubric total on the 0-100 scale.
	RubricCeiling = 100

	// NeutralDimensionScore is the default when a judge response yields
	// no usable number at all.
	NeutralDimensionScore = 5.0

	// rubricMaxConcurrency bounds concurrent per-dimension judge calls.
	rubricMaxConcurrency = 3
)

// RubricResult is the outcome of LLM rubric grading: per-dimension
// scores on a 0-10 scale and the normalized 0-100 total.
type RubricResult struct {
	// DimensionScores maps each rubric dimension to its 0-10 score.
	DimensionScores map[string]float64 `json:"dimension_scores"`

	// Total is round(sum × 100 / (10 × N)), clamped to [0,100].
	Total int `json:"total"`

	// Feedback aggregates the judge's reasoning across dimensions.
	Feedback string `json:"feedback"`

	// Degraded is true when any dimension fell back to a default
	// because the judge failed or produced unusable output.
	Degraded bool `json:"degraded,omitempty"`

	// Reason describes the degradation, for operator logs.
	Reason string `json:"reason,omitempty"`
}

// rubricJudgeResponse is the JSON shape requested from the judge for a
// single dimension.
type rubricJudgeResponse struct {
	Score     float64 `json:"score" validate:"min=0,max=10"`
	Reasoning string  `json:"reasoning"`
}

// RubricGrader scores a submission along a challenge's rubric dimensions
// using an LLM judge. Judge failures degrade per-dimension rather than
// failing the whole grade.
type RubricGrader struct {
	llm      ports.LLMClient
	validate *validator.Validate
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewRubricGrader creates a RubricGrader backed by the given LLM client.
func NewRubricGrader(llm ports.LLMClient, logger *zap.Logger) (*RubricGrader, error) {
	if llm == nil {
		return nil, fmt.Errorf("rubric grader: LLM client cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RubricGrader{
		llm:      llm,
		validate: validator.New(),
		logger:   logger,
		tracer:   otel.Tracer("rubric-grader"),
	}, nil
}

// Grade scores the submission along the challenge's rubric dimensions.
// An empty submission is a validation error; nothing is judged. Each
// dimension is graded independently with bounded concurrency, and a
// failing dimension degrades to its fallback score instead of aborting
// the grade.
func (g *RubricGrader) Grade(ctx context.Context, ch *domain.Challenge, submission string) (RubricResult, error) {
	if strings.TrimSpace(submission) == "" {
		return RubricResult{}, domain.ErrEmptySubmission
	}

	dims := ch.RubricDimensions()
	if len(dims) == 0 {
		dims = domain.DefaultRubricDimensions(false)
	}

	ctx, span := g.tracer.Start(ctx, "RubricGrader.Grade",
		trace.WithAttributes(
			attribute.String("challenge.id", ch.ID),
			attribute.Int("rubric.dimensions", len(dims)),
		),
	)
	defer span.End()

	type dimOutcome struct {
		score     float64
		reasoning string
		degraded  bool
		reason    string
	}

	outcomes := make([]dimOutcome, len(dims))

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(rubricMaxConcurrency)

	for i, dim := range dims {
		grp.Go(func() error {
			score, reasoning, err := g.gradeDimension(gctx, ch, dim, submission)
			if err != nil {
				outcomes[i] = dimOutcome{
					score:    0,
					degraded: true,
					reason:   fmt.Sprintf("%s: %v", dim, err),
				}
				return nil
			}
			outcomes[i] = dimOutcome{score: score.value, reasoning: reasoning, degraded: score.fallback, reason: score.reason}
			return nil
		})
	}

	// Dimension failures are absorbed above; Wait only propagates
	// context cancellation.
	if err := grp.Wait(); err != nil {
		return RubricResult{}, err
	}

	result := RubricResult{DimensionScores: make(map[string]float64, len(dims))}
	var sum float64
	var feedback strings.Builder
	for i, dim := range dims {
		out := outcomes[i]
		result.DimensionScores[dim] = out.score
		sum += out.score
		if out.reasoning != "" {
			fmt.Fprintf(&feedback, "%s: %s\n", dim, out.reasoning)
		}
		if out.degraded {
			result.Degraded = true
			if result.Reason == "" {
				result.Reason = out.reason
			}
		}
	}

	result.Total = ClampComposite(
		int(math.Round(sum*100/(DimensionMaxPoints*float64(len(dims))))),
		RubricCeiling,
	)
	result.Feedback = strings.TrimSpace(feedback.String())

	span.SetAttributes(
		attribute.Int("rubric.total", result.Total),
		attribute.Bool("rubric.degraded", result.Degraded),
	)
	if result.Degraded {
		g.logger.Warn("rubric grading degraded",
			zap.String("challenge_id", ch.ID),
			zap.String("reason", result.Reason),
		)
	}

	return result, nil
}

// dimensionScore carries a parsed score plus whether it came from a
// fallback extraction.
type dimensionScore struct {
	value    float64
	fallback bool
	reason   string
}

// gradeDimension asks the judge for a single dimension's 0-10 score.
// Malformed output falls back to the first number in the response, then
// to the neutral midpoint.
func (g *RubricGrader) gradeDimension(ctx context.Context, ch *domain.Challenge, dimension, submission string) (dimensionScore, string, error) {
	prompt := g.buildPrompt(ch, dimension, submission)

	resp, err := g.llm.Generate(ctx, prompt, nil, map[string]any{
		"temperature": 0.0,
		"max_tokens":  512,
	})
	if err != nil {
		return dimensionScore{}, "", err
	}

	return g.parseResponse(resp.Text, dimension)
}

// parseResponse extracts the score and reasoning from the judge output,
// applying the fallback chain for malformed responses.
func (g *RubricGrader) parseResponse(text, dimension string) (dimensionScore, string, error) {
	jsonStr := ExtractJSON(text)
	if jsonStr != "" {
		var parsed rubricJudgeResponse
		if err := json.Unmarshal([]byte(jsonStr), &parsed); err == nil {
			if err := g.validate.Struct(parsed); err == nil {
				return dimensionScore{value: parsed.Score}, parsed.Reasoning, nil
			}
		}
	}

	// Malformed judge output: salvage the first number in the raw
	// response, clamped to the dimension range.
	if num, ok := FirstNumber(text, 0, DimensionMaxPoints); ok {
		g.logger.Debug("rubric judge output malformed, using numeric fallback",
			zap.String("dimension", dimension),
			zap.Float64("extracted", num),
		)
		return dimensionScore{value: num, fallback: true, reason: "malformed judge output, numeric fallback"}, "", nil
	}

	return dimensionScore{
		value:    NeutralDimensionScore,
		fallback: true,
		reason:   "no numeric content in judge output, neutral default",
	}, "", nil
}

// buildPrompt renders a single-dimension grading request with a strict
// JSON response contract.
func (g *RubricGrader) buildPrompt(ch *domain.Challenge, dimension, submission string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are grading a product requirements document for the challenge %q.\n", ch.Title)
	if ch.Description != "" {
		fmt.Fprintf(&b, "Challenge context: %s\n", ch.Description)
	}
	fmt.Fprintf(&b, "\nScore ONLY the dimension %q on a scale of 0 to 10.\n", dimension)
	fmt.Fprintf(&b, "\nSubmission:\n%s\n", submission)
	b.WriteString("\nIMPORTANT: You must respond with valid JSON in exactly this format:\n")
	b.WriteString(`{"score": <0-10>, "reasoning": "<short explanation>"}`)
	return b.String()
}
