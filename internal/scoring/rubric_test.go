package scoring

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arenalabs/go-arena/internal/domain"
	"github.com/arenalabs/go-arena/internal/ports"
)

// scriptedLLM answers every Generate call with the same response or
// error, counting calls.
type scriptedLLM struct {
	response string
	err      error
	calls    int
}

func (s *scriptedLLM) Generate(_ context.Context, _ string, _ []domain.Message, _ map[string]any) (ports.GenerateResult, error) {
	s.calls++
	if s.err != nil {
		return ports.GenerateResult{}, s.err
	}
	return ports.GenerateResult{Text: s.response, InputTokens: 10, OutputTokens: 20}, nil
}

func (s *scriptedLLM) Stream(context.Context, string, []domain.Message, map[string]any) (<-chan ports.StreamChunk, error) {
	ch := make(chan ports.StreamChunk, 1)
	ch <- ports.StreamChunk{Done: true}
	close(ch)
	return ch, nil
}

func (s *scriptedLLM) EstimateTokens(text string) (int, error) { return len(text) / 4, nil }
func (s *scriptedLLM) GetModel() string                        { return "mock-judge" }

func productChallenge() *domain.Challenge {
	return &domain.Challenge{
		ID:       "prd-1",
		Title:    "Checkout redesign PRD",
		Category: domain.CategoryProduct,
		Rubric:   &domain.Rubric{},
	}
}

func TestRubricGrader_Grade(t *testing.T) {
	llm := &scriptedLLM{response: `{"score": 8, "reasoning": "solid plan"}`}
	g, err := NewRubricGrader(llm, zap.NewNop())
	require.NoError(t, err)

	result, err := g.Grade(context.Background(), productChallenge(), "A thorough PRD body.")
	require.NoError(t, err)

	// Four default dimensions, each 8/10.
	assert.Len(t, result.DimensionScores, 4)
	assert.Equal(t, 80, result.Total)
	assert.False(t, result.Degraded)
	assert.Contains(t, result.Feedback, "solid plan")
	assert.Equal(t, 4, llm.calls)
}

func TestRubricGrader_ResearchDimension(t *testing.T) {
	llm := &scriptedLLM{response: `{"score": 10, "reasoning": "ok"}`}
	g, err := NewRubricGrader(llm, zap.NewNop())
	require.NoError(t, err)

	ch := productChallenge()
	ch.Rubric.RequireResearch = true

	result, err := g.Grade(context.Background(), ch, "body")
	require.NoError(t, err)
	assert.Len(t, result.DimensionScores, 5)
	assert.Equal(t, 100, result.Total)
	assert.Contains(t, result.DimensionScores, "Research")
}

func TestRubricGrader_EmptySubmission(t *testing.T) {
	g, err := NewRubricGrader(&scriptedLLM{response: "{}"}, zap.NewNop())
	require.NoError(t, err)

	_, err = g.Grade(context.Background(), productChallenge(), "   \n ")
	assert.ErrorIs(t, err, domain.ErrEmptySubmission)
}

func TestRubricGrader_MalformedOutputFallsBackToFirstNumber(t *testing.T) {
	llm := &scriptedLLM{response: "I'd give this a 7 out of 10, nice work."}
	g, err := NewRubricGrader(llm, zap.NewNop())
	require.NoError(t, err)

	result, err := g.Grade(context.Background(), productChallenge(), "body")
	require.NoError(t, err)
	assert.Equal(t, 70, result.Total)
	assert.True(t, result.Degraded)
}

func TestRubricGrader_NoNumberFallsBackToNeutral(t *testing.T) {
	llm := &scriptedLLM{response: "excellent work, truly remarkable"}
	g, err := NewRubricGrader(llm, zap.NewNop())
	require.NoError(t, err)

	result, err := g.Grade(context.Background(), productChallenge(), "body")
	require.NoError(t, err)
	// Neutral 5/10 on every dimension.
	assert.Equal(t, 50, result.Total)
	assert.True(t, result.Degraded)
}

func TestRubricGrader_JudgeErrorDegradesToZero(t *testing.T) {
	llm := &scriptedLLM{err: errors.New("provider down")}
	g, err := NewRubricGrader(llm, zap.NewNop())
	require.NoError(t, err)

	result, err := g.Grade(context.Background(), productChallenge(), "body")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)
	assert.True(t, result.Degraded)
	assert.Contains(t, result.Reason, "provider down")
}

func TestRubricGrader_TotalClamped(t *testing.T) {
	// Out-of-range judge scores are rejected by validation and fall
	// back to the first number clamped to the dimension range.
	llm := &scriptedLLM{response: `{"score": 35, "reasoning": "way too generous"}`}
	g, err := NewRubricGrader(llm, zap.NewNop())
	require.NoError(t, err)

	result, err := g.Grade(context.Background(), productChallenge(), "body")
	require.NoError(t, err)
	assert.Equal(t, 100, result.Total)
	assert.True(t, result.Degraded)
}

func TestNewRubricGrader_RequiresClient(t *testing.T) {
	_, err := NewRubricGrader(nil, zap.NewNop())
	assert.Error(t, err)
}
