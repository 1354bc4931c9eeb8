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

// stubSandbox returns scripted results or an error.
type stubSandbox struct {
	results []ports.TestResult
	err     error
	calls   int
}

func (s *stubSandbox) RunTests(_ context.Context, _ string, _ []domain.TestCase) ([]ports.TestResult, error) {
	s.calls++
	return s.results, s.err
}

// stubVision returns a scripted verdict or an error.
type stubVision struct {
	result ports.VisionResult
	err    error
}

func (s *stubVision) Compare(_ context.Context, _, _, _ string) (ports.VisionResult, error) {
	return s.result, s.err
}

func TestTokenOverlap(t *testing.T) {
	tests := []struct {
		name      string
		generated string
		target    string
		want      float64
	}{
		{"identical", "func add a b", "func add a b", 1.0},
		{"empty target", "anything", "", 0.0},
		{"empty generated", "", "func add", 0.0},
		{"half overlap", "func add", "func add x y", 0.5},
		{"case folded", "FUNC Add", "func add", 1.0},
		{"duplicates collapse", "a a a b", "a b", 1.0},
		{"no overlap", "x y z", "a b c", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, TokenOverlap(tt.generated, tt.target), 1e-9)
		})
	}
}

func TestReconciler_TextCategories(t *testing.T) {
	r := NewReconciler(nil, zap.NewNop())

	for _, cat := range []domain.Category{domain.CategoryGeneric, domain.CategoryDebug} {
		ch := &domain.Challenge{ID: "c1", Category: cat, TargetText: "return a + b"}
		res := r.ComputeAccuracy(context.Background(), ch, "return a + b", nil)
		assert.Equal(t, 1.0, res.Score)
		assert.False(t, res.Degraded)
	}
}

func TestReconciler_LevenshteinStrategy(t *testing.T) {
	r := NewReconciler(nil, zap.NewNop(), WithTextStrategy(StrategyLevenshtein))

	ch := &domain.Challenge{ID: "c1", Category: domain.CategoryGeneric, TargetText: "abcd"}

	res := r.ComputeAccuracy(context.Background(), ch, "abcd", nil)
	assert.Equal(t, 1.0, res.Score)

	// One edit over four runes.
	res = r.ComputeAccuracy(context.Background(), ch, "abcx", nil)
	assert.InDelta(t, 0.75, res.Score, 1e-9)
}

func TestReconciler_FunctionCategory(t *testing.T) {
	ch := &domain.Challenge{
		ID:       "fn-1",
		Category: domain.CategoryFunction,
		Tests:    []domain.TestCase{{Input: "add(1,2)", Expected: "3"}, {Input: "add(0,0)", Expected: "0"}},
	}

	t.Run("pass rate from sandbox", func(t *testing.T) {
		sandbox := &stubSandbox{results: []ports.TestResult{{Passed: true}, {Passed: false, Error: "got 1"}}}
		r := NewReconciler(sandbox, zap.NewNop())

		res := r.ComputeAccuracy(context.Background(), ch, "def add(a,b): return a+b", nil)
		assert.InDelta(t, 0.5, res.Score, 1e-9)
		assert.False(t, res.Degraded)
		assert.Equal(t, 1, sandbox.calls)
	})

	t.Run("cached accuracy skips sandbox", func(t *testing.T) {
		sandbox := &stubSandbox{results: []ports.TestResult{{Passed: true}, {Passed: true}}}
		r := NewReconciler(sandbox, zap.NewNop())
		cached := 0.5

		res := r.ComputeAccuracy(context.Background(), ch, "code", &cached)
		assert.Equal(t, 0.5, res.Score)
		assert.Zero(t, sandbox.calls)
	})

	t.Run("sandbox failure degrades to zero", func(t *testing.T) {
		sandbox := &stubSandbox{err: errors.New("runner unreachable")}
		r := NewReconciler(sandbox, zap.NewNop())

		res := r.ComputeAccuracy(context.Background(), ch, "code", nil)
		assert.Zero(t, res.Score)
		assert.True(t, res.Degraded)
		assert.Contains(t, res.Reason, "runner unreachable")
	})

	t.Run("empty code scores zero without sandbox call", func(t *testing.T) {
		sandbox := &stubSandbox{}
		r := NewReconciler(sandbox, zap.NewNop())

		res := r.ComputeAccuracy(context.Background(), ch, "   ", nil)
		assert.Zero(t, res.Score)
		assert.False(t, res.Degraded)
		assert.Zero(t, sandbox.calls)
	})

	t.Run("empty suite scores zero", func(t *testing.T) {
		r := NewReconciler(&stubSandbox{}, zap.NewNop())
		empty := &domain.Challenge{ID: "fn-2", Category: domain.CategoryFunction}

		res := r.ComputeAccuracy(context.Background(), empty, "code", nil)
		assert.Zero(t, res.Score)
	})
}

func TestReconciler_UICategory(t *testing.T) {
	ch := &domain.Challenge{
		ID:                "ui-1",
		Category:          domain.CategoryUI,
		ReferenceImageURL: "https://example.com/ref.png",
	}
	page := "<!doctype html><html><style>.a{}</style><script>1</script></html>"

	t.Run("vision verdict used when available", func(t *testing.T) {
		r := NewReconciler(nil, zap.NewNop(), WithVision(&stubVision{
			result: ports.VisionResult{Similarity: 0.83, OverallMatch: true},
		}))

		res := r.ComputeAccuracy(context.Background(), ch, page, nil)
		assert.InDelta(t, 0.83, res.Score, 1e-9)
		assert.False(t, res.Degraded)
	})

	t.Run("vision failure falls back to structure heuristic", func(t *testing.T) {
		r := NewReconciler(nil, zap.NewNop(), WithVision(&stubVision{err: errors.New("judge timeout")}))

		res := r.ComputeAccuracy(context.Background(), ch, page, nil)
		assert.True(t, res.Degraded)
		assert.InDelta(t, 0.6, res.Score, 1e-9)
	})

	t.Run("no comparer falls back to structure heuristic", func(t *testing.T) {
		r := NewReconciler(nil, zap.NewNop())

		res := r.ComputeAccuracy(context.Background(), ch, page, nil)
		assert.True(t, res.Degraded)
		assert.InDelta(t, 0.6, res.Score, 1e-9)
	})

	t.Run("empty artifact scores zero", func(t *testing.T) {
		r := NewReconciler(nil, zap.NewNop())

		res := r.ComputeAccuracy(context.Background(), ch, "", nil)
		assert.Zero(t, res.Score)
		assert.False(t, res.Degraded)
	})
}

func TestStructureHeuristic(t *testing.T) {
	tests := []struct {
		name     string
		artifact string
		want     float64
	}{
		{"all markers with bonus", "<html><style></style><script></script>", 0.6},
		{"html only", "<html></html>", 0.2},
		{"css mention only", "uses css grid", 0.15},
		{"plain text", "hello", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, StructureHeuristic(tt.artifact), 1e-9)
		})
	}
}

func TestComputeAccuracy_Bounds(t *testing.T) {
	// All strategies stay inside [0,1] regardless of input.
	r := NewReconciler(&stubSandbox{results: []ports.TestResult{{Passed: true}}}, zap.NewNop())

	challenges := []*domain.Challenge{
		{ID: "a", Category: domain.CategoryGeneric, TargetText: "x"},
		{ID: "b", Category: domain.CategoryDebug, TargetText: ""},
		{ID: "c", Category: domain.CategoryFunction, Tests: []domain.TestCase{{Input: "f()", Expected: "1"}}},
		{ID: "d", Category: domain.CategoryUI},
		{ID: "e", Category: domain.CategoryProduct},
	}
	artifacts := []string{"", "x", "<html><style><script>", "x y z a b c"}

	for _, ch := range challenges {
		for _, artifact := range artifacts {
			res := r.ComputeAccuracy(context.Background(), ch, artifact, nil)
			require.GreaterOrEqual(t, res.Score, 0.0, "challenge %s artifact %q", ch.ID, artifact)
			require.LessOrEqual(t, res.Score, 1.0, "challenge %s artifact %q", ch.ID, artifact)
		}
	}
}
