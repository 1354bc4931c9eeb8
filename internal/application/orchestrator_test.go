package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arenalabs/go-arena/internal/domain"
	"github.com/arenalabs/go-arena/internal/ports"
	"github.com/arenalabs/go-arena/internal/scoring"
	"github.com/arenalabs/go-arena/internal/session"
)

// fakeClock advances only when told, so elapsed-time assertions are
// exact.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeChallengeStore struct {
	challenges map[string]domain.Challenge
}

func (s *fakeChallengeStore) GetChallenge(_ context.Context, id string) (domain.Challenge, error) {
	ch, ok := s.challenges[id]
	if !ok {
		return domain.Challenge{}, domain.ErrChallengeNotFound
	}
	return ch, nil
}

type fakeResultStore struct {
	mu      sync.Mutex
	saved   []domain.ResultSummary
	failErr error
}

func (s *fakeResultStore) SaveResult(_ context.Context, summary domain.ResultSummary, _ []domain.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return "", s.failErr
	}
	s.saved = append(s.saved, summary)
	return "result-1", nil
}

// fakeSandbox can advance the shared clock while "running" tests, to
// exercise processing-time exclusion.
type fakeSandbox struct {
	results []ports.TestResult
	err     error
	delay   time.Duration
	clock   *fakeClock
	calls   int
}

func (s *fakeSandbox) RunTests(_ context.Context, _ string, _ []domain.TestCase) ([]ports.TestResult, error) {
	s.calls++
	if s.delay > 0 && s.clock != nil {
		s.clock.Advance(s.delay)
	}
	return s.results, s.err
}

type fakeJudge struct {
	response string
	err      error
}

func (j *fakeJudge) Generate(context.Context, string, []domain.Message, map[string]any) (ports.GenerateResult, error) {
	if j.err != nil {
		return ports.GenerateResult{}, j.err
	}
	return ports.GenerateResult{Text: j.response, InputTokens: 50, OutputTokens: 20}, nil
}

func (j *fakeJudge) Stream(context.Context, string, []domain.Message, map[string]any) (<-chan ports.StreamChunk, error) {
	ch := make(chan ports.StreamChunk, 1)
	ch <- ports.StreamChunk{Done: true}
	close(ch)
	return ch, nil
}

func (j *fakeJudge) EstimateTokens(text string) (int, error) { return len(text) / 4, nil }
func (j *fakeJudge) GetModel() string                        { return "fake-judge" }

type fixture struct {
	orch    *Orchestrator
	store   *session.Store
	clock   *fakeClock
	results *fakeResultStore
	sandbox *fakeSandbox
}

func newFixture(t *testing.T, challenges map[string]domain.Challenge, opts ...OrchestratorOption) *fixture {
	t.Helper()

	clock := newFakeClock()
	store := session.NewStore(session.DefaultConfig(), zap.NewNop(), nil)
	store.SetClock(clock.Now)

	sandbox := &fakeSandbox{clock: clock}
	reconciler := scoring.NewReconciler(sandbox, zap.NewNop())
	results := &fakeResultStore{}

	orch, err := NewOrchestrator(
		store,
		&fakeChallengeStore{challenges: challenges},
		results,
		reconciler,
		scoring.NewCalculator(scoring.DefaultBaselines()),
		zap.NewNop(),
		opts...,
	)
	require.NoError(t, err)
	orch.SetClock(clock.Now)

	return &fixture{orch: orch, store: store, clock: clock, results: results, sandbox: sandbox}
}

func textChallenge() domain.Challenge {
	return domain.Challenge{
		ID:         "text-1",
		Category:   domain.CategoryGeneric,
		Difficulty: domain.DifficultyMedium,
		TargetText: "the quick brown fox jumps over the lazy dog",
	}
}

func functionChallenge() domain.Challenge {
	return domain.Challenge{
		ID:         "func-1",
		Category:   domain.CategoryFunction,
		Difficulty: domain.DifficultyMedium,
		Tests: []domain.TestCase{
			{Input: "add(1, 2)", Expected: "3"},
			{Input: "add(-1, 1)", Expected: "0"},
		},
	}
}

func TestOrchestrator_SubmitTextChallenge(t *testing.T) {
	ch := textChallenge()
	f := newFixture(t, map[string]domain.Challenge{ch.ID: ch})
	ctx := context.Background()

	sess, err := f.orch.StartSession(ctx, ch.ID, "alice", "gpt-4o")
	require.NoError(t, err)

	// Median performance on every axis: 300s at medium baseline 600s
	// means a perfect speed ratio; 2500 of 5000 tokens and 4 of 8 turns
	// likewise.
	require.NoError(t, f.orch.RecordTurn(sess.ID, 1500, 1000, 0.02, "draft it", "here you go"))
	require.NoError(t, f.orch.RecordTurn(sess.ID, 0, 0, 0, "polish it", "done"))
	require.NoError(t, f.orch.RecordTurn(sess.ID, 0, 0, 0, "q", "a"))
	require.NoError(t, f.orch.RecordTurn(sess.ID, 0, 0, 0, "q", "a"))
	f.clock.Advance(300 * time.Second)

	summary, err := f.orch.Submit(ctx, sess.ID, ch.TargetText)
	require.NoError(t, err)

	assert.Equal(t, "result-1", summary.ResultID)
	assert.Equal(t, sess.ID, summary.SessionID)
	assert.Equal(t, 1.0, summary.Accuracy)
	assert.False(t, summary.AccuracyDegraded)
	assert.Equal(t, 1000, summary.Score.AccuracyScore)
	assert.Equal(t, 1000, summary.Score.SpeedScore)
	assert.Equal(t, 1000, summary.Score.TokenScore)
	assert.Equal(t, 1000, summary.Score.TurnScore)
	assert.Equal(t, 1000, summary.Score.Composite)
	assert.InDelta(t, 300.0, summary.ElapsedSeconds, 1e-9)
	assert.Equal(t, int64(2500), summary.TotalTokens)
	assert.Equal(t, int64(4), summary.TotalTurns)

	require.Len(t, f.results.saved, 1)
}

func TestOrchestrator_SubmitTwiceRejected(t *testing.T) {
	ch := textChallenge()
	f := newFixture(t, map[string]domain.Challenge{ch.ID: ch})
	ctx := context.Background()

	sess, err := f.orch.StartSession(ctx, ch.ID, "alice", "gpt-4o")
	require.NoError(t, err)

	_, err = f.orch.Submit(ctx, sess.ID, "whatever")
	require.NoError(t, err)

	_, err = f.orch.Submit(ctx, sess.ID, "try again")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSessionCompleted)
	assert.Len(t, f.results.saved, 1, "second submission must not persist")
}

func TestOrchestrator_SubmitUnknownSession(t *testing.T) {
	f := newFixture(t, map[string]domain.Challenge{})

	_, err := f.orch.Submit(context.Background(), "ghost", "artifact")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestOrchestrator_StartSessionUnknownChallenge(t *testing.T) {
	f := newFixture(t, map[string]domain.Challenge{})

	_, err := f.orch.StartSession(context.Background(), "no-such", "alice", "gpt-4o")
	assert.ErrorIs(t, err, domain.ErrChallengeNotFound)
}

func TestOrchestrator_RunTestsFreezesTimerAndCachesAccuracy(t *testing.T) {
	ch := functionChallenge()
	f := newFixture(t, map[string]domain.Challenge{ch.ID: ch})
	f.sandbox.results = []ports.TestResult{{Passed: true}, {Passed: true}}
	ctx := context.Background()

	sess, err := f.orch.StartSession(ctx, ch.ID, "alice", "gpt-4o")
	require.NoError(t, err)

	f.clock.Advance(120 * time.Second)
	report, err := f.orch.RunTests(ctx, sess.ID, "def add(a, b): return a + b")
	require.NoError(t, err)
	assert.Equal(t, 1.0, report.PassRate)
	assert.True(t, report.TimerFrozen)
	assert.Equal(t, 1, f.sandbox.calls)

	// Time keeps passing but the frozen clock pins elapsed at the full
	// pass instant.
	f.clock.Advance(45 * time.Minute)

	summary, err := f.orch.Submit(ctx, sess.ID, "def add(a, b): return a + b")
	require.NoError(t, err)
	assert.Equal(t, 1.0, summary.Accuracy)
	assert.InDelta(t, 120.0, summary.ElapsedSeconds, 1e-9)
	assert.Equal(t, 1, f.sandbox.calls, "submission reuses the cached pass rate")
}

func TestOrchestrator_RunTestsRegressionUnfreezes(t *testing.T) {
	ch := functionChallenge()
	f := newFixture(t, map[string]domain.Challenge{ch.ID: ch})
	f.sandbox.results = []ports.TestResult{{Passed: true}, {Passed: true}}
	ctx := context.Background()

	sess, err := f.orch.StartSession(ctx, ch.ID, "alice", "gpt-4o")
	require.NoError(t, err)

	_, err = f.orch.RunTests(ctx, sess.ID, "good code")
	require.NoError(t, err)

	f.sandbox.results = []ports.TestResult{{Passed: true}, {Passed: false}}
	report, err := f.orch.RunTests(ctx, sess.ID, "regressed code")
	require.NoError(t, err)
	assert.Equal(t, 0.5, report.PassRate)
	assert.False(t, report.TimerFrozen)

	snap, ok := f.orch.Session(sess.ID)
	require.True(t, ok)
	assert.Nil(t, snap.FrozenAt)
	require.NotNil(t, snap.LastTestAccuracy)
	assert.Equal(t, 0.5, *snap.LastTestAccuracy)
}

func TestOrchestrator_SubmitScalesPartialPassRate(t *testing.T) {
	ch := functionChallenge()
	f := newFixture(t, map[string]domain.Challenge{ch.ID: ch})
	f.sandbox.results = []ports.TestResult{{Passed: true}, {Passed: false}}
	ctx := context.Background()

	sess, err := f.orch.StartSession(ctx, ch.ID, "alice", "gpt-4o")
	require.NoError(t, err)

	report, err := f.orch.RunTests(ctx, sess.ID, "def add(a, b): return a + b if a >= 0 else 0")
	require.NoError(t, err)
	assert.Equal(t, 0.5, report.PassRate)
	assert.False(t, report.TimerFrozen)

	summary, err := f.orch.Submit(ctx, sess.ID, "def add(a, b): return a + b if a >= 0 else 0")
	require.NoError(t, err)
	assert.Equal(t, 0.5, summary.Accuracy)
	assert.Equal(t, 500, summary.Score.AccuracyScore, "half the tests passing scores half the accuracy points")
}

func TestOrchestrator_GradingTimeExcludedFromElapsed(t *testing.T) {
	ch := functionChallenge()
	f := newFixture(t, map[string]domain.Challenge{ch.ID: ch})
	f.sandbox.results = []ports.TestResult{{Passed: true}, {Passed: true}}
	f.sandbox.delay = 30 * time.Second
	ctx := context.Background()

	sess, err := f.orch.StartSession(ctx, ch.ID, "alice", "gpt-4o")
	require.NoError(t, err)

	f.clock.Advance(90 * time.Second)
	summary, err := f.orch.Submit(ctx, sess.ID, "def add(a, b): return a + b")
	require.NoError(t, err)

	assert.InDelta(t, 90.0, summary.ElapsedSeconds, 1e-9, "sandbox wall time is not the candidate's time")
}

func TestOrchestrator_RubricOverridesComposite(t *testing.T) {
	ch := domain.Challenge{
		ID:         "prd-1",
		Category:   domain.CategoryProduct,
		Difficulty: domain.DifficultyMedium,
		Rubric:     &domain.Rubric{},
	}

	judge := &fakeJudge{response: `{"score": 8, "reasoning": "solid plan"}`}
	grader, err := scoring.NewRubricGrader(judge, zap.NewNop())
	require.NoError(t, err)

	f := newFixture(t, map[string]domain.Challenge{ch.ID: ch}, WithRubricGrader(grader))
	ctx := context.Background()

	sess, err := f.orch.StartSession(ctx, ch.ID, "alice", "gpt-4o")
	require.NoError(t, err)

	summary, err := f.orch.Submit(ctx, sess.ID, "## PRD\nA thorough plan.")
	require.NoError(t, err)

	// Four default dimensions at 8/10 each normalize to 80/100.
	assert.Equal(t, 80, summary.Score.Composite)
	assert.InDelta(t, 0.8, summary.Accuracy, 1e-9)
}

func TestOrchestrator_RubricChallengeWithoutJudgeDegrades(t *testing.T) {
	ch := domain.Challenge{
		ID:       "prd-2",
		Category: domain.CategoryProduct,
		Rubric:   &domain.Rubric{},
	}
	f := newFixture(t, map[string]domain.Challenge{ch.ID: ch})
	ctx := context.Background()

	sess, err := f.orch.StartSession(ctx, ch.ID, "alice", "gpt-4o")
	require.NoError(t, err)

	summary, err := f.orch.Submit(ctx, sess.ID, "a plan")
	require.NoError(t, err)
	assert.True(t, summary.AccuracyDegraded)
	assert.Zero(t, summary.Accuracy)
}

func TestOrchestrator_EfficiencyOnlyProduct(t *testing.T) {
	ch := domain.Challenge{
		ID:         "prd-3",
		Category:   domain.CategoryProduct,
		Difficulty: domain.DifficultyMedium,
	}
	f := newFixture(t, map[string]domain.Challenge{ch.ID: ch})
	ctx := context.Background()

	sess, err := f.orch.StartSession(ctx, ch.ID, "alice", "gpt-4o")
	require.NoError(t, err)

	require.NoError(t, f.orch.RecordTurn(sess.ID, 1500, 1000, 0.02, "q", "a"))
	f.clock.Advance(300 * time.Second)

	summary, err := f.orch.Submit(ctx, sess.ID, "a plan with no rubric")
	require.NoError(t, err)

	assert.Zero(t, summary.Score.AccuracyScore)
	assert.LessOrEqual(t, summary.Score.Composite, scoring.EfficiencyOnlyCeiling)
	assert.Positive(t, summary.Score.Composite)
}

func TestOrchestrator_PersistFailureStillCompletes(t *testing.T) {
	ch := textChallenge()
	f := newFixture(t, map[string]domain.Challenge{ch.ID: ch})
	f.results.failErr = errors.New("disk full")
	ctx := context.Background()

	sess, err := f.orch.StartSession(ctx, ch.ID, "alice", "gpt-4o")
	require.NoError(t, err)

	summary, err := f.orch.Submit(ctx, sess.ID, ch.TargetText)
	require.Error(t, err)

	var perr *ports.PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, sess.ID, perr.SessionID)
	assert.Equal(t, 1000, summary.Score.Composite, "score is computed despite the storage failure")

	_, err = f.orch.Submit(ctx, sess.ID, ch.TargetText)
	assert.ErrorIs(t, err, domain.ErrSessionCompleted, "completion stands despite the storage failure")
}

func TestOrchestrator_TurnAfterCompletionDropped(t *testing.T) {
	ch := textChallenge()
	f := newFixture(t, map[string]domain.Challenge{ch.ID: ch})
	ctx := context.Background()

	sess, err := f.orch.StartSession(ctx, ch.ID, "alice", "gpt-4o")
	require.NoError(t, err)

	_, err = f.orch.Submit(ctx, sess.ID, ch.TargetText)
	require.NoError(t, err)

	require.NoError(t, f.orch.RecordTurn(sess.ID, 999, 999, 9.99, "late", "turn"))
	snap, ok := f.orch.Session(sess.ID)
	require.True(t, ok)
	assert.Zero(t, snap.TotalTurns)
}
