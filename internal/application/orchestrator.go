package application

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arenalabs/go-arena/internal/domain"
	"github.com/arenalabs/go-arena/internal/ports"
	"github.com/arenalabs/go-arena/internal/scoring"
	"github.com/arenalabs/go-arena/internal/session"
)

// Orchestrator drives the session lifecycle from creation through final
// scoring. All scoring inputs come from the server-side ledger; the
// submitted artifact is the only client-supplied value that influences
// a score, and only through server-side verification.
type Orchestrator struct {
	store      *session.Store
	challenges ports.ChallengeStore
	results    ports.ResultStore
	reconciler *scoring.Reconciler
	rubric     *scoring.RubricGrader
	calc       *scoring.Calculator

	forcedMode    scoring.Mode
	hasForcedMode bool

	logger  *zap.Logger
	tracer  trace.Tracer
	metrics ports.MetricsCollector

	// now is the clock source, swappable in tests.
	now func() time.Time
}

// OrchestratorOption configures optional orchestrator collaborators.
type OrchestratorOption func(*Orchestrator)

// WithRubricGrader enables LLM rubric grading for product challenges.
func WithRubricGrader(g *scoring.RubricGrader) OrchestratorOption {
	return func(o *Orchestrator) { o.rubric = g }
}

// WithForcedMode overrides per-challenge mode selection with a single
// weighting strategy.
func WithForcedMode(mode scoring.Mode) OrchestratorOption {
	return func(o *Orchestrator) {
		o.forcedMode = mode
		o.hasForcedMode = true
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m ports.MetricsCollector) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// NewOrchestrator wires the scoring pipeline. The store, challenge
// store, result store, reconciler, and calculator are required.
func NewOrchestrator(
	store *session.Store,
	challenges ports.ChallengeStore,
	results ports.ResultStore,
	reconciler *scoring.Reconciler,
	calc *scoring.Calculator,
	logger *zap.Logger,
	opts ...OrchestratorOption,
) (*Orchestrator, error) {
	if store == nil {
		return nil, fmt.Errorf("orchestrator: session store cannot be nil")
	}
	if challenges == nil {
		return nil, fmt.Errorf("orchestrator: challenge store cannot be nil")
	}
	if results == nil {
		return nil, fmt.Errorf("orchestrator: result store cannot be nil")
	}
	if reconciler == nil {
		return nil, fmt.Errorf("orchestrator: accuracy reconciler cannot be nil")
	}
	if calc == nil {
		return nil, fmt.Errorf("orchestrator: score calculator cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Orchestrator{
		store:      store,
		challenges: challenges,
		results:    results,
		reconciler: reconciler,
		calc:       calc,
		logger:     logger,
		tracer:     otel.Tracer("arena.orchestrator"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// StartSession creates a session for a challenge attempt. The challenge
// must exist; sessions against unknown challenges would be unscoreable.
func (o *Orchestrator) StartSession(ctx context.Context, challengeID, username, model string) (domain.ScoringSession, error) {
	if _, err := o.challenges.GetChallenge(ctx, challengeID); err != nil {
		return domain.ScoringSession{}, fmt.Errorf("failed to start session for challenge %s: %w", challengeID, err)
	}
	return o.store.Create(challengeID, username, model), nil
}

// RecordTurn forwards a completed chat exchange to the session ledger.
func (o *Orchestrator) RecordTurn(sessionID string, inputTokens, outputTokens int64, cost float64, userMessage, assistantMessage string) error {
	return o.store.RecordTurn(sessionID, inputTokens, outputTokens, cost, userMessage, assistantMessage)
}

// RecordPartialTurn forwards an aborted streaming exchange to the
// ledger with estimated usage.
func (o *Orchestrator) RecordPartialTurn(sessionID, userMessage, partialAssistant string) error {
	return o.store.RecordPartialTurn(sessionID, userMessage, partialAssistant)
}

// Session returns a snapshot of a live session.
func (o *Orchestrator) Session(id string) (domain.ScoringSession, bool) {
	return o.store.Get(id)
}

// TestRunReport is the outcome of an in-session test run.
type TestRunReport struct {
	// Results holds one entry per test case, in suite order.
	Results []ports.TestResult `json:"results"`

	// PassRate is the fraction of passing cases in [0,1].
	PassRate float64 `json:"pass_rate"`

	// TimerFrozen reports whether this run left the session timer
	// frozen (a full pass).
	TimerFrozen bool `json:"timer_frozen"`
}

// RunTests executes a function challenge's suite against in-progress
// code. The pass rate is cached on the session for reuse at submission,
// a full pass freezes the timer, a regression unfreezes it, and the
// sandbox wall time is excluded from the candidate's elapsed time.
func (o *Orchestrator) RunTests(ctx context.Context, sessionID, code string) (TestRunReport, error) {
	ctx, span := o.tracer.Start(ctx, "Orchestrator.RunTests",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	sess, ok := o.store.Get(sessionID)
	if !ok {
		return TestRunReport{}, domain.NewSessionError(sessionID, "run_tests", domain.ErrSessionNotFound)
	}
	if sess.Status != domain.SessionActive {
		return TestRunReport{}, domain.NewSessionError(sessionID, "run_tests", domain.ErrSessionCompleted)
	}

	ch, err := o.challenges.GetChallenge(ctx, sess.ChallengeID)
	if err != nil {
		return TestRunReport{}, fmt.Errorf("failed to load challenge %s: %w", sess.ChallengeID, err)
	}
	if len(ch.Tests) == 0 {
		return TestRunReport{}, fmt.Errorf("challenge %s has no test suite", ch.ID)
	}

	start := o.now()
	results, runErr := o.reconciler.RunSuite(ctx, code, ch.Tests)
	o.store.RecordProcessingTime(sessionID, o.now().Sub(start).Seconds())
	if runErr != nil {
		return TestRunReport{}, fmt.Errorf("test run failed for session %s: %w", sessionID, runErr)
	}

	passRate := scoring.PassRate(results)
	o.store.RecordTestAccuracy(sessionID, passRate)

	o.observeLatency("test_run", o.now().Sub(start))
	span.SetAttributes(attribute.Float64("tests.pass_rate", passRate))

	return TestRunReport{
		Results:     results,
		PassRate:    passRate,
		TimerFrozen: passRate >= 1.0,
	}, nil
}

// Submit finalizes a session with its artifact and produces the
// persisted result. The session is completed exactly once: accuracy is
// verified first, the completion claim is atomic, and the final ledger
// snapshot returned by that claim is the sole input to scoring. A
// persistence failure is returned alongside the computed summary; the
// completion stands either way so the session cannot be rescored.
func (o *Orchestrator) Submit(ctx context.Context, sessionID, artifact string) (domain.ResultSummary, error) {
	ctx, span := o.tracer.Start(ctx, "Orchestrator.Submit",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	sess, ok := o.store.Get(sessionID)
	if !ok {
		return domain.ResultSummary{}, domain.NewSessionError(sessionID, "submit", domain.ErrSessionNotFound)
	}
	if sess.Status != domain.SessionActive {
		return domain.ResultSummary{}, domain.NewSessionError(sessionID, "submit", domain.ErrSessionCompleted)
	}

	ch, err := o.challenges.GetChallenge(ctx, sess.ChallengeID)
	if err != nil {
		return domain.ResultSummary{}, fmt.Errorf("failed to load challenge %s: %w", sess.ChallengeID, err)
	}

	// Grading happens on the clock, so its wall time is credited back
	// to the session before the ledger is frozen.
	gradeStart := o.now()
	accuracy, rubricResult, rubricGraded, gradeErr := o.grade(ctx, &ch, artifact, sess.LastTestAccuracy)
	o.store.RecordProcessingTime(sessionID, o.now().Sub(gradeStart).Seconds())
	if gradeErr != nil {
		return domain.ResultSummary{}, gradeErr
	}

	final, err := o.store.Complete(sessionID)
	if err != nil {
		return domain.ResultSummary{}, err
	}

	completedAt := o.now()
	elapsed := final.ElapsedSeconds(completedAt)

	mode := scoring.ModeFor(&ch)
	if o.hasForcedMode {
		mode = o.forcedMode
	}

	score := o.calc.Compute(mode, accuracy.Score, elapsed, final.TotalTokens(), final.TotalTurns, ch.Difficulty)
	if rubricGraded {
		// Rubric totals replace the weighted composite on their native
		// 0-100 scale.
		score.Composite = scoring.ClampComposite(rubricResult.Total, scoring.RubricCeiling)
	}

	summary := domain.ResultSummary{
		SessionID:        final.ID,
		ChallengeID:      ch.ID,
		Username:         final.Username,
		Model:            final.Model,
		Score:            score,
		Accuracy:         accuracy.Score,
		AccuracyDegraded: accuracy.Degraded,
		ElapsedSeconds:   elapsed,
		TotalTokens:      final.TotalTokens(),
		TotalTurns:       final.TotalTurns,
		TotalCost:        final.TotalCost,
		CompletedAt:      completedAt,
	}

	span.SetAttributes(
		attribute.Int("score.composite", score.Composite),
		attribute.Float64("score.accuracy", accuracy.Score),
		attribute.String("score.mode", mode.String()),
	)
	o.observeLatency("submit_grading", completedAt.Sub(gradeStart))
	o.logger.Info("session scored",
		zap.String("session_id", final.ID),
		zap.String("challenge_id", ch.ID),
		zap.String("mode", mode.String()),
		zap.Int("composite", score.Composite),
		zap.Float64("accuracy", accuracy.Score),
		zap.Bool("degraded", accuracy.Degraded),
		zap.Float64("elapsed_seconds", elapsed),
	)

	resultID, err := o.results.SaveResult(ctx, summary, final.Conversation)
	if err != nil {
		// The completion already happened; surface the failure without
		// reopening the session.
		o.logger.Error("result persistence failed",
			zap.String("session_id", final.ID),
			zap.Error(err),
		)
		if o.metrics != nil {
			o.metrics.RecordCounter("result_persist_failures", 1, nil)
		}
		return summary, ports.NewPersistenceError(final.ID, err)
	}
	summary.ResultID = resultID

	return summary, nil
}

// grade produces the accuracy signal for an artifact. Product
// challenges with a rubric go through the LLM judge; everything else
// goes through the category reconciler. A missing rubric grader
// degrades rather than failing the submission.
func (o *Orchestrator) grade(
	ctx context.Context,
	ch *domain.Challenge,
	artifact string,
	cachedTestAccuracy *float64,
) (domain.AccuracyResult, scoring.RubricResult, bool, error) {
	if ch.Category == domain.CategoryProduct && ch.Rubric != nil {
		if o.rubric == nil {
			o.logger.Warn("rubric challenge submitted without a configured judge",
				zap.String("challenge_id", ch.ID),
			)
			return domain.DegradedAccuracy(0, "no rubric judge configured"), scoring.RubricResult{}, false, nil
		}

		result, err := o.rubric.Grade(ctx, ch, artifact)
		if err != nil {
			return domain.AccuracyResult{}, scoring.RubricResult{}, false,
				fmt.Errorf("rubric grading failed for challenge %s: %w", ch.ID, err)
		}

		accuracy := domain.AccuracyResult{
			Score:    domain.ClampUnit(float64(result.Total) / float64(scoring.RubricCeiling)),
			Degraded: result.Degraded,
			Reason:   result.Reason,
		}
		return accuracy, result, true, nil
	}

	return o.reconciler.ComputeAccuracy(ctx, ch, artifact, cachedTestAccuracy), scoring.RubricResult{}, false, nil
}

// observeLatency records an operation duration when metrics are wired.
func (o *Orchestrator) observeLatency(operation string, d time.Duration) {
	if o.metrics != nil {
		o.metrics.RecordLatency(operation, d, nil)
	}
}

// SetClock overrides the orchestrator's time source. Intended for tests.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}
