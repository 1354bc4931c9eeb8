// Command replay-session replays a recorded challenge transcript
// through the scoring engine and prints the final score breakdown.
// It is the offline debugging tool for scoring changes: feed it the
// same transcript before and after a change and diff the output.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/arenalabs/go-arena/infrastructure/llm"
	"github.com/arenalabs/go-arena/infrastructure/sandbox"
	"github.com/arenalabs/go-arena/infrastructure/vision"
	"github.com/arenalabs/go-arena/internal/application"
	"github.com/arenalabs/go-arena/internal/domain"
	"github.com/arenalabs/go-arena/internal/ports"
	"github.com/arenalabs/go-arena/internal/scoring"
	"github.com/arenalabs/go-arena/internal/session"
	"github.com/arenalabs/go-arena/internal/testutils"
)

// transcript is the YAML replay file: one challenge, one session, and
// the ordered actions the candidate took.
type transcript struct {
	Challenge domain.Challenge `yaml:"challenge"`

	Session struct {
		Username string `yaml:"username"`
		Model    string `yaml:"model"`
	} `yaml:"session"`

	Turns []turn `yaml:"turns"`

	TestRuns []testRun `yaml:"test_runs"`

	Submission string `yaml:"submission"`
}

type turn struct {
	User         string  `yaml:"user"`
	Assistant    string  `yaml:"assistant"`
	InputTokens  int64   `yaml:"input_tokens"`
	OutputTokens int64   `yaml:"output_tokens"`
	Cost         float64 `yaml:"cost"`
}

type testRun struct {
	Code string `yaml:"code"`
}

func main() {
	var (
		configPath     = flag.String("config", "", "Optional YAML configuration file")
		transcriptPath = flag.String("transcript", "", "Transcript YAML file to replay (required)")
		verbose        = flag.Bool("v", false, "Enable debug logging")
	)
	flag.Parse()

	if *transcriptPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	logger := buildLogger(*verbose)
	defer func() { _ = logger.Sync() }()

	cfg := application.DefaultConfig()
	if *configPath != "" {
		loaded, err := application.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}

	tr, err := loadTranscript(*transcriptPath)
	if err != nil {
		log.Fatalf("Failed to load transcript: %v", err)
	}

	summary, err := replay(context.Background(), cfg, tr, logger)
	if err != nil {
		log.Fatalf("Replay failed: %v", err)
	}

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		log.Fatalf("Failed to render summary: %v", err)
	}
	fmt.Println(string(out))
}

func buildLogger(verbose bool) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	if verbose {
		zcfg = zap.NewDevelopmentConfig()
	}
	logger, err := zcfg.Build()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	return logger
}

func loadTranscript(path string) (transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return transcript{}, err
	}

	var tr transcript
	if err := yaml.Unmarshal(data, &tr); err != nil {
		return transcript{}, fmt.Errorf("parse transcript: %w", err)
	}
	if tr.Challenge.ID == "" {
		return transcript{}, fmt.Errorf("transcript has no challenge")
	}
	if tr.Submission == "" {
		return transcript{}, fmt.Errorf("transcript has no submission")
	}
	return tr, nil
}

// replay drives a full session lifecycle through the orchestrator:
// start, turns, test runs, then the final submission.
func replay(ctx context.Context, cfg application.Config, tr transcript, logger *zap.Logger) (domain.ResultSummary, error) {
	store := session.NewStore(cfg.SessionStoreConfig(), logger, nil)

	reconcilerOpts := []scoring.ReconcilerOption{
		scoring.WithTextStrategy(cfg.TextStrategy()),
	}
	if comparer := buildVision(ctx, cfg, logger); comparer != nil {
		reconcilerOpts = append(reconcilerOpts, scoring.WithVision(comparer))
	}

	reconciler := scoring.NewReconciler(buildSandbox(cfg, logger), logger, reconcilerOpts...)
	calc := scoring.NewCalculator(cfg.Scoring.Baselines)

	orchOpts := []application.OrchestratorOption{}
	if grader := buildJudge(cfg, logger); grader != nil {
		orchOpts = append(orchOpts, application.WithRubricGrader(grader))
	}
	if mode, ok := cfg.ForcedMode(); ok {
		orchOpts = append(orchOpts, application.WithForcedMode(mode))
	}

	results := testutils.NewMockResultStore()
	orch, err := application.NewOrchestrator(
		store,
		testutils.NewMockChallengeStore(tr.Challenge),
		results,
		reconciler,
		calc,
		logger,
		orchOpts...,
	)
	if err != nil {
		return domain.ResultSummary{}, err
	}

	sess, err := orch.StartSession(ctx, tr.Challenge.ID, tr.Session.Username, tr.Session.Model)
	if err != nil {
		return domain.ResultSummary{}, err
	}

	for i, t := range tr.Turns {
		if err := orch.RecordTurn(sess.ID, t.InputTokens, t.OutputTokens, t.Cost, t.User, t.Assistant); err != nil {
			return domain.ResultSummary{}, fmt.Errorf("turn %d: %w", i+1, err)
		}
	}

	for i, run := range tr.TestRuns {
		report, err := orch.RunTests(ctx, sess.ID, run.Code)
		if err != nil {
			return domain.ResultSummary{}, fmt.Errorf("test run %d: %w", i+1, err)
		}
		logger.Info("test run replayed",
			zap.Int("run", i+1),
			zap.Float64("pass_rate", report.PassRate),
			zap.Bool("timer_frozen", report.TimerFrozen))
	}

	return orch.Submit(ctx, sess.ID, tr.Submission)
}

// buildSandbox returns the HTTP runner when configured, or a permissive
// in-memory stand-in so transcripts replay without infrastructure.
func buildSandbox(cfg application.Config, logger *zap.Logger) ports.SandboxRunner {
	if cfg.Sandbox.BaseURL == "" {
		logger.Info("no sandbox configured, test runs will report all-pass")
		return testutils.NewMockSandboxRunner()
	}

	runner, err := sandbox.NewHTTPRunner(
		cfg.Sandbox.BaseURL,
		time.Duration(cfg.Sandbox.TimeoutSeconds)*time.Second,
		logger,
	)
	if err != nil {
		log.Fatalf("Failed to create sandbox runner: %v", err)
	}
	return runner
}

// buildJudge assembles the rubric grading client when an API key is
// available. Without one, rubric challenges degrade as they do in
// production when the judge is down.
func buildJudge(cfg application.Config, logger *zap.Logger) *scoring.RubricGrader {
	apiKey := os.Getenv(cfg.Judge.APIKeyEnv)
	if apiKey == "" {
		logger.Info("no judge API key, rubric grading disabled",
			zap.String("env", cfg.Judge.APIKeyEnv))
		return nil
	}

	client, err := llm.NewClient(cfg.Judge.Provider, llm.ClientConfig{
		APIKey: apiKey,
		Model:  cfg.Judge.Model,
		Middleware: []llm.Middleware{
			llm.RetryMiddleware(3, time.Second, 30*time.Second),
			llm.TimeoutMiddleware(60 * time.Second),
		},
	})
	if err != nil {
		log.Fatalf("Failed to create judge client: %v", err)
	}

	grader, err := scoring.NewRubricGrader(client, logger)
	if err != nil {
		log.Fatalf("Failed to create rubric grader: %v", err)
	}
	return grader
}

// buildVision assembles the UI comparison judge when an API key is
// available.
func buildVision(ctx context.Context, cfg application.Config, logger *zap.Logger) ports.VisionComparer {
	apiKey := os.Getenv(cfg.Vision.APIKeyEnv)
	if apiKey == "" {
		return nil
	}

	comparer, err := vision.NewGeminiComparer(ctx, apiKey, cfg.Vision.Model, logger)
	if err != nil {
		log.Fatalf("Failed to create vision comparer: %v", err)
	}
	return comparer
}
