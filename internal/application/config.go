// Package application wires the scoring core together: configuration
// loading, the session lifecycle orchestrator, and final score
// assembly.
package application

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/arenalabs/go-arena/internal/scoring"
	"github.com/arenalabs/go-arena/internal/session"
)

// Config is the complete engine configuration and the primary
// configuration entry point for the system.
type Config struct {
	// Scoring controls the composite formula and accuracy strategies.
	Scoring ScoringConfig `yaml:"scoring" validate:"required"`

	// Session controls the session ledger: expiry, budgets, pricing.
	Session SessionConfig `yaml:"session" validate:"required"`

	// Judge configures the LLM used for rubric grading.
	Judge JudgeConfig `yaml:"judge"`

	// Sandbox configures the test execution service.
	Sandbox SandboxConfig `yaml:"sandbox"`

	// Vision configures the UI comparison judge.
	Vision VisionConfig `yaml:"vision"`
}

// ScoringConfig selects the composite weighting strategy, the text
// similarity algorithm, and the per-difficulty efficiency baselines.
type ScoringConfig struct {
	// Mode forces a weighting strategy for every challenge. Empty means
	// per-challenge selection: efficiency-only for product challenges
	// without a rubric, accuracy-weighted otherwise.
	Mode string `yaml:"mode" validate:"omitempty,oneof=accuracy_weighted efficiency_only"`

	// TextStrategy selects the similarity algorithm for generic and
	// debug challenges.
	TextStrategy string `yaml:"text_strategy" validate:"omitempty,oneof=token_overlap levenshtein"`

	// Baselines are the per-difficulty reference values that define a
	// median performance on each efficiency axis.
	Baselines scoring.Baselines `yaml:"baselines" validate:"required"`
}

// SessionConfig controls session storage behavior. Durations are in
// seconds for configuration ergonomics.
type SessionConfig struct {
	// TTLSeconds is how long a session may live before the sweep
	// removes it, regardless of status.
	TTLSeconds int `yaml:"ttl_seconds" validate:"min=1,max=86400"`

	// SweepIntervalSeconds is how often the background sweep runs.
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds" validate:"min=1,max=3600"`

	// Budget caps per-session usage. Zero values mean unlimited.
	Budget session.Budget `yaml:"budget"`

	// Pricing overrides the compiled-in per-model token rates.
	Pricing session.PricingTable `yaml:"pricing" validate:"required"`
}

// JudgeConfig configures the rubric grading LLM.
type JudgeConfig struct {
	// Provider names the LLM provider backing the judge.
	Provider string `yaml:"provider" validate:"omitempty,oneof=openai anthropic google"`

	// Model is the judge model identifier.
	Model string `yaml:"model" validate:"omitempty,min=1,max=100"`

	// APIKeyEnv names the environment variable holding the provider
	// API key, so keys never appear in configuration files.
	APIKeyEnv string `yaml:"api_key_env" validate:"omitempty,min=1,max=100"`
}

// SandboxConfig configures the HTTP test execution service.
type SandboxConfig struct {
	// BaseURL is the sandbox service endpoint. Empty disables sandbox
	// grading: function challenges then degrade to a zero accuracy.
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`

	// TimeoutSeconds bounds one test suite run.
	TimeoutSeconds int `yaml:"timeout_seconds" validate:"omitempty,min=1,max=300"`
}

// VisionConfig configures the UI comparison judge.
type VisionConfig struct {
	// Model is the multimodal model used for screenshot comparison.
	Model string `yaml:"model" validate:"omitempty,min=1,max=100"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env" validate:"omitempty,min=1,max=100"`
}

// DefaultConfig returns a fully populated configuration with the
// compiled-in baselines, pricing, and one-hour session expiry.
func DefaultConfig() Config {
	return Config{
		Scoring: ScoringConfig{
			TextStrategy: string(scoring.StrategyTokenOverlap),
			Baselines:    scoring.DefaultBaselines(),
		},
		Session: SessionConfig{
			TTLSeconds:           3600,
			SweepIntervalSeconds: 300,
			Pricing:              session.DefaultPricingTable(),
		},
		Judge: JudgeConfig{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			APIKeyEnv: "OPENAI_API_KEY",
		},
		Sandbox: SandboxConfig{
			TimeoutSeconds: 30,
		},
		Vision: VisionConfig{
			Model:     "gemini-2.0-flash",
			APIKeyEnv: "GEMINI_API_KEY",
		},
	}
}

// LoadConfig reads, decodes, and validates a YAML configuration file.
// Fields absent from the file keep their defaults; unknown fields are
// rejected.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates raw YAML configuration bytes.
func ParseConfig(data []byte) (Config, error) {
	config := DefaultConfig()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Strict mode - fail on unknown fields.

	if err := decoder.Decode(&config); err != nil {
		return Config{}, fmt.Errorf("YAML decode failed: %w", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Validate applies struct tag validation plus the semantic checks the
// tags cannot express.
func (c Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if c.Scoring.Mode != "" {
		if _, err := scoring.ParseMode(c.Scoring.Mode); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}
	return nil
}

// SessionStoreConfig converts the YAML-facing session settings into the
// store's native configuration.
func (c Config) SessionStoreConfig() session.Config {
	return session.Config{
		TTL:           time.Duration(c.Session.TTLSeconds) * time.Second,
		SweepInterval: time.Duration(c.Session.SweepIntervalSeconds) * time.Second,
		Budget:        c.Session.Budget,
		Pricing:       c.Session.Pricing,
	}
}

// TextStrategy returns the configured similarity algorithm.
func (c Config) TextStrategy() scoring.TextStrategy {
	if c.Scoring.TextStrategy == "" {
		return scoring.StrategyTokenOverlap
	}
	return scoring.TextStrategy(c.Scoring.TextStrategy)
}

// ForcedMode returns the globally forced weighting strategy, if any.
// The boolean is false when mode selection is per-challenge.
func (c Config) ForcedMode() (scoring.Mode, bool) {
	if c.Scoring.Mode == "" {
		return "", false
	}
	mode, err := scoring.ParseMode(c.Scoring.Mode)
	if err != nil {
		return "", false
	}
	return mode, true
}
