// Package ports defines the interfaces between the scoring core and its
// external collaborators: LLM providers, the execution sandbox, the
// vision judge, and durable storage. The core never trusts a client
// report for anything these interfaces can verify server-side.
package ports

import (
	"context"
	"time"

	"github.com/arenalabs/go-arena/internal/domain"
)

// GenerateResult is a completed LLM generation with provider-reported
// token usage. Token counts feed the session ledger, never the client.
type GenerateResult struct {
	// Text is the generated response.
	Text string

	// InputTokens is the prompt token count for the request.
	InputTokens int

	// OutputTokens is the completion token count for the response.
	OutputTokens int
}

// StreamChunk is one element of a streamed LLM response. The stream ends
// with a chunk whose Done flag is set; Err carries a mid-stream failure,
// after which no more chunks follow.
type StreamChunk struct {
	// Text is the incremental response fragment.
	Text string

	// Done marks the end of the stream.
	Done bool

	// Err is a terminal stream error, if any.
	Err error
}

// LLMClient is the interface to a Large Language Model provider.
// Implementations handle provider-specific authentication, request
// formatting, and response parsing behind a common contract.
type LLMClient interface {
	// Generate sends a prompt with conversation history and returns the
	// full response with token usage. Options carry provider-specific
	// settings such as "temperature", "max_tokens", or "system".
	Generate(ctx context.Context, prompt string, history []domain.Message, options map[string]any) (GenerateResult, error)

	// Stream sends a prompt with conversation history and returns a
	// channel of response chunks, consumed in order and terminated by a
	// Done chunk. The channel is closed after the terminal chunk.
	Stream(ctx context.Context, prompt string, history []domain.Message, options map[string]any) (<-chan StreamChunk, error)

	// EstimateTokens approximates the token count of text, for cost
	// estimation when the provider does not report usage.
	EstimateTokens(text string) (int, error)

	// GetModel returns the model identifier used by this client.
	GetModel() string
}

// TestResult is the outcome of one sandboxed test case. Failures are
// isolated per test; one case's error never aborts the suite.
type TestResult struct {
	// Passed reports whether the evaluated result matched the expected
	// value structurally.
	Passed bool `json:"passed"`

	// Actual is the stringified evaluated result, when available.
	Actual string `json:"actual,omitempty"`

	// Error describes a load or runtime failure for this case.
	Error string `json:"error,omitempty"`
}

// SandboxRunner executes a generated artifact against a test suite in an
// isolated environment. If the code fails to load, implementations mark
// every test failed rather than returning an error.
type SandboxRunner interface {
	// RunTests evaluates each test case's input expression against the
	// code and compares it with the expected expression. The returned
	// slice has one entry per test case, in order.
	RunTests(ctx context.Context, code string, tests []domain.TestCase) ([]TestResult, error)
}

// VisionResult is the structured outcome of a vision-based comparison
// between a reference image and a generated artifact.
type VisionResult struct {
	// Similarity is the judged visual similarity in [0,1].
	Similarity float64 `json:"similarity"`

	// Feedback is free-text reasoning from the judge.
	Feedback string `json:"feedback"`

	// OverallMatch reports whether the judge considers the artifacts
	// equivalent.
	OverallMatch bool `json:"overall_match"`

	// ElementMatch reports whether the expected elements are present.
	ElementMatch bool `json:"element_match"`

	// LayoutMatch reports whether the layout structure matches.
	LayoutMatch bool `json:"layout_match"`

	// ColorMatch reports whether the color scheme matches.
	ColorMatch bool `json:"color_match"`

	// TypographyMatch reports whether fonts and text styling match.
	TypographyMatch bool `json:"typography_match"`
}

// VisionComparer judges visual similarity between a reference image and
// a generated artifact. Implementations own rendering/screenshotting of
// the generated artifact.
type VisionComparer interface {
	// Compare returns a similarity verdict for the generated artifact
	// against the reference image. Description gives the judge the
	// challenge context.
	Compare(ctx context.Context, referenceImage, generated, description string) (VisionResult, error)
}

// ResultStore persists final session results. Persistence failures are
// surfaced to the caller but never block completion: the session is
// still finalized to prevent resubmission.
type ResultStore interface {
	// SaveResult durably stores a result summary with its conversation
	// log and returns the persisted id.
	SaveResult(ctx context.Context, summary domain.ResultSummary, conversation []domain.Message) (string, error)
}

// ChallengeStore provides read-only access to challenge definitions.
type ChallengeStore interface {
	// GetChallenge returns the challenge with the given id, or
	// domain.ErrChallengeNotFound.
	GetChallenge(ctx context.Context, id string) (domain.Challenge, error)
}

// MetricsCollector defines the interface for collecting operational
// metrics. Implementations integrate with observability platforms like
// Prometheus or custom monitoring solutions.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	// Useful for tracking events like dropped turns, sweeps, errors.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	// Useful for tracking values like active session count.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	// Useful for tracking distributions like grading latency or scores.
	RecordHistogram(metric string, value float64, labels map[string]string)
}
