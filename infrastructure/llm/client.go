// Package llm provides a unified interface for interacting with various LLM
// providers with built-in support for streaming, rate limiting, retries, and
// metrics.
//
// The package abstracts multiple LLM providers (OpenAI, Anthropic, Google)
// behind a common interface while adding operational cross-cutting concerns
// through a middleware pattern. Conversation history travels with every
// request so multi-turn challenge sessions keep their context, and every
// response carries provider-reported token usage for the session ledger.
//
// Basic usage:
//
//	client, err := llm.NewClient("openai", llm.ClientConfig{
//	    APIKey: os.Getenv("OPENAI_API_KEY"),
//	    Model:  "gpt-4o",
//	})
//	result, err := client.Generate(ctx, "Hello!", history, nil)
//
// Advanced usage with middleware:
//
//	client, err := llm.NewClient("anthropic", llm.ClientConfig{
//	    APIKey: os.Getenv("ANTHROPIC_API_KEY"),
//	    Model:  "claude-sonnet-4-20250514",
//	    Middleware: []llm.Middleware{
//	        llm.RateLimitMiddleware(20, 40),
//	        llm.RetryMiddleware(3, time.Second, 30*time.Second),
//	        llm.MetricsMiddleware(metricsCollector),
//	    },
//	})
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arenalabs/go-arena/internal/domain"
	"github.com/arenalabs/go-arena/internal/ports"
)

// CoreLLM defines the minimal interface that LLM providers must implement.
// This interface abstracts the core functionality needed to make requests
// to different LLM services, allowing the middleware system to wrap
// any conforming implementation.
type CoreLLM interface {
	// DoRequest sends a prompt with prior conversation history to the
	// provider and returns the full response. The opts parameter allows
	// provider-specific configuration such as temperature or max tokens.
	// Returns the response text, input token count, output token count,
	// and any error.
	DoRequest(
		ctx context.Context,
		prompt string,
		history []domain.Message,
		opts map[string]any,
	) (
		response string,
		tokensIn, tokensOut int,
		err error,
	)

	// DoStream sends a prompt with history and returns a channel of
	// response chunks, terminated by a Done chunk. Implementations close
	// the channel after the terminal chunk.
	DoStream(
		ctx context.Context,
		prompt string,
		history []domain.Message,
		opts map[string]any,
	) (<-chan ports.StreamChunk, error)

	// GetModel returns the currently configured model name.
	GetModel() string

	// SetModel updates the model to use for subsequent requests.
	// This allows dynamic model switching without recreating the client.
	SetModel(model string)
}

// TokenEstimator provides pluggable token estimation strategies.
// Different providers may have different tokenization approaches,
// so this interface allows customization of token counting logic
// for cost estimation and rate limiting purposes.
type TokenEstimator interface {
	// EstimateTokens returns an approximate token count for the given text.
	// This is used for cost estimation when exact token counts are not
	// available before making requests.
	EstimateTokens(text string) int
}

// ClientConfig holds all configuration options for creating an LLM client.
type ClientConfig struct {
	// APIKey authenticates requests to the LLM provider.
	APIKey string

	// Model specifies which LLM model to use for requests.
	// Each provider supports different model names.
	Model string

	// BaseURL overrides the default API endpoint for the provider.
	// Leave empty to use the provider's default endpoint.
	BaseURL string

	// Timeout sets the maximum duration for individual requests.
	// Zero value means no timeout.
	Timeout time.Duration

	// TokenEstimator provides custom token counting logic.
	// If nil, a simple character-based estimator is used.
	TokenEstimator TokenEstimator

	// Middleware allows custom middleware insertion.
	// These are applied in the order specified.
	Middleware []Middleware
}

// Middleware wraps a CoreLLM implementation to add cross-cutting
// functionality such as rate limiting, retries, or metrics collection
// without modifying core provider logic.
type Middleware func(CoreLLM) CoreLLM

// Client implements the ports.LLMClient interface with all cross-cutting
// concerns. It wraps a provider-specific CoreLLM implementation with
// middleware and normalizes provider failures into ports error types.
type Client struct {
	core      CoreLLM
	estimator TokenEstimator
}

var _ ports.LLMClient = (*Client)(nil)

// NewClient creates a new LLM client with the specified provider and
// configuration. This function assembles the middleware chain and
// validates configuration before returning a ready-to-use client.
func NewClient(providerType string, config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	factory, ok := providerFactories[providerType]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", providerType)
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	// Apply middleware in reverse order so the first middleware is the outermost.
	for i := len(config.Middleware) - 1; i >= 0; i-- {
		core = config.Middleware[i](core)
	}

	estimator := config.TokenEstimator
	if estimator == nil {
		estimator = &SimpleTokenEstimator{}
	}

	return &Client{
		core:      core,
		estimator: estimator,
	}, nil
}

// Generate implements ports.LLMClient by delegating to the wrapped core
// and normalizing failures into ports.LLMError with the matching
// sentinel.
func (c *Client) Generate(ctx context.Context, prompt string, history []domain.Message, options map[string]any) (ports.GenerateResult, error) {
	text, tokensIn, tokensOut, err := c.core.DoRequest(ctx, prompt, history, options)
	if err != nil {
		return ports.GenerateResult{}, c.wrapError("generate", err)
	}

	return ports.GenerateResult{
		Text:         text,
		InputTokens:  tokensIn,
		OutputTokens: tokensOut,
	}, nil
}

// Stream implements ports.LLMClient. The returned channel delivers
// chunks in order and is closed after the terminal Done chunk or a
// chunk carrying an error.
func (c *Client) Stream(ctx context.Context, prompt string, history []domain.Message, options map[string]any) (<-chan ports.StreamChunk, error) {
	out, err := c.core.DoStream(ctx, prompt, history, options)
	if err != nil {
		return nil, c.wrapError("stream", err)
	}
	return out, nil
}

// EstimateTokens returns an approximate token count for the given text
// using the configured TokenEstimator.
func (c *Client) EstimateTokens(text string) (int, error) {
	return c.estimator.EstimateTokens(text), nil
}

// GetModel returns the currently configured model name from the underlying provider.
func (c *Client) GetModel() string { return c.core.GetModel() }

// wrapError attaches the port-level sentinel matching the provider
// error's classification, so callers can errors.Is against
// ports.ErrRateLimited and friends without knowing the provider.
func (c *Client) wrapError(operation string, err error) error {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		if sentinel := providerErr.Sentinel(); sentinel != nil {
			err = fmt.Errorf("%w: %w", sentinel, err)
		}
	}
	return ports.NewLLMError(c.core.GetModel(), operation, err)
}

// SimpleTokenEstimator provides basic character-based token estimation.
// This implementation uses a simple heuristic of approximately 4 characters
// per token, which works reasonably well for most English text.
type SimpleTokenEstimator struct{}

// EstimateTokens returns an approximate token count using character-based heuristics.
func (e *SimpleTokenEstimator) EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// ProviderFactory creates a CoreLLM implementation from configuration.
// This function signature allows the provider registry to create
// provider instances without knowing their specific implementation details.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

// Provider factory registry for extensibility.
// This allows registration of custom providers at runtime
// while maintaining type safety and initialization validation.
var providerFactories = map[string]ProviderFactory{}

// RegisterProviderFactory allows registration of custom LLM provider factories.
// This enables extension of the client with additional providers
// without modifying the core library code.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	providerFactories[providerType] = factory
}
