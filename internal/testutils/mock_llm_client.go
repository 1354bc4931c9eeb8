// Package testutils provides deterministic fakes for the engine's
// external collaborators, for tests and local development.
package testutils

import (
	"context"
	"strings"
	"sync"

	"github.com/arenalabs/go-arena/internal/domain"
	"github.com/arenalabs/go-arena/internal/ports"
)

// MockLLMClient implements ports.LLMClient with deterministic responses
// selected by prompt substring matching, plus realistic token counts so
// ledger accounting can be asserted against it.
type MockLLMClient struct {
	mu        sync.Mutex
	model     string
	responses []MockResponse
	err       error
	calls     []string
}

// MockResponse defines one pre-configured response pattern.
type MockResponse struct {
	// Pattern is matched as a substring of the prompt. Empty matches
	// everything and acts as the fallback.
	Pattern string

	// Response is the text returned for matching prompts.
	Response string

	// InputTokens and OutputTokens are the reported usage.
	InputTokens  int
	OutputTokens int
}

// NewMockLLMClient creates a mock client with a generic fallback
// response.
func NewMockLLMClient(model string) *MockLLMClient {
	return &MockLLMClient{
		model: model,
		responses: []MockResponse{
			{Pattern: "", Response: "This is a standard mock response.", InputTokens: 20, OutputTokens: 8},
		},
	}
}

// AddResponse registers a response pattern. Later registrations take
// precedence over earlier ones.
func (m *MockLLMClient) AddResponse(response MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append([]MockResponse{response}, m.responses...)
}

// SetError makes every subsequent call fail with err.
func (m *MockLLMClient) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns the prompts seen so far, in order.
func (m *MockLLMClient) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MockLLMClient) pick(prompt string) (MockResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, prompt)
	if m.err != nil {
		return MockResponse{}, m.err
	}
	for _, r := range m.responses {
		if r.Pattern == "" || strings.Contains(prompt, r.Pattern) {
			return r, nil
		}
	}
	return MockResponse{Response: "mock response"}, nil
}

// Generate implements ports.LLMClient.
func (m *MockLLMClient) Generate(ctx context.Context, prompt string, _ []domain.Message, _ map[string]any) (ports.GenerateResult, error) {
	if err := ctx.Err(); err != nil {
		return ports.GenerateResult{}, err
	}
	r, err := m.pick(prompt)
	if err != nil {
		return ports.GenerateResult{}, err
	}
	return ports.GenerateResult{
		Text:         r.Response,
		InputTokens:  r.InputTokens,
		OutputTokens: r.OutputTokens,
	}, nil
}

// Stream implements ports.LLMClient by emitting the matched response in
// word-sized chunks followed by a Done chunk.
func (m *MockLLMClient) Stream(ctx context.Context, prompt string, _ []domain.Message, _ map[string]any) (<-chan ports.StreamChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := m.pick(prompt)
	if err != nil {
		return nil, err
	}

	words := strings.Fields(r.Response)
	out := make(chan ports.StreamChunk, len(words)+1)
	for i, w := range words {
		if i > 0 {
			w = " " + w
		}
		out <- ports.StreamChunk{Text: w}
	}
	out <- ports.StreamChunk{Done: true}
	close(out)
	return out, nil
}

// EstimateTokens implements ports.LLMClient with the standard 4
// characters per token approximation.
func (m *MockLLMClient) EstimateTokens(text string) (int, error) {
	return (len(text) + 3) / 4, nil
}

// GetModel implements ports.LLMClient.
func (m *MockLLMClient) GetModel() string { return m.model }

var _ ports.LLMClient = (*MockLLMClient)(nil)
