// Package sandbox executes candidate code against test suites through
// an external isolated execution service.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/arenalabs/go-arena/internal/domain"
	"github.com/arenalabs/go-arena/internal/ports"
)

// DefaultTimeout bounds a full suite run against the sandbox service.
const DefaultTimeout = 30 * time.Second

// maxResponseBytes caps how much of a sandbox response is read, so a
// misbehaving service cannot exhaust memory.
const maxResponseBytes = 4 << 20

// HTTPRunner implements ports.SandboxRunner against the sandbox
// service's HTTP API. Each suite run is a single POST carrying the code
// and all test cases; the service executes them in isolation and
// reports per-case outcomes.
type HTTPRunner struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

var _ ports.SandboxRunner = (*HTTPRunner)(nil)

// NewHTTPRunner creates a runner for the sandbox service at baseURL.
// A non-positive timeout selects DefaultTimeout.
func NewHTTPRunner(baseURL string, timeout time.Duration, logger *zap.Logger) (*HTTPRunner, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("sandbox base URL is required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HTTPRunner{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

type runRequest struct {
	Code  string            `json:"code"`
	Tests []domain.TestCase `json:"tests"`
}

type runResponse struct {
	Results []ports.TestResult `json:"results"`
}

// RunTests implements ports.SandboxRunner. Transport and protocol
// failures are wrapped in a ports.SandboxError; individual test
// failures are reported per-case and never produce an error.
func (r *HTTPRunner) RunTests(ctx context.Context, code string, tests []domain.TestCase) ([]ports.TestResult, error) {
	payload, err := json.Marshal(runRequest{Code: code, Tests: tests})
	if err != nil {
		return nil, ports.NewSandboxError("encode_request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/run", bytes.NewReader(payload))
	if err != nil {
		return nil, ports.NewSandboxError("build_request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, ports.NewSandboxError("execute", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, ports.NewSandboxError("read_response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, ports.NewSandboxError("execute",
			fmt.Errorf("sandbox returned HTTP %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	var decoded runResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, ports.NewSandboxError("decode_response", err)
	}

	if len(decoded.Results) != len(tests) {
		return nil, ports.NewSandboxError("decode_response",
			fmt.Errorf("expected %d results, got %d", len(tests), len(decoded.Results)))
	}

	r.logger.Debug("sandbox suite completed",
		zap.Int("tests", len(tests)),
		zap.Duration("duration", time.Since(start)))

	return decoded.Results, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
