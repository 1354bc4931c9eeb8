package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/arenalabs/go-arena/internal/domain"
	"github.com/arenalabs/go-arena/internal/ports"
)

func TestRetryMiddlewareRecoversFromTransientError(t *testing.T) {
	core := &stubCore{
		response: "recovered",
		errs: []error{
			NewProviderError("stub", ErrorTypeServerError, 503, "unavailable", nil),
			NewProviderError("stub", ErrorTypeServerError, 503, "unavailable", nil),
		},
	}

	wrapped := RetryMiddleware(3, time.Millisecond, 10*time.Millisecond)(core)

	response, _, _, err := wrapped.DoRequest(context.Background(), "hi", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "recovered", response)
	assert.Equal(t, 3, core.callCount())
}

func TestRetryMiddlewareDoesNotRetryAuthErrors(t *testing.T) {
	core := &stubCore{
		errs: []error{
			NewProviderError("stub", ErrorTypeAuthentication, 401, "bad key", nil),
		},
	}

	wrapped := RetryMiddleware(3, time.Millisecond, 10*time.Millisecond)(core)

	_, _, _, err := wrapped.DoRequest(context.Background(), "hi", nil, nil)
	require.Error(t, err)
	assert.Equal(t, 1, core.callCount())

	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, ErrorTypeAuthentication, providerErr.Type)
}

func TestRetryMiddlewareExhaustsAttempts(t *testing.T) {
	core := &stubCore{
		errs: []error{
			NewProviderError("stub", ErrorTypeRateLimit, 429, "slow down", nil),
			NewProviderError("stub", ErrorTypeRateLimit, 429, "slow down", nil),
			NewProviderError("stub", ErrorTypeRateLimit, 429, "slow down", nil),
		},
	}

	wrapped := RetryMiddleware(2, time.Millisecond, 5*time.Millisecond)(core)

	_, _, _, err := wrapped.DoRequest(context.Background(), "hi", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, core.callCount())
}

func TestRetryMiddlewareRespectsContextCancellation(t *testing.T) {
	core := &stubCore{
		errs: []error{
			NewProviderError("stub", ErrorTypeServerError, 503, "unavailable", nil),
			NewProviderError("stub", ErrorTypeServerError, 503, "unavailable", nil),
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	wrapped := RetryMiddleware(3, time.Second, time.Minute)(core)

	_, _, _, err := wrapped.DoRequest(ctx, "hi", nil, nil)
	require.Error(t, err)
	assert.Equal(t, 1, core.callCount())
}

func TestRetryMiddlewareStreamPassthrough(t *testing.T) {
	core := &stubCore{chunks: []string{"a"}}
	wrapped := RetryMiddleware(3, time.Millisecond, time.Millisecond)(core)

	out, err := wrapped.DoStream(context.Background(), "hi", nil, nil)
	require.NoError(t, err)
	for range out {
	}
	assert.Equal(t, 1, core.callCount())
}

func TestRateLimitMiddlewareAllowsBurst(t *testing.T) {
	core := &stubCore{response: "ok"}
	wrapped := RateLimitMiddleware(rate.Limit(100), 5)(core)

	for i := 0; i < 5; i++ {
		_, _, _, err := wrapped.DoRequest(context.Background(), "hi", nil, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 5, core.callCount())
}

func TestRateLimitMiddlewareBlocksOnCanceledContext(t *testing.T) {
	core := &stubCore{response: "ok"}
	// Zero sustained rate with an exhausted bucket forces Wait to block.
	wrapped := RateLimitMiddleware(rate.Limit(0), 0)(core)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, _, _, err := wrapped.DoRequest(ctx, "hi", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
	assert.Equal(t, 0, core.callCount())
}

func TestTimeoutMiddlewareBoundsRequests(t *testing.T) {
	slow := &slowCore{delay: 50 * time.Millisecond}
	wrapped := TimeoutMiddleware(5 * time.Millisecond)(slow)

	_, _, _, err := wrapped.DoRequest(context.Background(), "hi", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTimeoutMiddlewareAllowsFastRequests(t *testing.T) {
	core := &stubCore{response: "quick"}
	wrapped := TimeoutMiddleware(time.Second)(core)

	response, _, _, err := wrapped.DoRequest(context.Background(), "hi", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "quick", response)
}

func TestMetricsMiddlewareRecordsRequests(t *testing.T) {
	core := &stubCore{model: "gpt-4o", response: "ok", tokensIn: 10, tokensOut: 5}
	collector := &recordingCollector{}
	wrapped := MetricsMiddleware(collector)(core)

	_, _, _, err := wrapped.DoRequest(context.Background(), "hi", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, float64(1), collector.counterValue("llm_requests_total"))
	assert.Equal(t, float64(15), collector.counterValue("llm_tokens_total"))
	assert.Equal(t, 1, collector.histogramCount("llm_latency_seconds"))

	labels := collector.lastLabels("llm_requests_total")
	assert.Equal(t, "openai", labels["provider"])
	assert.Equal(t, "success", labels["status"])
}

func TestMetricsMiddlewareRecordsErrors(t *testing.T) {
	core := &stubCore{
		model: "claude-sonnet-4",
		errs:  []error{errors.New("boom")},
	}
	collector := &recordingCollector{}
	wrapped := MetricsMiddleware(collector)(core)

	_, _, _, err := wrapped.DoRequest(context.Background(), "hi", nil, nil)
	require.Error(t, err)

	labels := collector.lastLabels("llm_requests_total")
	assert.Equal(t, "anthropic", labels["provider"])
	assert.Equal(t, "error", labels["status"])
	assert.Equal(t, float64(0), collector.counterValue("llm_tokens_total"))
}

func TestMetricsMiddlewareCountsStreams(t *testing.T) {
	core := &stubCore{model: "gemini-2.0-flash", chunks: []string{"a"}}
	collector := &recordingCollector{}
	wrapped := MetricsMiddleware(collector)(core)

	out, err := wrapped.DoStream(context.Background(), "hi", nil, nil)
	require.NoError(t, err)
	for range out {
	}

	assert.Equal(t, float64(1), collector.counterValue("llm_streams_total"))
	assert.Equal(t, "google", collector.lastLabels("llm_streams_total")["provider"])
}

// slowCore blocks until its delay elapses or the context expires.
type slowCore struct {
	stubCore
	delay time.Duration
}

func (s *slowCore) DoRequest(ctx context.Context, prompt string, history []domain.Message, opts map[string]any) (string, int, int, error) {
	select {
	case <-time.After(s.delay):
		return "late", 0, 0, nil
	case <-ctx.Done():
		return "", 0, 0, ctx.Err()
	}
}

// recordingCollector captures metric calls for assertions.
type recordingCollector struct {
	mu         sync.Mutex
	counters   map[string]float64
	histograms map[string]int
	labels     map[string]map[string]string
}

var _ ports.MetricsCollector = (*recordingCollector)(nil)

func (r *recordingCollector) RecordCounter(metric string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counters == nil {
		r.counters = map[string]float64{}
		r.labels = map[string]map[string]string{}
	}
	r.counters[metric] += value
	r.labels[metric] = cloneLabels(labels)
}

func (r *recordingCollector) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
}

func (r *recordingCollector) RecordGauge(metric string, value float64, labels map[string]string) {}

func (r *recordingCollector) RecordHistogram(metric string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.histograms == nil {
		r.histograms = map[string]int{}
	}
	r.histograms[metric]++
}

func (r *recordingCollector) counterValue(metric string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[metric]
}

func (r *recordingCollector) histogramCount(metric string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.histograms[metric]
}

func (r *recordingCollector) lastLabels(metric string) map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.labels[metric]
}

func cloneLabels(labels map[string]string) map[string]string {
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}
