package testutils

import (
	"context"
	"sync"

	"github.com/arenalabs/go-arena/internal/domain"
	"github.com/arenalabs/go-arena/internal/ports"
)

// MockSandboxRunner returns a scripted suite outcome for every run.
type MockSandboxRunner struct {
	mu      sync.Mutex
	results []ports.TestResult
	err     error
	calls   int
}

// NewMockSandboxRunner creates a runner that passes every test by
// default.
func NewMockSandboxRunner() *MockSandboxRunner { return &MockSandboxRunner{} }

// Script sets the outcome of subsequent runs. A nil results slice with
// a nil error makes every case pass.
func (m *MockSandboxRunner) Script(results []ports.TestResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = results
	m.err = err
}

// Calls returns how many suites have been executed.
func (m *MockSandboxRunner) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// RunTests implements ports.SandboxRunner.
func (m *MockSandboxRunner) RunTests(_ context.Context, _ string, tests []domain.TestCase) ([]ports.TestResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.results != nil {
		return append([]ports.TestResult(nil), m.results...), nil
	}

	all := make([]ports.TestResult, len(tests))
	for i := range all {
		all[i] = ports.TestResult{Passed: true}
	}
	return all, nil
}

var _ ports.SandboxRunner = (*MockSandboxRunner)(nil)

// MockVisionComparer returns a scripted similarity verdict.
type MockVisionComparer struct {
	mu     sync.Mutex
	result ports.VisionResult
	err    error
	calls  int
}

// NewMockVisionComparer creates a comparer reporting the given
// similarity.
func NewMockVisionComparer(similarity float64) *MockVisionComparer {
	return &MockVisionComparer{
		result: ports.VisionResult{Similarity: similarity, OverallMatch: similarity >= 0.9},
	}
}

// Script replaces the scripted verdict.
func (m *MockVisionComparer) Script(result ports.VisionResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = result
	m.err = err
}

// Calls returns how many comparisons have run.
func (m *MockVisionComparer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Compare implements ports.VisionComparer.
func (m *MockVisionComparer) Compare(_ context.Context, _, _, _ string) (ports.VisionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return ports.VisionResult{}, m.err
	}
	return m.result, nil
}

var _ ports.VisionComparer = (*MockVisionComparer)(nil)
