package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/arenalabs/go-arena/internal/domain"
	"github.com/arenalabs/go-arena/internal/ports"
)

// MockChallengeStore serves challenges from an in-memory map.
type MockChallengeStore struct {
	mu         sync.RWMutex
	challenges map[string]domain.Challenge
}

// NewMockChallengeStore creates a store preloaded with the given
// challenges.
func NewMockChallengeStore(challenges ...domain.Challenge) *MockChallengeStore {
	s := &MockChallengeStore{challenges: make(map[string]domain.Challenge)}
	for _, ch := range challenges {
		s.challenges[ch.ID] = ch
	}
	return s
}

// Add registers or replaces a challenge.
func (s *MockChallengeStore) Add(ch domain.Challenge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[ch.ID] = ch
}

// GetChallenge implements ports.ChallengeStore.
func (s *MockChallengeStore) GetChallenge(_ context.Context, id string) (domain.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, ok := s.challenges[id]
	if !ok {
		return domain.Challenge{}, domain.ErrChallengeNotFound
	}
	return ch, nil
}

var _ ports.ChallengeStore = (*MockChallengeStore)(nil)

// SavedResult is one persisted record captured by MockResultStore.
type SavedResult struct {
	Summary      domain.ResultSummary
	Conversation []domain.Message
}

// MockResultStore captures persisted results in memory and can be made
// to fail for persistence-failure paths.
type MockResultStore struct {
	mu      sync.Mutex
	results []SavedResult
	failErr error
	nextID  int
}

// NewMockResultStore creates an empty result store.
func NewMockResultStore() *MockResultStore { return &MockResultStore{} }

// FailWith makes every subsequent save fail with err. Pass nil to
// restore normal operation.
func (s *MockResultStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

// Results returns the captured records in save order.
func (s *MockResultStore) Results() []SavedResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SavedResult(nil), s.results...)
}

// SaveResult implements ports.ResultStore.
func (s *MockResultStore) SaveResult(_ context.Context, summary domain.ResultSummary, conversation []domain.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failErr != nil {
		return "", s.failErr
	}
	s.nextID++
	id := fmt.Sprintf("result-%d", s.nextID)
	summary.ResultID = id
	s.results = append(s.results, SavedResult{
		Summary:      summary,
		Conversation: append([]domain.Message(nil), conversation...),
	})
	return id, nil
}

var _ ports.ResultStore = (*MockResultStore)(nil)
