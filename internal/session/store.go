package session

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arenalabs/go-arena/internal/domain"
	"github.com/arenalabs/go-arena/internal/ports"
)

// numShards spreads sessions across independently locked shards so
// unrelated sessions never contend on a single global lock.
const numShards = 32

// Budget caps a session's resource consumption. Zero values mean
// unlimited. Turns beyond the cap are dropped and counted rather than
// recorded.
type Budget struct {
	// MaxTokens limits combined input and output tokens.
	MaxTokens int64 `yaml:"max_tokens" validate:"min=0"`

	// MaxCost limits accumulated dollar cost.
	MaxCost float64 `yaml:"max_cost" validate:"min=0"`

	// MaxTurns limits the number of recorded turns.
	MaxTurns int64 `yaml:"max_turns" validate:"min=0"`
}

// exhausted reports whether the session has already consumed its budget.
func (b Budget) exhausted(s *domain.ScoringSession) bool {
	if b.MaxTokens > 0 && s.TotalTokens() >= b.MaxTokens {
		return true
	}
	if b.MaxCost > 0 && s.TotalCost >= b.MaxCost {
		return true
	}
	if b.MaxTurns > 0 && s.TotalTurns >= b.MaxTurns {
		return true
	}
	return false
}

// Config holds session store settings.
type Config struct {
	// TTL is how long a session may live after creation before the
	// sweep removes it, regardless of status.
	TTL time.Duration `yaml:"ttl"`

	// SweepInterval is how often the background sweep runs.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// Budget is the optional per-session usage cap.
	Budget Budget `yaml:"budget"`

	// Pricing is the per-model token pricing table.
	Pricing PricingTable `yaml:"pricing"`
}

// DefaultConfig returns the standard store settings: one hour TTL with
// a five minute sweep and no usage budget.
func DefaultConfig() Config {
	return Config{
		TTL:           time.Hour,
		SweepInterval: 5 * time.Minute,
		Pricing:       DefaultPricingTable(),
	}
}

// shard is one lock domain of the store.
type shard struct {
	mu       sync.RWMutex
	sessions map[string]*domain.ScoringSession
}

// Store is the in-memory session registry. All mutation goes through
// its operations; callers only ever see value snapshots. It is an
// explicitly injected dependency, never ambient package state.
type Store struct {
	shards  [numShards]shard
	ttl     time.Duration
	sweep   time.Duration
	budget  Budget
	pricing PricingTable
	logger  *zap.Logger
	metrics ports.MetricsCollector

	// now is the clock source, swappable in tests.
	now func() time.Time
}

// NewStore creates a session store. The metrics collector may be nil.
func NewStore(cfg Config, logger *zap.Logger, metrics ports.MetricsCollector) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	if cfg.Pricing.Models == nil {
		cfg.Pricing = DefaultPricingTable()
	}

	s := &Store{
		ttl:     cfg.TTL,
		sweep:   cfg.SweepInterval,
		budget:  cfg.Budget,
		pricing: cfg.Pricing,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
	for i := range s.shards {
		s.shards[i].sessions = make(map[string]*domain.ScoringSession)
	}
	return s
}

// shardFor maps a session id onto its lock domain.
func (s *Store) shardFor(id string) *shard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &s.shards[h.Sum32()%numShards]
}

// Create starts a new active session and returns its snapshot.
func (s *Store) Create(challengeID, username, model string) domain.ScoringSession {
	sess := &domain.ScoringSession{
		ID:          uuid.NewString(),
		ChallengeID: challengeID,
		Username:    username,
		Model:       model,
		StartedAt:   s.now(),
		Status:      domain.SessionActive,
	}

	sh := s.shardFor(sess.ID)
	sh.mu.Lock()
	sh.sessions[sess.ID] = sess
	sh.mu.Unlock()

	s.count("sessions_created", 1)
	s.logger.Info("session created",
		zap.String("session_id", sess.ID),
		zap.String("challenge_id", challengeID),
		zap.String("username", username),
		zap.String("model", model),
	)
	return sess.Clone()
}

// Get returns a consistent snapshot of a session.
func (s *Store) Get(id string) (domain.ScoringSession, bool) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	sess, ok := sh.sessions[id]
	if !ok {
		return domain.ScoringSession{}, false
	}
	return sess.Clone(), true
}

// Len returns the number of live sessions across all shards.
func (s *Store) Len() int {
	total := 0
	for i := range s.shards {
		s.shards[i].mu.RLock()
		total += len(s.shards[i].sessions)
		s.shards[i].mu.RUnlock()
	}
	return total
}

// RecordTurn appends one user/assistant exchange and adds its usage to
// the ledger. Turn recording is best-effort telemetry: a missing or
// completed session makes it a counted no-op, not an error, so the
// chat path never fails on accounting. A session over its budget
// returns ErrBudgetExceeded and records nothing.
func (s *Store) RecordTurn(id string, inputTokens, outputTokens int64, cost float64, userMessage, assistantMessage string) error {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sess, ok := sh.sessions[id]
	if !ok || sess.Status != domain.SessionActive {
		s.dropTurn(id, "missing_or_inactive")
		return nil
	}

	if s.budget.exhausted(sess) {
		s.dropTurn(id, "budget_exceeded")
		return domain.NewSessionError(id, "record_turn", domain.ErrBudgetExceeded)
	}

	applyTurn(sess, inputTokens, outputTokens, cost, userMessage, assistantMessage)
	s.count("turns_recorded", 1)
	return nil
}

// RecordPartialTurn records a turn whose stream was aborted before the
// provider reported usage. Token counts are estimated from word count
// and priced from the session's model row, so usage is never silently
// lost on client disconnect.
func (s *Store) RecordPartialTurn(id, userMessage, partialAssistant string) error {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sess, ok := sh.sessions[id]
	if !ok || sess.Status != domain.SessionActive {
		s.dropTurn(id, "missing_or_inactive")
		return nil
	}

	if s.budget.exhausted(sess) {
		s.dropTurn(id, "budget_exceeded")
		return domain.NewSessionError(id, "record_partial_turn", domain.ErrBudgetExceeded)
	}

	inputTokens := EstimateTokensFromWords(userMessage)
	outputTokens := EstimateTokensFromWords(partialAssistant)
	cost := s.pricing.Cost(sess.Model, inputTokens, outputTokens)

	applyTurn(sess, inputTokens, outputTokens, cost, userMessage, partialAssistant)
	s.count("partial_turns_recorded", 1)
	return nil
}

// applyTurn mutates the ledger under the caller-held shard lock.
func applyTurn(sess *domain.ScoringSession, inputTokens, outputTokens int64, cost float64, userMessage, assistantMessage string) {
	sess.Conversation = append(sess.Conversation,
		domain.Message{Role: domain.RoleUser, Content: userMessage},
		domain.Message{Role: domain.RoleAssistant, Content: assistantMessage},
	)
	sess.TotalTurns++
	sess.TotalInputTokens += inputTokens
	sess.TotalOutputTokens += outputTokens
	sess.TotalCost += cost
}

// RecordProcessingTime adds server-side grading time to the session so
// elapsed-time scoring excludes it. No-op on missing or completed
// sessions.
func (s *Store) RecordProcessingTime(id string, seconds float64) {
	if seconds <= 0 {
		return
	}

	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sess, ok := sh.sessions[id]
	if !ok || sess.Status != domain.SessionActive {
		return
	}
	sess.ServerProcessingSeconds += seconds
}

// FreezeTimer pins the elapsed-time clock at the current instant.
// Idempotent: an already frozen session keeps its original freeze
// instant.
func (s *Store) FreezeTimer(id string) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sess, ok := sh.sessions[id]
	if !ok || sess.Status != domain.SessionActive || sess.FrozenAt != nil {
		return
	}
	frozen := s.now()
	sess.FrozenAt = &frozen
	s.logger.Info("session timer frozen", zap.String("session_id", id))
}

// UnfreezeTimer resumes elapsed-time growth with the wall clock.
func (s *Store) UnfreezeTimer(id string) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sess, ok := sh.sessions[id]
	if !ok || sess.Status != domain.SessionActive || sess.FrozenAt == nil {
		return
	}
	sess.FrozenAt = nil
	s.logger.Info("session timer unfrozen", zap.String("session_id", id))
}

// RecordTestAccuracy caches a test-run pass rate and applies the freeze
// policy atomically: a full pass freezes the timer, a regression below
// full unfreezes it.
func (s *Store) RecordTestAccuracy(id string, accuracy float64) {
	accuracy = domain.ClampUnit(accuracy)

	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sess, ok := sh.sessions[id]
	if !ok || sess.Status != domain.SessionActive {
		return
	}

	sess.LastTestAccuracy = &accuracy

	switch {
	case accuracy >= 1.0 && sess.FrozenAt == nil:
		frozen := s.now()
		sess.FrozenAt = &frozen
		s.logger.Info("session timer frozen on full pass", zap.String("session_id", id))
	case accuracy < 1.0 && sess.FrozenAt != nil:
		sess.FrozenAt = nil
		s.logger.Info("session timer unfrozen on regression",
			zap.String("session_id", id),
			zap.Float64("accuracy", accuracy),
		)
	}
}

// Complete transitions a session to its terminal state exactly once and
// returns the final ledger snapshot. A second completion fails with
// ErrSessionCompleted so nothing is ever scored twice; a swept or
// unknown id fails with ErrSessionNotFound.
func (s *Store) Complete(id string) (domain.ScoringSession, error) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sess, ok := sh.sessions[id]
	if !ok {
		return domain.ScoringSession{}, domain.NewSessionError(id, "complete", domain.ErrSessionNotFound)
	}
	if sess.Status != domain.SessionActive {
		return domain.ScoringSession{}, domain.NewSessionError(id, "complete", domain.ErrSessionCompleted)
	}

	sess.Status = domain.SessionCompleted
	s.count("sessions_completed", 1)
	return sess.Clone(), nil
}

// SweepExpired removes every session older than the TTL, regardless of
// status, and returns how many were removed. Candidates are collected
// under read locks; deletion holds each shard's write lock only for its
// own batch.
func (s *Store) SweepExpired() int {
	now := s.now()
	removed := 0

	for i := range s.shards {
		sh := &s.shards[i]

		sh.mu.RLock()
		var expired []string
		for id, sess := range sh.sessions {
			if sess.Expired(now, s.ttl) {
				expired = append(expired, id)
			}
		}
		sh.mu.RUnlock()

		if len(expired) == 0 {
			continue
		}

		sh.mu.Lock()
		for _, id := range expired {
			// Re-check under the write lock; Expired is monotone in
			// time so only a deleted entry can disagree.
			if sess, ok := sh.sessions[id]; ok && sess.Expired(now, s.ttl) {
				delete(sh.sessions, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}

	if removed > 0 {
		s.count("sessions_swept", float64(removed))
		s.logger.Info("expired sessions swept", zap.Int("removed", removed))
	}
	if s.metrics != nil {
		s.metrics.RecordGauge("active_sessions", float64(s.Len()), nil)
	}
	return removed
}

// Run executes the background sweep on the configured interval until
// the context is canceled. It runs independently of any request
// lifecycle.
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(s.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepExpired()
		}
	}
}

// dropTurn makes the silent no-op path observable.
func (s *Store) dropTurn(id, reason string) {
	s.count("turns_dropped", 1)
	s.logger.Debug("turn dropped",
		zap.String("session_id", id),
		zap.String("reason", reason),
	)
}

// count emits a counter when a metrics collector is configured.
func (s *Store) count(metric string, value float64) {
	if s.metrics != nil {
		s.metrics.RecordCounter(metric, value, nil)
	}
}

// SetClock overrides the store's time source. Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}
