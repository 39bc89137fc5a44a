package memory

import (
	"context"
	"sync"

	"arbiter-backend/internal/domain/dkg"
	"arbiter-backend/internal/errors"
)

// StakeRegistry resolves verifier stakes from a fixed table. Unknown
// verifiers fall back to the configured default, which may be zero.
type StakeRegistry struct {
	mu       sync.RWMutex
	stakes   map[string]float64
	fallback float64
}

// NewStakeRegistry creates a registry seeded with the given stakes.
func NewStakeRegistry(stakes map[string]float64, fallback float64) *StakeRegistry {
	copied := make(map[string]float64, len(stakes))
	for verifier, stake := range stakes {
		copied[verifier] = stake
	}
	return &StakeRegistry{stakes: copied, fallback: fallback}
}

func (r *StakeRegistry) Stake(_ context.Context, verifierID string) (float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if stake, ok := r.stakes[verifierID]; ok {
		return stake, nil
	}
	return r.fallback, nil
}

// SetStake records or replaces one verifier's stake.
func (r *StakeRegistry) SetStake(verifierID string, stake float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stakes[verifierID] = stake
}

// ThreadStore holds collaboration threads keyed by thread id. It serves
// the fetcher port in tests and anywhere else the thread service is not
// reachable.
type ThreadStore struct {
	mu      sync.RWMutex
	threads map[string][]dkg.Message
}

// NewThreadStore creates an empty thread store.
func NewThreadStore() *ThreadStore {
	return &ThreadStore{threads: make(map[string][]dkg.Message)}
}

// AddThread stores the messages of a thread, replacing any previous
// version.
func (s *ThreadStore) AddThread(threadID string, messages []dkg.Message) {
	copied := make([]dkg.Message, len(messages))
	copy(copied, messages)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[threadID] = copied
}

func (s *ThreadStore) FetchThread(_ context.Context, threadID string) ([]dkg.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.threads[threadID]
	if !ok {
		return nil, errors.NotFound("THREAD_NOT_FOUND", "no thread stored under this id").
			WithOperation("FetchThread").WithResource(threadID).Build()
	}
	out := make([]dkg.Message, len(messages))
	copy(out, messages)
	return out, nil
}
