package memory

import (
	"context"
	"sync"

	"arbiter-backend/internal/domain/consensus"
	"arbiter-backend/internal/errors"
)

// RoundStore keeps consensus rounds in process memory. Updates run a
// snapshot of the stored round through the mutation and swap it back
// only on success, so a failed transition leaves the round untouched.
type RoundStore struct {
	mu     sync.Mutex
	rounds map[string]*consensus.Round
}

// NewRoundStore creates an empty round store.
func NewRoundStore() *RoundStore {
	return &RoundStore{rounds: make(map[string]*consensus.Round)}
}

func (s *RoundStore) CreateRound(_ context.Context, round *consensus.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rounds[round.ID()]; exists {
		return errors.Conflict("ROUND_EXISTS", "round id is already in use").
			WithOperation("CreateRound").WithResource(round.ID()).Build()
	}
	s.rounds[round.ID()] = round
	return nil
}

func (s *RoundStore) GetRound(_ context.Context, roundID string) (*consensus.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	round, ok := s.rounds[roundID]
	if !ok {
		return nil, roundNotFound(roundID)
	}
	return cloneRound(round)
}

func (s *RoundStore) UpdateRound(_ context.Context, roundID string, mutate func(*consensus.Round) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.rounds[roundID]
	if !ok {
		return roundNotFound(roundID)
	}
	working, err := cloneRound(stored)
	if err != nil {
		return err
	}
	if err := mutate(working); err != nil {
		return err
	}
	s.rounds[roundID] = working
	return nil
}

// cloneRound rebuilds an independent round from the aggregate's own
// snapshot accessors.
func cloneRound(r *consensus.Round) (*consensus.Round, error) {
	return consensus.ReconstructRound(consensus.RoundParams{
		ID:           r.ID(),
		StudioID:     r.StudioID(),
		AuditID:      r.AuditID(),
		DataHash:     r.DataHash(),
		Dimensions:   r.Dimensions(),
		Participants: r.Participants(),
		MADMultiple:  r.MADMultiple(),
		CommitWindow: r.CommitDeadline().Sub(r.OpenedAt()),
		RevealWindow: r.RevealDeadline().Sub(r.CommitDeadline()),
		OpenedAt:     r.OpenedAt(),
	}, r.Commitments(), r.Reveals(), r.Settlement())
}

func roundNotFound(roundID string) error {
	return errors.NotFound("ROUND_NOT_FOUND", "no round with this id").
		WithOperation("GetRound").WithResource(roundID).Build()
}
