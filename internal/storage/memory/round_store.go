package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"amm-experiment-lab/internal/domain"
	"amm-experiment-lab/internal/storage"
)

// RoundStore is an in-memory implementation of storage.RoundStore.
type RoundStore struct {
	mu   sync.RWMutex
	data map[uuid.UUID]*domain.Round
}

// NewRoundStore creates a new in-memory round store.
func NewRoundStore() *RoundStore {
	return &RoundStore{data: make(map[uuid.UUID]*domain.Round)}
}

// Compile-time interface check.
var _ storage.RoundStore = (*RoundStore)(nil)

// Insert adds a new round.
func (s *RoundStore) Insert(_ context.Context, r *domain.Round) error {
	if r == nil || r.ID == uuid.Nil || r.ExperimentID == uuid.Nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ID]; exists {
		return storage.ErrDuplicateKey
	}
	cp := *r
	s.data[r.ID] = &cp
	return nil
}

// GetByID retrieves a round by its ID.
func (s *RoundStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// GetByExperiment retrieves all rounds of an experiment, ordered by round number.
func (s *RoundStore) GetByExperiment(_ context.Context, experimentID uuid.UUID) ([]*domain.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Round
	for _, r := range s.data {
		if r.ExperimentID == experimentID {
			cp := *r
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].RoundNumber < result[j].RoundNumber
	})
	return result, nil
}

// SetStartedAt stamps the round start time. No-op if already stamped.
func (s *RoundStore) SetStartedAt(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.data[id]
	if !ok {
		return storage.ErrNotFound
	}
	if r.StartedAt == nil {
		t := at
		r.StartedAt = &t
	}
	return nil
}

// SetEndedAt stamps the round end time. No-op if already stamped.
func (s *RoundStore) SetEndedAt(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.data[id]
	if !ok {
		return storage.ErrNotFound
	}
	if r.EndedAt == nil {
		t := at
		r.EndedAt = &t
	}
	return nil
}
