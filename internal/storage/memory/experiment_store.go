package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"amm-experiment-lab/internal/domain"
	"amm-experiment-lab/internal/storage"
)

// ExperimentStore is an in-memory implementation of storage.ExperimentStore.
type ExperimentStore struct {
	mu   sync.RWMutex
	data map[uuid.UUID]*domain.Experiment
}

// NewExperimentStore creates a new in-memory experiment store.
func NewExperimentStore() *ExperimentStore {
	return &ExperimentStore{data: make(map[uuid.UUID]*domain.Experiment)}
}

// Compile-time interface check.
var _ storage.ExperimentStore = (*ExperimentStore)(nil)

// Insert adds a new experiment.
func (s *ExperimentStore) Insert(_ context.Context, e *domain.Experiment) error {
	if e == nil || e.ID == uuid.Nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.ID]; exists {
		return storage.ErrDuplicateKey
	}
	cp := *e
	s.data[e.ID] = &cp
	return nil
}

// GetByID retrieves an experiment by its ID.
func (s *ExperimentStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

// SetStartedAt stamps the experiment start time. No-op if already stamped.
func (s *ExperimentStore) SetStartedAt(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[id]
	if !ok {
		return storage.ErrNotFound
	}
	if e.StartedAt == nil {
		t := at
		e.StartedAt = &t
	}
	return nil
}

// SetEndedAt stamps the experiment end time. No-op if already stamped.
func (s *ExperimentStore) SetEndedAt(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[id]
	if !ok {
		return storage.ErrNotFound
	}
	if e.EndedAt == nil {
		t := at
		e.EndedAt = &t
	}
	return nil
}
