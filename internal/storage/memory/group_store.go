package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"amm-experiment-lab/internal/domain"
	"amm-experiment-lab/internal/storage"
)

// GroupStore is an in-memory implementation of storage.GroupStore.
type GroupStore struct {
	mu   sync.RWMutex
	data map[uuid.UUID]*domain.Group
}

// NewGroupStore creates a new in-memory group store.
func NewGroupStore() *GroupStore {
	return &GroupStore{data: make(map[uuid.UUID]*domain.Group)}
}

// Compile-time interface check.
var _ storage.GroupStore = (*GroupStore)(nil)

// Insert adds a new group.
func (s *GroupStore) Insert(_ context.Context, g *domain.Group) error {
	if g == nil || g.ID == uuid.Nil || g.ExperimentID == uuid.Nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[g.ID]; exists {
		return storage.ErrDuplicateKey
	}
	cp := *g
	s.data[g.ID] = &cp
	return nil
}

// GetByID retrieves a group by its ID.
func (s *GroupStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

// GetByExperiment retrieves all groups of an experiment, ordered by group number.
func (s *GroupStore) GetByExperiment(_ context.Context, experimentID uuid.UUID) ([]*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Group
	for _, g := range s.data {
		if g.ExperimentID == experimentID {
			cp := *g
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].GroupNumber < result[j].GroupNumber
	})
	return result, nil
}
