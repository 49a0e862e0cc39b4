package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"amm-experiment-lab/internal/domain"
	"amm-experiment-lab/internal/storage"
)

// PlayerStore is an in-memory implementation of storage.PlayerStore.
type PlayerStore struct {
	mu   sync.RWMutex
	data map[uuid.UUID]*domain.Player
}

// NewPlayerStore creates a new in-memory player store.
func NewPlayerStore() *PlayerStore {
	return &PlayerStore{data: make(map[uuid.UUID]*domain.Player)}
}

// Compile-time interface check.
var _ storage.PlayerStore = (*PlayerStore)(nil)

// Insert adds a new player.
func (s *PlayerStore) Insert(_ context.Context, p *domain.Player) error {
	if p == nil || p.ID == uuid.Nil || p.GroupID == uuid.Nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.ID]; exists {
		return storage.ErrDuplicateKey
	}
	cp := *p
	s.data[p.ID] = &cp
	return nil
}

// GetByID retrieves a player by its ID.
func (s *PlayerStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// GetByGroup retrieves all players of a group, ordered by ID for determinism.
func (s *PlayerStore) GetByGroup(_ context.Context, groupID uuid.UUID) ([]*domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Player
	for _, p := range s.data {
		if p.GroupID == groupID {
			cp := *p
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID.String() < result[j].ID.String()
	})
	return result, nil
}
