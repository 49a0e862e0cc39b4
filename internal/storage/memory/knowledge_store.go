package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"amm-experiment-lab/internal/domain"
	"amm-experiment-lab/internal/storage"
)

// KnowledgeStore is an in-memory implementation of storage.KnowledgeStore.
type KnowledgeStore struct {
	mu   sync.RWMutex
	data map[knowledgeKey]*domain.PlayerCurrencyKnowledge
}

type knowledgeKey struct {
	playerID uuid.UUID
	poolID   uuid.UUID
}

// NewKnowledgeStore creates a new in-memory knowledge store.
func NewKnowledgeStore() *KnowledgeStore {
	return &KnowledgeStore{data: make(map[knowledgeKey]*domain.PlayerCurrencyKnowledge)}
}

// Compile-time interface check.
var _ storage.KnowledgeStore = (*KnowledgeStore)(nil)

// InsertBulk adds knowledge rows atomically. Fails entire batch on any
// duplicate (player, pool).
func (s *KnowledgeStore) InsertBulk(_ context.Context, rows []*domain.PlayerCurrencyKnowledge) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[knowledgeKey]struct{}, len(rows))
	for _, k := range rows {
		if k == nil || k.PlayerID == uuid.Nil || k.PoolID == uuid.Nil {
			return storage.ErrInvalidInput
		}
		key := knowledgeKey{k.PlayerID, k.PoolID}
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batch[key]; exists {
			return storage.ErrDuplicateKey
		}
		batch[key] = struct{}{}
	}

	for _, k := range rows {
		cp := *k
		s.data[knowledgeKey{k.PlayerID, k.PoolID}] = &cp
	}
	return nil
}

// GetByPlayerAndPool retrieves the assignment of a player in a pool.
func (s *KnowledgeStore) GetByPlayerAndPool(_ context.Context, playerID, poolID uuid.UUID) (*domain.PlayerCurrencyKnowledge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, ok := s.data[knowledgeKey{playerID, poolID}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *k
	return &cp, nil
}

// GetByPool retrieves all assignments of a pool.
func (s *KnowledgeStore) GetByPool(_ context.Context, poolID uuid.UUID) ([]*domain.PlayerCurrencyKnowledge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PlayerCurrencyKnowledge
	for _, k := range s.data {
		if k.PoolID == poolID {
			cp := *k
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PlayerID.String() < result[j].PlayerID.String()
	})
	return result, nil
}
