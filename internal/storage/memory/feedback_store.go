package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"amm-experiment-lab/internal/domain"
	"amm-experiment-lab/internal/storage"
)

// FeedbackStore is an in-memory implementation of storage.FeedbackStore.
type FeedbackStore struct {
	mu   sync.RWMutex
	data map[feedbackKey]*domain.UserFeedback
}

type feedbackKey struct {
	playerID uuid.UUID
	poolID   uuid.UUID
}

// NewFeedbackStore creates a new in-memory feedback store.
func NewFeedbackStore() *FeedbackStore {
	return &FeedbackStore{data: make(map[feedbackKey]*domain.UserFeedback)}
}

// Compile-time interface check.
var _ storage.FeedbackStore = (*FeedbackStore)(nil)

// Insert adds a feedback record. Returns ErrDuplicateKey if one already
// exists for (player, pool).
func (s *FeedbackStore) Insert(_ context.Context, f *domain.UserFeedback) error {
	if f == nil || f.PlayerID == uuid.Nil || f.PoolID == uuid.Nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := feedbackKey{f.PlayerID, f.PoolID}
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *f
	cp.Items = append([]string(nil), f.Items...)
	s.data[key] = &cp
	return nil
}

// GetByPlayerAndPool retrieves a player's feedback for a pool.
func (s *FeedbackStore) GetByPlayerAndPool(_ context.Context, playerID, poolID uuid.UUID) (*domain.UserFeedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.data[feedbackKey{playerID, poolID}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *f
	cp.Items = append([]string(nil), f.Items...)
	return &cp, nil
}
