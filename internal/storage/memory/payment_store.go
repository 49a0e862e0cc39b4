package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"amm-experiment-lab/internal/domain"
	"amm-experiment-lab/internal/storage"
)

// PaymentStore is an in-memory implementation of storage.PaymentStore.
type PaymentStore struct {
	mu   sync.RWMutex
	data map[paymentKey]*domain.Payment
}

type paymentKey struct {
	playerID     uuid.UUID
	experimentID uuid.UUID
}

// NewPaymentStore creates a new in-memory payment store.
func NewPaymentStore() *PaymentStore {
	return &PaymentStore{data: make(map[paymentKey]*domain.Payment)}
}

// Compile-time interface check.
var _ storage.PaymentStore = (*PaymentStore)(nil)

// Insert adds a payment. Returns ErrDuplicateKey if one already exists
// for (player, experiment).
func (s *PaymentStore) Insert(_ context.Context, p *domain.Payment) error {
	if p == nil || p.PlayerID == uuid.Nil || p.ExperimentID == uuid.Nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := paymentKey{p.PlayerID, p.ExperimentID}
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *p
	s.data[key] = &cp
	return nil
}

// GetByPlayerAndExperiment retrieves a player's payment.
func (s *PaymentStore) GetByPlayerAndExperiment(_ context.Context, playerID, experimentID uuid.UUID) (*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.data[paymentKey{playerID, experimentID}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}
