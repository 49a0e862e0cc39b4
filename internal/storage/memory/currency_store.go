package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"amm-experiment-lab/internal/domain"
	"amm-experiment-lab/internal/storage"
)

// CurrencyStore is an in-memory implementation of storage.CurrencyStore.
type CurrencyStore struct {
	mu   sync.RWMutex
	data map[uuid.UUID]*domain.Currency
}

// NewCurrencyStore creates a new in-memory currency store.
func NewCurrencyStore() *CurrencyStore {
	return &CurrencyStore{data: make(map[uuid.UUID]*domain.Currency)}
}

// Compile-time interface check.
var _ storage.CurrencyStore = (*CurrencyStore)(nil)

// Insert adds a new currency. Returns ErrDuplicateKey if the symbol exists.
func (s *CurrencyStore) Insert(_ context.Context, c *domain.Currency) error {
	if c == nil || c.ID == uuid.Nil || c.Symbol == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[c.ID]; exists {
		return storage.ErrDuplicateKey
	}
	for _, existing := range s.data {
		if existing.Symbol == c.Symbol {
			return storage.ErrDuplicateKey
		}
	}

	cp := *c
	s.data[c.ID] = &cp
	return nil
}

// GetByID retrieves a currency by its ID.
func (s *CurrencyStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Currency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// GetBySymbol retrieves a currency by its symbol.
func (s *CurrencyStore) GetBySymbol(_ context.Context, symbol string) (*domain.Currency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.data {
		if c.Symbol == symbol {
			cp := *c
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}
