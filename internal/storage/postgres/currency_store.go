package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"amm-experiment-lab/internal/domain"
	"amm-experiment-lab/internal/storage"
)

// CurrencyStore implements storage.CurrencyStore using PostgreSQL.
type CurrencyStore struct {
	pool *Pool
}

// NewCurrencyStore creates a new CurrencyStore.
func NewCurrencyStore(pool *Pool) *CurrencyStore {
	return &CurrencyStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CurrencyStore = (*CurrencyStore)(nil)

// Insert adds a new currency. Returns ErrDuplicateKey if the symbol exists.
func (s *CurrencyStore) Insert(ctx context.Context, c *domain.Currency) error {
	query := `
		INSERT INTO currencies (id, symbol, name_en, name_he, image_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.pool.Exec(ctx, query, c.ID, c.Symbol, c.NameEN, c.NameHE, c.ImageURL, c.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert currency: %w", err)
	}
	return nil
}

// GetByID retrieves a currency by its ID. Returns ErrNotFound if not exists.
func (s *CurrencyStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Currency, error) {
	query := `
		SELECT id, symbol, name_en, name_he, COALESCE(image_url, ''), created_at
		FROM currencies WHERE id = $1
	`
	return s.scanOne(ctx, query, id)
}

// GetBySymbol retrieves a currency by its symbol. Returns ErrNotFound if not exists.
func (s *CurrencyStore) GetBySymbol(ctx context.Context, symbol string) (*domain.Currency, error) {
	query := `
		SELECT id, symbol, name_en, name_he, COALESCE(image_url, ''), created_at
		FROM currencies WHERE symbol = $1
	`
	return s.scanOne(ctx, query, symbol)
}

func (s *CurrencyStore) scanOne(ctx context.Context, query string, arg any) (*domain.Currency, error) {
	var c domain.Currency
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&c.ID, &c.Symbol, &c.NameEN, &c.NameHE, &c.ImageURL, &c.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get currency: %w", err)
	}
	return &c, nil
}
