package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"amm-experiment-lab/internal/domain"
	"amm-experiment-lab/internal/storage"
)

// BalanceStore implements storage.BalanceStore using PostgreSQL.
// Balance mutations during trading go exclusively through
// PoolStore.ApplySwap; this store only seeds and reads rows.
type BalanceStore struct {
	pool *Pool
}

// NewBalanceStore creates a new BalanceStore.
func NewBalanceStore(pool *Pool) *BalanceStore {
	return &BalanceStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BalanceStore = (*BalanceStore)(nil)

// InsertBulk adds balance rows atomically. Fails entire batch on any
// duplicate (player, pool, currency).
func (s *BalanceStore) InsertBulk(ctx context.Context, balances []*domain.PlayerBalance) error {
	if len(balances) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO player_balances (id, player_id, pool_id, currency_id, balance, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	for _, b := range balances {
		_, err := tx.Exec(ctx, query, b.ID, b.PlayerID, b.PoolID, b.CurrencyID, b.Balance, b.UpdatedAt)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert balance in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Get retrieves one balance row. Returns ErrNotFound if not exists.
func (s *BalanceStore) Get(ctx context.Context, playerID, poolID, currencyID uuid.UUID) (*domain.PlayerBalance, error) {
	query := `
		SELECT id, player_id, pool_id, currency_id, balance, updated_at
		FROM player_balances
		WHERE player_id = $1 AND pool_id = $2 AND currency_id = $3
	`

	b, err := scanBalance(s.pool.QueryRow(ctx, query, playerID, poolID, currencyID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return b, nil
}

// GetByPlayerAndPool retrieves both balance rows of a player in a pool.
func (s *BalanceStore) GetByPlayerAndPool(ctx context.Context, playerID, poolID uuid.UUID) ([]*domain.PlayerBalance, error) {
	query := `
		SELECT id, player_id, pool_id, currency_id, balance, updated_at
		FROM player_balances
		WHERE player_id = $1 AND pool_id = $2
		ORDER BY currency_id
	`

	rows, err := s.pool.Query(ctx, query, playerID, poolID)
	if err != nil {
		return nil, fmt.Errorf("get balances by player and pool: %w", err)
	}
	defer rows.Close()

	return scanBalances(rows)
}

// GetByPool retrieves all balance rows of a pool.
func (s *BalanceStore) GetByPool(ctx context.Context, poolID uuid.UUID) ([]*domain.PlayerBalance, error) {
	query := `
		SELECT id, player_id, pool_id, currency_id, balance, updated_at
		FROM player_balances
		WHERE pool_id = $1
		ORDER BY player_id, currency_id
	`

	rows, err := s.pool.Query(ctx, query, poolID)
	if err != nil {
		return nil, fmt.Errorf("get balances by pool: %w", err)
	}
	defer rows.Close()

	return scanBalances(rows)
}

func scanBalance(row pgx.Row) (*domain.PlayerBalance, error) {
	var b domain.PlayerBalance
	err := row.Scan(&b.ID, &b.PlayerID, &b.PoolID, &b.CurrencyID, &b.Balance, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func scanBalances(rows pgx.Rows) ([]*domain.PlayerBalance, error) {
	var result []*domain.PlayerBalance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balances: %w", err)
	}
	return result, nil
}
