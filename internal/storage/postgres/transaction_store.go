package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"amm-experiment-lab/internal/domain"
	"amm-experiment-lab/internal/storage"
)

// TransactionStore implements storage.TransactionStore using PostgreSQL.
// The log is append-only; inserts happen inside PoolStore.ApplySwap.
type TransactionStore struct {
	pool *Pool
}

// NewTransactionStore creates a new TransactionStore.
func NewTransactionStore(pool *Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TransactionStore = (*TransactionStore)(nil)

const transactionColumns = `
	id, pool_id, player_id, sequence, currency_in_id, amount_in,
	currency_out_id, amount_out, price_ratio, has_completed, created_at
`

// GetByPool retrieves all transactions of a pool in commit order.
func (s *TransactionStore) GetByPool(ctx context.Context, poolID uuid.UUID) ([]*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE pool_id = $1 ORDER BY sequence`

	rows, err := s.pool.Query(ctx, query, poolID)
	if err != nil {
		return nil, fmt.Errorf("get transactions by pool: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// GetByPlayerAndPool retrieves a player's transactions in a pool in commit order.
func (s *TransactionStore) GetByPlayerAndPool(ctx context.Context, playerID, poolID uuid.UUID) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE player_id = $1 AND pool_id = $2
		ORDER BY sequence
	`

	rows, err := s.pool.Query(ctx, query, playerID, poolID)
	if err != nil {
		return nil, fmt.Errorf("get transactions by player and pool: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func scanTransactions(rows pgx.Rows) ([]*domain.Transaction, error) {
	var result []*domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		err := rows.Scan(
			&t.ID,
			&t.PoolID,
			&t.PlayerID,
			&t.Sequence,
			&t.CurrencyInID,
			&t.AmountIn,
			&t.CurrencyOutID,
			&t.AmountOut,
			&t.PriceRatio,
			&t.HasCompleted,
			&t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		result = append(result, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return result, nil
}
