package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"amm-experiment-lab/internal/domain"
	"amm-experiment-lab/internal/storage"
)

// PaymentStore implements storage.PaymentStore using PostgreSQL.
type PaymentStore struct {
	pool *Pool
}

// NewPaymentStore creates a new PaymentStore.
func NewPaymentStore(pool *Pool) *PaymentStore {
	return &PaymentStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PaymentStore = (*PaymentStore)(nil)

// Insert adds a payment. Returns ErrDuplicateKey if one already exists
// for (player, experiment).
func (s *PaymentStore) Insert(ctx context.Context, p *domain.Payment) error {
	query := `
		INSERT INTO payments (id, player_id, experiment_id, total_profit, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.pool.Exec(ctx, query, p.ID, p.PlayerID, p.ExperimentID, p.TotalProfit, p.Amount, p.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByPlayerAndExperiment retrieves a player's payment.
func (s *PaymentStore) GetByPlayerAndExperiment(ctx context.Context, playerID, experimentID uuid.UUID) (*domain.Payment, error) {
	query := `
		SELECT id, player_id, experiment_id, total_profit, amount, created_at
		FROM payments
		WHERE player_id = $1 AND experiment_id = $2
	`

	var p domain.Payment
	err := s.pool.QueryRow(ctx, query, playerID, experimentID).Scan(
		&p.ID, &p.PlayerID, &p.ExperimentID, &p.TotalProfit, &p.Amount, &p.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return &p, nil
}
