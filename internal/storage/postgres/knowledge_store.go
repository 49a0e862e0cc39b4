package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"amm-experiment-lab/internal/domain"
	"amm-experiment-lab/internal/storage"
)

// KnowledgeStore implements storage.KnowledgeStore using PostgreSQL.
type KnowledgeStore struct {
	pool *Pool
}

// NewKnowledgeStore creates a new KnowledgeStore.
func NewKnowledgeStore(pool *Pool) *KnowledgeStore {
	return &KnowledgeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.KnowledgeStore = (*KnowledgeStore)(nil)

// InsertBulk adds knowledge rows atomically. Fails entire batch on any
// duplicate (player, pool).
func (s *KnowledgeStore) InsertBulk(ctx context.Context, rows []*domain.PlayerCurrencyKnowledge) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO player_currency_knowledge (id, player_id, pool_id, revealed_currency_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	for _, k := range rows {
		_, err := tx.Exec(ctx, query, k.ID, k.PlayerID, k.PoolID, k.RevealedCurrencyID, k.CreatedAt)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert knowledge in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByPlayerAndPool retrieves the assignment of a player in a pool.
func (s *KnowledgeStore) GetByPlayerAndPool(ctx context.Context, playerID, poolID uuid.UUID) (*domain.PlayerCurrencyKnowledge, error) {
	query := `
		SELECT id, player_id, pool_id, revealed_currency_id, created_at
		FROM player_currency_knowledge
		WHERE player_id = $1 AND pool_id = $2
	`

	var k domain.PlayerCurrencyKnowledge
	err := s.pool.QueryRow(ctx, query, playerID, poolID).Scan(
		&k.ID, &k.PlayerID, &k.PoolID, &k.RevealedCurrencyID, &k.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get knowledge: %w", err)
	}
	return &k, nil
}

// GetByPool retrieves all assignments of a pool.
func (s *KnowledgeStore) GetByPool(ctx context.Context, poolID uuid.UUID) ([]*domain.PlayerCurrencyKnowledge, error) {
	query := `
		SELECT id, player_id, pool_id, revealed_currency_id, created_at
		FROM player_currency_knowledge
		WHERE pool_id = $1
		ORDER BY player_id
	`

	rows, err := s.pool.Query(ctx, query, poolID)
	if err != nil {
		return nil, fmt.Errorf("get knowledge by pool: %w", err)
	}
	defer rows.Close()

	var result []*domain.PlayerCurrencyKnowledge
	for rows.Next() {
		var k domain.PlayerCurrencyKnowledge
		if err := rows.Scan(&k.ID, &k.PlayerID, &k.PoolID, &k.RevealedCurrencyID, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan knowledge: %w", err)
		}
		result = append(result, &k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate knowledge: %w", err)
	}
	return result, nil
}
