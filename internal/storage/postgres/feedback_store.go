package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"amm-experiment-lab/internal/domain"
	"amm-experiment-lab/internal/storage"
)

// FeedbackStore implements storage.FeedbackStore using PostgreSQL.
// Feedback items are stored as a JSONB array of strings.
type FeedbackStore struct {
	pool *Pool
}

// NewFeedbackStore creates a new FeedbackStore.
func NewFeedbackStore(pool *Pool) *FeedbackStore {
	return &FeedbackStore{pool: pool}
}

// Compile-time interface check.
var _ storage.FeedbackStore = (*FeedbackStore)(nil)

// Insert adds a feedback record. Returns ErrDuplicateKey if one already
// exists for (player, pool).
func (s *FeedbackStore) Insert(ctx context.Context, f *domain.UserFeedback) error {
	items, err := json.Marshal(f.Items)
	if err != nil {
		return fmt.Errorf("marshal feedback items: %w", err)
	}

	query := `
		INSERT INTO user_feedbacks (id, player_id, pool_id, feedback_items, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = s.pool.Exec(ctx, query, f.ID, f.PlayerID, f.PoolID, items, f.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

// GetByPlayerAndPool retrieves a player's feedback for a pool.
func (s *FeedbackStore) GetByPlayerAndPool(ctx context.Context, playerID, poolID uuid.UUID) (*domain.UserFeedback, error) {
	query := `
		SELECT id, player_id, pool_id, feedback_items, created_at
		FROM user_feedbacks
		WHERE player_id = $1 AND pool_id = $2
	`

	var (
		f     domain.UserFeedback
		items []byte
	)
	err := s.pool.QueryRow(ctx, query, playerID, poolID).Scan(
		&f.ID, &f.PlayerID, &f.PoolID, &items, &f.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get feedback: %w", err)
	}

	if err := json.Unmarshal(items, &f.Items); err != nil {
		return nil, fmt.Errorf("unmarshal feedback items: %w", err)
	}
	return &f, nil
}
