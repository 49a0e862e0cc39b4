package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"amm-experiment-lab/internal/domain"
	"amm-experiment-lab/internal/storage"
)

// PlayerStore implements storage.PlayerStore using PostgreSQL.
type PlayerStore struct {
	pool *Pool
}

// NewPlayerStore creates a new PlayerStore.
func NewPlayerStore(pool *Pool) *PlayerStore {
	return &PlayerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PlayerStore = (*PlayerStore)(nil)

// Insert adds a new player.
func (s *PlayerStore) Insert(ctx context.Context, p *domain.Player) error {
	query := `INSERT INTO players (id, group_id, name, created_at) VALUES ($1, $2, $3, $4)`

	_, err := s.pool.Exec(ctx, query, p.ID, p.GroupID, p.Name, p.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert player: %w", err)
	}
	return nil
}

// GetByID retrieves a player by its ID. Returns ErrNotFound if not exists.
func (s *PlayerStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Player, error) {
	query := `SELECT id, group_id, name, created_at FROM players WHERE id = $1`

	var p domain.Player
	err := s.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.GroupID, &p.Name, &p.CreatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get player by id: %w", err)
	}
	return &p, nil
}

// GetByGroup retrieves all players of a group, ordered by ID for determinism.
func (s *PlayerStore) GetByGroup(ctx context.Context, groupID uuid.UUID) ([]*domain.Player, error) {
	query := `SELECT id, group_id, name, created_at FROM players WHERE group_id = $1 ORDER BY id`

	rows, err := s.pool.Query(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("get players by group: %w", err)
	}
	defer rows.Close()

	var result []*domain.Player
	for rows.Next() {
		var p domain.Player
		if err := rows.Scan(&p.ID, &p.GroupID, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		result = append(result, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate players: %w", err)
	}
	return result, nil
}
