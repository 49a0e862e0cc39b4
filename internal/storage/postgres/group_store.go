package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"amm-experiment-lab/internal/domain"
	"amm-experiment-lab/internal/storage"
)

// GroupStore implements storage.GroupStore using PostgreSQL.
type GroupStore struct {
	pool *Pool
}

// NewGroupStore creates a new GroupStore.
func NewGroupStore(pool *Pool) *GroupStore {
	return &GroupStore{pool: pool}
}

// Compile-time interface check.
var _ storage.GroupStore = (*GroupStore)(nil)

// Insert adds a new group.
func (s *GroupStore) Insert(ctx context.Context, g *domain.Group) error {
	query := `
		INSERT INTO groups (id, experiment_id, group_number, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := s.pool.Exec(ctx, query, g.ID, g.ExperimentID, g.GroupNumber, g.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

// GetByID retrieves a group by its ID. Returns ErrNotFound if not exists.
func (s *GroupStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Group, error) {
	query := `SELECT id, experiment_id, group_number, created_at FROM groups WHERE id = $1`

	var g domain.Group
	err := s.pool.QueryRow(ctx, query, id).Scan(&g.ID, &g.ExperimentID, &g.GroupNumber, &g.CreatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get group by id: %w", err)
	}
	return &g, nil
}

// GetByExperiment retrieves all groups of an experiment, ordered by group number.
func (s *GroupStore) GetByExperiment(ctx context.Context, experimentID uuid.UUID) ([]*domain.Group, error) {
	query := `
		SELECT id, experiment_id, group_number, created_at
		FROM groups WHERE experiment_id = $1
		ORDER BY group_number
	`

	rows, err := s.pool.Query(ctx, query, experimentID)
	if err != nil {
		return nil, fmt.Errorf("get groups by experiment: %w", err)
	}
	defer rows.Close()

	return scanGroups(rows)
}

func scanGroups(rows pgx.Rows) ([]*domain.Group, error) {
	var result []*domain.Group
	for rows.Next() {
		var g domain.Group
		if err := rows.Scan(&g.ID, &g.ExperimentID, &g.GroupNumber, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		result = append(result, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return result, nil
}
