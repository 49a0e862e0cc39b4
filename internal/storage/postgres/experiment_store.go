package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"amm-experiment-lab/internal/domain"
	"amm-experiment-lab/internal/storage"
)

// ExperimentStore implements storage.ExperimentStore using PostgreSQL.
type ExperimentStore struct {
	pool *Pool
}

// NewExperimentStore creates a new ExperimentStore.
func NewExperimentStore(pool *Pool) *ExperimentStore {
	return &ExperimentStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ExperimentStore = (*ExperimentStore)(nil)

// Insert adds a new experiment.
func (s *ExperimentStore) Insert(ctx context.Context, e *domain.Experiment) error {
	query := `
		INSERT INTO experiments (
			id, name, num_rounds, num_training_rounds, num_rounds_for_payment,
			num_players, num_groups, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.pool.Exec(ctx, query,
		e.ID,
		e.Name,
		e.NumRounds,
		e.NumTrainingRounds,
		e.NumRoundsForPayment,
		e.NumPlayers,
		e.NumGroups,
		e.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert experiment: %w", err)
	}
	return nil
}

// GetByID retrieves an experiment by its ID. Returns ErrNotFound if not exists.
func (s *ExperimentStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Experiment, error) {
	query := `
		SELECT id, name, num_rounds, num_training_rounds, num_rounds_for_payment,
			num_players, num_groups, created_at, started_at, ended_at
		FROM experiments WHERE id = $1
	`

	var e domain.Experiment
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&e.ID,
		&e.Name,
		&e.NumRounds,
		&e.NumTrainingRounds,
		&e.NumRoundsForPayment,
		&e.NumPlayers,
		&e.NumGroups,
		&e.CreatedAt,
		&e.StartedAt,
		&e.EndedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get experiment by id: %w", err)
	}
	return &e, nil
}

// SetStartedAt stamps the experiment start time. No-op if already stamped.
func (s *ExperimentStore) SetStartedAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.stamp(ctx, "started_at", id, at)
}

// SetEndedAt stamps the experiment end time. No-op if already stamped.
func (s *ExperimentStore) SetEndedAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.stamp(ctx, "ended_at", id, at)
}

func (s *ExperimentStore) stamp(ctx context.Context, column string, id uuid.UUID, at time.Time) error {
	query := fmt.Sprintf(
		`UPDATE experiments SET %s = COALESCE(%s, $2) WHERE id = $1`,
		column, column,
	)

	tag, err := s.pool.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("stamp experiment %s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
