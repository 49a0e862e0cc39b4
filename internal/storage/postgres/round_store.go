package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"amm-experiment-lab/internal/domain"
	"amm-experiment-lab/internal/storage"
)

// RoundStore implements storage.RoundStore using PostgreSQL.
type RoundStore struct {
	pool *Pool
}

// NewRoundStore creates a new RoundStore.
func NewRoundStore(pool *Pool) *RoundStore {
	return &RoundStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RoundStore = (*RoundStore)(nil)

const roundColumns = `
	id, experiment_id, round_number, is_training_round, counts_for_payment,
	duration_minutes, currency_x_id, currency_y_id, external_price_x,
	external_price_y, initial_reserve_x, initial_reserve_y, created_at,
	started_at, ended_at
`

// Insert adds a new round.
func (s *RoundStore) Insert(ctx context.Context, r *domain.Round) error {
	query := `
		INSERT INTO rounds (
			id, experiment_id, round_number, is_training_round, counts_for_payment,
			duration_minutes, currency_x_id, currency_y_id, external_price_x,
			external_price_y, initial_reserve_x, initial_reserve_y, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.pool.Exec(ctx, query,
		r.ID,
		r.ExperimentID,
		r.RoundNumber,
		r.IsTrainingRound,
		r.CountsForPayment,
		r.DurationMinutes,
		r.CurrencyXID,
		r.CurrencyYID,
		r.ExternalPriceX,
		r.ExternalPriceY,
		r.InitialReserveX,
		r.InitialReserveY,
		r.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert round: %w", err)
	}
	return nil
}

// GetByID retrieves a round by its ID. Returns ErrNotFound if not exists.
func (s *RoundStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE id = $1`

	r, err := scanRound(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get round by id: %w", err)
	}
	return r, nil
}

// GetByExperiment retrieves all rounds of an experiment, ordered by round number.
func (s *RoundStore) GetByExperiment(ctx context.Context, experimentID uuid.UUID) ([]*domain.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE experiment_id = $1 ORDER BY round_number`

	rows, err := s.pool.Query(ctx, query, experimentID)
	if err != nil {
		return nil, fmt.Errorf("get rounds by experiment: %w", err)
	}
	defer rows.Close()

	var result []*domain.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rounds: %w", err)
	}
	return result, nil
}

// SetStartedAt stamps the round start time. No-op if already stamped.
func (s *RoundStore) SetStartedAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.stamp(ctx, "started_at", id, at)
}

// SetEndedAt stamps the round end time. No-op if already stamped.
func (s *RoundStore) SetEndedAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.stamp(ctx, "ended_at", id, at)
}

func (s *RoundStore) stamp(ctx context.Context, column string, id uuid.UUID, at time.Time) error {
	query := fmt.Sprintf(
		`UPDATE rounds SET %s = COALESCE(%s, $2) WHERE id = $1`,
		column, column,
	)

	tag, err := s.pool.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("stamp round %s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanRound(row pgx.Row) (*domain.Round, error) {
	var r domain.Round
	err := row.Scan(
		&r.ID,
		&r.ExperimentID,
		&r.RoundNumber,
		&r.IsTrainingRound,
		&r.CountsForPayment,
		&r.DurationMinutes,
		&r.CurrencyXID,
		&r.CurrencyYID,
		&r.ExternalPriceX,
		&r.ExternalPriceY,
		&r.InitialReserveX,
		&r.InitialReserveY,
		&r.CreatedAt,
		&r.StartedAt,
		&r.EndedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
