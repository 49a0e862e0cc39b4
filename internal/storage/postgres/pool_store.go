package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"amm-experiment-lab/internal/domain"
	"amm-experiment-lab/internal/storage"
)

// PoolStore implements storage.PoolStore using PostgreSQL.
// ApplySwap runs inside a single transaction with the pool row locked
// FOR UPDATE, so conflicting swaps on one pool serialize at the
// database even if several engine processes share the store.
type PoolStore struct {
	pool *Pool
}

// NewPoolStore creates a new PoolStore.
func NewPoolStore(pool *Pool) *PoolStore {
	return &PoolStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PoolStore = (*PoolStore)(nil)

const poolColumns = `
	id, round_id, group_id, reserve_x, reserve_y, k_constant,
	transaction_fee_percent, is_active, created_at, started_at, ended_at, scored_at
`

// Insert adds a new pool. Returns ErrDuplicateKey if a pool for the
// same (round, group) already exists.
func (s *PoolStore) Insert(ctx context.Context, p *domain.Pool) error {
	query := `
		INSERT INTO experiment_rounds (
			id, round_id, group_id, reserve_x, reserve_y, k_constant,
			transaction_fee_percent, is_active, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.pool.Exec(ctx, query,
		p.ID,
		p.RoundID,
		p.GroupID,
		p.ReserveX,
		p.ReserveY,
		p.KConstant,
		p.TransactionFeePercent,
		p.IsActive,
		p.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert pool: %w", err)
	}
	return nil
}

// GetByID retrieves a pool by its ID. Returns ErrNotFound if not exists.
func (s *PoolStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Pool, error) {
	query := `SELECT ` + poolColumns + ` FROM experiment_rounds WHERE id = $1`

	row := s.pool.QueryRow(ctx, query, id)
	p, err := scanPool(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get pool by id: %w", err)
	}
	return p, nil
}

// GetByRound retrieves all pools of a round.
func (s *PoolStore) GetByRound(ctx context.Context, roundID uuid.UUID) ([]*domain.Pool, error) {
	query := `SELECT ` + poolColumns + ` FROM experiment_rounds WHERE round_id = $1 ORDER BY id`

	rows, err := s.pool.Query(ctx, query, roundID)
	if err != nil {
		return nil, fmt.Errorf("get pools by round: %w", err)
	}
	defer rows.Close()

	return scanPools(rows)
}

// GetActive retrieves all currently active pools.
func (s *PoolStore) GetActive(ctx context.Context) ([]*domain.Pool, error) {
	query := `SELECT ` + poolColumns + ` FROM experiment_rounds WHERE is_active ORDER BY id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get active pools: %w", err)
	}
	defer rows.Close()

	return scanPools(rows)
}

// SetActive flips the activation flag and stamps started/ended times.
// Repeated calls with the same flag are no-ops that preserve stamps.
func (s *PoolStore) SetActive(ctx context.Context, id uuid.UUID, active bool, at time.Time) error {
	var query string
	if active {
		query = `
			UPDATE experiment_rounds
			SET is_active = TRUE, started_at = COALESCE(started_at, $2)
			WHERE id = $1 AND NOT is_active
		`
	} else {
		query = `
			UPDATE experiment_rounds
			SET is_active = FALSE, ended_at = COALESCE(ended_at, $2)
			WHERE id = $1 AND is_active
		`
	}

	tag, err := s.pool.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("set pool active=%v: %w", active, err)
	}
	if tag.RowsAffected() == 0 {
		// Already in the requested state, or unknown pool.
		exists, err := s.exists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return storage.ErrNotFound
		}
	}
	return nil
}

// SetScoredAt stamps the scoring time. No-op if already stamped.
func (s *PoolStore) SetScoredAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE experiment_rounds
		SET scored_at = COALESCE(scored_at, $2)
		WHERE id = $1
	`

	tag, err := s.pool.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("set pool scored_at: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ApplySwap commits the four effects of one swap in a single database
// transaction: pool reserves, both balance rows, and the appended
// transaction record. The pool row is locked FOR UPDATE first; the
// sequence number is derived under that lock, so the log is totally
// ordered per pool.
func (s *PoolStore) ApplySwap(ctx context.Context, exec *domain.SwapExecution) (*domain.Transaction, error) {
	if exec == nil || exec.PoolID == uuid.Nil {
		return nil, storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT id FROM experiment_rounds WHERE id = $1 FOR UPDATE`,
		exec.PoolID,
	).Scan(&locked)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("lock pool row: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE experiment_rounds
		SET reserve_x = $2, reserve_y = $3, k_constant = $4
		WHERE id = $1
	`, exec.PoolID, exec.NewReserveX, exec.NewReserveY, exec.NewK)
	if err != nil {
		return nil, fmt.Errorf("update reserves: %w", err)
	}

	if err := s.updateBalance(ctx, tx, exec.PlayerID, exec.PoolID, exec.CurrencyInID, exec.NewBalanceIn, exec.ExecutedAt); err != nil {
		return nil, fmt.Errorf("update input balance: %w", err)
	}
	if err := s.updateBalance(ctx, tx, exec.PlayerID, exec.PoolID, exec.CurrencyOutID, exec.NewBalanceOut, exec.ExecutedAt); err != nil {
		return nil, fmt.Errorf("update output balance: %w", err)
	}

	record := &domain.Transaction{
		ID:            uuid.New(),
		PoolID:        exec.PoolID,
		PlayerID:      exec.PlayerID,
		CurrencyInID:  exec.CurrencyInID,
		AmountIn:      exec.AmountIn,
		CurrencyOutID: exec.CurrencyOutID,
		AmountOut:     exec.AmountOut,
		PriceRatio:    exec.PriceRatio,
		HasCompleted:  true,
		CreatedAt:     exec.ExecutedAt,
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO transactions (
			id, pool_id, player_id, sequence, currency_in_id, amount_in,
			currency_out_id, amount_out, price_ratio, has_completed, created_at
		)
		SELECT $1, $2, $3, COALESCE(MAX(sequence), 0) + 1, $4, $5, $6, $7, $8, $9, $10
		FROM transactions WHERE pool_id = $2
		RETURNING sequence
	`,
		record.ID,
		record.PoolID,
		record.PlayerID,
		record.CurrencyInID,
		record.AmountIn,
		record.CurrencyOutID,
		record.AmountOut,
		record.PriceRatio,
		record.HasCompleted,
		record.CreatedAt,
	).Scan(&record.Sequence)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return record, nil
}

func (s *PoolStore) updateBalance(ctx context.Context, tx pgx.Tx, playerID, poolID, currencyID uuid.UUID, balance decimal.Decimal, at time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE player_balances
		SET balance = $4, updated_at = $5
		WHERE player_id = $1 AND pool_id = $2 AND currency_id = $3
	`, playerID, poolID, currencyID, balance, at)
	if err != nil {
		if isCheckViolationError(err) {
			return storage.ErrInvalidInput
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *PoolStore) exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var found bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM experiment_rounds WHERE id = $1)`, id,
	).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("check pool exists: %w", err)
	}
	return found, nil
}

// rowScanner abstracts pgx.Row and pgx.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPool(row rowScanner) (*domain.Pool, error) {
	var p domain.Pool
	err := row.Scan(
		&p.ID,
		&p.RoundID,
		&p.GroupID,
		&p.ReserveX,
		&p.ReserveY,
		&p.KConstant,
		&p.TransactionFeePercent,
		&p.IsActive,
		&p.CreatedAt,
		&p.StartedAt,
		&p.EndedAt,
		&p.ScoredAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPools(rows pgx.Rows) ([]*domain.Pool, error) {
	var result []*domain.Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pool: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pools: %w", err)
	}
	return result, nil
}
