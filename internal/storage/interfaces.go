package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"amm-experiment-lab/internal/domain"
)

// CurrencyStore provides access to currencies storage.
type CurrencyStore interface {
	// Insert adds a new currency. Returns ErrDuplicateKey if the symbol exists.
	Insert(ctx context.Context, c *domain.Currency) error

	// GetByID retrieves a currency by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Currency, error)

	// GetBySymbol retrieves a currency by its symbol. Returns ErrNotFound if not exists.
	GetBySymbol(ctx context.Context, symbol string) (*domain.Currency, error)
}

// ExperimentStore provides access to experiments storage.
type ExperimentStore interface {
	// Insert adds a new experiment.
	Insert(ctx context.Context, e *domain.Experiment) error

	// GetByID retrieves an experiment by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Experiment, error)

	// SetStartedAt stamps the experiment start time. No-op if already stamped.
	SetStartedAt(ctx context.Context, id uuid.UUID, at time.Time) error

	// SetEndedAt stamps the experiment end time. No-op if already stamped.
	SetEndedAt(ctx context.Context, id uuid.UUID, at time.Time) error
}

// GroupStore provides access to groups and group membership.
type GroupStore interface {
	// Insert adds a new group.
	Insert(ctx context.Context, g *domain.Group) error

	// GetByID retrieves a group by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Group, error)

	// GetByExperiment retrieves all groups of an experiment, ordered by group number.
	GetByExperiment(ctx context.Context, experimentID uuid.UUID) ([]*domain.Group, error)
}

// PlayerStore provides the membership lookup for group players.
type PlayerStore interface {
	// Insert adds a new player.
	Insert(ctx context.Context, p *domain.Player) error

	// GetByID retrieves a player by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Player, error)

	// GetByGroup retrieves all players of a group, ordered by ID for determinism.
	GetByGroup(ctx context.Context, groupID uuid.UUID) ([]*domain.Player, error)
}

// RoundStore provides access to round definitions.
type RoundStore interface {
	// Insert adds a new round.
	Insert(ctx context.Context, r *domain.Round) error

	// GetByID retrieves a round by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Round, error)

	// GetByExperiment retrieves all rounds of an experiment, ordered by round number.
	GetByExperiment(ctx context.Context, experimentID uuid.UUID) ([]*domain.Round, error)

	// SetStartedAt stamps the round start time. No-op if already stamped.
	SetStartedAt(ctx context.Context, id uuid.UUID, at time.Time) error

	// SetEndedAt stamps the round end time. No-op if already stamped.
	SetEndedAt(ctx context.Context, id uuid.UUID, at time.Time) error
}

// PoolStore provides access to the per-(round,group) AMM pool instances.
// ApplySwap is the single mutation path for reserves while a pool is
// active; activation state changes only through SetActive and the
// lifecycle stamps.
type PoolStore interface {
	// Insert adds a new pool. Returns ErrDuplicateKey if a pool for the
	// same (round, group) already exists.
	Insert(ctx context.Context, p *domain.Pool) error

	// GetByID retrieves a pool by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Pool, error)

	// GetByRound retrieves all pools of a round.
	GetByRound(ctx context.Context, roundID uuid.UUID) ([]*domain.Pool, error)

	// GetActive retrieves all currently active pools.
	GetActive(ctx context.Context) ([]*domain.Pool, error)

	// SetActive flips the activation flag and stamps started/ended
	// times. Activating an active pool or deactivating an inactive one
	// is a no-op that preserves the original stamps.
	SetActive(ctx context.Context, id uuid.UUID, active bool, at time.Time) error

	// SetScoredAt stamps the scoring time. No-op if already stamped.
	SetScoredAt(ctx context.Context, id uuid.UUID, at time.Time) error

	// ApplySwap commits the four effects of one swap atomically: the
	// pool's new reserves and k, both balance rows of the player, and
	// the appended transaction. Either all apply or none do; no
	// concurrent reader may observe a partial application.
	ApplySwap(ctx context.Context, exec *domain.SwapExecution) (*domain.Transaction, error)
}

// BalanceStore provides access to per-player per-currency balances.
type BalanceStore interface {
	// InsertBulk adds balance rows atomically. Fails entire batch on any
	// duplicate (player, pool, currency).
	InsertBulk(ctx context.Context, balances []*domain.PlayerBalance) error

	// Get retrieves one balance row. Returns ErrNotFound if not exists.
	Get(ctx context.Context, playerID, poolID, currencyID uuid.UUID) (*domain.PlayerBalance, error)

	// GetByPlayerAndPool retrieves both balance rows of a player in a pool.
	GetByPlayerAndPool(ctx context.Context, playerID, poolID uuid.UUID) ([]*domain.PlayerBalance, error)

	// GetByPool retrieves all balance rows of a pool.
	GetByPool(ctx context.Context, poolID uuid.UUID) ([]*domain.PlayerBalance, error)
}

// KnowledgeStore provides access to revealed-currency assignments.
type KnowledgeStore interface {
	// InsertBulk adds knowledge rows atomically. Fails entire batch on
	// any duplicate (player, pool).
	InsertBulk(ctx context.Context, rows []*domain.PlayerCurrencyKnowledge) error

	// GetByPlayerAndPool retrieves the assignment of a player in a pool.
	// Returns ErrNotFound if not exists.
	GetByPlayerAndPool(ctx context.Context, playerID, poolID uuid.UUID) (*domain.PlayerCurrencyKnowledge, error)

	// GetByPool retrieves all assignments of a pool.
	GetByPool(ctx context.Context, poolID uuid.UUID) ([]*domain.PlayerCurrencyKnowledge, error)
}

// TransactionStore provides read access to the append-only swap log.
// Inserts happen only through PoolStore.ApplySwap.
type TransactionStore interface {
	// GetByPool retrieves all transactions of a pool in commit order.
	GetByPool(ctx context.Context, poolID uuid.UUID) ([]*domain.Transaction, error)

	// GetByPlayerAndPool retrieves a player's transactions in a pool in
	// commit order.
	GetByPlayerAndPool(ctx context.Context, playerID, poolID uuid.UUID) ([]*domain.Transaction, error)
}

// FeedbackStore provides access to generated round feedback.
type FeedbackStore interface {
	// Insert adds a feedback record. Returns ErrDuplicateKey if one
	// already exists for (player, pool).
	Insert(ctx context.Context, f *domain.UserFeedback) error

	// GetByPlayerAndPool retrieves a player's feedback for a pool.
	// Returns ErrNotFound if not exists.
	GetByPlayerAndPool(ctx context.Context, playerID, poolID uuid.UUID) (*domain.UserFeedback, error)
}

// PaymentStore provides access to final payment amounts.
type PaymentStore interface {
	// Insert adds a payment. Returns ErrDuplicateKey if one already
	// exists for (player, experiment).
	Insert(ctx context.Context, p *domain.Payment) error

	// GetByPlayerAndExperiment retrieves a player's payment.
	// Returns ErrNotFound if not exists.
	GetByPlayerAndExperiment(ctx context.Context, playerID, experimentID uuid.UUID) (*domain.Payment, error)
}
