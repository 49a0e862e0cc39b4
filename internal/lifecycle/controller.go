// Package lifecycle drives pools through their state machine:
// Initialized -> Active -> Ended -> Scored. Activation and
// deactivation share the swap engine's per-pool locks, so closing a
// pool can never race an in-flight trade. Expiry is sweep-based and
// independent of swap traffic.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"amm-experiment-lab/internal/domain"
	"amm-experiment-lab/internal/exchange"
	"amm-experiment-lab/internal/keylock"
	"amm-experiment-lab/internal/observability"
	"amm-experiment-lab/internal/storage"
)

// Seeder creates the stored state of one group's pool. Implemented by
// roundsetup.Initializer.
type Seeder interface {
	SeedGroup(ctx context.Context, round *domain.Round, group *domain.Group) (*domain.Pool, error)
}

// Scorer computes and persists round results for an ended pool.
// Implemented by scoring.Scorer.
type Scorer interface {
	ScorePool(ctx context.Context, pool *domain.Pool) error
}

// Controller owns all pool state transitions.
type Controller struct {
	pools  storage.PoolStore
	rounds storage.RoundStore
	groups storage.GroupStore
	seeder Seeder
	scorer Scorer

	locks    *keylock.KeyedMutex
	lockWait time.Duration
	grace    time.Duration
	now      func() time.Time
	log      zerolog.Logger
	metrics  *observability.Metrics
}

// Options wires a Controller. Locks must be the same instance the swap
// engine uses.
type Options struct {
	Pools  storage.PoolStore
	Rounds storage.RoundStore
	Groups storage.GroupStore
	Seeder Seeder
	Scorer Scorer

	Locks      *keylock.KeyedMutex
	LockWait   time.Duration
	StuckGrace time.Duration
	Now        func() time.Time
	Logger     zerolog.Logger

	// Metrics is optional.
	Metrics *observability.Metrics
}

func New(opts Options) *Controller {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Controller{
		pools:    opts.Pools,
		rounds:   opts.Rounds,
		groups:   opts.Groups,
		seeder:   opts.Seeder,
		scorer:   opts.Scorer,
		locks:    opts.Locks,
		lockWait: opts.LockWait,
		grace:    opts.StuckGrace,
		now:      now,
		log:      opts.Logger.With().Str("component", "lifecycle").Logger(),
		metrics:  opts.Metrics,
	}
}

// CreatePoolsForRound seeds one pool per group of the round's
// experiment. If any group fails to seed, the error is returned and
// none of the round's pools may be activated; already-seeded pools
// stay inactive and harmless.
func (c *Controller) CreatePoolsForRound(ctx context.Context, roundID uuid.UUID) ([]*domain.Pool, error) {
	round, err := c.rounds.GetByID(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("load round %s: %w", roundID, err)
	}
	groups, err := c.groups.GetByExperiment(ctx, round.ExperimentID)
	if err != nil {
		return nil, fmt.Errorf("load groups of experiment %s: %w", round.ExperimentID, err)
	}

	pools := make([]*domain.Pool, 0, len(groups))
	for _, g := range groups {
		pool, err := c.seeder.SeedGroup(ctx, round, g)
		if err != nil {
			return nil, fmt.Errorf("seed group %d: %w", g.GroupNumber, err)
		}
		pools = append(pools, pool)
	}

	c.log.Info().
		Str("round_id", round.ID.String()).
		Int("pools", len(pools)).
		Msg("round pools created")
	return pools, nil
}

// ActivatePool opens a pool for trading. Idempotent: activating an
// already active pool is a no-op. A pool that has already ended cannot
// be reopened. First activation within a round stamps the round's
// start time.
func (c *Controller) ActivatePool(ctx context.Context, poolID uuid.UUID) error {
	if err := c.locks.Acquire(ctx, poolID, c.lockWait); err != nil {
		return fmt.Errorf("lock pool %s: %w", poolID, err)
	}
	defer c.locks.Release(poolID)

	pool, err := c.pools.GetByID(ctx, poolID)
	if err != nil {
		return fmt.Errorf("load pool %s: %w", poolID, err)
	}
	switch pool.State() {
	case domain.PoolActive:
		return nil
	case domain.PoolEnded, domain.PoolScored:
		return fmt.Errorf("%w: pool %s has already ended", exchange.ErrRoundClosed, poolID)
	}

	at := c.now()
	if err := c.pools.SetActive(ctx, poolID, true, at); err != nil {
		return fmt.Errorf("activate pool %s: %w", poolID, err)
	}
	if err := c.rounds.SetStartedAt(ctx, pool.RoundID, at); err != nil {
		return fmt.Errorf("stamp round %s start: %w", pool.RoundID, err)
	}

	if c.metrics != nil {
		c.metrics.PoolsActivated.Inc()
		c.metrics.ActivePools.Inc()
	}
	c.log.Info().Str("pool_id", poolID.String()).Msg("pool activated")
	return nil
}

// ActivateRound activates every pool of a round.
func (c *Controller) ActivateRound(ctx context.Context, roundID uuid.UUID) error {
	pools, err := c.pools.GetByRound(ctx, roundID)
	if err != nil {
		return fmt.Errorf("load pools of round %s: %w", roundID, err)
	}
	if len(pools) == 0 {
		return fmt.Errorf("%w: round %s has no pools", storage.ErrNotFound, roundID)
	}
	for _, p := range pools {
		if err := c.ActivatePool(ctx, p.ID); err != nil {
			return err
		}
	}
	return nil
}

// DeactivatePool closes a pool, freezing its reserves. Taking the
// pool's lock guarantees no swap is mid-commit when the flag flips.
// Idempotent on already ended pools.
func (c *Controller) DeactivatePool(ctx context.Context, poolID uuid.UUID) error {
	if err := c.locks.Acquire(ctx, poolID, c.lockWait); err != nil {
		return fmt.Errorf("lock pool %s: %w", poolID, err)
	}
	defer c.locks.Release(poolID)

	pool, err := c.pools.GetByID(ctx, poolID)
	if err != nil {
		return fmt.Errorf("load pool %s: %w", poolID, err)
	}
	if pool.State() == domain.PoolEnded || pool.State() == domain.PoolScored {
		return nil
	}

	if err := c.pools.SetActive(ctx, poolID, false, c.now()); err != nil {
		return fmt.Errorf("deactivate pool %s: %w", poolID, err)
	}

	if c.metrics != nil {
		c.metrics.PoolsClosed.Inc()
		c.metrics.ActivePools.Dec()
	}
	c.log.Info().
		Str("pool_id", poolID.String()).
		Str("reserve_x", pool.ReserveX.String()).
		Str("reserve_y", pool.ReserveY.String()).
		Msg("pool deactivated")
	return nil
}

// ScorePool moves an ended pool to Scored. Scoring an already scored
// pool is a no-op; scoring a pool that is still open is an error.
func (c *Controller) ScorePool(ctx context.Context, poolID uuid.UUID) error {
	pool, err := c.pools.GetByID(ctx, poolID)
	if err != nil {
		return fmt.Errorf("load pool %s: %w", poolID, err)
	}
	switch pool.State() {
	case domain.PoolScored:
		return nil
	case domain.PoolInitialized, domain.PoolActive:
		return fmt.Errorf("%w: pool %s has not ended", storage.ErrInvalidInput, poolID)
	}

	if err := c.scorer.ScorePool(ctx, pool); err != nil {
		return fmt.Errorf("score pool %s: %w", poolID, err)
	}
	if err := c.pools.SetScoredAt(ctx, poolID, c.now()); err != nil {
		return fmt.Errorf("stamp pool %s scored: %w", poolID, err)
	}

	if c.metrics != nil {
		c.metrics.PoolsScored.Inc()
	}
	c.log.Info().Str("pool_id", poolID.String()).Msg("pool scored")
	return nil
}

// Sweep closes every active pool whose deadline has passed at the
// given instant. A pool that remains active past deadline plus the
// configured grace is reported as stuck. Returns the number of pools
// closed.
func (c *Controller) Sweep(ctx context.Context, at time.Time) (int, error) {
	active, err := c.pools.GetActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("load active pools: %w", err)
	}
	if c.metrics != nil {
		c.metrics.SweepsRun.Inc()
		c.metrics.ActivePools.Set(float64(len(active)))
	}

	closed := 0
	var errs []error
	for _, pool := range active {
		if pool.StartedAt == nil {
			// Active without a start stamp is a store-level bug.
			c.log.Error().Str("pool_id", pool.ID.String()).Msg("active pool missing start stamp")
			continue
		}
		round, err := c.rounds.GetByID(ctx, pool.RoundID)
		if err != nil {
			errs = append(errs, fmt.Errorf("load round %s: %w", pool.RoundID, err))
			continue
		}
		deadline := pool.StartedAt.Add(time.Duration(round.DurationMinutes) * time.Minute)
		if at.Before(deadline) {
			continue
		}
		if err := c.DeactivatePool(ctx, pool.ID); err != nil {
			errs = append(errs, err)
			if at.After(deadline.Add(c.grace)) {
				if c.metrics != nil {
					c.metrics.StuckPools.Inc()
				}
				c.log.Error().
					Str("pool_id", pool.ID.String()).
					Time("deadline", deadline).
					Err(err).
					Msg("pool stuck past deadline and grace")
			}
			continue
		}
		closed++
	}

	if closed > 0 {
		c.log.Info().Int("closed", closed).Msg("expiry sweep closed pools")
	}
	return closed, errors.Join(errs...)
}

// RunSweeper runs Sweep on the given cadence until the context ends.
func (c *Controller) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Sweep(ctx, c.now()); err != nil {
				c.log.Warn().Err(err).Msg("expiry sweep errors")
			}
		}
	}
}
