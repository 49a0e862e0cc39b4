// Package roundsetup seeds the per-group state of a round: the pool
// with its initial reserves, fresh player balances, and the randomized
// price-knowledge assignment. Seeded state stays invisible to players
// until the lifecycle controller activates the pool.
package roundsetup

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"amm-experiment-lab/internal/config"
	"amm-experiment-lab/internal/domain"
	"amm-experiment-lab/internal/storage"
)

// Initializer creates the stored state a group needs before its pool
// can go live.
type Initializer struct {
	pools     storage.PoolStore
	balances  storage.BalanceStore
	knowledge storage.KnowledgeStore
	players   storage.PlayerStore
	cfg       config.Config
	rand      *rand.Rand
	now       func() time.Time
	log       zerolog.Logger
}

// Options wires an Initializer. Rand and Now default to a
// time-seeded generator and time.Now; tests inject both.
type Options struct {
	Pools     storage.PoolStore
	Balances  storage.BalanceStore
	Knowledge storage.KnowledgeStore
	Players   storage.PlayerStore
	Config    config.Config
	Rand      *rand.Rand
	Now       func() time.Time
	Logger    zerolog.Logger
}

func New(opts Options) *Initializer {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Initializer{
		pools:     opts.Pools,
		balances:  opts.Balances,
		knowledge: opts.Knowledge,
		players:   opts.Players,
		cfg:       opts.Config,
		rand:      rng,
		now:       now,
		log:       opts.Logger.With().Str("component", "roundsetup").Logger(),
	}
}

// SeedGroup creates the group's pool for the round, inactive, plus one
// balance row per player per currency side and one knowledge row per
// player with an unbiased coin flip between the two currencies.
func (i *Initializer) SeedGroup(ctx context.Context, round *domain.Round, group *domain.Group) (*domain.Pool, error) {
	if round.InitialReserveX.Sign() <= 0 || round.InitialReserveY.Sign() <= 0 {
		return nil, fmt.Errorf("%w: round %s has non-positive initial reserves",
			config.ErrConfiguration, round.ID)
	}

	players, err := i.players.GetByGroup(ctx, group.ID)
	if err != nil {
		return nil, fmt.Errorf("load players of group %s: %w", group.ID, err)
	}
	if len(players) == 0 {
		return nil, fmt.Errorf("%w: group %s has no players", config.ErrConfiguration, group.ID)
	}

	now := i.now()
	pool := &domain.Pool{
		ID:                    uuid.New(),
		RoundID:               round.ID,
		GroupID:               group.ID,
		ReserveX:              round.InitialReserveX,
		ReserveY:              round.InitialReserveY,
		TransactionFeePercent: i.cfg.DefaultFeePercent,
		CreatedAt:             now,
	}
	pool.RecomputeK()

	if err := i.pools.Insert(ctx, pool); err != nil {
		return nil, fmt.Errorf("insert pool for group %s round %s: %w", group.ID, round.ID, err)
	}

	balances := make([]*domain.PlayerBalance, 0, len(players)*2)
	knowledge := make([]*domain.PlayerCurrencyKnowledge, 0, len(players))
	for _, p := range players {
		balances = append(balances,
			&domain.PlayerBalance{
				ID:         uuid.New(),
				PlayerID:   p.ID,
				PoolID:     pool.ID,
				CurrencyID: round.CurrencyXID,
				Balance:    i.cfg.StartingBalanceX,
				UpdatedAt:  now,
			},
			&domain.PlayerBalance{
				ID:         uuid.New(),
				PlayerID:   p.ID,
				PoolID:     pool.ID,
				CurrencyID: round.CurrencyYID,
				Balance:    i.cfg.StartingBalanceY,
				UpdatedAt:  now,
			},
		)

		revealed := round.CurrencyXID
		if i.rand.IntN(2) == 1 {
			revealed = round.CurrencyYID
		}
		knowledge = append(knowledge, &domain.PlayerCurrencyKnowledge{
			ID:                 uuid.New(),
			PlayerID:           p.ID,
			PoolID:             pool.ID,
			RevealedCurrencyID: revealed,
			CreatedAt:          now,
		})
	}

	if err := i.balances.InsertBulk(ctx, balances); err != nil {
		return nil, fmt.Errorf("seed balances for pool %s: %w", pool.ID, err)
	}
	if err := i.knowledge.InsertBulk(ctx, knowledge); err != nil {
		return nil, fmt.Errorf("seed knowledge for pool %s: %w", pool.ID, err)
	}

	i.log.Info().
		Str("pool_id", pool.ID.String()).
		Str("round_id", round.ID.String()).
		Str("group_id", group.ID.String()).
		Int("players", len(players)).
		Msg("group seeded")

	return pool, nil
}
