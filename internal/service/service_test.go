package service

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amm-experiment-lab/internal/config"
	"amm-experiment-lab/internal/domain"
	"amm-experiment-lab/internal/exchange"
	"amm-experiment-lab/internal/keylock"
	"amm-experiment-lab/internal/lifecycle"
	"amm-experiment-lab/internal/roundsetup"
	"amm-experiment-lab/internal/scoring"
	"amm-experiment-lab/internal/storage"
	"amm-experiment-lab/internal/storage/memory"
)

// fakeClock steps one minute per Now call.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Minute)
	return c.t
}

func TestService_EndToEnd(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	cfg := config.Default()

	ledger := memory.NewLedger()
	currencies := memory.NewCurrencyStore()
	experiments := memory.NewExperimentStore()
	groups := memory.NewGroupStore()
	players := memory.NewPlayerStore()
	rounds := memory.NewRoundStore()
	knowledge := memory.NewKnowledgeStore()
	feedback := memory.NewFeedbackStore()
	payments := memory.NewPaymentStore()
	locks := keylock.New()

	now := clock.Now()
	currencyX := &domain.Currency{ID: uuid.New(), Symbol: "ALT", NameEN: "Altcoin", CreatedAt: now}
	currencyY := &domain.Currency{ID: uuid.New(), Symbol: "STB", NameEN: "Stablecoin", CreatedAt: now}
	require.NoError(t, currencies.Insert(ctx, currencyX))
	require.NoError(t, currencies.Insert(ctx, currencyY))

	experiment := &domain.Experiment{
		ID: uuid.New(), Name: "e2e", NumRounds: 1, NumRoundsForPayment: 1,
		NumPlayers: 2, NumGroups: 1, CreatedAt: now,
	}
	require.NoError(t, experiments.Insert(ctx, experiment))

	group := &domain.Group{ID: uuid.New(), ExperimentID: experiment.ID, GroupNumber: 1, CreatedAt: now}
	require.NoError(t, groups.Insert(ctx, group))

	alice := &domain.Player{ID: uuid.New(), GroupID: group.ID, Name: "alice", CreatedAt: now}
	bob := &domain.Player{ID: uuid.New(), GroupID: group.ID, Name: "bob", CreatedAt: now}
	require.NoError(t, players.Insert(ctx, alice))
	require.NoError(t, players.Insert(ctx, bob))

	round := &domain.Round{
		ID: uuid.New(), ExperimentID: experiment.ID, RoundNumber: 1,
		CountsForPayment: true, DurationMinutes: 30,
		CurrencyXID: currencyX.ID, CurrencyYID: currencyY.ID,
		ExternalPriceX: decimal.NewFromInt(30), ExternalPriceY: decimal.NewFromInt(2),
		InitialReserveX: decimal.NewFromInt(100), InitialReserveY: decimal.NewFromInt(1500),
		CreatedAt: now,
	}
	require.NoError(t, rounds.Insert(ctx, round))

	engine := exchange.New(exchange.Options{
		Pools: ledger, Balances: ledger.Balances(), Rounds: rounds,
		Locks: locks, LockWait: cfg.LockWait, Logger: zerolog.Nop(),
	})
	seeder := roundsetup.New(roundsetup.Options{
		Pools: ledger, Balances: ledger.Balances(), Knowledge: knowledge,
		Players: players, Config: cfg,
		Rand: rand.New(rand.NewPCG(1, 0)), Now: clock.Now, Logger: zerolog.Nop(),
	})
	scorer := scoring.New(scoring.Options{
		Rounds: rounds, Pools: ledger, Balances: ledger.Balances(),
		Transactions: ledger.Transactions(), Currencies: currencies,
		Feedback: feedback, Payments: payments, Config: cfg,
		Now: clock.Now, Logger: zerolog.Nop(),
	})
	controller := lifecycle.New(lifecycle.Options{
		Pools: ledger, Rounds: rounds, Groups: groups,
		Seeder: seeder, Scorer: scorer,
		Locks: locks, LockWait: cfg.LockWait, StuckGrace: cfg.StuckGrace,
		Now: clock.Now, Logger: zerolog.Nop(),
	})

	svc := New(Options{
		Controller: controller, Engine: engine,
		Feedback: feedback, Payments: payments, Logger: zerolog.Nop(),
	})

	pools, err := svc.CreatePoolsForRound(ctx, round.ID)
	require.NoError(t, err)
	require.Len(t, pools, 1)
	poolID := pools[0].ID

	// Swapping before activation is rejected.
	_, err = svc.ExecuteSwap(ctx, poolID, alice.ID, domain.SwapXtoY, decimal.NewFromInt(5))
	require.ErrorIs(t, err, exchange.ErrRoundClosed)

	require.NoError(t, svc.ActivatePool(ctx, poolID))

	res, err := svc.ExecuteSwap(ctx, poolID, alice.ID, domain.SwapXtoY, decimal.NewFromInt(5))
	require.NoError(t, err)
	assert.True(t, res.AmountOut.IsPositive())

	require.NoError(t, svc.DeactivatePool(ctx, poolID))

	// Frozen: further swaps fail.
	_, err = svc.ExecuteSwap(ctx, poolID, bob.ID, domain.SwapYtoX, decimal.NewFromInt(10))
	require.ErrorIs(t, err, exchange.ErrRoundClosed)

	require.NoError(t, controller.ScorePool(ctx, poolID))

	fb, err := svc.GetFeedback(ctx, alice.ID, poolID)
	require.NoError(t, err)
	assert.NotEmpty(t, fb.Items)
	assert.Equal(t, "You made 1 trade this round.", fb.Items[0])

	// Bob never traded but still gets feedback and a payment.
	_, err = svc.GetFeedback(ctx, bob.ID, poolID)
	require.NoError(t, err)

	_, err = scorer.ComputePayments(ctx, experiment)
	require.NoError(t, err)

	payment, err := svc.GetPayment(ctx, alice.ID, experiment.ID)
	require.NoError(t, err)
	assert.True(t, payment.Amount.IsPositive())

	// Unknown player surfaces the storage sentinel.
	_, err = svc.GetPayment(ctx, uuid.New(), experiment.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
}
