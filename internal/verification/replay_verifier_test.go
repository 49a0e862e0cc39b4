package verification

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amm-experiment-lab/internal/domain"
	"amm-experiment-lab/internal/exchange"
	"amm-experiment-lab/internal/keylock"
	"amm-experiment-lab/internal/storage/memory"
)

type env struct {
	ledger   *memory.Ledger
	rounds   *memory.RoundStore
	engine   *exchange.Engine
	verifier *ReplayVerifier

	round  *domain.Round
	pool   *domain.Pool
	player uuid.UUID
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	e := &env{
		ledger: memory.NewLedger(),
		rounds: memory.NewRoundStore(),
		player: uuid.New(),
	}

	e.round = &domain.Round{
		ID:              uuid.New(),
		ExperimentID:    uuid.New(),
		RoundNumber:     1,
		DurationMinutes: 5,
		CurrencyXID:     uuid.New(),
		CurrencyYID:     uuid.New(),
		ExternalPriceX:  decimal.NewFromInt(30),
		ExternalPriceY:  decimal.NewFromInt(2),
		InitialReserveX: decimal.NewFromInt(100),
		InitialReserveY: decimal.NewFromInt(1500),
		CreatedAt:       now,
	}
	require.NoError(t, e.rounds.Insert(ctx, e.round))

	e.pool = &domain.Pool{
		ID:                    uuid.New(),
		RoundID:               e.round.ID,
		GroupID:               uuid.New(),
		ReserveX:              e.round.InitialReserveX,
		ReserveY:              e.round.InitialReserveY,
		TransactionFeePercent: decimal.RequireFromString("0.3"),
		CreatedAt:             now,
	}
	e.pool.RecomputeK()
	require.NoError(t, e.ledger.Insert(ctx, e.pool))
	require.NoError(t, e.ledger.SetActive(ctx, e.pool.ID, true, now))

	require.NoError(t, e.ledger.Balances().InsertBulk(ctx, []*domain.PlayerBalance{
		{ID: uuid.New(), PlayerID: e.player, PoolID: e.pool.ID, CurrencyID: e.round.CurrencyXID, Balance: decimal.NewFromInt(50), UpdatedAt: now},
		{ID: uuid.New(), PlayerID: e.player, PoolID: e.pool.ID, CurrencyID: e.round.CurrencyYID, Balance: decimal.NewFromInt(500), UpdatedAt: now},
	}))

	e.engine = exchange.New(exchange.Options{
		Pools:    e.ledger,
		Balances: e.ledger.Balances(),
		Rounds:   e.rounds,
		Locks:    keylock.New(),
		LockWait: time.Second,
		Logger:   zerolog.Nop(),
	})
	e.verifier = NewReplayVerifier(ReplayVerifierOptions{
		Pools:        e.ledger,
		Rounds:       e.rounds,
		Transactions: e.ledger.Transactions(),
	})
	return e
}

func (e *env) swap(t *testing.T, dir domain.SwapDirection, amount string) {
	t.Helper()
	_, err := e.engine.Swap(context.Background(), e.pool.ID, e.player, dir, decimal.RequireFromString(amount))
	require.NoError(t, err)
}

func TestVerifyPool_MatchesEngineOutput(t *testing.T) {
	e := newEnv(t)
	e.swap(t, domain.SwapXtoY, "10")
	e.swap(t, domain.SwapYtoX, "75.5")
	e.swap(t, domain.SwapXtoY, "3.14159265")

	result, err := e.verifier.VerifyPool(context.Background(), e.pool.ID)
	require.NoError(t, err)
	assert.True(t, result.Match, "divergences: %+v", result.Divergences)
	assert.Equal(t, 3, result.Transactions)
}

func TestVerifyPool_EmptyLog(t *testing.T) {
	e := newEnv(t)

	result, err := e.verifier.VerifyPool(context.Background(), e.pool.ID)
	require.NoError(t, err)
	assert.True(t, result.Match)
	assert.Equal(t, 0, result.Transactions)
}

func TestVerifyPool_DetectsTamperedReserves(t *testing.T) {
	e := newEnv(t)
	e.swap(t, domain.SwapXtoY, "10")

	// Corrupt the frozen state behind the log's back.
	ctx := context.Background()
	exec := &domain.SwapExecution{
		PoolID:       e.pool.ID,
		NewReserveX:  decimal.NewFromInt(999),
		NewReserveY:  decimal.NewFromInt(999),
		NewK:         decimal.NewFromInt(998001),
		PlayerID:     e.player,
		CurrencyInID: e.round.CurrencyXID,
		CurrencyOutID: e.round.CurrencyYID,
		NewBalanceIn:  decimal.NewFromInt(1),
		NewBalanceOut: decimal.NewFromInt(1),
		AmountIn:      decimal.NewFromInt(1),
		AmountOut:     decimal.NewFromInt(1),
		PriceRatio:    decimal.NewFromInt(1),
		ExecutedAt:    time.Now().UTC(),
	}
	_, err := e.ledger.ApplySwap(ctx, exec)
	require.NoError(t, err)

	result, err := e.verifier.VerifyPool(ctx, e.pool.ID)
	require.NoError(t, err)
	assert.False(t, result.Match)

	fields := make([]string, 0, len(result.Divergences))
	for _, d := range result.Divergences {
		fields = append(fields, d.Field)
	}
	assert.Contains(t, fields, "ReserveX")
	assert.Contains(t, fields, "ReserveY")
}

func TestVerifyPool_UnknownPool(t *testing.T) {
	e := newEnv(t)
	_, err := e.verifier.VerifyPool(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrPoolNotFound)
}

func TestVerifyExperiment(t *testing.T) {
	e := newEnv(t)
	e.swap(t, domain.SwapXtoY, "5")

	report, err := e.verifier.VerifyExperiment(context.Background(), e.round.ExperimentID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalPools)
	assert.Equal(t, 1, report.MatchedPools)
	assert.Equal(t, 0, report.DivergentPools)
}
