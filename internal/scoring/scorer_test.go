package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amm-experiment-lab/internal/config"
	"amm-experiment-lab/internal/domain"
	"amm-experiment-lab/internal/storage/memory"
)

type env struct {
	ledger     *memory.Ledger
	rounds     *memory.RoundStore
	currencies *memory.CurrencyStore
	feedback   *memory.FeedbackStore
	payments   *memory.PaymentStore
	scorer     *Scorer

	experiment *domain.Experiment
	curX, curY uuid.UUID
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	e := &env{
		ledger:     memory.NewLedger(),
		rounds:     memory.NewRoundStore(),
		currencies: memory.NewCurrencyStore(),
		feedback:   memory.NewFeedbackStore(),
		payments:   memory.NewPaymentStore(),
	}

	now := time.Now().UTC()
	for _, c := range []*domain.Currency{
		{ID: uuid.New(), Symbol: "ALT", NameEN: "Altcoin", CreatedAt: now},
		{ID: uuid.New(), Symbol: "STB", NameEN: "Stablecoin", CreatedAt: now},
	} {
		require.NoError(t, e.currencies.Insert(ctx, c))
		if c.Symbol == "ALT" {
			e.curX = c.ID
		} else {
			e.curY = c.ID
		}
	}

	e.experiment = &domain.Experiment{
		ID:                  uuid.New(),
		Name:                "test",
		NumRounds:           3,
		NumTrainingRounds:   1,
		NumRoundsForPayment: 2,
		NumPlayers:          2,
		NumGroups:           1,
		CreatedAt:           now,
	}

	e.scorer = New(Options{
		Rounds:       e.rounds,
		Pools:        e.ledger,
		Balances:     e.ledger.Balances(),
		Transactions: e.ledger.Transactions(),
		Currencies:   e.currencies,
		Feedback:     e.feedback,
		Payments:     e.payments,
		Config:       config.Default(),
		Logger:       zerolog.Nop(),
	})
	return e
}

// addRound creates a round with its pool and two balance rows per
// player, already ended, holding the given final balances.
func (e *env) addRound(t *testing.T, number int, training, counts bool, finals map[uuid.UUID][2]string) *domain.Pool {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	round := &domain.Round{
		ID:               uuid.New(),
		ExperimentID:     e.experiment.ID,
		RoundNumber:      number,
		IsTrainingRound:  training,
		CountsForPayment: counts,
		DurationMinutes:  5,
		CurrencyXID:      e.curX,
		CurrencyYID:      e.curY,
		ExternalPriceX:   decimal.NewFromInt(30),
		ExternalPriceY:   decimal.NewFromInt(2),
		InitialReserveX:  decimal.NewFromInt(100),
		InitialReserveY:  decimal.NewFromInt(1500),
		CreatedAt:        now,
	}
	require.NoError(t, e.rounds.Insert(ctx, round))

	pool := &domain.Pool{
		ID:                    uuid.New(),
		RoundID:               round.ID,
		GroupID:               uuid.New(),
		ReserveX:              round.InitialReserveX,
		ReserveY:              round.InitialReserveY,
		TransactionFeePercent: decimal.Zero,
		CreatedAt:             now,
	}
	pool.RecomputeK()
	require.NoError(t, e.ledger.Insert(ctx, pool))

	var balances []*domain.PlayerBalance
	for playerID, amounts := range finals {
		balances = append(balances,
			&domain.PlayerBalance{ID: uuid.New(), PlayerID: playerID, PoolID: pool.ID, CurrencyID: e.curX, Balance: decimal.RequireFromString(amounts[0]), UpdatedAt: now},
			&domain.PlayerBalance{ID: uuid.New(), PlayerID: playerID, PoolID: pool.ID, CurrencyID: e.curY, Balance: decimal.RequireFromString(amounts[1]), UpdatedAt: now},
		)
	}
	require.NoError(t, e.ledger.Balances().InsertBulk(ctx, balances))

	require.NoError(t, e.ledger.SetActive(ctx, pool.ID, true, now))
	require.NoError(t, e.ledger.SetActive(ctx, pool.ID, false, now.Add(5*time.Minute)))

	ended, err := e.ledger.GetByID(ctx, pool.ID)
	require.NoError(t, err)
	return ended
}

func TestResults_ValuesAndRanks(t *testing.T) {
	e := newEnv(t)
	winner, loser := uuid.New(), uuid.New()

	// Start value is always 10*30 + 150*2 = 600.
	pool := e.addRound(t, 1, false, true, map[uuid.UUID][2]string{
		winner: {"20", "50"}, // 20*30 + 50*2 = 700
		loser:  {"5", "100"}, // 5*30 + 100*2 = 350
	})

	results, err := e.scorer.Results(context.Background(), pool)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, winner, results[0].PlayerID)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, "600", results[0].StartingValue.String())
	assert.Equal(t, "700", results[0].FinalValue.String())
	assert.Equal(t, "100", results[0].Profit.String())

	assert.Equal(t, loser, results[1].PlayerID)
	assert.Equal(t, 2, results[1].Rank)
	assert.Equal(t, "-250", results[1].Profit.String())
}

func TestResults_TieBreaksByPlayerID(t *testing.T) {
	e := newEnv(t)
	a, b := uuid.New(), uuid.New()

	pool := e.addRound(t, 1, false, true, map[uuid.UUID][2]string{
		a: {"10", "150"},
		b: {"10", "150"},
	})

	results, err := e.scorer.Results(context.Background(), pool)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].PlayerID.String() < results[1].PlayerID.String())
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, 2, results[1].Rank)
}

func TestScorePool_FeedbackDeterministic(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	player := uuid.New()

	pool := e.addRound(t, 1, false, true, map[uuid.UUID][2]string{
		player: {"20", "50"},
	})

	require.NoError(t, e.scorer.ScorePool(ctx, pool))
	first, err := e.feedback.GetByPlayerAndPool(ctx, player, pool.ID)
	require.NoError(t, err)
	require.NotEmpty(t, first.Items)
	assert.Equal(t, "You made no trades this round.", first.Items[0])
	assert.Contains(t, first.Items, "You finished with a profit of 100.")
	assert.Contains(t, first.Items, "You ranked 1 of 1 in your group.")

	// Re-scoring neither duplicates nor mutates the stored feedback.
	require.NoError(t, e.scorer.ScorePool(ctx, pool))
	second, err := e.feedback.GetByPlayerAndPool(ctx, player, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Items, second.Items)
}

func TestComputePayments_ExcludesTrainingEvenWhenCounting(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	player := uuid.New()

	// Round 1 is a misconfigured training round with counts_for_payment
	// set anyway; its +300 profit must not reach the payment. Round 2
	// pays +150, round 3 does not count at all.
	e.addRound(t, 1, true, true, map[uuid.UUID][2]string{player: {"20", "150"}})
	e.addRound(t, 2, false, true, map[uuid.UUID][2]string{player: {"15", "150"}})
	e.addRound(t, 3, false, false, map[uuid.UUID][2]string{player: {"30", "150"}})

	payments, err := e.scorer.ComputePayments(ctx, e.experiment)
	require.NoError(t, err)
	require.Len(t, payments, 1)

	assert.Equal(t, player, payments[0].PlayerID)
	assert.Equal(t, "150", payments[0].TotalProfit.String())
	// base 50 + 150 * rate 1
	assert.Equal(t, "200", payments[0].Amount.String())

	stored, err := e.payments.GetByPlayerAndExperiment(ctx, player, e.experiment.ID)
	require.NoError(t, err)
	assert.True(t, stored.Amount.Equal(payments[0].Amount))
}

func TestComputePayments_Idempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	player := uuid.New()

	e.addRound(t, 1, false, true, map[uuid.UUID][2]string{player: {"15", "150"}})

	first, err := e.scorer.ComputePayments(ctx, e.experiment)
	require.NoError(t, err)
	second, err := e.scorer.ComputePayments(ctx, e.experiment)
	require.NoError(t, err)

	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.True(t, first[0].Amount.Equal(second[0].Amount))
}
