package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amm-experiment-lab/internal/domain"
	"amm-experiment-lab/internal/storage"
)

func TestRoundStore_InsertAndGetByExperiment(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	w := seedWorld(t, pool)
	store := NewRoundStore(pool)
	ctx := context.Background()

	// seedWorld already inserted round 1; add round 2 out of order
	// relative to creation time.
	second := &domain.Round{
		ID: uuid.New(), ExperimentID: w.experiment.ID, RoundNumber: 2,
		IsTrainingRound: true, DurationMinutes: 10,
		CurrencyXID: w.currencyX.ID, CurrencyYID: w.currencyY.ID,
		ExternalPriceX: decimal.RequireFromString("12.5"), ExternalPriceY: decimal.NewFromInt(3),
		InitialReserveX: decimal.NewFromInt(200), InitialReserveY: decimal.NewFromInt(800),
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.Insert(ctx, second))

	rounds, err := store.GetByExperiment(ctx, w.experiment.ID)
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	assert.Equal(t, 1, rounds[0].RoundNumber)
	assert.Equal(t, 2, rounds[1].RoundNumber)
	assert.True(t, rounds[1].IsTrainingRound)
	assert.True(t, rounds[1].ExternalPriceX.Equal(decimal.RequireFromString("12.5")))
}

func TestRoundStore_InsertDuplicateNumber(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	w := seedWorld(t, pool)

	dup := *w.round
	dup.ID = uuid.New()
	err := NewRoundStore(pool).Insert(context.Background(), &dup)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestRoundStore_StampsAreWriteOnce(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	w := seedWorld(t, pool)
	store := NewRoundStore(pool)
	ctx := context.Background()

	start := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, store.SetStartedAt(ctx, w.round.ID, start))
	require.NoError(t, store.SetStartedAt(ctx, w.round.ID, start.Add(time.Hour)))

	end := start.Add(5 * time.Minute)
	require.NoError(t, store.SetEndedAt(ctx, w.round.ID, end))
	require.NoError(t, store.SetEndedAt(ctx, w.round.ID, end.Add(time.Hour)))

	round, err := store.GetByID(ctx, w.round.ID)
	require.NoError(t, err)
	require.NotNil(t, round.StartedAt)
	require.NotNil(t, round.EndedAt)
	assert.True(t, round.StartedAt.Equal(start))
	assert.True(t, round.EndedAt.Equal(end))

	assert.ErrorIs(t, store.SetStartedAt(ctx, uuid.New(), start), storage.ErrNotFound)
}
