package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"amm-experiment-lab/internal/domain"
	"amm-experiment-lab/internal/storage/migrations"
)

// setupTestDB creates a PostgreSQL container, applies the embedded
// migrations, and returns a cleanup function.
func setupTestDB(t *testing.T) (*Pool, func()) {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err, "failed to create pool")

	require.NoError(t, migrations.RunPostgresMigrations(ctx, pool), "failed to run migrations")

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

// seededWorld is the minimal referential chain a pool test needs:
// currencies, experiment, group, player, round.
type seededWorld struct {
	currencyX  *domain.Currency
	currencyY  *domain.Currency
	experiment *domain.Experiment
	group      *domain.Group
	player     *domain.Player
	round      *domain.Round
}

func seedWorld(t *testing.T, pool *Pool) *seededWorld {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	w := &seededWorld{
		currencyX: &domain.Currency{ID: uuid.New(), Symbol: "ALT", NameEN: "Altcoin", CreatedAt: now},
		currencyY: &domain.Currency{ID: uuid.New(), Symbol: "STB", NameEN: "Stablecoin", CreatedAt: now},
	}
	currencies := NewCurrencyStore(pool)
	require.NoError(t, currencies.Insert(ctx, w.currencyX))
	require.NoError(t, currencies.Insert(ctx, w.currencyY))

	w.experiment = &domain.Experiment{
		ID: uuid.New(), Name: "store test", NumRounds: 1, NumRoundsForPayment: 1,
		NumPlayers: 1, NumGroups: 1, CreatedAt: now,
	}
	require.NoError(t, NewExperimentStore(pool).Insert(ctx, w.experiment))

	w.group = &domain.Group{ID: uuid.New(), ExperimentID: w.experiment.ID, GroupNumber: 1, CreatedAt: now}
	require.NoError(t, NewGroupStore(pool).Insert(ctx, w.group))

	w.player = &domain.Player{ID: uuid.New(), GroupID: w.group.ID, Name: "tester", CreatedAt: now}
	require.NoError(t, NewPlayerStore(pool).Insert(ctx, w.player))

	w.round = &domain.Round{
		ID: uuid.New(), ExperimentID: w.experiment.ID, RoundNumber: 1,
		CountsForPayment: true, DurationMinutes: 5,
		CurrencyXID: w.currencyX.ID, CurrencyYID: w.currencyY.ID,
		ExternalPriceX: decimal.NewFromInt(30), ExternalPriceY: decimal.NewFromInt(2),
		InitialReserveX: decimal.NewFromInt(100), InitialReserveY: decimal.NewFromInt(1500),
		CreatedAt: now,
	}
	require.NoError(t, NewRoundStore(pool).Insert(ctx, w.round))

	return w
}

// seedPool creates an inactive pool for the world's (round, group).
func (w *seededWorld) seedPool(t *testing.T, pool *Pool) *domain.Pool {
	t.Helper()

	p := &domain.Pool{
		ID:                    uuid.New(),
		RoundID:               w.round.ID,
		GroupID:               w.group.ID,
		ReserveX:              w.round.InitialReserveX,
		ReserveY:              w.round.InitialReserveY,
		TransactionFeePercent: decimal.Zero,
		CreatedAt:             time.Now().UTC(),
	}
	p.RecomputeK()
	require.NoError(t, NewPoolStore(pool).Insert(context.Background(), p))
	return p
}

// seedBalances gives the world's player starting balances in the pool.
func (w *seededWorld) seedBalances(t *testing.T, pool *Pool, poolID uuid.UUID, x, y string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, NewBalanceStore(pool).InsertBulk(context.Background(), []*domain.PlayerBalance{
		{ID: uuid.New(), PlayerID: w.player.ID, PoolID: poolID, CurrencyID: w.currencyX.ID, Balance: decimal.RequireFromString(x), UpdatedAt: now},
		{ID: uuid.New(), PlayerID: w.player.ID, PoolID: poolID, CurrencyID: w.currencyY.ID, Balance: decimal.RequireFromString(y), UpdatedAt: now},
	}))
}
