// Package main runs the experiment lab end to end: storage (in-memory
// or PostgreSQL with embedded migrations), the swap engine, the
// lifecycle controller with its background expiry sweeper, and
// optionally a demo experiment driven to completion.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"amm-experiment-lab/internal/config"
	"amm-experiment-lab/internal/domain"
	"amm-experiment-lab/internal/exchange"
	"amm-experiment-lab/internal/keylock"
	"amm-experiment-lab/internal/lifecycle"
	"amm-experiment-lab/internal/observability"
	"amm-experiment-lab/internal/roundsetup"
	"amm-experiment-lab/internal/scoring"
	"amm-experiment-lab/internal/storage"
	"amm-experiment-lab/internal/storage/memory"
	"amm-experiment-lab/internal/storage/migrations"
	pgstore "amm-experiment-lab/internal/storage/postgres"
)

// allStores holds all storage implementations behind their interfaces.
type allStores struct {
	currencies   storage.CurrencyStore
	experiments  storage.ExperimentStore
	groups       storage.GroupStore
	players      storage.PlayerStore
	rounds       storage.RoundStore
	pools        storage.PoolStore
	balances     storage.BalanceStore
	transactions storage.TransactionStore
	knowledge    storage.KnowledgeStore
	feedback     storage.FeedbackStore
	payments     storage.PaymentStore
}

func main() {
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	sweepInterval := flag.Duration("sweep-interval", time.Second, "Round-expiry sweep cadence")
	lockWait := flag.Duration("lock-wait", 2*time.Second, "Per-pool lock wait bound")
	demo := flag.Bool("demo", false, "Seed and run a demo experiment, then exit")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address")
	pretty := flag.Bool("pretty", false, "Human-readable log output")

	flag.Parse()

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if *pretty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	if !*useMemory && *postgresDSN == "" {
		logger.Fatal().Msg("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	cfg := config.Default()
	cfg.LockWait = *lockWait
	cfg.SweepInterval = *sweepInterval
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	stores, cleanup, err := createStores(ctx, *postgresDSN, *useMemory)
	if err != nil {
		logger.Fatal().Err(err).Msg("create stores")
	}
	defer cleanup()

	locks := keylock.New()
	metrics := observability.NewMetrics("")

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	engine := exchange.New(exchange.Options{
		Pools:    stores.pools,
		Balances: stores.balances,
		Rounds:   stores.rounds,
		Locks:    locks,
		LockWait: cfg.LockWait,
		Logger:   logger,
		Metrics:  metrics,
	})
	_ = engine

	seeder := roundsetup.New(roundsetup.Options{
		Pools:     stores.pools,
		Balances:  stores.balances,
		Knowledge: stores.knowledge,
		Players:   stores.players,
		Config:    cfg,
		Logger:    logger,
	})

	scorer := scoring.New(scoring.Options{
		Rounds:       stores.rounds,
		Pools:        stores.pools,
		Balances:     stores.balances,
		Transactions: stores.transactions,
		Currencies:   stores.currencies,
		Feedback:     stores.feedback,
		Payments:     stores.payments,
		Config:       cfg,
		Logger:       logger,
	})

	controller := lifecycle.New(lifecycle.Options{
		Pools:      stores.pools,
		Rounds:     stores.rounds,
		Groups:     stores.groups,
		Seeder:     seeder,
		Scorer:     scorer,
		Locks:      locks,
		LockWait:   cfg.LockWait,
		StuckGrace: cfg.StuckGrace,
		Logger:     logger,
		Metrics:    metrics,
	})

	go controller.RunSweeper(ctx, cfg.SweepInterval)
	logger.Info().Dur("sweep_interval", cfg.SweepInterval).Msg("lab started")

	if *demo {
		if err := runDemo(ctx, stores, controller, scorer, cfg, logger); err != nil {
			logger.Fatal().Err(err).Msg("demo experiment failed")
		}
		return
	}

	<-ctx.Done()
}

func createStores(ctx context.Context, postgresDSN string, useMemory bool) (*allStores, func(), error) {
	if useMemory {
		ledger := memory.NewLedger()
		return &allStores{
			currencies:   memory.NewCurrencyStore(),
			experiments:  memory.NewExperimentStore(),
			groups:       memory.NewGroupStore(),
			players:      memory.NewPlayerStore(),
			rounds:       memory.NewRoundStore(),
			pools:        ledger,
			balances:     ledger.Balances(),
			transactions: ledger.Transactions(),
			knowledge:    memory.NewKnowledgeStore(),
			feedback:     memory.NewFeedbackStore(),
			payments:     memory.NewPaymentStore(),
		}, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	return &allStores{
		currencies:   pgstore.NewCurrencyStore(pool),
		experiments:  pgstore.NewExperimentStore(pool),
		groups:       pgstore.NewGroupStore(pool),
		players:      pgstore.NewPlayerStore(pool),
		rounds:       pgstore.NewRoundStore(pool),
		pools:        pgstore.NewPoolStore(pool),
		balances:     pgstore.NewBalanceStore(pool),
		transactions: pgstore.NewTransactionStore(pool),
		knowledge:    pgstore.NewKnowledgeStore(pool),
		feedback:     pgstore.NewFeedbackStore(pool),
		payments:     pgstore.NewPaymentStore(pool),
	}, pool.Close, nil
}

// runDemo seeds a two-group, two-round experiment and drives it to
// completion with the runner.
func runDemo(ctx context.Context, stores *allStores, controller *lifecycle.Controller, scorer *scoring.Scorer, cfg config.Config, logger zerolog.Logger) error {
	now := time.Now().UTC()

	currencyX := &domain.Currency{ID: uuid.New(), Symbol: "ALT", NameEN: "Altcoin", CreatedAt: now}
	currencyY := &domain.Currency{ID: uuid.New(), Symbol: "STB", NameEN: "Stablecoin", CreatedAt: now}
	for _, c := range []*domain.Currency{currencyX, currencyY} {
		if err := stores.currencies.Insert(ctx, c); err != nil {
			return fmt.Errorf("insert currency %s: %w", c.Symbol, err)
		}
	}

	experiment := &domain.Experiment{
		ID:                  uuid.New(),
		Name:                "demo",
		NumRounds:           2,
		NumTrainingRounds:   1,
		NumRoundsForPayment: 1,
		NumPlayers:          4,
		NumGroups:           2,
		CreatedAt:           now,
	}
	if err := config.ValidateExperiment(experiment); err != nil {
		return err
	}
	if err := stores.experiments.Insert(ctx, experiment); err != nil {
		return fmt.Errorf("insert experiment: %w", err)
	}

	for n := 1; n <= experiment.NumGroups; n++ {
		group := &domain.Group{ID: uuid.New(), ExperimentID: experiment.ID, GroupNumber: n, CreatedAt: now}
		if err := stores.groups.Insert(ctx, group); err != nil {
			return fmt.Errorf("insert group %d: %w", n, err)
		}
		for m := 1; m <= experiment.NumPlayers/experiment.NumGroups; m++ {
			player := &domain.Player{
				ID:        uuid.New(),
				GroupID:   group.ID,
				Name:      fmt.Sprintf("player-%d-%d", n, m),
				CreatedAt: now,
			}
			if err := stores.players.Insert(ctx, player); err != nil {
				return fmt.Errorf("insert player %s: %w", player.Name, err)
			}
		}
	}

	for n := 1; n <= experiment.NumRounds; n++ {
		round := &domain.Round{
			ID:               uuid.New(),
			ExperimentID:     experiment.ID,
			RoundNumber:      n,
			IsTrainingRound:  n <= experiment.NumTrainingRounds,
			CountsForPayment: n > experiment.NumTrainingRounds,
			DurationMinutes:  1,
			CurrencyXID:      currencyX.ID,
			CurrencyYID:      currencyY.ID,
			ExternalPriceX:   decimal.NewFromInt(30),
			ExternalPriceY:   decimal.NewFromInt(2),
			InitialReserveX:  decimal.NewFromInt(100),
			InitialReserveY:  decimal.NewFromInt(1500),
			CreatedAt:        now,
		}
		if err := stores.rounds.Insert(ctx, round); err != nil {
			return fmt.Errorf("insert round %d: %w", n, err)
		}
	}

	runner := lifecycle.NewRunner(lifecycle.RunnerOptions{
		Experiments: stores.experiments,
		Rounds:      stores.rounds,
		Pools:       stores.pools,
		Controller:  controller,
		Payments:    scorer,
		Poll:        cfg.SweepInterval,
		Logger: logger,
	})

	logger.Info().Str("experiment_id", experiment.ID.String()).Msg("demo experiment starting")
	return runner.RunExperiment(ctx, experiment.ID)
}
