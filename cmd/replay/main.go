// Package main replays stored swap logs and verifies that the frozen
// pool reserves are exactly reproduced.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"amm-experiment-lab/internal/storage/postgres"
	"amm-experiment-lab/internal/verification"
)

func main() {
	experimentID := flag.String("experiment-id", "", "Experiment ID to verify")
	poolID := flag.String("pool-id", "", "Single pool ID to verify")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	outputJSON := flag.Bool("json", false, "Output as JSON")

	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if (*experimentID == "") == (*poolID == "") {
		logger.Fatal().Msg("exactly one of --experiment-id or --pool-id is required")
	}
	if *postgresDSN == "" {
		logger.Fatal().Msg("--postgres-dsn is required")
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

	pool, err := postgres.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to postgres")
	}
	defer pool.Close()

	verifier := verification.NewReplayVerifier(verification.ReplayVerifierOptions{
		Pools:        postgres.NewPoolStore(pool),
		Rounds:       postgres.NewRoundStore(pool),
		Transactions: postgres.NewTransactionStore(pool),
	})

	var report *verification.Report
	if *poolID != "" {
		id, err := uuid.Parse(*poolID)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid --pool-id")
		}
		result, err := verifier.VerifyPool(ctx, id)
		if err != nil {
			logger.Fatal().Err(err).Msg("verify pool")
		}
		report = &verification.Report{TotalPools: 1, Results: []verification.PoolResult{*result}}
		if result.Match {
			report.MatchedPools = 1
		} else {
			report.DivergentPools = 1
		}
	} else {
		id, err := uuid.Parse(*experimentID)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid --experiment-id")
		}
		report, err = verifier.VerifyExperiment(ctx, id)
		if err != nil {
			logger.Fatal().Err(err).Msg("verify experiment")
		}
	}

	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			logger.Fatal().Err(err).Msg("encode report")
		}
	} else {
		for _, result := range report.Results {
			ev := logger.Info()
			if !result.Match {
				ev = logger.Error()
			}
			ev.Str("pool_id", result.PoolID.String()).
				Int("transactions", result.Transactions).
				Bool("match", result.Match).
				Int("divergences", len(result.Divergences)).
				Msg("pool verified")
			for _, d := range result.Divergences {
				logger.Error().
					Str("field", d.Field).
					Str("expected", d.Expected).
					Str("actual", d.Actual).
					Msg("divergence")
			}
		}
		logger.Info().
			Int("total", report.TotalPools).
			Int("matched", report.MatchedPools).
			Int("divergent", report.DivergentPools).
			Msg("verification complete")
	}

	if report.DivergentPools > 0 {
		os.Exit(1)
	}
}
