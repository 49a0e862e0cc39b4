package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"amm-experiment-lab/internal/config"
	"amm-experiment-lab/internal/domain"
	"amm-experiment-lab/internal/storage"
)

// PaymentComputer aggregates scored rounds into persisted payments.
// Implemented by scoring.Scorer.
type PaymentComputer interface {
	ComputePayments(ctx context.Context, experiment *domain.Experiment) ([]*domain.Payment, error)
}

// Runner executes a whole experiment: every round in order, seeded,
// activated, expired by sweep, scored, then the final payments.
type Runner struct {
	experiments storage.ExperimentStore
	rounds      storage.RoundStore
	pools       storage.PoolStore
	controller  *Controller
	payments    PaymentComputer

	poll time.Duration
	now  func() time.Time
	log  zerolog.Logger
}

// RunnerOptions wires a Runner. Poll defaults to one second.
type RunnerOptions struct {
	Experiments storage.ExperimentStore
	Rounds      storage.RoundStore
	Pools       storage.PoolStore
	Controller  *Controller
	Payments    PaymentComputer

	Poll   time.Duration
	Now    func() time.Time
	Logger zerolog.Logger
}

func NewRunner(opts RunnerOptions) *Runner {
	poll := opts.Poll
	if poll <= 0 {
		poll = time.Second
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Runner{
		experiments: opts.Experiments,
		rounds:      opts.Rounds,
		pools:       opts.Pools,
		controller:  opts.Controller,
		payments:    opts.Payments,
		poll:        poll,
		now:         now,
		log:         opts.Logger.With().Str("component", "runner").Logger(),
	}
}

// RunExperiment drives the experiment from its first round to the
// final payment computation. Blocks until done or the context ends.
func (r *Runner) RunExperiment(ctx context.Context, experimentID uuid.UUID) error {
	experiment, err := r.experiments.GetByID(ctx, experimentID)
	if err != nil {
		return fmt.Errorf("load experiment %s: %w", experimentID, err)
	}
	if err := config.ValidateExperiment(experiment); err != nil {
		return err
	}
	if err := r.experiments.SetStartedAt(ctx, experimentID, r.now()); err != nil {
		return fmt.Errorf("stamp experiment start: %w", err)
	}

	rounds, err := r.rounds.GetByExperiment(ctx, experimentID)
	if err != nil {
		return fmt.Errorf("load rounds: %w", err)
	}
	if len(rounds) != experiment.NumRounds {
		return fmt.Errorf("%w: experiment declares %d rounds but %d are defined",
			config.ErrConfiguration, experiment.NumRounds, len(rounds))
	}

	for _, round := range rounds {
		if err := r.runRound(ctx, round); err != nil {
			return fmt.Errorf("round %d: %w", round.RoundNumber, err)
		}
	}

	if err := r.experiments.SetEndedAt(ctx, experimentID, r.now()); err != nil {
		return fmt.Errorf("stamp experiment end: %w", err)
	}

	payments, err := r.payments.ComputePayments(ctx, experiment)
	if err != nil {
		return fmt.Errorf("compute payments: %w", err)
	}

	r.log.Info().
		Str("experiment_id", experimentID.String()).
		Int("payments", len(payments)).
		Msg("experiment completed")
	return nil
}

func (r *Runner) runRound(ctx context.Context, round *domain.Round) error {
	pools, err := r.controller.CreatePoolsForRound(ctx, round.ID)
	if err != nil {
		return err
	}
	if err := r.controller.ActivateRound(ctx, round.ID); err != nil {
		return err
	}

	r.log.Info().
		Str("round_id", round.ID.String()).
		Int("round_number", round.RoundNumber).
		Int("pools", len(pools)).
		Msg("round live")

	// The runner sweeps on its own poll so an experiment drives to
	// completion even without the background sweeper.
	for {
		if _, err := r.controller.Sweep(ctx, r.now()); err != nil {
			r.log.Warn().Err(err).Msg("sweep errors during round wait")
		}
		done, err := r.allEnded(ctx, round.ID)
		if err != nil {
			return err
		}
		if done {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.poll):
		}
	}

	if err := r.rounds.SetEndedAt(ctx, round.ID, r.now()); err != nil {
		return fmt.Errorf("stamp round end: %w", err)
	}

	for _, p := range pools {
		if err := r.controller.ScorePool(ctx, p.ID); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) allEnded(ctx context.Context, roundID uuid.UUID) (bool, error) {
	pools, err := r.pools.GetByRound(ctx, roundID)
	if err != nil {
		return false, fmt.Errorf("load pools of round %s: %w", roundID, err)
	}
	for _, p := range pools {
		if p.State() != domain.PoolEnded && p.State() != domain.PoolScored {
			return false, nil
		}
	}
	return true, nil
}
