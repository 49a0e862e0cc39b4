// Package scoring values player holdings at round end, ranks players
// within their group, generates the templated feedback text, and
// aggregates profits across rounds into final payments. All outputs
// are deterministic: same stored state, same bytes.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"amm-experiment-lab/internal/config"
	"amm-experiment-lab/internal/domain"
	"amm-experiment-lab/internal/storage"
)

// Scorer computes round results and final payments.
type Scorer struct {
	rounds       storage.RoundStore
	pools        storage.PoolStore
	balances     storage.BalanceStore
	transactions storage.TransactionStore
	currencies   storage.CurrencyStore
	feedback     storage.FeedbackStore
	payments     storage.PaymentStore

	cfg config.Config
	now func() time.Time
	log zerolog.Logger
}

// Options wires a Scorer.
type Options struct {
	Rounds       storage.RoundStore
	Pools        storage.PoolStore
	Balances     storage.BalanceStore
	Transactions storage.TransactionStore
	Currencies   storage.CurrencyStore
	Feedback     storage.FeedbackStore
	Payments     storage.PaymentStore

	Config config.Config
	Now    func() time.Time
	Logger zerolog.Logger
}

func New(opts Options) *Scorer {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Scorer{
		rounds:       opts.Rounds,
		pools:        opts.Pools,
		balances:     opts.Balances,
		transactions: opts.Transactions,
		currencies:   opts.Currencies,
		feedback:     opts.Feedback,
		payments:     opts.Payments,
		cfg:          opts.Config,
		now:          now,
		log:          opts.Logger.With().Str("component", "scoring").Logger(),
	}
}

// Results values every player of the pool at the round's external
// prices and ranks them. Order: rank ascending, which means final
// value descending with ties broken by player UUID ascending.
func (s *Scorer) Results(ctx context.Context, pool *domain.Pool) ([]*domain.RoundResult, error) {
	round, err := s.rounds.GetByID(ctx, pool.RoundID)
	if err != nil {
		return nil, fmt.Errorf("load round %s: %w", pool.RoundID, err)
	}

	balances, err := s.balances.GetByPool(ctx, pool.ID)
	if err != nil {
		return nil, fmt.Errorf("load balances of pool %s: %w", pool.ID, err)
	}

	starting := s.cfg.StartingBalanceX.Mul(round.ExternalPriceX).
		Add(s.cfg.StartingBalanceY.Mul(round.ExternalPriceY))

	final := make(map[uuid.UUID]decimal.Decimal)
	for _, b := range balances {
		price, err := externalPrice(round, b.CurrencyID)
		if err != nil {
			return nil, err
		}
		final[b.PlayerID] = final[b.PlayerID].Add(b.Balance.Mul(price))
	}

	results := make([]*domain.RoundResult, 0, len(final))
	for playerID, value := range final {
		results = append(results, &domain.RoundResult{
			PlayerID:      playerID,
			PoolID:        pool.ID,
			StartingValue: starting,
			FinalValue:    value,
			Profit:        value.Sub(starting),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if !results[i].FinalValue.Equal(results[j].FinalValue) {
			return results[i].FinalValue.GreaterThan(results[j].FinalValue)
		}
		return results[i].PlayerID.String() < results[j].PlayerID.String()
	})
	for rank, r := range results {
		r.Rank = rank + 1
	}
	return results, nil
}

// ScorePool computes results for an ended pool and persists one
// feedback record per player. Re-scoring a pool whose feedback already
// exists is a no-op per player.
func (s *Scorer) ScorePool(ctx context.Context, pool *domain.Pool) error {
	results, err := s.Results(ctx, pool)
	if err != nil {
		return err
	}
	round, err := s.rounds.GetByID(ctx, pool.RoundID)
	if err != nil {
		return fmt.Errorf("load round %s: %w", pool.RoundID, err)
	}
	symbols, err := s.symbols(ctx, round)
	if err != nil {
		return err
	}

	for _, res := range results {
		txs, err := s.transactions.GetByPlayerAndPool(ctx, res.PlayerID, pool.ID)
		if err != nil {
			return fmt.Errorf("load transactions of player %s: %w", res.PlayerID, err)
		}

		fb := &domain.UserFeedback{
			ID:        uuid.New(),
			PlayerID:  res.PlayerID,
			PoolID:    pool.ID,
			Items:     feedbackItems(res, txs, symbols, len(results)),
			CreatedAt: s.now(),
		}
		if err := s.feedback.Insert(ctx, fb); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				continue
			}
			return fmt.Errorf("store feedback for player %s: %w", res.PlayerID, err)
		}
	}

	s.log.Info().
		Str("pool_id", pool.ID.String()).
		Int("players", len(results)).
		Msg("pool results computed")
	return nil
}

// ComputePayments sums each player's profit over the experiment's
// paying rounds and persists the final amounts. A round pays only when
// counts_for_payment is set and it is not a training round; training
// rounds are excluded even when misconfigured to count. Idempotent:
// players already paid are skipped.
func (s *Scorer) ComputePayments(ctx context.Context, experiment *domain.Experiment) ([]*domain.Payment, error) {
	rounds, err := s.rounds.GetByExperiment(ctx, experiment.ID)
	if err != nil {
		return nil, fmt.Errorf("load rounds: %w", err)
	}

	totals := make(map[uuid.UUID]decimal.Decimal)
	for _, round := range rounds {
		if !round.CountsForPayment || round.IsTrainingRound {
			continue
		}
		pools, err := s.pools.GetByRound(ctx, round.ID)
		if err != nil {
			return nil, fmt.Errorf("load pools of round %d: %w", round.RoundNumber, err)
		}
		for _, pool := range pools {
			results, err := s.Results(ctx, pool)
			if err != nil {
				return nil, err
			}
			for _, res := range results {
				totals[res.PlayerID] = totals[res.PlayerID].Add(res.Profit)
			}
		}
	}

	players := make([]uuid.UUID, 0, len(totals))
	for id := range totals {
		players = append(players, id)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].String() < players[j].String() })

	payments := make([]*domain.Payment, 0, len(players))
	for _, playerID := range players {
		p := &domain.Payment{
			ID:           uuid.New(),
			PlayerID:     playerID,
			ExperimentID: experiment.ID,
			TotalProfit:  totals[playerID],
			Amount:       s.cfg.BasePayment.Add(totals[playerID].Mul(s.cfg.BonusRate)),
			CreatedAt:    s.now(),
		}
		if err := s.payments.Insert(ctx, p); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				existing, err := s.payments.GetByPlayerAndExperiment(ctx, playerID, experiment.ID)
				if err != nil {
					return nil, fmt.Errorf("load existing payment for player %s: %w", playerID, err)
				}
				payments = append(payments, existing)
				continue
			}
			return nil, fmt.Errorf("store payment for player %s: %w", playerID, err)
		}
		payments = append(payments, p)
	}

	s.log.Info().
		Str("experiment_id", experiment.ID.String()).
		Int("payments", len(payments)).
		Msg("payments computed")
	return payments, nil
}

func (s *Scorer) symbols(ctx context.Context, round *domain.Round) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string, 2)
	for _, id := range []uuid.UUID{round.CurrencyXID, round.CurrencyYID} {
		c, err := s.currencies.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load currency %s: %w", id, err)
		}
		out[id] = c.Symbol
	}
	return out, nil
}

func externalPrice(round *domain.Round, currencyID uuid.UUID) (decimal.Decimal, error) {
	switch currencyID {
	case round.CurrencyXID:
		return round.ExternalPriceX, nil
	case round.CurrencyYID:
		return round.ExternalPriceY, nil
	default:
		return decimal.Zero, fmt.Errorf("%w: currency %s not part of round %s",
			storage.ErrInvalidInput, currencyID, round.ID)
	}
}

// feedbackItems renders the observations shown to one player. The
// text depends only on the player's own transactions and result, so
// regenerating it always yields the same items in the same order.
func feedbackItems(res *domain.RoundResult, txs []*domain.Transaction, symbols map[uuid.UUID]string, groupSize int) []string {
	items := make([]string, 0, 4)

	switch len(txs) {
	case 0:
		items = append(items, "You made no trades this round.")
	case 1:
		items = append(items, "You made 1 trade this round.")
	default:
		items = append(items, fmt.Sprintf("You made %d trades this round.", len(txs)))
	}

	if len(txs) > 0 {
		last := txs[len(txs)-1]
		items = append(items, fmt.Sprintf("Your last trade swapped %s %s for %s %s.",
			last.AmountIn, symbols[last.CurrencyInID], last.AmountOut, symbols[last.CurrencyOutID]))
	}

	items = append(items, fmt.Sprintf("Your holdings were worth %s at the start and %s at the end.",
		res.StartingValue, res.FinalValue))

	switch res.Profit.Sign() {
	case 1:
		items = append(items, fmt.Sprintf("You finished with a profit of %s.", res.Profit))
	case -1:
		items = append(items, fmt.Sprintf("You finished with a loss of %s.", res.Profit.Abs()))
	default:
		items = append(items, "You broke even this round.")
	}

	items = append(items, fmt.Sprintf("You ranked %d of %d in your group.", res.Rank, groupSize))
	return items
}
