package verification

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"amm-experiment-lab/internal/exchange"
	"amm-experiment-lab/internal/storage"
)

// ErrPoolNotFound is returned when the pool ID doesn't exist.
var ErrPoolNotFound = errors.New("pool not found")

// ReplayVerifier implements Verifier on top of the stores.
type ReplayVerifier struct {
	pools        storage.PoolStore
	rounds       storage.RoundStore
	transactions storage.TransactionStore
}

// ReplayVerifierOptions contains the stores a ReplayVerifier reads.
type ReplayVerifierOptions struct {
	Pools        storage.PoolStore
	Rounds       storage.RoundStore
	Transactions storage.TransactionStore
}

// NewReplayVerifier creates a new ReplayVerifier.
func NewReplayVerifier(opts ReplayVerifierOptions) *ReplayVerifier {
	return &ReplayVerifier{
		pools:        opts.Pools,
		rounds:       opts.Rounds,
		transactions: opts.Transactions,
	}
}

// VerifyPool replays the pool's log. For every transaction it checks
// the sequence is gap-free and the stored output equals the
// constant-product quote at the replayed reserves, then applies the
// swap. At the end the replayed reserves and product must equal the
// frozen pool state exactly.
func (v *ReplayVerifier) VerifyPool(ctx context.Context, poolID uuid.UUID) (*PoolResult, error) {
	pool, err := v.pools.GetByID(ctx, poolID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrPoolNotFound
		}
		return nil, err
	}
	round, err := v.rounds.GetByID(ctx, pool.RoundID)
	if err != nil {
		return nil, fmt.Errorf("load round %s: %w", pool.RoundID, err)
	}
	txs, err := v.transactions.GetByPool(ctx, poolID)
	if err != nil {
		return nil, fmt.Errorf("load transactions of pool %s: %w", poolID, err)
	}

	result := &PoolResult{PoolID: poolID, Transactions: len(txs)}

	reserveX := round.InitialReserveX
	reserveY := round.InitialReserveY
	for i, tx := range txs {
		tag := fmt.Sprintf("tx[%d].", tx.Sequence)

		if want := int64(i + 1); tx.Sequence != want {
			result.Divergences = append(result.Divergences,
				divergence(tag+"Sequence", fmt.Sprint(want), fmt.Sprint(tx.Sequence)))
		}

		reserveIn, reserveOut := reserveX, reserveY
		if tx.CurrencyInID == round.CurrencyYID {
			reserveIn, reserveOut = reserveY, reserveX
		}

		quoted, err := exchange.Quote(reserveIn, reserveOut, tx.AmountIn, pool.TransactionFeePercent)
		if err != nil {
			result.Divergences = append(result.Divergences,
				divergence(tag+"Quote", "valid quote", err.Error()))
		} else if !quoted.Equal(tx.AmountOut) {
			result.Divergences = append(result.Divergences,
				divergence(tag+"AmountOut", tx.AmountOut.String(), quoted.String()))
		}

		// Apply the stored amounts, not the requote, so a single bad
		// transaction doesn't cascade into every later comparison.
		if tx.CurrencyInID == round.CurrencyYID {
			reserveY = reserveY.Add(tx.AmountIn)
			reserveX = reserveX.Sub(tx.AmountOut)
		} else {
			reserveX = reserveX.Add(tx.AmountIn)
			reserveY = reserveY.Sub(tx.AmountOut)
		}
	}

	result.Divergences = appendUnlessEqual(result.Divergences, "ReserveX", pool.ReserveX, reserveX)
	result.Divergences = appendUnlessEqual(result.Divergences, "ReserveY", pool.ReserveY, reserveY)
	result.Divergences = appendUnlessEqual(result.Divergences, "KConstant", pool.KConstant, reserveX.Mul(reserveY))

	result.Match = len(result.Divergences) == 0
	return result, nil
}

// VerifyExperiment verifies all pools of the experiment's rounds.
func (v *ReplayVerifier) VerifyExperiment(ctx context.Context, experimentID uuid.UUID) (*Report, error) {
	rounds, err := v.rounds.GetByExperiment(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("load rounds of experiment %s: %w", experimentID, err)
	}

	report := &Report{}
	for _, round := range rounds {
		pools, err := v.pools.GetByRound(ctx, round.ID)
		if err != nil {
			return nil, fmt.Errorf("load pools of round %d: %w", round.RoundNumber, err)
		}
		for _, pool := range pools {
			result, err := v.VerifyPool(ctx, pool.ID)
			if err != nil {
				return nil, err
			}
			report.TotalPools++
			report.Results = append(report.Results, *result)
			if result.Match {
				report.MatchedPools++
			} else {
				report.DivergentPools++
			}
		}
	}
	return report, nil
}

func divergence(field string, expected, actual string) FieldDivergence {
	return FieldDivergence{Field: field, Expected: expected, Actual: actual}
}

func appendUnlessEqual(divs []FieldDivergence, field string, expected, actual decimal.Decimal) []FieldDivergence {
	if expected.Equal(actual) {
		return divs
	}
	return append(divs, divergence(field, expected.String(), actual.String()))
}

var _ Verifier = (*ReplayVerifier)(nil)
