// Package exchange implements the constant-product swap engine. One
// engine serves every pool; conflicting swaps on a single pool are
// serialized by a keyed mutex shared with the lifecycle controller,
// while pools of different groups trade in full parallelism.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"amm-experiment-lab/internal/domain"
	"amm-experiment-lab/internal/keylock"
	"amm-experiment-lab/internal/observability"
	"amm-experiment-lab/internal/storage"
)

// reserveScale is the fixed-point scale of all persisted quantities.
// Swap outputs are rounded down to this scale, which keeps the reserve
// product non-decreasing even at zero fee.
const reserveScale = 8

var hundred = decimal.NewFromInt(100)

// SwapResult is the committed outcome of one swap.
type SwapResult struct {
	AmountOut   decimal.Decimal
	PriceRatio  decimal.Decimal
	NewReserveX decimal.Decimal
	NewReserveY decimal.Decimal
	Transaction *domain.Transaction
}

// Engine executes swaps against active pools.
type Engine struct {
	pools    storage.PoolStore
	balances storage.BalanceStore
	rounds   storage.RoundStore

	locks    *keylock.KeyedMutex
	lockWait time.Duration
	now      func() time.Time
	log      zerolog.Logger
	metrics  *observability.Metrics
}

// Options for creating an Engine.
type Options struct {
	Pools    storage.PoolStore
	Balances storage.BalanceStore
	Rounds   storage.RoundStore

	// Locks must be the same instance the lifecycle controller uses,
	// so deactivation and swaps serialize per pool.
	Locks    *keylock.KeyedMutex
	LockWait time.Duration

	// Now supplies timestamps; defaults to time.Now in UTC.
	Now    func() time.Time
	Logger zerolog.Logger

	// Metrics is optional.
	Metrics *observability.Metrics
}

// New creates an Engine.
func New(opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		pools:    opts.Pools,
		balances: opts.Balances,
		rounds:   opts.Rounds,
		locks:    opts.Locks,
		lockWait: opts.LockWait,
		now:      now,
		log:      opts.Logger.With().Str("component", "exchange").Logger(),
		metrics:  opts.Metrics,
	}
}

// Swap atomically executes one constant-product swap: it computes the
// output from the current reserves, debits and credits the player's
// two balance rows, updates the reserves, and appends the transaction
// record. All four effects commit together or not at all.
func (e *Engine) Swap(ctx context.Context, poolID, playerID uuid.UUID, direction domain.SwapDirection, amountIn decimal.Decimal) (*SwapResult, error) {
	start := time.Now()
	result, err := e.swap(ctx, poolID, playerID, direction, amountIn)
	if e.metrics != nil {
		if err != nil {
			e.metrics.SwapsRejected.WithLabelValues(rejectionReason(err)).Inc()
		} else {
			e.metrics.SwapsExecuted.Inc()
			e.metrics.SwapLatency.Observe(time.Since(start).Seconds())
		}
	}
	return result, err
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInsufficientBalance):
		return "balance"
	case errors.Is(err, ErrInsufficientLiquidity):
		return "liquidity"
	case errors.Is(err, ErrRoundClosed):
		return "closed"
	case errors.Is(err, ErrBusy):
		return "busy"
	default:
		return "internal"
	}
}

func (e *Engine) swap(ctx context.Context, poolID, playerID uuid.UUID, direction domain.SwapDirection, amountIn decimal.Decimal) (*SwapResult, error) {
	if err := validateAmount(amountIn); err != nil {
		return nil, err
	}
	if direction != domain.SwapXtoY && direction != domain.SwapYtoX {
		return nil, fmt.Errorf("%w: unknown direction %q", ErrValidation, direction)
	}

	if err := e.locks.Acquire(ctx, poolID, e.lockWait); err != nil {
		if errors.Is(err, keylock.ErrTimeout) {
			return nil, fmt.Errorf("%w: pool %s", ErrBusy, poolID)
		}
		return nil, err
	}
	defer e.locks.Release(poolID)

	pool, err := e.pools.GetByID(ctx, poolID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown pool %s", ErrValidation, poolID)
		}
		return nil, fmt.Errorf("load pool: %w", err)
	}
	if !pool.IsActive {
		return nil, fmt.Errorf("%w: pool %s", ErrRoundClosed, poolID)
	}

	round, err := e.rounds.GetByID(ctx, pool.RoundID)
	if err != nil {
		return nil, fmt.Errorf("load round: %w", err)
	}

	var currencyIn, currencyOut uuid.UUID
	var reserveIn, reserveOut decimal.Decimal
	if direction == domain.SwapXtoY {
		currencyIn, currencyOut = round.CurrencyXID, round.CurrencyYID
		reserveIn, reserveOut = pool.ReserveX, pool.ReserveY
	} else {
		currencyIn, currencyOut = round.CurrencyYID, round.CurrencyXID
		reserveIn, reserveOut = pool.ReserveY, pool.ReserveX
	}

	balIn, err := e.balances.Get(ctx, playerID, poolID, currencyIn)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: no balance for player %s in pool %s", ErrValidation, playerID, poolID)
		}
		return nil, fmt.Errorf("load input balance: %w", err)
	}
	balOut, err := e.balances.Get(ctx, playerID, poolID, currencyOut)
	if err != nil {
		return nil, fmt.Errorf("load output balance: %w", err)
	}

	if balIn.Balance.LessThan(amountIn) {
		return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, balIn.Balance, amountIn)
	}

	amountOut, err := Quote(reserveIn, reserveOut, amountIn, pool.TransactionFeePercent)
	if err != nil {
		return nil, err
	}

	newReserveIn := reserveIn.Add(amountIn)
	newReserveOut := reserveOut.Sub(amountOut)

	var newReserveX, newReserveY decimal.Decimal
	if direction == domain.SwapXtoY {
		newReserveX, newReserveY = newReserveIn, newReserveOut
	} else {
		newReserveX, newReserveY = newReserveOut, newReserveIn
	}

	priceRatio := amountOut.DivRound(amountIn, reserveScale)

	exec := &domain.SwapExecution{
		PoolID:        poolID,
		NewReserveX:   newReserveX,
		NewReserveY:   newReserveY,
		NewK:          newReserveX.Mul(newReserveY),
		PlayerID:      playerID,
		CurrencyInID:  currencyIn,
		CurrencyOutID: currencyOut,
		NewBalanceIn:  balIn.Balance.Sub(amountIn),
		NewBalanceOut: balOut.Balance.Add(amountOut),
		AmountIn:      amountIn,
		AmountOut:     amountOut,
		PriceRatio:    priceRatio,
		ExecutedAt:    e.now(),
	}

	tx, err := e.pools.ApplySwap(ctx, exec)
	if err != nil {
		return nil, fmt.Errorf("commit swap: %w", err)
	}

	e.log.Debug().
		Str("pool", poolID.String()).
		Str("player", playerID.String()).
		Str("direction", string(direction)).
		Str("amount_in", amountIn.String()).
		Str("amount_out", amountOut.String()).
		Int64("sequence", tx.Sequence).
		Msg("swap committed")

	return &SwapResult{
		AmountOut:   amountOut,
		PriceRatio:  priceRatio,
		NewReserveX: newReserveX,
		NewReserveY: newReserveY,
		Transaction: tx,
	}, nil
}

// Quote computes the constant-product output for amountIn against the
// given reserves, applying the proportional fee before the division:
//
//	effIn = amountIn * (1 - fee/100)
//	out   = reserveOut * effIn / (reserveIn + effIn)
//
// rounded down to the persisted scale. Returns ErrInsufficientLiquidity
// if the output would not leave the opposing reserve strictly positive.
func Quote(reserveIn, reserveOut, amountIn, feePercent decimal.Decimal) (decimal.Decimal, error) {
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: non-positive reserves", ErrInsufficientLiquidity)
	}

	effIn := amountIn.Mul(hundred.Sub(feePercent)).Div(hundred)
	out := reserveOut.Mul(effIn).Div(reserveIn.Add(effIn)).RoundDown(reserveScale)

	if out.Sign() <= 0 || out.GreaterThanOrEqual(reserveOut) {
		return decimal.Zero, fmt.Errorf("%w: output %s against reserve %s", ErrInsufficientLiquidity, out, reserveOut)
	}
	return out, nil
}

func validateAmount(amountIn decimal.Decimal) error {
	if amountIn.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrValidation, amountIn)
	}
	if amountIn.Exponent() < -reserveScale {
		return fmt.Errorf("%w: amount %s exceeds %d decimal places", ErrValidation, amountIn, reserveScale)
	}
	return nil
}
