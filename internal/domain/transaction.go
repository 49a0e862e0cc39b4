package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SwapDirection selects which reserve the input amount flows into.
type SwapDirection string

// Swap direction constants.
const (
	SwapXtoY SwapDirection = "x_to_y"
	SwapYtoX SwapDirection = "y_to_x"
)

// Transaction is the immutable record of one executed swap. Rows are
// append-only and totally ordered per pool by Sequence; replaying them
// against the round's initial reserves reproduces the pool's reserve
// history exactly.
type Transaction struct {
	ID            uuid.UUID
	PoolID        uuid.UUID
	PlayerID      uuid.UUID
	Sequence      int64 // commit order within the pool, starting at 1
	CurrencyInID  uuid.UUID
	AmountIn      decimal.Decimal
	CurrencyOutID uuid.UUID
	AmountOut     decimal.Decimal
	PriceRatio    decimal.Decimal // AmountOut / AmountIn at execution
	HasCompleted  bool
	CreatedAt     time.Time
}

// SwapExecution carries the four effects of one committed swap: the
// new reserve pair, both balance deltas, and the transaction record.
// Stores apply it as a single atomic unit.
type SwapExecution struct {
	PoolID      uuid.UUID
	NewReserveX decimal.Decimal
	NewReserveY decimal.Decimal
	NewK        decimal.Decimal

	PlayerID       uuid.UUID
	CurrencyInID   uuid.UUID
	CurrencyOutID  uuid.UUID
	NewBalanceIn   decimal.Decimal
	NewBalanceOut  decimal.Decimal
	AmountIn       decimal.Decimal
	AmountOut      decimal.Decimal
	PriceRatio     decimal.Decimal
	ExecutedAt     time.Time
}
