package exchange

import "errors"

// Swap request errors. Every rejected swap leaves reserves and
// balances unchanged.
var (
	// ErrValidation is returned for malformed requests: non-positive or
	// over-precise amounts, unknown pools or players. Rejected before
	// any lock is taken.
	ErrValidation = errors.New("validation error")

	// ErrInsufficientBalance is returned when the player's input-currency
	// balance is below the requested amount.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientLiquidity is returned when the computed output
	// would drain the opposing reserve to zero or below.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	// ErrRoundClosed is returned when the pool is not accepting swaps:
	// not yet activated, or already ended.
	ErrRoundClosed = errors.New("round closed")

	// ErrBusy is returned when the pool lock could not be acquired
	// within the configured wait. Callers may retry with backoff.
	ErrBusy = errors.New("pool busy")
)
