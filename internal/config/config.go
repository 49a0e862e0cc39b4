// Package config holds the externally supplied parameters of an
// experiment run: seeded balances, swap fee default, lock bounds, the
// expiry sweep cadence, and the payment formula constants.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"amm-experiment-lab/internal/domain"
)

// ErrConfiguration is returned when a lifecycle invariant is violated
// at setup time.
var ErrConfiguration = errors.New("configuration error")

// Config carries all tunables of a run. Zero values are not usable;
// construct with Default and override.
type Config struct {
	// StartingBalanceX and StartingBalanceY seed every player's fresh
	// balances at round initialization.
	StartingBalanceX decimal.Decimal
	StartingBalanceY decimal.Decimal

	// DefaultFeePercent applies to pools whose round does not override
	// the swap fee. Externally configured; zero by default.
	DefaultFeePercent decimal.Decimal

	// LockWait bounds how long a swap waits for the pool lock before
	// failing with a busy error.
	LockWait time.Duration

	// SweepInterval is the cadence of the round-expiry sweep.
	SweepInterval time.Duration

	// StuckGrace is the slack past a pool's deadline before it is
	// reported as stuck.
	StuckGrace time.Duration

	// BasePayment and BonusRate define the final payment formula:
	// payment = BasePayment + totalProfit * BonusRate.
	BasePayment decimal.Decimal
	BonusRate   decimal.Decimal
}

// Default returns the documented defaults.
func Default() Config {
	return Config{
		StartingBalanceX:  decimal.NewFromInt(10),
		StartingBalanceY:  decimal.NewFromInt(150),
		DefaultFeePercent: decimal.Zero,
		LockWait:          2 * time.Second,
		SweepInterval:     time.Second,
		StuckGrace:        time.Minute,
		BasePayment:       decimal.NewFromInt(50),
		BonusRate:         decimal.NewFromInt(1),
	}
}

// Validate checks the run parameters.
func (c Config) Validate() error {
	if c.StartingBalanceX.Sign() <= 0 || c.StartingBalanceY.Sign() <= 0 {
		return fmt.Errorf("%w: starting balances must be positive", ErrConfiguration)
	}
	if c.DefaultFeePercent.Sign() < 0 || c.DefaultFeePercent.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: fee percent must be in [0, 100)", ErrConfiguration)
	}
	if c.LockWait <= 0 {
		return fmt.Errorf("%w: lock wait must be positive", ErrConfiguration)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("%w: sweep interval must be positive", ErrConfiguration)
	}
	return nil
}

// ValidateExperiment checks the experiment-level round arithmetic.
func ValidateExperiment(e *domain.Experiment) error {
	if e.NumRounds <= 0 {
		return fmt.Errorf("%w: num_rounds must be positive", ErrConfiguration)
	}
	if e.NumTrainingRounds < 0 || e.NumTrainingRounds >= e.NumRounds {
		return fmt.Errorf("%w: num_training_rounds %d must be below num_rounds %d",
			ErrConfiguration, e.NumTrainingRounds, e.NumRounds)
	}
	if e.NumRoundsForPayment < 0 || e.NumRoundsForPayment > e.NumRounds-e.NumTrainingRounds {
		return fmt.Errorf("%w: num_rounds_for_payment %d exceeds available real rounds %d",
			ErrConfiguration, e.NumRoundsForPayment, e.NumRounds-e.NumTrainingRounds)
	}
	if e.NumGroups <= 0 || e.NumPlayers <= 0 {
		return fmt.Errorf("%w: players and groups must be positive", ErrConfiguration)
	}
	return nil
}
