package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Round is the logical round definition shared by all groups.
// External prices value each currency in a third reference currency;
// they drive scoring only, never swap execution.
type Round struct {
	ID               uuid.UUID
	ExperimentID     uuid.UUID
	RoundNumber      int
	IsTrainingRound  bool
	CountsForPayment bool
	DurationMinutes  int
	CurrencyXID      uuid.UUID
	CurrencyYID      uuid.UUID
	ExternalPriceX   decimal.Decimal
	ExternalPriceY   decimal.Decimal
	InitialReserveX  decimal.Decimal
	InitialReserveY  decimal.Decimal
	CreatedAt        time.Time
	StartedAt        *time.Time
	EndedAt          *time.Time
}
