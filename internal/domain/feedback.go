package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UserFeedback is the ordered list of observations generated for one
// player at round end. Written once, never updated.
type UserFeedback struct {
	ID        uuid.UUID
	PlayerID  uuid.UUID
	PoolID    uuid.UUID
	Items     []string // templated observations, stored as JSON
	CreatedAt time.Time
}

// RoundResult is the per-player outcome of one scored pool, the input
// to feedback text and to cross-round payment aggregation.
type RoundResult struct {
	PlayerID      uuid.UUID
	PoolID        uuid.UUID
	StartingValue decimal.Decimal // holdings at round start, valued at external prices
	FinalValue    decimal.Decimal
	Profit        decimal.Decimal // FinalValue - StartingValue
	Rank          int             // 1-based within the group, by FinalValue descending
}

// Payment is the final amount owed to one player for one experiment.
type Payment struct {
	ID           uuid.UUID
	PlayerID     uuid.UUID
	ExperimentID uuid.UUID
	TotalProfit  decimal.Decimal
	Amount       decimal.Decimal
	CreatedAt    time.Time
}
