package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Pool is the AMM instance for one group in one round, holding the two
// reserves whose product is conserved (or grows, with positive fees)
// across swaps. Corresponds to the experiment_rounds table.
type Pool struct {
	ID                    uuid.UUID
	RoundID               uuid.UUID
	GroupID               uuid.UUID
	ReserveX              decimal.Decimal
	ReserveY              decimal.Decimal
	KConstant             decimal.Decimal // recomputed after every mutation, never trusted independently
	TransactionFeePercent decimal.Decimal
	IsActive              bool
	CreatedAt             time.Time
	StartedAt             *time.Time
	EndedAt               *time.Time
	ScoredAt              *time.Time
}

// RecomputeK refreshes KConstant from the current reserves.
func (p *Pool) RecomputeK() {
	p.KConstant = p.ReserveX.Mul(p.ReserveY)
}

// State reports the lifecycle state derived from the persisted fields.
func (p *Pool) State() PoolState {
	switch {
	case p.ScoredAt != nil:
		return PoolScored
	case p.EndedAt != nil:
		return PoolEnded
	case p.IsActive:
		return PoolActive
	default:
		return PoolInitialized
	}
}

// PoolState is the lifecycle state of a pool.
type PoolState string

// Lifecycle states. A pool is created already seeded, so the machine
// observable through storage starts at Initialized.
const (
	PoolInitialized PoolState = "initialized"
	PoolActive      PoolState = "active"
	PoolEnded       PoolState = "ended"
	PoolScored      PoolState = "scored"
)

// PlayerBalance is the holding of one player in one currency for one
// pool. Fresh rows are created every round; there is no carry-over.
type PlayerBalance struct {
	ID         uuid.UUID
	PlayerID   uuid.UUID
	PoolID     uuid.UUID
	CurrencyID uuid.UUID
	Balance    decimal.Decimal // always >= 0
	UpdatedAt  time.Time
}

// PlayerCurrencyKnowledge records which external price a player can
// see for a round. Fixed once the round is initialized.
type PlayerCurrencyKnowledge struct {
	ID                 uuid.UUID
	PlayerID           uuid.UUID
	PoolID             uuid.UUID
	RevealedCurrencyID uuid.UUID
	CreatedAt          time.Time
}
