// Package verification replays a pool's transaction log against the
// round's initial reserves and checks that the frozen pool state is
// exactly reproduced. Comparisons are exact decimal equality: the
// engine's rounding is deterministic, so any divergence means the log
// and the stored state disagree.
package verification

import (
	"context"

	"github.com/google/uuid"
)

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string // field name, prefixed "tx[seq]." for per-transaction fields
	Expected string // stored value
	Actual   string // replayed value
}

// PoolResult contains the result of verifying a single pool.
type PoolResult struct {
	PoolID       uuid.UUID
	Match        bool
	Transactions int
	Divergences  []FieldDivergence
}

// Report contains results for batch verification.
type Report struct {
	TotalPools     int
	MatchedPools   int
	DivergentPools int
	Results        []PoolResult
}

// Verifier replays swap logs.
type Verifier interface {
	// VerifyPool replays one pool's log from the round's initial
	// reserves and compares every transaction and the final reserves
	// against the stored state.
	VerifyPool(ctx context.Context, poolID uuid.UUID) (*PoolResult, error)

	// VerifyExperiment verifies every pool of every round of an
	// experiment.
	VerifyExperiment(ctx context.Context, experimentID uuid.UUID) (*Report, error)
}
