package lifecycle

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amm-experiment-lab/internal/config"
	"amm-experiment-lab/internal/domain"
	"amm-experiment-lab/internal/exchange"
	"amm-experiment-lab/internal/keylock"
	"amm-experiment-lab/internal/roundsetup"
	"amm-experiment-lab/internal/storage/memory"
)

// stepClock hands out strictly increasing instants, one minute apart.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Minute)
	return c.t
}

// recordingScorer counts ScorePool calls per pool.
type recordingScorer struct {
	mu    sync.Mutex
	calls map[uuid.UUID]int
	fail  bool
}

func (s *recordingScorer) ScorePool(_ context.Context, pool *domain.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("scorer failure")
	}
	if s.calls == nil {
		s.calls = make(map[uuid.UUID]int)
	}
	s.calls[pool.ID]++
	return nil
}

type world struct {
	ledger      *memory.Ledger
	rounds      *memory.RoundStore
	groups      *memory.GroupStore
	players     *memory.PlayerStore
	knowledge   *memory.KnowledgeStore
	experiments *memory.ExperimentStore
	locks       *keylock.KeyedMutex
	clock       *stepClock
	scorer      *recordingScorer
	ctl         *Controller

	experiment *domain.Experiment
	round      *domain.Round
	groupIDs   []uuid.UUID
}

func newWorld(t *testing.T, numGroups, playersPerGroup, durationMinutes int) *world {
	t.Helper()
	ctx := context.Background()

	w := &world{
		ledger:      memory.NewLedger(),
		rounds:      memory.NewRoundStore(),
		groups:      memory.NewGroupStore(),
		players:     memory.NewPlayerStore(),
		knowledge:   memory.NewKnowledgeStore(),
		experiments: memory.NewExperimentStore(),
		locks:       keylock.New(),
		clock:       newStepClock(),
		scorer:      &recordingScorer{},
	}

	now := time.Now().UTC()
	w.experiment = &domain.Experiment{
		ID:                  uuid.New(),
		Name:                "lifecycle test",
		NumRounds:           1,
		NumRoundsForPayment: 1,
		NumPlayers:          numGroups * playersPerGroup,
		NumGroups:           numGroups,
		CreatedAt:           now,
	}
	require.NoError(t, w.experiments.Insert(ctx, w.experiment))

	for n := 1; n <= numGroups; n++ {
		g := &domain.Group{ID: uuid.New(), ExperimentID: w.experiment.ID, GroupNumber: n, CreatedAt: now}
		require.NoError(t, w.groups.Insert(ctx, g))
		w.groupIDs = append(w.groupIDs, g.ID)
		for range playersPerGroup {
			require.NoError(t, w.players.Insert(ctx, &domain.Player{ID: uuid.New(), GroupID: g.ID, CreatedAt: now}))
		}
	}

	w.round = &domain.Round{
		ID:               uuid.New(),
		ExperimentID:     w.experiment.ID,
		RoundNumber:      1,
		CountsForPayment: true,
		DurationMinutes:  durationMinutes,
		CurrencyXID:      uuid.New(),
		CurrencyYID:      uuid.New(),
		ExternalPriceX:   decimal.NewFromInt(30),
		ExternalPriceY:   decimal.NewFromInt(2),
		InitialReserveX:  decimal.NewFromInt(100),
		InitialReserveY:  decimal.NewFromInt(1500),
		CreatedAt:        now,
	}
	require.NoError(t, w.rounds.Insert(ctx, w.round))

	seeder := roundsetup.New(roundsetup.Options{
		Pools:     w.ledger,
		Balances:  w.ledger.Balances(),
		Knowledge: w.knowledge,
		Players:   w.players,
		Config:    config.Default(),
		Rand:      rand.New(rand.NewPCG(1, 0)),
		Now:       w.clock.Now,
		Logger:    zerolog.Nop(),
	})

	w.ctl = New(Options{
		Pools:      w.ledger,
		Rounds:     w.rounds,
		Groups:     w.groups,
		Seeder:     seeder,
		Scorer:     w.scorer,
		Locks:      w.locks,
		LockWait:   time.Second,
		StuckGrace: time.Minute,
		Now:        w.clock.Now,
		Logger:     zerolog.Nop(),
	})
	return w
}

func TestCreatePoolsForRound(t *testing.T) {
	w := newWorld(t, 3, 2, 5)
	ctx := context.Background()

	pools, err := w.ctl.CreatePoolsForRound(ctx, w.round.ID)
	require.NoError(t, err)
	require.Len(t, pools, 3)

	for _, p := range pools {
		assert.Equal(t, domain.PoolInitialized, p.State())
	}

	// A second call collides on (round, group) for every group.
	_, err = w.ctl.CreatePoolsForRound(ctx, w.round.ID)
	require.Error(t, err)
}

func TestActivateDeactivate_Idempotent(t *testing.T) {
	w := newWorld(t, 1, 2, 5)
	ctx := context.Background()

	pools, err := w.ctl.CreatePoolsForRound(ctx, w.round.ID)
	require.NoError(t, err)
	poolID := pools[0].ID

	require.NoError(t, w.ctl.ActivatePool(ctx, poolID))
	first, err := w.ledger.GetByID(ctx, poolID)
	require.NoError(t, err)
	require.NotNil(t, first.StartedAt)

	// Second activation keeps the original stamp.
	require.NoError(t, w.ctl.ActivatePool(ctx, poolID))
	again, err := w.ledger.GetByID(ctx, poolID)
	require.NoError(t, err)
	assert.True(t, first.StartedAt.Equal(*again.StartedAt))

	// Round start was stamped by the first activation.
	round, err := w.rounds.GetByID(ctx, w.round.ID)
	require.NoError(t, err)
	require.NotNil(t, round.StartedAt)

	require.NoError(t, w.ctl.DeactivatePool(ctx, poolID))
	ended, err := w.ledger.GetByID(ctx, poolID)
	require.NoError(t, err)
	require.NotNil(t, ended.EndedAt)
	assert.Equal(t, domain.PoolEnded, ended.State())

	require.NoError(t, w.ctl.DeactivatePool(ctx, poolID))
	still, err := w.ledger.GetByID(ctx, poolID)
	require.NoError(t, err)
	assert.True(t, ended.EndedAt.Equal(*still.EndedAt))

	// An ended pool cannot reopen.
	require.ErrorIs(t, w.ctl.ActivatePool(ctx, poolID), exchange.ErrRoundClosed)
}

func TestScorePool_Transitions(t *testing.T) {
	w := newWorld(t, 1, 2, 5)
	ctx := context.Background()

	pools, err := w.ctl.CreatePoolsForRound(ctx, w.round.ID)
	require.NoError(t, err)
	poolID := pools[0].ID

	// Not ended yet.
	require.Error(t, w.ctl.ScorePool(ctx, poolID))

	require.NoError(t, w.ctl.ActivatePool(ctx, poolID))
	require.NoError(t, w.ctl.DeactivatePool(ctx, poolID))

	require.NoError(t, w.ctl.ScorePool(ctx, poolID))
	scored, err := w.ledger.GetByID(ctx, poolID)
	require.NoError(t, err)
	assert.Equal(t, domain.PoolScored, scored.State())
	assert.Equal(t, 1, w.scorer.calls[poolID])

	// Scoring again is a no-op, not a second scorer invocation.
	require.NoError(t, w.ctl.ScorePool(ctx, poolID))
	assert.Equal(t, 1, w.scorer.calls[poolID])
}

func TestSweep_ClosesOnlyExpiredPools(t *testing.T) {
	w := newWorld(t, 2, 1, 5)
	ctx := context.Background()

	pools, err := w.ctl.CreatePoolsForRound(ctx, w.round.ID)
	require.NoError(t, err)
	require.NoError(t, w.ctl.ActivatePool(ctx, pools[0].ID))
	require.NoError(t, w.ctl.ActivatePool(ctx, pools[1].ID))

	started, err := w.ledger.GetByID(ctx, pools[0].ID)
	require.NoError(t, err)

	// Before the deadline nothing closes.
	closed, err := w.ctl.Sweep(ctx, started.StartedAt.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, closed)

	// Both pools started within the same sweep window; past the later
	// deadline both close.
	closed, err = w.ctl.Sweep(ctx, started.StartedAt.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, closed)

	for _, p := range pools {
		got, err := w.ledger.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PoolEnded, got.State())
	}

	// Sweeping again finds nothing active.
	closed, err = w.ctl.Sweep(ctx, started.StartedAt.Add(20*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, closed)
}

func TestRunner_FullExperiment(t *testing.T) {
	w := newWorld(t, 2, 2, 2)
	ctx := context.Background()

	runner := NewRunner(RunnerOptions{
		Experiments: w.experiments,
		Rounds:      w.rounds,
		Pools:       w.ledger,
		Controller:  w.ctl,
		Payments:    paymentStub{},
		Poll:        time.Millisecond,
		Now:         w.clock.Now,
		Logger:      zerolog.Nop(),
	})

	require.NoError(t, runner.RunExperiment(ctx, w.experiment.ID))

	experiment, err := w.experiments.GetByID(ctx, w.experiment.ID)
	require.NoError(t, err)
	require.NotNil(t, experiment.StartedAt)
	require.NotNil(t, experiment.EndedAt)

	round, err := w.rounds.GetByID(ctx, w.round.ID)
	require.NoError(t, err)
	require.NotNil(t, round.StartedAt)
	require.NotNil(t, round.EndedAt)

	pools, err := w.ledger.GetByRound(ctx, w.round.ID)
	require.NoError(t, err)
	require.Len(t, pools, 2)
	for _, p := range pools {
		assert.Equal(t, domain.PoolScored, p.State())
		assert.Equal(t, 1, w.scorer.calls[p.ID])
	}
}

type paymentStub struct{}

func (paymentStub) ComputePayments(context.Context, *domain.Experiment) ([]*domain.Payment, error) {
	return nil, nil
}
