package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"amm-experiment-lab/internal/domain"
	"amm-experiment-lab/internal/storage"
)

// Ledger is the in-memory implementation of the swap hot path. Pools,
// balances and the transaction log live behind one mutex, so the four
// effects of a swap become visible to readers as a single unit,
// matching the PostgreSQL transaction semantics. The Balances and
// Transactions views satisfy the narrow store interfaces while sharing
// the same lock.
type Ledger struct {
	mu       sync.RWMutex
	pools    map[uuid.UUID]*domain.Pool
	balances map[balanceKey]*domain.PlayerBalance
	txs      map[uuid.UUID][]*domain.Transaction // per pool, commit order
	seq      map[uuid.UUID]int64
}

type balanceKey struct {
	playerID   uuid.UUID
	poolID     uuid.UUID
	currencyID uuid.UUID
}

// NewLedger creates an empty in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{
		pools:    make(map[uuid.UUID]*domain.Pool),
		balances: make(map[balanceKey]*domain.PlayerBalance),
		txs:      make(map[uuid.UUID][]*domain.Transaction),
		seq:      make(map[uuid.UUID]int64),
	}
}

// Compile-time interface checks.
var (
	_ storage.PoolStore        = (*Ledger)(nil)
	_ storage.BalanceStore     = (*BalanceView)(nil)
	_ storage.TransactionStore = (*TransactionView)(nil)
)

// Balances returns the storage.BalanceStore view of the ledger.
func (l *Ledger) Balances() *BalanceView { return &BalanceView{l} }

// Transactions returns the storage.TransactionStore view of the ledger.
func (l *Ledger) Transactions() *TransactionView { return &TransactionView{l} }

// Insert adds a new pool. Returns ErrDuplicateKey if a pool for the
// same (round, group) already exists.
func (l *Ledger) Insert(_ context.Context, p *domain.Pool) error {
	if p == nil || p.ID == uuid.Nil {
		return storage.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.pools[p.ID]; exists {
		return storage.ErrDuplicateKey
	}
	for _, existing := range l.pools {
		if existing.RoundID == p.RoundID && existing.GroupID == p.GroupID {
			return storage.ErrDuplicateKey
		}
	}

	cp := *p
	l.pools[p.ID] = &cp
	return nil
}

// GetByID retrieves a pool by its ID.
func (l *Ledger) GetByID(_ context.Context, id uuid.UUID) (*domain.Pool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.pools[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// GetByRound retrieves all pools of a round.
func (l *Ledger) GetByRound(_ context.Context, roundID uuid.UUID) ([]*domain.Pool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []*domain.Pool
	for _, p := range l.pools {
		if p.RoundID == roundID {
			cp := *p
			result = append(result, &cp)
		}
	}
	sortPools(result)
	return result, nil
}

// GetActive retrieves all currently active pools.
func (l *Ledger) GetActive(_ context.Context) ([]*domain.Pool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []*domain.Pool
	for _, p := range l.pools {
		if p.IsActive {
			cp := *p
			result = append(result, &cp)
		}
	}
	sortPools(result)
	return result, nil
}

func sortPools(pools []*domain.Pool) {
	sort.Slice(pools, func(i, j int) bool {
		return pools[i].ID.String() < pools[j].ID.String()
	})
}

// SetActive flips the activation flag and stamps the matching time.
// Repeated calls with the same flag are no-ops.
func (l *Ledger) SetActive(_ context.Context, id uuid.UUID, active bool, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.pools[id]
	if !ok {
		return storage.ErrNotFound
	}
	if p.IsActive == active {
		return nil
	}
	p.IsActive = active
	if active && p.StartedAt == nil {
		t := at
		p.StartedAt = &t
	}
	if !active && p.EndedAt == nil {
		t := at
		p.EndedAt = &t
	}
	return nil
}

// SetScoredAt stamps the scoring time. No-op if already stamped.
func (l *Ledger) SetScoredAt(_ context.Context, id uuid.UUID, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.pools[id]
	if !ok {
		return storage.ErrNotFound
	}
	if p.ScoredAt == nil {
		t := at
		p.ScoredAt = &t
	}
	return nil
}

// ApplySwap commits reserves, both balance rows and the transaction
// record under one lock acquisition.
func (l *Ledger) ApplySwap(_ context.Context, exec *domain.SwapExecution) (*domain.Transaction, error) {
	if exec == nil || exec.PoolID == uuid.Nil {
		return nil, storage.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.pools[exec.PoolID]
	if !ok {
		return nil, storage.ErrNotFound
	}

	in, ok := l.balances[balanceKey{exec.PlayerID, exec.PoolID, exec.CurrencyInID}]
	if !ok {
		return nil, fmt.Errorf("input balance: %w", storage.ErrNotFound)
	}
	out, ok := l.balances[balanceKey{exec.PlayerID, exec.PoolID, exec.CurrencyOutID}]
	if !ok {
		return nil, fmt.Errorf("output balance: %w", storage.ErrNotFound)
	}

	p.ReserveX = exec.NewReserveX
	p.ReserveY = exec.NewReserveY
	p.KConstant = exec.NewK

	in.Balance = exec.NewBalanceIn
	in.UpdatedAt = exec.ExecutedAt
	out.Balance = exec.NewBalanceOut
	out.UpdatedAt = exec.ExecutedAt

	l.seq[exec.PoolID]++
	tx := &domain.Transaction{
		ID:            uuid.New(),
		PoolID:        exec.PoolID,
		PlayerID:      exec.PlayerID,
		Sequence:      l.seq[exec.PoolID],
		CurrencyInID:  exec.CurrencyInID,
		AmountIn:      exec.AmountIn,
		CurrencyOutID: exec.CurrencyOutID,
		AmountOut:     exec.AmountOut,
		PriceRatio:    exec.PriceRatio,
		HasCompleted:  true,
		CreatedAt:     exec.ExecutedAt,
	}
	l.txs[exec.PoolID] = append(l.txs[exec.PoolID], tx)

	cp := *tx
	return &cp, nil
}

// BalanceView exposes the ledger's balances as a storage.BalanceStore.
type BalanceView struct {
	l *Ledger
}

// InsertBulk adds balance rows atomically. Fails entire batch on any
// duplicate (player, pool, currency).
func (v *BalanceView) InsertBulk(_ context.Context, balances []*domain.PlayerBalance) error {
	if len(balances) == 0 {
		return nil
	}

	v.l.mu.Lock()
	defer v.l.mu.Unlock()

	batch := make(map[balanceKey]struct{}, len(balances))
	for _, b := range balances {
		if b == nil || b.PlayerID == uuid.Nil || b.PoolID == uuid.Nil {
			return storage.ErrInvalidInput
		}
		key := balanceKey{b.PlayerID, b.PoolID, b.CurrencyID}
		if _, exists := v.l.balances[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batch[key]; exists {
			return storage.ErrDuplicateKey
		}
		batch[key] = struct{}{}
	}

	for _, b := range balances {
		cp := *b
		v.l.balances[balanceKey{b.PlayerID, b.PoolID, b.CurrencyID}] = &cp
	}
	return nil
}

// Get retrieves one balance row.
func (v *BalanceView) Get(_ context.Context, playerID, poolID, currencyID uuid.UUID) (*domain.PlayerBalance, error) {
	v.l.mu.RLock()
	defer v.l.mu.RUnlock()

	b, ok := v.l.balances[balanceKey{playerID, poolID, currencyID}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

// GetByPlayerAndPool retrieves both balance rows of a player in a pool.
func (v *BalanceView) GetByPlayerAndPool(_ context.Context, playerID, poolID uuid.UUID) ([]*domain.PlayerBalance, error) {
	v.l.mu.RLock()
	defer v.l.mu.RUnlock()

	var result []*domain.PlayerBalance
	for _, b := range v.l.balances {
		if b.PlayerID == playerID && b.PoolID == poolID {
			cp := *b
			result = append(result, &cp)
		}
	}
	sortBalances(result)
	return result, nil
}

// GetByPool retrieves all balance rows of a pool.
func (v *BalanceView) GetByPool(_ context.Context, poolID uuid.UUID) ([]*domain.PlayerBalance, error) {
	v.l.mu.RLock()
	defer v.l.mu.RUnlock()

	var result []*domain.PlayerBalance
	for _, b := range v.l.balances {
		if b.PoolID == poolID {
			cp := *b
			result = append(result, &cp)
		}
	}
	sortBalances(result)
	return result, nil
}

func sortBalances(balances []*domain.PlayerBalance) {
	sort.Slice(balances, func(i, j int) bool {
		if balances[i].PlayerID != balances[j].PlayerID {
			return balances[i].PlayerID.String() < balances[j].PlayerID.String()
		}
		return balances[i].CurrencyID.String() < balances[j].CurrencyID.String()
	})
}

// TransactionView exposes the ledger's swap log as a storage.TransactionStore.
type TransactionView struct {
	l *Ledger
}

// GetByPool retrieves all transactions of a pool in commit order.
func (v *TransactionView) GetByPool(_ context.Context, poolID uuid.UUID) ([]*domain.Transaction, error) {
	v.l.mu.RLock()
	defer v.l.mu.RUnlock()

	txs := v.l.txs[poolID]
	result := make([]*domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		cp := *tx
		result = append(result, &cp)
	}
	return result, nil
}

// GetByPlayerAndPool retrieves a player's transactions in commit order.
func (v *TransactionView) GetByPlayerAndPool(_ context.Context, playerID, poolID uuid.UUID) ([]*domain.Transaction, error) {
	v.l.mu.RLock()
	defer v.l.mu.RUnlock()

	var result []*domain.Transaction
	for _, tx := range v.l.txs[poolID] {
		if tx.PlayerID == playerID {
			cp := *tx
			result = append(result, &cp)
		}
	}
	return result, nil
}
