// Package keylock provides per-key mutual exclusion with bounded
// acquisition. One KeyedMutex gates all reserve mutations of a pool:
// swaps and lifecycle transitions acquire the same key, so they
// serialize against each other while distinct pools stay independent.
package keylock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTimeout is returned when a lock cannot be acquired within the
// caller's wait bound.
var ErrTimeout = errors.New("lock acquisition timed out")

// KeyedMutex is a set of independent single-holder locks addressed by
// UUID. Slots are created on first use and never removed; the keyspace
// is bounded by the number of pools in a run.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[uuid.UUID]chan struct{}
}

// New creates an empty KeyedMutex.
func New() *KeyedMutex {
	return &KeyedMutex{slots: make(map[uuid.UUID]chan struct{})}
}

func (m *KeyedMutex) slot(key uuid.UUID) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[key]
	if !ok {
		s = make(chan struct{}, 1)
		m.slots[key] = s
	}
	return s
}

// Acquire takes the lock for key, waiting at most wait. Returns
// ErrTimeout if the bound elapses, or the context error if ctx is
// cancelled first.
func (m *KeyedMutex) Acquire(ctx context.Context, key uuid.UUID, wait time.Duration) error {
	slot := m.slot(key)

	select {
	case slot <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case slot <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the lock for key. Releasing a key that is not held
// panics; that is always a caller bug.
func (m *KeyedMutex) Release(key uuid.UUID) {
	slot := m.slot(key)
	select {
	case <-slot:
	default:
		panic("keylock: release of unheld key " + key.String())
	}
}
