package stranger

import (
	"context"
	"sync"
)

// Ledger tracks the cancel functions of every in-flight request issued on
// behalf of the current session.
type Ledger struct {
	mu      sync.Mutex
	next    uint64
	entries map[uint64]context.CancelFunc
}

func NewLedger() *Ledger {
	return &Ledger{entries: make(map[uint64]context.CancelFunc)}
}

// Track derives a cancellable context from parent and registers it. The
// returned done func deregisters the entry and must be called once the
// request completes.
func (l *Ledger) Track(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	l.mu.Lock()
	id := l.next
	l.next++
	l.entries[id] = cancel
	l.mu.Unlock()

	return ctx, func() {
		l.mu.Lock()
		delete(l.entries, id)
		l.mu.Unlock()
		cancel()
	}
}

// CancelAll cancels every tracked entry and empties the ledger.
func (l *Ledger) CancelAll() {
	l.mu.Lock()
	entries := l.entries
	l.entries = make(map[uint64]context.CancelFunc)
	l.mu.Unlock()

	for _, cancel := range entries {
		cancel()
	}
}

// Len returns the number of in-flight entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
