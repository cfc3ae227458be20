package ledger

import (
	"context"
	"sync"
	"time"
)

type memoryKey struct {
	identity string
	endpoint string
}

// MemoryLedger keeps attempts in process memory.
//
// Useful for tests and development. Data does not survive restarts and is not shared
// between instances.
type MemoryLedger struct {
	mu       sync.Mutex
	attempts map[memoryKey][]time.Time
}

// NewMemoryLedger returns an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{attempts: make(map[memoryKey][]time.Time)}
}

func (l *MemoryLedger) CountSince(_ context.Context, identity, endpoint string, since time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return countSince(l.attempts[memoryKey{identity: identity, endpoint: endpoint}], since), nil
}

func (l *MemoryLedger) Record(_ context.Context, attempt Attempt) error {
	k := memoryKey{identity: attempt.Identity, endpoint: attempt.Endpoint}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.attempts[k] = append(l.attempts[k], attempt.At)
	return nil
}

func (l *MemoryLedger) Admit(_ context.Context, attempt Attempt, since time.Time, limit int) (int, bool, error) {
	k := memoryKey{identity: attempt.Identity, endpoint: attempt.Endpoint}

	l.mu.Lock()
	defer l.mu.Unlock()

	count := countSince(l.attempts[k], since)
	if count >= limit {
		return count, false, nil
	}
	l.attempts[k] = append(l.attempts[k], attempt.At)
	return count, true, nil
}

func (l *MemoryLedger) Purge(_ context.Context, before time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var removed int64
	for k, times := range l.attempts {
		kept := times[:0]
		for _, at := range times {
			if at.Before(before) {
				removed++
				continue
			}
			kept = append(kept, at)
		}
		if len(kept) == 0 {
			delete(l.attempts, k)
			continue
		}
		l.attempts[k] = kept
	}
	return removed, nil
}

// Len returns the total number of stored attempts.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, times := range l.attempts {
		n += len(times)
	}
	return n
}

func countSince(times []time.Time, since time.Time) int {
	n := 0
	for _, at := range times {
		if !at.Before(since) {
			n++
		}
	}
	return n
}
