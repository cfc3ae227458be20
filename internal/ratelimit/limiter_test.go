package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/formguard/internal/ledger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type brokenLedger struct{}

var errBroken = errors.New("connection refused")

func (brokenLedger) CountSince(context.Context, string, string, time.Time) (int, error) {
	return 0, errBroken
}
func (brokenLedger) Record(context.Context, ledger.Attempt) error    { return errBroken }
func (brokenLedger) Purge(context.Context, time.Time) (int64, error) { return 0, errBroken }

// recordFails counts fine but cannot write.
type recordFails struct{ ledger.MemoryLedger }

func (*recordFails) Record(context.Context, ledger.Attempt) error { return errBroken }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCheckDeniesAfterQuota(t *testing.T) {
	clock := newFakeClock()
	l := New(ledger.NewMemoryLedger(), Config{}, WithClock(clock.Now), WithLogger(quietLogger()))
	defer l.Wait()

	for i := 0; i < 5; i++ {
		res := l.Check(context.Background(), "1.2.3.4", "/api/quote", 5, time.Hour, false)
		if !res.Allowed {
			t.Fatalf("attempt %d denied", i+1)
		}
		if res.Remaining != 5-i-1 {
			t.Fatalf("attempt %d remaining = %d, want %d", i+1, res.Remaining, 5-i-1)
		}
		if res.Total != i+1 {
			t.Fatalf("attempt %d total = %d", i+1, res.Total)
		}
	}

	res := l.Check(context.Background(), "1.2.3.4", "/api/quote", 5, time.Hour, false)
	if res.Allowed {
		t.Fatal("expected sixth attempt to be denied")
	}
	if res.Remaining != 0 {
		t.Fatalf("remaining = %d, want 0", res.Remaining)
	}
	if want := clock.Now().Add(time.Hour); !res.ResetAt.Equal(want) {
		t.Fatalf("resetAt = %v, want %v", res.ResetAt, want)
	}
	if res.FailedOpen {
		t.Fatal("denial must not be marked failed open")
	}
}

func TestCheckDeniedAttemptsAreNotRecorded(t *testing.T) {
	clock := newFakeClock()
	store := ledger.NewMemoryLedger()
	l := New(store, Config{}, WithClock(clock.Now), WithLogger(quietLogger()))
	defer l.Wait()

	for i := 0; i < 4; i++ {
		l.Check(context.Background(), "ip", "/e", 2, time.Minute, false)
	}
	if got := store.Len(); got != 2 {
		t.Fatalf("ledger holds %d attempts, want 2", got)
	}
}

func TestCheckWindowSlides(t *testing.T) {
	clock := newFakeClock()
	l := New(ledger.NewMemoryLedger(), Config{}, WithClock(clock.Now), WithLogger(quietLogger()))
	defer l.Wait()

	for i := 0; i < 3; i++ {
		if !l.Check(context.Background(), "ip", "/e", 3, 10*time.Minute, false).Allowed {
			t.Fatalf("attempt %d denied", i+1)
		}
	}
	if l.Check(context.Background(), "ip", "/e", 3, 10*time.Minute, false).Allowed {
		t.Fatal("expected denial inside window")
	}

	clock.Advance(10*time.Minute + time.Millisecond)
	if !l.Check(context.Background(), "ip", "/e", 3, 10*time.Minute, false).Allowed {
		t.Fatal("expected admission after window elapsed")
	}
}

func TestCheckScopesByIdentityAndEndpoint(t *testing.T) {
	l := New(ledger.NewMemoryLedger(), Config{}, WithLogger(quietLogger()))
	defer l.Wait()

	l.Check(context.Background(), "a", "/one", 1, time.Minute, false)

	if !l.Check(context.Background(), "b", "/one", 1, time.Minute, false).Allowed {
		t.Fatal("other identity must have its own quota")
	}
	if !l.Check(context.Background(), "a", "/two", 1, time.Minute, false).Allowed {
		t.Fatal("other endpoint must have its own quota")
	}
	if l.Check(context.Background(), "a", "/one", 1, time.Minute, false).Allowed {
		t.Fatal("expected denial on exhausted quota")
	}
}

func TestCheckFailsOpenOnLedgerError(t *testing.T) {
	l := New(brokenLedger{}, Config{}, WithLogger(quietLogger()))

	res := l.Check(context.Background(), "ip", "/e", 10, time.Minute, false)
	if !res.Allowed || !res.FailedOpen {
		t.Fatalf("expected fail open, got %+v", res)
	}
	if res.Remaining != 10 {
		t.Fatalf("remaining = %d, want quota", res.Remaining)
	}
	if !errors.Is(res.Err, errBroken) {
		t.Fatalf("err = %v", res.Err)
	}
}

func TestCheckFailsOpenWhenRecordFails(t *testing.T) {
	l := New(&recordFails{}, Config{}, WithLogger(quietLogger()))

	res := l.Check(context.Background(), "ip", "/e", 3, time.Minute, false)
	if !res.Allowed || !res.FailedOpen || res.Remaining != 3 {
		t.Fatalf("expected fail open with full quota, got %+v", res)
	}
}

func TestCheckWithoutLedgerFailsOpen(t *testing.T) {
	l := New(nil, Config{}, WithLogger(quietLogger()))

	res := l.Check(context.Background(), "ip", "/e", 3, time.Minute, false)
	if !res.Allowed || !res.FailedOpen || !errors.Is(res.Err, ErrNoLedger) {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestCheckAtomicUsesAdmitter(t *testing.T) {
	clock := newFakeClock()
	store := ledger.NewMemoryLedger()
	l := New(store, Config{}, WithClock(clock.Now), WithLogger(quietLogger()))
	defer l.Wait()

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check(context.Background(), "ip", "/atomic", 7, time.Minute, true).Allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != 7 {
		t.Fatalf("admitted = %d, want 7", admitted)
	}
	if store.Len() != 7 {
		t.Fatalf("ledger holds %d attempts, want 7", store.Len())
	}
}

func TestCheckPurgesExpiredAttempts(t *testing.T) {
	clock := newFakeClock()
	store := ledger.NewMemoryLedger()
	l := New(store, Config{Retention: time.Hour, PurgeInterval: -1}, WithClock(clock.Now), WithLogger(quietLogger()))

	l.Check(context.Background(), "old", "/e", 10, time.Minute, false)
	l.Wait()

	clock.Advance(2 * time.Hour)
	l.Check(context.Background(), "new", "/e", 10, time.Minute, false)
	l.Wait()

	if got := store.Len(); got != 1 {
		t.Fatalf("ledger holds %d attempts after purge, want 1", got)
	}
}

func TestPurgeGateLimitsFrequency(t *testing.T) {
	clock := newFakeClock()
	store := ledger.NewMemoryLedger()
	l := New(store, Config{Retention: time.Minute, PurgeInterval: time.Hour}, WithClock(clock.Now), WithLogger(quietLogger()))

	l.Check(context.Background(), "a", "/e", 10, time.Minute, false)
	l.Wait()

	// Retention has passed but the purge interval has not.
	clock.Advance(2 * time.Minute)
	l.Check(context.Background(), "b", "/e", 10, time.Minute, false)
	l.Wait()

	if got := store.Len(); got != 2 {
		t.Fatalf("ledger holds %d attempts, want 2 (purge gated)", got)
	}

	n, err := l.Purge(context.Background())
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("Purge removed %d, want 1", n)
	}
}
