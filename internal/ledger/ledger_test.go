package ledger

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func newTestSQLite(t *testing.T) *SQLLedger {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	l, err := NewSQLLedger(db, DialectSQLite)
	require.NoError(t, err)
	require.NoError(t, l.EnsureSchema(context.Background()))
	return l
}

// backends returns one fresh instance of every ledger implementation.
func backends(t *testing.T) map[string]Ledger {
	_, rdb := newTestRedis(t)
	return map[string]Ledger{
		"memory": NewMemoryLedger(),
		"redis":  NewRedisLedger(rdb),
		"sqlite": newTestSQLite(t),
	}
}

func TestLedgerCountRecordPurge(t *testing.T) {
	for name, l := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.UnixMilli(1_700_000_000_000)

			for i := 0; i < 5; i++ {
				require.NoError(t, l.Record(ctx, Attempt{
					Identity: "10.0.0.1",
					Endpoint: "/api/submit",
					At:       base.Add(time.Duration(i) * time.Minute),
				}))
			}
			require.NoError(t, l.Record(ctx, Attempt{Identity: "10.0.0.2", Endpoint: "/api/submit", At: base}))
			require.NoError(t, l.Record(ctx, Attempt{Identity: "10.0.0.1", Endpoint: "/api/other", At: base}))

			n, err := l.CountSince(ctx, "10.0.0.1", "/api/submit", base)
			require.NoError(t, err)
			assert.Equal(t, 5, n)

			n, err = l.CountSince(ctx, "10.0.0.1", "/api/submit", base.Add(2*time.Minute))
			require.NoError(t, err)
			assert.Equal(t, 3, n, "window start is inclusive")

			n, err = l.CountSince(ctx, "10.0.0.9", "/api/submit", base)
			require.NoError(t, err)
			assert.Zero(t, n)

			removed, err := l.Purge(ctx, base.Add(2*time.Minute))
			require.NoError(t, err)
			assert.Equal(t, int64(4), removed)

			n, err = l.CountSince(ctx, "10.0.0.1", "/api/submit", base.Add(-time.Hour))
			require.NoError(t, err)
			assert.Equal(t, 3, n)
		})
	}
}

func TestAdmitterStopsAtLimit(t *testing.T) {
	_, rdb := newTestRedis(t)
	admitters := map[string]Admitter{
		"memory": NewMemoryLedger(),
		"redis":  NewRedisLedger(rdb),
	}

	for name, a := range admitters {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()
			since := now.Add(-time.Minute)

			for i := 0; i < 3; i++ {
				count, ok, err := a.Admit(ctx, Attempt{Identity: "ip", Endpoint: "/e", At: now}, since, 3)
				require.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, i, count)
			}

			count, ok, err := a.Admit(ctx, Attempt{Identity: "ip", Endpoint: "/e", At: now}, since, 3)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Equal(t, 3, count)
		})
	}
}

func TestRedisAdmitConcurrentNeverOverAdmits(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := NewRedisLedger(rdb)

	const (
		workers = 32
		limit   = 10
	)
	var (
		admitted atomic.Int64
		wg       sync.WaitGroup
	)
	now := time.Now()
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := l.Admit(context.Background(), Attempt{Identity: "ip", Endpoint: "/race", At: now}, now.Add(-time.Minute), limit)
			if err == nil && ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(limit), admitted.Load())
}

func TestRedisLedgerKeyLayoutAndTTL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewRedisLedger(rdb, WithRedisPrefix("app:rl:"), WithRedisRetention(time.Hour))

	require.NoError(t, l.Record(context.Background(), Attempt{Identity: "::1", Endpoint: "/api/quote", At: time.Now()}))

	key := "app:rl:10:/api/quote:::1"
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Hour, mr.TTL(key))
}

func TestRedisLedgerKeysDoNotCollideOnColons(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewRedisLedger(rdb)
	ctx := context.Background()
	now := time.Now()

	// Both pairs join to "/a:b:c" without the length segment.
	require.NoError(t, l.Record(ctx, Attempt{Identity: "b:c", Endpoint: "/a", At: now}))
	require.NoError(t, l.Record(ctx, Attempt{Identity: "c", Endpoint: "/a:b", At: now}))
	require.NoError(t, l.Record(ctx, Attempt{Identity: "2001:db8::1", Endpoint: "/a", At: now}))

	since := now.Add(-time.Minute)
	for _, tc := range []struct{ identity, endpoint string }{
		{"b:c", "/a"},
		{"c", "/a:b"},
		{"2001:db8::1", "/a"},
	} {
		n, err := l.CountSince(ctx, tc.identity, tc.endpoint, since)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "%s on %s", tc.identity, tc.endpoint)
	}
	assert.Len(t, mr.Keys(), 3)
}

func TestRedisLedgerUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewRedisLedger(rdb)
	mr.Close()

	_, err := l.CountSince(context.Background(), "ip", "/e", time.Now())
	assert.ErrorIs(t, err, ErrUnavailable)

	err = l.Record(context.Background(), Attempt{Identity: "ip", Endpoint: "/e", At: time.Now()})
	assert.ErrorIs(t, err, ErrUnavailable)

	_, _, err = l.Admit(context.Background(), Attempt{Identity: "ip", Endpoint: "/e", At: time.Now()}, time.Now(), 1)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNewSQLLedgerRejectsUnknownDialect(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "x.db"))
	require.NoError(t, err)
	defer db.Close()

	_, err = NewSQLLedger(db, Dialect("postgres"))
	assert.ErrorIs(t, err, ErrUnknownDialect)

	_, err = NewSQLLedger(nil, DialectSQLite)
	assert.Error(t, err)
}

func TestSQLLedgerClosedDB(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "closed.db"))
	require.NoError(t, err)
	l, err := NewSQLLedger(db, DialectSQLite)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = l.CountSince(context.Background(), "ip", "/e", time.Now())
	assert.ErrorIs(t, err, ErrUnavailable)
}
