package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrEthical07/formguard/internal/ledger"
)

// ErrNoLedger is carried in Result.Err when the limiter has no backing ledger.
var ErrNoLedger = errors.New("ratelimit: no ledger configured")

// Config holds limiter tuning parameters.
type Config struct {
	// Retention is the age after which attempts are purged. Default 24h.
	Retention time.Duration
	// PurgeInterval is the minimum gap between two background purges. Default 1m.
	// A negative value purges after every recorded attempt.
	PurgeInterval time.Duration
	// PurgeTimeout bounds a single background purge. Default 10s.
	PurgeTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Retention <= 0 {
		c.Retention = ledger.DefaultRetention
	}
	if c.PurgeInterval == 0 {
		c.PurgeInterval = time.Minute
	}
	if c.PurgeTimeout <= 0 {
		c.PurgeTimeout = 10 * time.Second
	}
	return c
}

// Result is the outcome of one quota check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
	// Total is the number of attempts in the window including this one when allowed.
	Total      int
	FailedOpen bool
	Err        error
}

// Limiter checks and records attempts against a ledger.
type Limiter struct {
	ledger ledger.Ledger
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	purgeGate *rate.Limiter
	purges    sync.WaitGroup
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLogger sets the logger used for fail-open and purge diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock replaces time.Now. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New creates a [Limiter] over the given ledger.
func New(store ledger.Ledger, cfg Config, opts ...Option) *Limiter {
	cfg = cfg.withDefaults()

	every := rate.Inf
	if cfg.PurgeInterval > 0 {
		every = rate.Every(cfg.PurgeInterval)
	}

	l := &Limiter{
		ledger:    store,
		cfg:       cfg,
		logger:    slog.Default(),
		now:       time.Now,
		purgeGate: rate.NewLimiter(every, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check counts attempts for (identity, endpoint) in the last window and either denies
// or records the new attempt. quota is the number of attempts allowed per window.
// When atomicQuota is set and the ledger implements ledger.Admitter, counting and
// recording happen in one step.
func (l *Limiter) Check(ctx context.Context, identity, endpoint string, quota int, window time.Duration, atomicQuota bool) Result {
	now := l.now()
	since := now.Add(-window)
	resetAt := now.Add(window)

	if l.ledger == nil {
		return l.failOpen(identity, endpoint, quota, resetAt, ErrNoLedger)
	}

	if admitter, ok := l.ledger.(ledger.Admitter); ok && atomicQuota {
		count, admitted, err := admitter.Admit(ctx, ledger.Attempt{Identity: identity, Endpoint: endpoint, At: now}, since, quota)
		if err != nil {
			return l.failOpen(identity, endpoint, quota, resetAt, err)
		}
		if !admitted {
			return denied(count, resetAt)
		}
		l.maybePurge(now)
		return allowed(count, quota, resetAt)
	}

	count, err := l.ledger.CountSince(ctx, identity, endpoint, since)
	if err != nil {
		return l.failOpen(identity, endpoint, quota, resetAt, err)
	}
	if count >= quota {
		return denied(count, resetAt)
	}

	if err := l.ledger.Record(ctx, ledger.Attempt{Identity: identity, Endpoint: endpoint, At: now}); err != nil {
		return l.failOpen(identity, endpoint, quota, resetAt, err)
	}
	l.maybePurge(now)
	return allowed(count, quota, resetAt)
}

// Purge removes attempts older than the retention horizon synchronously.
func (l *Limiter) Purge(ctx context.Context) (int64, error) {
	if l.ledger == nil {
		return 0, ErrNoLedger
	}
	return l.ledger.Purge(ctx, l.now().Add(-l.cfg.Retention))
}

// Wait blocks until in-flight background purges finish.
func (l *Limiter) Wait() {
	l.purges.Wait()
}

func (l *Limiter) maybePurge(now time.Time) {
	if !l.purgeGate.AllowN(now, 1) {
		return
	}

	before := now.Add(-l.cfg.Retention)
	l.purges.Add(1)
	go func() {
		defer l.purges.Done()

		ctx, cancel := context.WithTimeout(context.Background(), l.cfg.PurgeTimeout)
		defer cancel()

		removed, err := l.ledger.Purge(ctx, before)
		if err != nil {
			l.logger.Warn("formguard: ledger purge failed", "error", err)
			return
		}
		if removed > 0 {
			l.logger.Debug("formguard: ledger purge", "removed", removed)
		}
	}()
}

func (l *Limiter) failOpen(identity, endpoint string, quota int, resetAt time.Time, err error) Result {
	l.logger.Error("formguard: rate limit check failed, allowing request",
		"identity", identity,
		"endpoint", endpoint,
		"error", err,
	)
	return Result{
		Allowed:    true,
		Remaining:  quota,
		ResetAt:    resetAt,
		FailedOpen: true,
		Err:        err,
	}
}

func denied(count int, resetAt time.Time) Result {
	return Result{Allowed: false, Remaining: 0, ResetAt: resetAt, Total: count}
}

func allowed(count, quota int, resetAt time.Time) Result {
	remaining := quota - count - 1
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: true, Remaining: remaining, ResetAt: resetAt, Total: count + 1}
}
