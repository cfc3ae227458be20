// Package redisstats aggregates formguard audit events into Redis hashes.
//
// Keys, with the default prefix:
//
//	fg:stats:total                 outcome -> count
//	fg:stats:minute:200601021504   outcome -> count (expires after TTL)
//	fg:stats:endpoint              "<endpoint>:<outcome>" -> count
//	fg:stats:reason                denial reason -> count
//	fg:stats:degraded              degradation -> count
//
// Identities are never written; per-client cardinality belongs in the ledger.
package redisstats

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/formguard"
)

const (
	DefaultPrefix = "fg:stats"
	DefaultTTL    = 24 * time.Hour
)

// Sink is a formguard.AuditSink. Errors are logged and never surface to requests.
type Sink struct {
	rdb    redis.UniversalClient
	prefix string
	// ttl applies to the per-minute buckets only; totals are cumulative.
	ttl     time.Duration
	buckets bool
	logger  *slog.Logger
}

type Option func(*Sink)

func WithPrefix(prefix string) Option {
	return func(s *Sink) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

func WithTTL(d time.Duration) Option {
	return func(s *Sink) { s.ttl = d }
}

// WithMinuteBuckets toggles the per-minute time series. On by default.
func WithMinuteBuckets(enabled bool) Option {
	return func(s *Sink) { s.buckets = enabled }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(rdb redis.UniversalClient, opts ...Option) *Sink {
	s := &Sink{
		rdb:     rdb,
		prefix:  DefaultPrefix,
		ttl:     DefaultTTL,
		buckets: true,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Emit implements formguard.AuditSink.
func (s *Sink) Emit(ctx context.Context, event formguard.AuditEvent) {
	if err := s.Record(ctx, event); err != nil {
		s.logger.Warn("formguard: redis stats write failed", "event_type", event.EventType, "error", err)
	}
}

// Record writes one event in a single pipeline.
func (s *Sink) Record(ctx context.Context, event formguard.AuditEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	field := outcomeField(event)
	at := event.Timestamp
	if at.IsZero() {
		at = time.Now()
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.key("total"), field, 1)

	if s.buckets {
		bucketKey := s.key("minute", at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	if ep := strings.TrimSpace(event.Endpoint); ep != "" {
		pipe.HIncrBy(ctx, s.key("endpoint"), ep+":"+field, 1)
	}
	if event.Reason != "" {
		pipe.HIncrBy(ctx, s.key("reason"), event.Reason, 1)
	}
	for _, d := range event.Degraded {
		pipe.HIncrBy(ctx, s.key("degraded"), d, 1)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisstats: record: %w", err)
	}
	return nil
}

// Totals returns the cumulative outcome counters.
func (s *Sink) Totals(ctx context.Context) (map[string]int64, error) {
	return s.readHash(ctx, s.key("total"))
}

// Reasons returns the cumulative denial reason counters.
func (s *Sink) Reasons(ctx context.Context) (map[string]int64, error) {
	return s.readHash(ctx, s.key("reason"))
}

// Minute returns the outcome counters of the minute containing at.
func (s *Sink) Minute(ctx context.Context, at time.Time) (map[string]int64, error) {
	return s.readHash(ctx, s.key("minute", at.UTC().Format("200601021504")))
}

func (s *Sink) readHash(ctx context.Context, key string) (map[string]int64, error) {
	raw, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstats: read %s: %w", key, err)
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redisstats: field %s: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}

func (s *Sink) key(parts ...string) string {
	return s.prefix + ":" + strings.Join(parts, ":")
}

func outcomeField(event formguard.AuditEvent) string {
	if event.EventType == formguard.EventTokenIssued {
		return "token_issued"
	}
	if event.Outcome != "" {
		return event.Outcome
	}
	return event.EventType
}
