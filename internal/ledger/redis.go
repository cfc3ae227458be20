package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "fg:rl"
	scanBatch          = 256
)

// admitScript counts members scored >= since and adds the new member only when the
// count is below the limit. Returns {count, admitted}.
var admitScript = redis.NewScript(`
local count = redis.call('ZCOUNT', KEYS[1], ARGV[1], '+inf')
if count >= tonumber(ARGV[3]) then
  return {count, 0}
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return {count, 1}
`)

// RedisLedger stores attempts as sorted sets keyed by
// <prefix>:<len(endpoint)>:<endpoint>:<identity>. The length makes the split between
// endpoint and identity unambiguous when either contains ':', as IPv6 identities do.
// Members are random IDs scored by unix milliseconds; every key carries a TTL equal to
// the retention so idle identities expire on their own.
type RedisLedger struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

// RedisOption configures a RedisLedger.
type RedisOption func(*RedisLedger)

// WithRedisPrefix overrides the key prefix (default "fg:rl").
func WithRedisPrefix(prefix string) RedisOption {
	return func(l *RedisLedger) {
		if p := strings.Trim(prefix, ":"); p != "" {
			l.prefix = p
		}
	}
}

// WithRedisRetention overrides the per-key TTL (default 24h).
func WithRedisRetention(d time.Duration) RedisOption {
	return func(l *RedisLedger) {
		if d > 0 {
			l.retention = d
		}
	}
}

// NewRedisLedger returns a ledger backed by the given client.
func NewRedisLedger(client redis.UniversalClient, opts ...RedisOption) *RedisLedger {
	l := &RedisLedger{
		client:    client,
		prefix:    defaultRedisPrefix,
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisLedger) CountSince(ctx context.Context, identity, endpoint string, since time.Time) (int, error) {
	n, err := l.client.ZCount(ctx, l.key(endpoint, identity), scoreOf(since), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(n), nil
}

func (l *RedisLedger) Record(ctx context.Context, attempt Attempt) error {
	key := l.key(attempt.Endpoint, attempt.Identity)

	pipe := l.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(attempt.At.UnixMilli()),
		Member: uuid.NewString(),
	})
	pipe.PExpire(ctx, key, l.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (l *RedisLedger) Admit(ctx context.Context, attempt Attempt, since time.Time, limit int) (int, bool, error) {
	res, err := admitScript.Run(ctx, l.client,
		[]string{l.key(attempt.Endpoint, attempt.Identity)},
		scoreOf(since),
		attempt.At.UnixMilli(),
		limit,
		uuid.NewString(),
		l.retention.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("%w: unexpected admit reply length %d", ErrUnavailable, len(res))
	}
	return int(res[0]), res[1] == 1, nil
}

// Purge walks every ledger key with SCAN and trims members older than before.
// On a cluster client every master is scanned.
func (l *RedisLedger) Purge(ctx context.Context, before time.Time) (int64, error) {
	upper := "(" + scoreOf(before)

	// SCAN on a cluster client only reaches one node.
	if cc, ok := l.client.(*redis.ClusterClient); ok {
		var removed atomic.Int64
		err := cc.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			n, err := l.purgeNode(ctx, node, upper)
			removed.Add(n)
			return err
		})
		return removed.Load(), err
	}
	return l.purgeNode(ctx, l.client, upper)
}

func (l *RedisLedger) purgeNode(ctx context.Context, c redis.Cmdable, upper string) (int64, error) {
	var (
		cursor  uint64
		removed int64
	)
	for {
		keys, next, err := c.Scan(ctx, cursor, l.prefix+":*", scanBatch).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		for _, key := range keys {
			n, err := c.ZRemRangeByScore(ctx, key, "-inf", upper).Result()
			if err != nil {
				return removed, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			removed += n
		}
		if next == 0 {
			return removed, nil
		}
		cursor = next
	}
}

func (l *RedisLedger) key(endpoint, identity string) string {
	return l.prefix + ":" + strconv.Itoa(len(endpoint)) + ":" + endpoint + ":" + identity
}

func scoreOf(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
