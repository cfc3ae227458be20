package cli

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"github.com/MrEthical07/formguard"
	"github.com/MrEthical07/formguard/policyset"
)

// backend holds the ledger and the connections behind it.
type backend struct {
	ledger formguard.Ledger
	redis  *redis.Client
	db     *sql.DB
}

func (b *backend) Close() {
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.db != nil {
		_ = b.db.Close()
	}
}

func openBackend(ctx context.Context, f globalFlags, retention time.Duration) (*backend, error) {
	b := &backend{}

	// Redis also backs the stats and stream sinks, so connect whenever a URL is set.
	if f.redisURL != "" {
		opts, err := redis.ParseURL(f.redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		b.redis = redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := b.redis.Ping(pingCtx).Err(); err != nil {
			b.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
	}

	switch strings.ToLower(f.ledger) {
	case "redis":
		if b.redis == nil {
			return nil, fmt.Errorf("ledger redis requires --redis-url")
		}
		b.ledger = formguard.NewRedisLedger(b.redis, f.keyPrefix+":rl", retention)
	case "mysql", "sqlite":
		if f.dsn == "" {
			b.Close()
			return nil, fmt.Errorf("ledger %s requires --dsn", f.ledger)
		}
		dialect := formguard.DialectMySQL
		if strings.EqualFold(f.ledger, "sqlite") {
			dialect = formguard.DialectSQLite
		}
		db, err := sql.Open(string(dialect), f.dsn)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("open %s: %w", dialect, err)
		}
		if dialect == formguard.DialectSQLite {
			db.SetMaxOpenConns(1)
		}
		b.db = db
		l, err := formguard.OpenSQLLedger(ctx, db, dialect)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.ledger = l
	case "memory":
		b.ledger = formguard.NewMemoryLedger()
	default:
		b.Close()
		return nil, fmt.Errorf("unknown ledger %q", f.ledger)
	}

	return b, nil
}

func loadPolicies(path string) (*policyset.Set, error) {
	if path == "" {
		return policyset.NewSet(policyset.Defaults()), nil
	}
	ps, err := policyset.Load(path)
	if err != nil {
		return nil, err
	}
	return policyset.NewSet(ps), nil
}
