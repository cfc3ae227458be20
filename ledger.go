package formguard

import (
	"context"
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/formguard/internal/ledger"
)

// Ledger stores rate-limit attempts. Implementations must be safe for concurrent use.
type Ledger = ledger.Ledger

// Attempt is one recorded request.
type Attempt = ledger.Attempt

// SQLDialect selects the SQL flavor of a SQL ledger.
type SQLDialect = ledger.Dialect

const (
	DialectMySQL  = ledger.DialectMySQL
	DialectSQLite = ledger.DialectSQLite
)

// ErrLedgerUnavailable wraps ledger backend failures.
var ErrLedgerUnavailable = ledger.ErrUnavailable

// NewMemoryLedger returns a process-local ledger for tests and single-instance setups.
func NewMemoryLedger() Ledger {
	return ledger.NewMemoryLedger()
}

// NewRedisLedger returns a ledger of sorted sets named
// <prefix>:<len(endpoint)>:<endpoint>:<identity>.
// An empty prefix selects "fg:rl"; retention <= 0 selects 24h.
func NewRedisLedger(client redis.UniversalClient, prefix string, retention time.Duration) Ledger {
	return ledger.NewRedisLedger(client,
		ledger.WithRedisPrefix(prefix),
		ledger.WithRedisRetention(retention),
	)
}

// OpenSQLLedger wraps db and creates the rate_limit_attempts table if missing.
// The matching database/sql driver must be registered by the caller.
func OpenSQLLedger(ctx context.Context, db *sql.DB, dialect SQLDialect) (Ledger, error) {
	l, err := ledger.NewSQLLedger(db, dialect)
	if err != nil {
		return nil, err
	}
	if err := l.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return l, nil
}
