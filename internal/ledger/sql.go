package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Dialect selects the SQL flavor used by SQLLedger.
type Dialect string

const (
	DialectMySQL  Dialect = "mysql"
	DialectSQLite Dialect = "sqlite"
)

// ErrUnknownDialect is returned by NewSQLLedger for unsupported dialects.
var ErrUnknownDialect = errors.New("ledger: unknown sql dialect")

var schemas = map[Dialect][]string{
	DialectMySQL: {
		`CREATE TABLE IF NOT EXISTS rate_limit_attempts (
	id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
	ip_address VARCHAR(64) NOT NULL,
	endpoint VARCHAR(191) NOT NULL,
	attempted_at BIGINT NOT NULL,
	INDEX idx_rate_limit_lookup (ip_address, endpoint, attempted_at),
	INDEX idx_rate_limit_attempted_at (attempted_at)
)`,
	},
	DialectSQLite: {
		`CREATE TABLE IF NOT EXISTS rate_limit_attempts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ip_address TEXT NOT NULL,
	endpoint TEXT NOT NULL,
	attempted_at INTEGER NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_rate_limit_lookup ON rate_limit_attempts (ip_address, endpoint, attempted_at)`,
		`CREATE INDEX IF NOT EXISTS idx_rate_limit_attempted_at ON rate_limit_attempts (attempted_at)`,
	},
}

const (
	countSQL  = `SELECT COUNT(*) FROM rate_limit_attempts WHERE ip_address = ? AND endpoint = ? AND attempted_at >= ?`
	insertSQL = `INSERT INTO rate_limit_attempts (ip_address, endpoint, attempted_at) VALUES (?, ?, ?)`
	purgeSQL  = `DELETE FROM rate_limit_attempts WHERE attempted_at < ?`
)

// SQLLedger stores attempts in the rate_limit_attempts table.
// attempted_at holds unix milliseconds so both dialects compare plain integers.
//
// The caller owns db and must register the matching driver
// (github.com/go-sql-driver/mysql or modernc.org/sqlite).
type SQLLedger struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLLedger wraps db. It does not create the table; call EnsureSchema for that.
func NewSQLLedger(db *sql.DB, dialect Dialect) (*SQLLedger, error) {
	if db == nil {
		return nil, errors.New("ledger: nil *sql.DB")
	}
	if _, ok := schemas[dialect]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, dialect)
	}
	return &SQLLedger{db: db, dialect: dialect}, nil
}

// EnsureSchema creates the attempts table and its indexes if missing.
func (l *SQLLedger) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemas[l.dialect] {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return nil
}

func (l *SQLLedger) CountSince(ctx context.Context, identity, endpoint string, since time.Time) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, countSQL, identity, endpoint, since.UnixMilli()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

func (l *SQLLedger) Record(ctx context.Context, attempt Attempt) error {
	_, err := l.db.ExecContext(ctx, insertSQL, attempt.Identity, attempt.Endpoint, attempt.At.UnixMilli())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (l *SQLLedger) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, purgeSQL, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

// Dialect reports the configured dialect.
func (l *SQLLedger) Dialect() Dialect { return l.dialect }
