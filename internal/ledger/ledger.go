package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps every backend failure (connectivity, query, decode).
var ErrUnavailable = errors.New("ledger unavailable")

// DefaultRetention is how long attempts are kept before purge.
const DefaultRetention = 24 * time.Hour

// Attempt is one recorded request. It is never mutated after Record.
type Attempt struct {
	Identity string
	Endpoint string
	At       time.Time
}

// Ledger stores attempts for sliding-window rate limiting.
type Ledger interface {
	// CountSince returns the number of attempts for (identity, endpoint) with At >= since.
	CountSince(ctx context.Context, identity, endpoint string, since time.Time) (int, error)
	// Record appends one attempt.
	Record(ctx context.Context, attempt Attempt) error
	// Purge deletes attempts with At < before and reports how many were removed.
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// Admitter is implemented by ledgers that can count and record atomically.
//
// Admit counts attempts for the attempt's (identity, endpoint) with At >= since. When the
// count is below max it records the attempt in the same step. The returned count never
// includes the new attempt.
type Admitter interface {
	Admit(ctx context.Context, attempt Attempt, since time.Time, limit int) (count int, admitted bool, err error)
}
