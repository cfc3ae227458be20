// Package ledger persists rate-limit attempts.
//
// A ledger is an append-only log of {identity, endpoint, timestamp} rows with three
// queries: count since a window start, insert one row, and purge rows older than a
// retention horizon. Implementations:
//
//   - MemoryLedger: process-local, for tests and single-instance development.
//   - RedisLedger: one sorted set per (endpoint, identity), scored by unix milliseconds.
//   - SQLLedger: the rate_limit_attempts table on MySQL or SQLite.
//
// Ledgers that can count and record in one indivisible step also implement [Admitter].
//
// # What this package must NOT do
//
//   - Decide whether a request is allowed. Policy lives in internal/ratelimit.
//   - Swallow backend errors. Every failure is returned wrapped in ErrUnavailable so the
//     caller can choose to fail open.
package ledger
