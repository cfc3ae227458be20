// Package ratelimit implements the sliding-window quota check used before a form
// submission reaches business logic.
//
// # Window semantics
//
// Sliding window over a ledger of attempts: count attempts with At >= now-window, deny
// when the count has reached the quota, otherwise record the attempt. Denied requests are
// not recorded. Ledgers implementing ledger.Admitter can do both steps atomically when
// the caller asks for it.
//
// # Failure mode
//
// Fail open. A ledger error yields Allowed=true with Remaining equal to the quota and
// FailedOpen set; the error is logged and carried in Result.Err.
//
// # What this package must NOT do
//
//   - Derive client identity from requests (the root package does that).
//   - Block the request on retention purges; those run detached with their own timeout.
package ratelimit
