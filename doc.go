// Package formguard protects state-changing form submissions before business logic runs.
//
// A [Guard] evaluates three layers in fixed order, cheapest first:
//
//  1. Anti-forgery token: the X-CSRF-Token header must equal the csrf-token cookie
//     (constant-time). Failure is always a denial.
//  2. Sliding-window rate limit per client identity and endpoint, backed by a ledger.
//     A ledger failure lets the request through and marks the verdict degraded.
//  3. Bot-score verification against an external provider with a bounded timeout.
//     Provider trouble lets the request through and marks the verdict degraded;
//     an action-tag mismatch or a low score is a denial.
//
// Every call returns a [Verdict]. Per-request paths never return errors.
//
// # Architecture boundaries
//
// formguard is the public surface. It exposes [Guard], [Builder], [Config], [Policy] and
// [Verdict]. Token primitives, ledgers, the limiter and the provider client live under
// internal/ and are reachable only through the Builder.
//
// # What this package must NOT do
//
//   - Authenticate users or manage sessions beyond the anti-forgery cookie.
//   - Read the request body in [Guard.VerifyDeferred].
//   - Echo provider error codes to clients.
package formguard
