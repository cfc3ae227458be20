// Package internal holds the building blocks behind the formguard Guard. Nothing
// here is part of the public API.
//
// # Sub-packages
//
//   - token: anti-forgery token generation, signing and constant-time comparison
//   - ledger: attempt ledgers (memory, Redis sorted sets, MySQL/SQLite)
//   - ratelimit: sliding-window limiter over a ledger, fail-open
//   - botscore: bot-score provider client and verdict evaluation
//   - cli: cobra commands for the formguard binary
//
// # What this package must NOT do
//
//   - Export types that appear in the public formguard API.
//   - Be imported by any package outside the formguard module.
package internal
