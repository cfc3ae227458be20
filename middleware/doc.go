// Package middleware exposes net/http adapters for a formguard.Guard.
//
// # Adapters
//
//   - [Protect] runs the full pipeline and stores the Verdict in the request context.
//   - [ProtectDeferred] runs only the token check and the rate limit, leaving the body
//     unread for multipart handlers.
//   - [TokenHandler] issues the anti-forgery cookie and returns the header value.
//   - [WriteVerdict] renders a denial as the JSON error envelope.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Guard calls. It does not decide anything
// itself; every allow or deny comes from the Guard.
package middleware
