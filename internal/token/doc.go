// Package token generates and checks anti-forgery tokens.
//
// A token is 32 bytes from crypto/rand, hex encoded. The browser holds it in an
// HTTP-only cookie and echoes it in a request header; the server compares the two
// copies in constant time. An optional signed form appends a hex HMAC-SHA256
// digest ("value.digest") computed with a server-held secret.
//
// # What this package must NOT do
//
//   - Store tokens. The cookie is the only copy on the server side of the wire.
//   - Panic or return errors from comparison helpers. Any failure is a plain false.
package token
