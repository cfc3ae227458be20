package middleware

import (
	"net/http"

	"github.com/MrEthical07/formguard"
)

// ProtectDeferred is Protect without body capture or bot verification. Use it for
// multipart uploads that parse r.Body themselves.
func ProtectDeferred(guard *formguard.Guard, p formguard.Policy) func(http.Handler) http.Handler {
	return protect(guard, p, true)
}
