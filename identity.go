package formguard

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// UnknownIdentity is used when no client address can be determined.
const UnknownIdentity = "unknown"

type clientIdentityContextKey struct{}

// WithClientIdentity attaches a caller-resolved client identity to ctx. When present it
// takes precedence over request headers, for deployments where a trusted edge already
// resolved the client address.
func WithClientIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, clientIdentityContextKey{}, identity)
}

func clientIdentityFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(clientIdentityContextKey{}).(string)
	return id
}

// ClientIdentity derives the rate-limit identity for r.
//
// Order: identity attached with WithClientIdentity, then (when trustForwarded) the first
// X-Forwarded-For hop and X-Real-IP, then the host part of RemoteAddr, then
// UnknownIdentity.
func ClientIdentity(r *http.Request, trustForwarded bool) string {
	if r == nil {
		return UnknownIdentity
	}
	if id := strings.TrimSpace(clientIdentityFromContext(r.Context())); id != "" {
		return id
	}

	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if addr := strings.TrimSpace(r.RemoteAddr); addr != "" {
		return addr
	}
	return UnknownIdentity
}
