package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/MrEthical07/formguard"
)

type verdictContextKey struct{}

// WithVerdict stores v in ctx. Adapters for other routers use it so handlers can call
// VerdictFromContext regardless of the router.
func WithVerdict(ctx context.Context, v formguard.Verdict) context.Context {
	return context.WithValue(ctx, verdictContextKey{}, v)
}

// VerdictFromContext returns the verdict stored by Protect or ProtectDeferred.
func VerdictFromContext(ctx context.Context) (formguard.Verdict, bool) {
	v, ok := ctx.Value(verdictContextKey{}).(formguard.Verdict)
	return v, ok
}

// PayloadFromContext returns the JSON body captured by Protect. It is nil after
// ProtectDeferred.
func PayloadFromContext(ctx context.Context) (json.RawMessage, bool) {
	v, ok := VerdictFromContext(ctx)
	if !ok || v.Payload == nil {
		return nil, false
	}
	return v.Payload, true
}

// Protect verifies every request with p before calling next. Denied requests get the
// JSON error envelope and never reach next. A policy with DeferPayload behaves like
// ProtectDeferred.
func Protect(guard *formguard.Guard, p formguard.Policy) func(http.Handler) http.Handler {
	return protect(guard, p, p.DeferPayload)
}

func protect(guard *formguard.Guard, p formguard.Policy, deferred bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if guard == nil {
				WriteVerdict(w, formguard.Verdict{
					Outcome: formguard.OutcomeDenied,
					Reason:  formguard.ReasonTokenInvalid,
					Status:  http.StatusForbidden,
					Message: "Forbidden",
				})
				return
			}

			var v formguard.Verdict
			if deferred {
				v = guard.VerifyDeferred(r, p)
			} else {
				v = guard.VerifySubmission(r, p)
			}

			SetRateLimitHeaders(w, p, v)
			if !v.Allowed() {
				WriteVerdict(w, v)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithVerdict(r.Context(), v)))
		})
	}
}
