// Package ginguard adapts formguard to gin. Verdicts are stored both on the gin
// context and on the request context, so middleware.VerdictFromContext works too.
package ginguard

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MrEthical07/formguard"
	"github.com/MrEthical07/formguard/middleware"
)

// VerdictKey is the gin context key holding the formguard.Verdict.
const VerdictKey = "formguard.verdict"

// Protect verifies the request with the full pipeline and aborts with the JSON error
// envelope on denial. Policies with DeferPayload skip body capture.
func Protect(guard *formguard.Guard, p formguard.Policy) gin.HandlerFunc {
	return protect(guard, p, p.DeferPayload)
}

// ProtectDeferred verifies only the token and the rate limit. c.Request.Body is untouched.
func ProtectDeferred(guard *formguard.Guard, p formguard.Policy) gin.HandlerFunc {
	return protect(guard, p, true)
}

func protect(guard *formguard.Guard, p formguard.Policy, deferred bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if guard == nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "Forbidden"})
			return
		}

		var v formguard.Verdict
		if deferred {
			v = guard.VerifyDeferred(c.Request, p)
		} else {
			v = guard.VerifySubmission(c.Request, p)
		}

		middleware.SetRateLimitHeaders(c.Writer, p, v)
		if !v.Allowed() {
			middleware.WriteVerdict(c.Writer, v)
			c.Abort()
			return
		}

		c.Set(VerdictKey, v)
		c.Request = c.Request.WithContext(middleware.WithVerdict(c.Request.Context(), v))
		c.Next()
	}
}

// Verdict returns the verdict stored by Protect.
func Verdict(c *gin.Context) (formguard.Verdict, bool) {
	raw, ok := c.Get(VerdictKey)
	if !ok {
		return formguard.Verdict{}, false
	}
	v, ok := raw.(formguard.Verdict)
	return v, ok
}

// BindPayload decodes the captured body into dst. It returns false when no payload
// was captured or it does not decode.
func BindPayload(c *gin.Context, dst any) bool {
	v, ok := Verdict(c)
	if !ok || v.Payload == nil {
		return false
	}
	return v.Decode(dst) == nil
}

// TokenHandler serves the anti-forgery token endpoint.
func TokenHandler(guard *formguard.Guard) gin.HandlerFunc {
	return gin.WrapH(middleware.TokenHandler(guard))
}
