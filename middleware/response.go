package middleware

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/MrEthical07/formguard"
)

type rateLimitBody struct {
	Remaining int    `json:"remaining"`
	ResetTime string `json:"resetTime"`
}

type errorBody struct {
	Success   bool           `json:"success"`
	Error     string         `json:"error"`
	Reason    string         `json:"reason,omitempty"`
	RateLimit *rateLimitBody `json:"rateLimit,omitempty"`
}

// WriteVerdict writes a denied verdict as
//
//	{"success":false,"error":"...","reason":"...","rateLimit":{"remaining":0,"resetTime":"..."}}
//
// with the verdict's status. rateLimit is present when the verdict carries a reset time.
// A 429 also sets Retry-After in whole seconds.
func WriteVerdict(w http.ResponseWriter, v formguard.Verdict) {
	status := v.Status
	if status == 0 {
		status = v.Reason.Status()
	}

	body := errorBody{
		Success: false,
		Error:   v.Message,
		Reason:  string(v.Reason),
	}
	if !v.ResetAt.IsZero() {
		body.RateLimit = &rateLimitBody{
			Remaining: v.Remaining,
			ResetTime: v.ResetAt.UTC().Format(time.RFC3339),
		}
	}
	if status == http.StatusTooManyRequests && !v.ResetAt.IsZero() {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(time.Until(v.ResetAt))))
	}

	writeJSON(w, status, body)
}

// SetRateLimitHeaders sets X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset when the verdict passed through the rate limiter.
func SetRateLimitHeaders(w http.ResponseWriter, p formguard.Policy, v formguard.Verdict) {
	if v.ResetAt.IsZero() {
		return
	}
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(p.MaxRequests))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(v.Remaining))
	h.Set("X-RateLimit-Reset", v.ResetAt.UTC().Format(time.RFC3339))
}

func retryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
