package formguard

import (
	"encoding/json"
	"net/http"
	"time"
)

// Outcome is the tagged result of a verification.
type Outcome int

const (
	// OutcomeDenied stops the request. Verdict.Reason says why.
	OutcomeDenied Outcome = iota
	// OutcomeAllowedStrict means every enabled layer produced a trustworthy pass.
	OutcomeAllowedStrict
	// OutcomeAllowedDegraded means the request passed because a dependency was
	// unavailable. Verdict.Degraded lists which.
	OutcomeAllowedDegraded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDenied:
		return "denied"
	case OutcomeAllowedStrict:
		return "allowed"
	case OutcomeAllowedDegraded:
		return "allowed_degraded"
	default:
		return "unknown"
	}
}

// Reason is the closed set of denial codes.
type Reason string

const (
	ReasonTokenInvalid      Reason = "token_invalid"
	ReasonRateLimitExceeded Reason = "rate_limit_exceeded"
	ReasonBodyUnparsable    Reason = "body_unparsable"
	ReasonBotTokenMissing   Reason = "bot_token_missing"
	ReasonBotActionMismatch Reason = "bot_action_mismatch"
	ReasonBotScoreTooLow    Reason = "bot_score_too_low"
)

// Status returns the HTTP status paired with the reason.
func (r Reason) Status() int {
	switch r {
	case ReasonTokenInvalid, ReasonBotScoreTooLow:
		return http.StatusForbidden
	case ReasonRateLimitExceeded:
		return http.StatusTooManyRequests
	case ReasonBodyUnparsable, ReasonBotTokenMissing, ReasonBotActionMismatch:
		return http.StatusBadRequest
	default:
		return http.StatusBadRequest
	}
}

// Degradation names a dependency that could not be consulted. Never a denial.
type Degradation string

const (
	DegradedBotVerificationUnavailable Degradation = "bot_verification_unavailable"
	DegradedRateLimitUnavailable       Degradation = "rate_limit_unavailable"
)

const (
	msgTokenInvalid   = "Invalid security token. Please refresh the page and try again."
	msgBodyUnparsable = "Invalid request body."
	msgBotRetry       = "Security verification failed. Please try again."
	msgBotDenied      = "Security verification failed. If you are human, please contact support."
)

// Verdict is the decision for one request. It is a value; callers may copy it freely.
type Verdict struct {
	ID       string
	Outcome  Outcome
	Reason   Reason
	Degraded []Degradation
	Status   int
	// Message is safe to show to end users.
	Message   string
	Remaining int
	ResetAt   time.Time
	// Payload is the captured JSON body. Nil for VerifyDeferred and for denials
	// decided before the body was read.
	Payload json.RawMessage
	// Score is the provider score when a bot check ran and verified.
	Score    float64
	BotCheck bool
}

// Allowed reports whether the request may proceed.
func (v Verdict) Allowed() bool {
	return v.Outcome != OutcomeDenied
}

// IsDegraded reports whether the request passed on a degraded dependency.
func (v Verdict) IsDegraded() bool {
	return v.Outcome == OutcomeAllowedDegraded
}

// Decode unmarshals the captured payload into dst.
func (v Verdict) Decode(dst any) error {
	return json.Unmarshal(v.Payload, dst)
}

func deny(reason Reason, message string) Verdict {
	return Verdict{
		Outcome: OutcomeDenied,
		Reason:  reason,
		Status:  reason.Status(),
		Message: message,
	}
}

func allow(degraded []Degradation) Verdict {
	if len(degraded) > 0 {
		return Verdict{Outcome: OutcomeAllowedDegraded, Degraded: degraded, Status: http.StatusOK}
	}
	return Verdict{Outcome: OutcomeAllowedStrict, Status: http.StatusOK}
}
