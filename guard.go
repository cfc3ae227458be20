package formguard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/formguard/internal/ratelimit"
	"github.com/MrEthical07/formguard/internal/token"
)

// Guard evaluates form submissions. It is safe for concurrent use after Build.
type Guard struct {
	config   Config
	limiter  *ratelimit.Limiter
	verifier BotVerifier
	audit    *auditDispatcher
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
}

var (
	errEmptyBody    = errors.New("empty body")
	errBodyTooLarge = errors.New("body too large")
	errInvalidJSON  = errors.New("body is not valid JSON")
)

// VerifySubmission runs the token check, the rate limit, body capture and (when the
// policy asks for it and the feature is enabled) bot verification, in that order.
// The first failing layer decides the verdict; later layers do not run.
//
// On allow, Verdict.Payload holds the body and r.Body is replaced with a reader over
// the same bytes.
func (g *Guard) VerifySubmission(r *http.Request, p Policy) Verdict {
	return g.evaluate(r, p, false)
}

// VerifyDeferred runs only the token check and the rate limit. It never reads r.Body,
// so multipart handlers can parse the body afterwards.
func (g *Guard) VerifyDeferred(r *http.Request, p Policy) Verdict {
	return g.evaluate(r, p, true)
}

// IssueToken generates a fresh anti-forgery token, sets it as a cookie on w and
// returns the value the client must echo in the header.
func (g *Guard) IssueToken(w http.ResponseWriter) (string, error) {
	value, err := token.Generate()
	if err != nil {
		g.logger.Error("formguard: token generation failed", "error", err)
		return "", fmt.Errorf("%w: %v", ErrTokenIssue, err)
	}
	if g.config.Token.Signed {
		value = token.Sign(value, g.config.Token.Secret)
	}

	http.SetCookie(w, g.tokenCookie(value))

	g.metrics.Inc(MetricTokenIssued)
	g.audit.Emit(context.Background(), AuditEvent{
		Timestamp: g.now(),
		EventType: EventTokenIssued,
	})

	return value, nil
}

func (g *Guard) tokenCookie(value string) *http.Cookie {
	ttl := g.config.Token.TTL
	return &http.Cookie{
		Name:     g.config.Token.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		Expires:  g.now().Add(ttl),
		HttpOnly: true,
		Secure:   g.config.Security.ProductionMode,
		SameSite: g.config.Security.SameSite,
	}
}

// Config returns a copy of the active configuration.
func (g *Guard) Config() Config {
	return cloneConfig(g.config)
}

// ValidatePolicy checks p against the Guard's configuration. Besides Policy.Validate
// it rejects windows longer than RateLimit.Retention, which would be purged (and
// expire from Redis) before they leave the window.
func (g *Guard) ValidatePolicy(p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if g.config.RateLimit.Enabled && p.Window > g.config.RateLimit.Retention {
		return fmt.Errorf("%w: %s: window %s exceeds ledger retention %s",
			ErrInvalidPolicy, p.Endpoint, p.Window, g.config.RateLimit.Retention)
	}
	return nil
}

// PurgeLedger removes attempts older than RateLimit.Retention synchronously.
func (g *Guard) PurgeLedger(ctx context.Context) (int64, error) {
	if g.limiter == nil {
		return 0, nil
	}
	return g.limiter.Purge(ctx)
}

// Close drains the audit dispatcher and waits for background ledger purges.
func (g *Guard) Close() {
	if g == nil {
		return
	}
	g.audit.Close()
	if g.limiter != nil {
		g.limiter.Wait()
	}
}

// AuditDropped returns the number of audit events dropped under backpressure.
func (g *Guard) AuditDropped() uint64 {
	if g == nil {
		return 0
	}
	return g.audit.Dropped()
}

// MetricsSnapshot returns the current counters and histograms.
func (g *Guard) MetricsSnapshot() MetricsSnapshot {
	if g == nil || g.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return g.metrics.Snapshot()
}

func (g *Guard) evaluate(r *http.Request, p Policy, deferred bool) Verdict {
	start := g.now()
	identity := ClientIdentity(r, g.config.RateLimit.TrustForwardedFor)

	v := g.decide(r, p, identity, deferred)
	v.ID = uuid.NewString()

	g.metrics.recordVerdict(v)
	g.metrics.Observe(MetricVerifyLatency, g.now().Sub(start))
	g.logVerdict(v, p, identity, deferred)
	g.audit.Emit(r.Context(), auditEventFor(v, p, identity, deferred, start))

	return v
}

func (g *Guard) decide(r *http.Request, p Policy, identity string, deferred bool) Verdict {
	ctx := r.Context()

	// 1. anti-forgery token
	if !g.config.tokenMatches(r.Header.Get(g.config.Token.HeaderName), cookieValue(r, g.config.Token.CookieName)) {
		return deny(ReasonTokenInvalid, msgTokenInvalid)
	}

	// 2. rate limit
	var (
		degraded  []Degradation
		remaining int
		resetAt   time.Time
	)
	if g.limiter != nil {
		res := g.limiter.Check(ctx, identity, p.Endpoint, p.MaxRequests, p.Window, p.AtomicQuota)
		if !res.Allowed {
			v := deny(ReasonRateLimitExceeded, rateLimitMessage(res.ResetAt.Sub(g.now())))
			v.ResetAt = res.ResetAt
			g.logger.Warn("formguard: rate limit exceeded",
				"endpoint", p.Endpoint,
				"identity", identity,
				"count", res.Total,
				"max_requests", p.MaxRequests,
				"window", p.Window,
			)
			return v
		}
		if res.FailedOpen {
			degraded = append(degraded, DegradedRateLimitUnavailable)
		}
		remaining, resetAt = res.Remaining, res.ResetAt
	}

	if deferred {
		v := allow(degraded)
		v.Remaining, v.ResetAt = remaining, resetAt
		return v
	}

	// 3. body capture
	payload, err := capturePayload(r, g.config.Security.MaxBodyBytes)
	if err != nil {
		g.logger.Warn("formguard: request body rejected", "endpoint", p.Endpoint, "error", err)
		return deny(ReasonBodyUnparsable, msgBodyUnparsable)
	}

	// 4. bot score
	var (
		score    float64
		botCheck bool
	)
	if p.RequireBotCheck && g.config.BotScore.Enabled && g.verifier != nil {
		botCheck = true

		tok, ok := stringField(payload, g.config.BotScore.TokenField)
		if !ok || strings.TrimSpace(tok) == "" {
			return deny(ReasonBotTokenMissing, msgBotRetry)
		}

		started := g.now()
		res := g.verifier.Verify(ctx, tok, p.Action)
		g.metrics.Observe(MetricBotVerifyLatency, g.now().Sub(started))

		switch res.Outcome {
		case BotRejected:
			return deny(ReasonBotActionMismatch, msgBotDenied)
		case BotDegraded:
			degraded = append(degraded, DegradedBotVerificationUnavailable)
		default:
			minScore := p.minScore(g.config.BotScore.MinScore)
			g.metrics.Inc(MetricBotVerified)
			g.logger.Debug("formguard: bot score",
				"endpoint", p.Endpoint,
				"score", res.Score,
				"band", ScoreDescription(res.Score),
				"min_score", minScore,
			)
			if !IsScoreAcceptable(res.Score, minScore) {
				v := deny(ReasonBotScoreTooLow, msgBotDenied)
				v.Score = res.Score
				v.BotCheck = true
				return v
			}
			score = res.Score
		}
	}

	v := allow(degraded)
	v.Payload = payload
	v.Remaining, v.ResetAt = remaining, resetAt
	v.Score = score
	v.BotCheck = botCheck
	return v
}

func (g *Guard) logVerdict(v Verdict, p Policy, identity string, deferred bool) {
	attrs := []any{
		"verdict_id", v.ID,
		"endpoint", p.Endpoint,
		"identity", identity,
		"outcome", v.Outcome.String(),
	}
	if deferred {
		attrs = append(attrs, "deferred", true)
	}

	switch v.Outcome {
	case OutcomeDenied:
		attrs = append(attrs, "reason", string(v.Reason), "status", v.Status)
		if v.BotCheck {
			attrs = append(attrs, "score", v.Score, "band", ScoreDescription(v.Score))
		}
		g.logger.Warn("formguard: submission denied", attrs...)
	case OutcomeAllowedDegraded:
		attrs = append(attrs, "degraded", v.Degraded)
		g.logger.Warn("formguard: submission allowed degraded", attrs...)
	default:
		if v.BotCheck {
			attrs = append(attrs, "score", v.Score, "band", ScoreDescription(v.Score))
		}
		g.logger.Debug("formguard: submission allowed", attrs...)
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// rateLimitMessage rounds the wait up to whole minutes, never below one.
func rateLimitMessage(untilReset time.Duration) string {
	minutes := int(math.Ceil(untilReset.Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	unit := "minutes"
	if minutes == 1 {
		unit = "minute"
	}
	return fmt.Sprintf("Too many requests. Please try again in %d %s.", minutes, unit)
}

// capturePayload reads the body once, bounded by limit, and swaps r.Body for a
// reader over the captured bytes.
func capturePayload(r *http.Request, limit int64) (json.RawMessage, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, errEmptyBody
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > limit {
		return nil, errBodyTooLarge
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errEmptyBody
	}
	if !json.Valid(raw) {
		return nil, errInvalidJSON
	}
	return json.RawMessage(raw), nil
}

// stringField extracts a top-level string field from a JSON object.
func stringField(payload json.RawMessage, field string) (string, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		return "", false
	}
	raw, ok := obj[field]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
