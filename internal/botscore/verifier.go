package botscore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultVerifyURL is Google's reCAPTCHA siteverify endpoint.
	DefaultVerifyURL = "https://www.google.com/recaptcha/api/siteverify"
	// DefaultTimeout bounds one provider round trip.
	DefaultTimeout = 5 * time.Second

	maxResponseBytes = 64 << 10
)

// Outcome is the tagged result of a verification.
type Outcome int

const (
	Verified Outcome = iota
	Degraded
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Verified:
		return "verified"
	case Degraded:
		return "degraded"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result describes one verification. ErrorCodes and Detail are for server-side logs
// only and must not be shown to end users.
type Result struct {
	Outcome    Outcome
	Score      float64
	Action     string
	Hostname   string
	Detail     string
	ErrorCodes []string
}

// Success reports whether the request may proceed past the bot check
// (Verified or Degraded), before any score threshold is applied.
func (r Result) Success() bool { return r.Outcome != Rejected }

// FailedOpen reports whether the result is a degraded pass.
func (r Result) FailedOpen() bool { return r.Outcome == Degraded }

// Config holds verifier settings.
type Config struct {
	Secret    string
	VerifyURL string
	Timeout   time.Duration
}

// Verifier calls the siteverify endpoint.
type Verifier struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithHTTPClient replaces the default client. The per-call timeout still applies.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) {
		if c != nil {
			v.client = c
		}
	}
}

// WithLogger sets the logger for degraded outcomes.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// New creates a [Verifier]. Empty fields in cfg take package defaults.
func New(cfg Config, opts ...Option) *Verifier {
	if cfg.VerifyURL == "" {
		cfg.VerifyURL = DefaultVerifyURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	v := &Verifier{
		cfg:    cfg,
		client: &http.Client{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Configured reports whether a provider secret is set.
func (v *Verifier) Configured() bool {
	return strings.TrimSpace(v.cfg.Secret) != ""
}

type siteverifyResponse struct {
	Success     bool     `json:"success"`
	Score       float64  `json:"score"`
	Action      string   `json:"action"`
	ChallengeTS string   `json:"challenge_ts"`
	Hostname    string   `json:"hostname"`
	ErrorCodes  []string `json:"error-codes"`
}

// Verify checks token with the provider. expectedAction must equal the action tag the
// provider reports; an empty expectedAction only matches an untagged token. Verify never returns an error; failures map onto
// Degraded or Rejected.
func (v *Verifier) Verify(ctx context.Context, token, expectedAction string) Result {
	if !v.Configured() {
		v.logger.Warn("formguard: bot verification not configured, skipping")
		return Result{Outcome: Degraded, Detail: "not configured"}
	}
	if strings.TrimSpace(token) == "" {
		return Result{Outcome: Rejected, Detail: "missing token"}
	}

	ctx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	resp, err := v.post(ctx, token)
	if err != nil {
		detail := "provider unreachable"
		if errors.Is(err, context.DeadlineExceeded) {
			detail = "provider timeout"
		}
		v.logger.Warn("formguard: bot verification failed open", "detail", detail, "error", err)
		return Result{Outcome: Degraded, Detail: detail}
	}

	if !resp.Success {
		v.logger.Warn("formguard: bot verification rejected by provider, failing open",
			"error_codes", resp.ErrorCodes,
		)
		return Result{
			Outcome:    Degraded,
			Action:     resp.Action,
			Hostname:   resp.Hostname,
			Detail:     "provider reported failure",
			ErrorCodes: resp.ErrorCodes,
		}
	}

	if resp.Action != expectedAction {
		v.logger.Warn("formguard: bot verification action mismatch",
			"expected", expectedAction,
			"actual", resp.Action,
		)
		return Result{
			Outcome:  Rejected,
			Score:    resp.Score,
			Action:   resp.Action,
			Hostname: resp.Hostname,
			Detail:   "action mismatch",
		}
	}

	return Result{
		Outcome:  Verified,
		Score:    resp.Score,
		Action:   resp.Action,
		Hostname: resp.Hostname,
	}
}

func (v *Verifier) post(ctx context.Context, token string) (*siteverifyResponse, error) {
	form := url.Values{}
	form.Set("secret", v.cfg.Secret)
	form.Set("response", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.VerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := v.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxResponseBytes))
		return nil, fmt.Errorf("siteverify status %d", res.StatusCode)
	}

	var out siteverifyResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, maxResponseBytes)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode siteverify response: %w", err)
	}
	return &out, nil
}
