package formguard

import (
	"fmt"
	"strings"
	"time"
)

// Policy is the per-endpoint protection setting supplied on every call.
// It is passed by value so a call never observes a concurrent change.
type Policy struct {
	// Endpoint scopes the rate-limit ledger, usually the request path.
	Endpoint    string        `yaml:"endpoint" json:"endpoint" validate:"required,max=191"`
	MaxRequests int           `yaml:"max_requests" json:"max_requests" validate:"gte=1"`
	Window      time.Duration `yaml:"window" json:"window" validate:"gt=0"`
	// Action is the expected bot-verification action tag. Required with RequireBotCheck.
	Action          string `yaml:"action" json:"action" validate:"required_if=RequireBotCheck true,max=100"`
	RequireBotCheck bool   `yaml:"require_bot_check" json:"require_bot_check"`
	// MinScore overrides BotScore.MinScore when non-zero.
	MinScore float64 `yaml:"min_score" json:"min_score" validate:"gte=0,lte=1"`
	// AtomicQuota asks the ledger to count and record in one step when it can.
	AtomicQuota bool `yaml:"atomic_quota" json:"atomic_quota"`
	// DeferPayload routes the endpoint through VerifyDeferred in the middleware
	// adapters: token and quota only, body left for the handler (multipart uploads).
	DeferPayload bool `yaml:"defer_payload" json:"defer_payload" validate:"excluded_if=RequireBotCheck true"`
}

// Validate checks the structural fields of p.
func (p Policy) Validate() error {
	if strings.TrimSpace(p.Endpoint) == "" {
		return fmt.Errorf("%w: endpoint must not be empty", ErrInvalidPolicy)
	}
	if p.MaxRequests < 1 {
		return fmt.Errorf("%w: %s: max requests must be >= 1", ErrInvalidPolicy, p.Endpoint)
	}
	if p.Window <= 0 {
		return fmt.Errorf("%w: %s: window must be > 0", ErrInvalidPolicy, p.Endpoint)
	}
	if p.RequireBotCheck && strings.TrimSpace(p.Action) == "" {
		return fmt.Errorf("%w: %s: action is required when the bot check is required", ErrInvalidPolicy, p.Endpoint)
	}
	if p.DeferPayload && p.RequireBotCheck {
		return fmt.Errorf("%w: %s: a deferred payload cannot carry a bot check", ErrInvalidPolicy, p.Endpoint)
	}
	if p.MinScore < 0 || p.MinScore > 1 {
		return fmt.Errorf("%w: %s: min score must be within [0, 1]", ErrInvalidPolicy, p.Endpoint)
	}
	return nil
}

func (p Policy) minScore(fallback float64) float64 {
	if p.MinScore > 0 {
		return p.MinScore
	}
	return fallback
}

// Predefined policies for the site's protected endpoints. The discovery and checkout
// endpoints are quota-only: autosaves and payment callbacks carry no bot token.
var (
	PolicyDiscoverySave = Policy{
		Endpoint:    "/api/discovery/save",
		MaxRequests: 60,
		Window:      5 * time.Minute,
	}
	PolicyDiscoverySubmit = Policy{
		Endpoint:    "/api/discovery/submit",
		MaxRequests: 10,
		Window:      time.Hour,
	}
	PolicyCheckoutInitialize = Policy{
		Endpoint:    "/api/checkout/initialize",
		MaxRequests: 20,
		Window:      time.Hour,
	}
	PolicyCheckoutVerify = Policy{
		Endpoint:    "/api/checkout/verify",
		MaxRequests: 30,
		Window:      time.Hour,
	}
	PolicySubmitQuote = Policy{
		Endpoint:        "/api/submit-quote",
		MaxRequests:     5,
		Window:          time.Hour,
		Action:          "submit_quote",
		RequireBotCheck: true,
	}
	PolicyBookStrategySession = Policy{
		Endpoint:        "/api/book-strategy-session/submit",
		MaxRequests:     5,
		Window:          time.Hour,
		Action:          "book_strategy_session",
		RequireBotCheck: true,
	}
	PolicyAssetAccession = Policy{
		Endpoint:     "/api/asset-accession/submit",
		MaxRequests:  5,
		Window:       time.Hour,
		DeferPayload: true,
	}
)

// PredefinedPolicies returns the built-in policies keyed by endpoint.
func PredefinedPolicies() map[string]Policy {
	return map[string]Policy{
		PolicyDiscoverySave.Endpoint:       PolicyDiscoverySave,
		PolicyDiscoverySubmit.Endpoint:     PolicyDiscoverySubmit,
		PolicyCheckoutInitialize.Endpoint:  PolicyCheckoutInitialize,
		PolicyCheckoutVerify.Endpoint:      PolicyCheckoutVerify,
		PolicySubmitQuote.Endpoint:         PolicySubmitQuote,
		PolicyBookStrategySession.Endpoint: PolicyBookStrategySession,
		PolicyAssetAccession.Endpoint:      PolicyAssetAccession,
	}
}
