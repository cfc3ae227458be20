package formguard

import (
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/formguard/internal/botscore"
	"github.com/MrEthical07/formguard/internal/ledger"
	"github.com/MrEthical07/formguard/internal/token"
)

// Config defines a public type used by formguard APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Token     TokenConfig
	RateLimit RateLimitConfig
	BotScore  BotScoreConfig
	Security  SecurityConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls the anti-forgery cookie and header.
type TokenConfig struct {
	CookieName string
	HeaderName string
	TTL        time.Duration
	// Signed appends an HMAC-SHA256 digest to the cookie value. The header must echo
	// the signed value verbatim.
	Signed bool
	Secret []byte
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig defines a public type used by formguard APIs.
//
// RateLimitConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RateLimitConfig struct {
	Enabled       bool
	Retention     time.Duration
	PurgeInterval time.Duration
	PurgeTimeout  time.Duration
	// TrustForwardedFor reads X-Forwarded-For and X-Real-IP before RemoteAddr.
	// Only safe behind a proxy that overwrites those headers.
	TrustForwardedFor bool
}

/*
====================================
BOT SCORE CONFIG
====================================
*/

// BotScoreConfig defines a public type used by formguard APIs.
//
// BotScoreConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type BotScoreConfig struct {
	Enabled    bool
	Secret     string
	MinScore   float64
	VerifyURL  string
	Timeout    time.Duration
	TokenField string // JSON body field carrying the client token
}

// SecurityConfig defines a public type used by formguard APIs.
//
// SecurityConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SecurityConfig struct {
	ProductionMode bool
	SameSite       http.SameSite
	MaxBodyBytes   int64
}

// AuditConfig defines a public type used by formguard APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled     bool
	BufferSize  int
	DropIfFull  bool
	SinkTimeout time.Duration
}

// MetricsConfig defines a public type used by formguard APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULTS
====================================
*/

// DefaultConfig returns the configuration used when WithConfig is not called.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			CookieName: "csrf-token",
			HeaderName: "X-CSRF-Token",
			TTL:        time.Hour,
			Signed:     false,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			Retention:         ledger.DefaultRetention,
			PurgeInterval:     time.Minute,
			PurgeTimeout:      10 * time.Second,
			TrustForwardedFor: true,
		},
		BotScore: BotScoreConfig{
			Enabled:    false,
			MinScore:   botscore.DefaultMinScore,
			VerifyURL:  botscore.DefaultVerifyURL,
			Timeout:    botscore.DefaultTimeout,
			TokenField: "recaptchaToken",
		},
		Security: SecurityConfig{
			ProductionMode: false,
			SameSite:       http.SameSiteStrictMode,
			MaxBodyBytes:   1 << 20,
		},
		Audit: AuditConfig{
			Enabled:     false,
			BufferSize:  1024,
			DropIfFull:  true,
			SinkTimeout: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.Secret = cloneBytes(cfg.Token.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

const minSecretBytes = 32

// Validate reports the first structural problem in c, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	// Token
	if strings.TrimSpace(c.Token.CookieName) == "" {
		return invalid("Token CookieName must not be empty")
	}
	if strings.TrimSpace(c.Token.HeaderName) == "" {
		return invalid("Token HeaderName must not be empty")
	}
	if c.Token.TTL <= 0 {
		return invalid("Token TTL must be > 0")
	}
	if c.Token.TTL > time.Duration(math.MaxInt32)*time.Second {
		return invalid("Token TTL is too large")
	}
	if c.Token.Signed && len(c.Token.Secret) < minSecretBytes {
		return invalid("Token Secret must be at least %d bytes when Signed is true", minSecretBytes)
	}

	// Rate limit
	if c.RateLimit.Enabled {
		if c.RateLimit.Retention <= 0 {
			return invalid("RateLimit Retention must be > 0")
		}
		if c.RateLimit.PurgeTimeout <= 0 {
			return invalid("RateLimit PurgeTimeout must be > 0")
		}
	}

	// Bot score
	if c.BotScore.MinScore < 0 || c.BotScore.MinScore > 1 {
		return invalid("BotScore MinScore must be within [0, 1]")
	}
	if c.BotScore.Enabled {
		if c.BotScore.Timeout <= 0 {
			return invalid("BotScore Timeout must be > 0")
		}
		if strings.TrimSpace(c.BotScore.TokenField) == "" {
			return invalid("BotScore TokenField must not be empty")
		}
		if c.BotScore.VerifyURL == "" {
			return invalid("BotScore VerifyURL must not be empty")
		}
	}

	// Security
	if c.Security.MaxBodyBytes <= 0 {
		return invalid("Security MaxBodyBytes must be > 0")
	}
	switch c.Security.SameSite {
	case http.SameSiteDefaultMode, http.SameSiteLaxMode, http.SameSiteStrictMode, http.SameSiteNoneMode:
	default:
		return invalid("Security SameSite is invalid")
	}
	if c.Security.SameSite == http.SameSiteNoneMode && !c.Security.ProductionMode {
		return invalid("Security SameSite=None requires ProductionMode (Secure cookies)")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return invalid("Audit BufferSize must be > 0")
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return invalid("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

/*
====================================
LINT
====================================
*/

// LintWarning is a non-fatal configuration finding.
type LintWarning struct {
	Code    string
	Message string
}

// LintResult is the ordered list of warnings produced by Lint.
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// Lint reports settings that are valid but probably not what a production deployment wants.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code, msg string) {
		ws = append(ws, LintWarning{Code: code, Message: msg})
	}

	if !c.RateLimit.Enabled {
		add("rate_limit_disabled", "rate limiting is disabled for every policy")
	}
	if c.BotScore.Enabled && strings.TrimSpace(c.BotScore.Secret) == "" {
		add("bot_secret_missing", "bot verification is enabled without a provider secret; every check will pass degraded")
	}
	if c.BotScore.Timeout > 10*time.Second {
		add("bot_timeout_long", "bot verification timeout above 10s holds request goroutines")
	}
	if c.BotScore.Enabled && c.BotScore.MinScore < 0.3 {
		add("bot_min_score_low", "MinScore below 0.3 admits traffic classified as likely bot")
	}
	if c.Security.ProductionMode && !c.Token.Signed {
		add("token_unsigned", "anti-forgery cookie is not signed in production")
	}
	if c.Security.ProductionMode && c.RateLimit.TrustForwardedFor {
		add("forwarded_for_trusted", "X-Forwarded-For is trusted; ensure a proxy overwrites it")
	}
	if !c.Security.ProductionMode {
		add("cookies_not_secure", "anti-forgery cookie is issued without the Secure attribute")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", "verdict audit events are not emitted")
	}

	return ws
}

// HighSecurityConfig returns a production-leaning configuration. Callers still supply
// Token.Secret and BotScore.Secret.
func HighSecurityConfig() Config {
	cfg := defaultConfig()
	cfg.Token.Signed = true
	cfg.Token.TTL = 30 * time.Minute
	cfg.RateLimit.TrustForwardedFor = false
	cfg.BotScore.Enabled = true
	cfg.BotScore.MinScore = 0.7
	cfg.Security.ProductionMode = true
	cfg.Security.MaxBodyBytes = 256 << 10
	cfg.Audit.Enabled = true
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func (c *Config) tokenSecret() []byte {
	if !c.Token.Signed {
		return nil
	}
	return c.Token.Secret
}

func (c *Config) tokenMatches(header, cookie string) bool {
	if !token.Equal(header, cookie) {
		return false
	}
	if c.Token.Signed {
		return token.VerifySigned(cookie, c.tokenSecret())
	}
	return true
}
