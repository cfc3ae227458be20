package formguard

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ConfigFromEnv builds a Config from DefaultConfig and the process environment.
// It is meant to be called once at startup; Guards never read the environment.
//
//	CSRF_SECRET              enables signed tokens with this secret
//	RECAPTCHA_ENABLED        bot verification unless "false"
//	RECAPTCHA_SECRET_KEY     provider secret
//	RECAPTCHA_MIN_SCORE      default threshold (0..1)
//	RECAPTCHA_TIMEOUT        provider timeout, Go duration
//	FORMGUARD_ENV / NODE_ENV "production" enables Secure cookies
//	FORMGUARD_TRUST_XFF      trust X-Forwarded-For / X-Real-IP (default true)
//	FORMGUARD_MAX_BODY_BYTES body capture limit
//	FORMGUARD_AUDIT_ENABLED  enable audit dispatch
//	FORMGUARD_METRICS_ENABLED enable counters and latency histograms
func ConfigFromEnv() Config {
	return configFromLookup(os.Getenv)
}

func configFromLookup(getenv func(string) string) Config {
	cfg := defaultConfig()

	if secret := getenv("CSRF_SECRET"); secret != "" {
		cfg.Token.Signed = true
		cfg.Token.Secret = []byte(secret)
	}

	cfg.BotScore.Enabled = !strings.EqualFold(strings.TrimSpace(getenv("RECAPTCHA_ENABLED")), "false")
	cfg.BotScore.Secret = getenv("RECAPTCHA_SECRET_KEY")
	cfg.BotScore.MinScore = envFloat(getenv, "RECAPTCHA_MIN_SCORE", cfg.BotScore.MinScore)
	cfg.BotScore.Timeout = envDuration(getenv, "RECAPTCHA_TIMEOUT", cfg.BotScore.Timeout)

	env := getenv("FORMGUARD_ENV")
	if env == "" {
		env = getenv("NODE_ENV")
	}
	cfg.Security.ProductionMode = strings.EqualFold(strings.TrimSpace(env), "production")
	cfg.Security.MaxBodyBytes = int64(envInt(getenv, "FORMGUARD_MAX_BODY_BYTES", int(cfg.Security.MaxBodyBytes)))

	cfg.RateLimit.TrustForwardedFor = envBool(getenv, "FORMGUARD_TRUST_XFF", cfg.RateLimit.TrustForwardedFor)

	cfg.Audit.Enabled = envBool(getenv, "FORMGUARD_AUDIT_ENABLED", cfg.Audit.Enabled)
	cfg.Metrics.Enabled = envBool(getenv, "FORMGUARD_METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.EnableLatencyHistograms = cfg.Metrics.Enabled

	return cfg
}

func envFloat(getenv func(string) string, k string, def float64) float64 {
	v := getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def
	}
	return f
}

func envInt(getenv func(string) string, k string, def int) int {
	v := getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return i
}

func envBool(getenv func(string) string, k string, def bool) bool {
	v := getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

func envDuration(getenv func(string) string, k string, def time.Duration) time.Duration {
	v := getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return d
}
