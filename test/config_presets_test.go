package test

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/formguard"
)

func TestDefaultConfigPresetValidates(t *testing.T) {
	cfg := formguard.DefaultConfig()

	if !cfg.RateLimit.Enabled {
		t.Fatal("expected rate limiting enabled in preset baseline")
	}
	if cfg.BotScore.Enabled {
		t.Fatal("expected bot verification disabled until a secret is configured")
	}
	if cfg.Token.Signed {
		t.Fatal("expected unsigned tokens in preset baseline")
	}
	if cfg.Security.SameSite != http.SameSiteStrictMode {
		t.Fatalf("expected SameSite=Strict, got %v", cfg.Security.SameSite)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected preset to validate, got %v", err)
	}
}

func TestHighSecurityConfigPresetValidates(t *testing.T) {
	cfg := formguard.HighSecurityConfig()

	if !cfg.Security.ProductionMode {
		t.Fatal("expected production mode enabled")
	}
	if !cfg.Token.Signed || cfg.Token.TTL != 30*time.Minute {
		t.Fatalf("expected signed 30m tokens, got %+v", cfg.Token)
	}
	if cfg.RateLimit.TrustForwardedFor {
		t.Fatal("expected forwarded headers untrusted")
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected preset without a token secret to fail validation")
	}

	cfg.Token.Secret = []byte(strings.Repeat("k", 32))
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected preset with secret to validate, got %v", err)
	}
}
