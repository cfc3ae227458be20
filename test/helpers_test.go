//go:build integration
// +build integration

package test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/formguard"
)

const integrationToken = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func newIntegrationGuard(t *testing.T, l formguard.Ledger) *formguard.Guard {
	t.Helper()

	cfg := formguard.DefaultConfig()
	cfg.RateLimit.PurgeInterval = -1
	g, err := formguard.New().
		WithConfig(cfg).
		WithLedger(l).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("build guard: %v", err)
	}
	t.Cleanup(g.Close)
	return g
}

func tokenRequest(identity, body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/submit-quote", strings.NewReader(body))
	r.RemoteAddr = identity + ":40000"
	r.Header.Set("X-CSRF-Token", integrationToken)
	r.AddCookie(&http.Cookie{Name: "csrf-token", Value: integrationToken})
	return r
}
