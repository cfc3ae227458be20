package test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/MrEthical07/formguard"
	"github.com/MrEthical07/formguard/middleware"
	"github.com/redis/go-redis/v9"
)

// ExampleNew demonstrates guard construction with production-style dependencies.
func ExampleNew() {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})

	cfg := formguard.DefaultConfig()
	cfg.BotScore.Enabled = true
	cfg.BotScore.Secret = "provider-secret"

	guard, _ := formguard.New().
		WithConfig(cfg).
		WithLedger(formguard.NewRedisLedger(rdb, "", 24*time.Hour)).
		Build()
	_ = guard
}

// ExampleGuard_VerifySubmission shows the denial path for a request without a token.
func ExampleGuard_VerifySubmission() {
	guard, _ := formguard.New().WithLedger(formguard.NewMemoryLedger()).Build()
	defer guard.Close()

	r := httptest.NewRequest(http.MethodPost, "/api/submit-quote", strings.NewReader(`{"name":"Ada"}`))
	v := guard.VerifySubmission(r, formguard.PolicySubmitQuote)

	fmt.Println(v.Allowed(), v.Reason, v.Status)
	// Output: false token_invalid 403
}

// ExampleProtect wires the net/http adapter in front of a handler.
func ExampleProtect() {
	guard, _ := formguard.New().WithLedger(formguard.NewMemoryLedger()).Build()
	defer guard.Close()

	mux := http.NewServeMux()
	mux.Handle("GET /api/csrf-token", middleware.TokenHandler(guard))
	mux.Handle("POST /api/submit-quote", middleware.Protect(guard, formguard.PolicySubmitQuote)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			payload, _ := middleware.PayloadFromContext(r.Context())
			_ = payload
			w.WriteHeader(http.StatusNoContent)
		}),
	))
	_ = mux
}
