package formguard

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

func newBenchmarkGuard(b *testing.B) *Guard {
	b.Helper()

	cfg := DefaultConfig()
	cfg.RateLimit.PurgeInterval = -1
	cfg.Metrics.Enabled = true
	g, err := New().
		WithConfig(cfg).
		WithLedger(NewMemoryLedger()).
		WithLogger(quietLogger()).
		Build()
	if err != nil {
		b.Fatalf("Build failed: %v", err)
	}
	b.Cleanup(g.Close)
	return g
}

func benchRequest(i int, body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/bench", strings.NewReader(body))
	r.Header.Set("X-CSRF-Token", testToken)
	r.AddCookie(&http.Cookie{Name: "csrf-token", Value: testToken})
	return r.WithContext(WithClientIdentity(r.Context(), "bench-"+strconv.Itoa(i)))
}

func BenchmarkVerifySubmission(b *testing.B) {
	g := newBenchmarkGuard(b)
	p := Policy{Endpoint: "/api/bench", MaxRequests: 10, Window: time.Hour}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if v := g.VerifySubmission(benchRequest(i, `{"name":"Ada","email":"ada@example.com"}`), p); !v.Allowed() {
			b.Fatalf("verify denied: %s", v.Reason)
		}
	}
}

func BenchmarkVerifyDeferred(b *testing.B) {
	g := newBenchmarkGuard(b)
	p := Policy{Endpoint: "/api/bench", MaxRequests: 10, Window: time.Hour, AtomicQuota: true}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if v := g.VerifyDeferred(benchRequest(i, ""), p); !v.Allowed() {
			b.Fatalf("verify denied: %s", v.Reason)
		}
	}
}
