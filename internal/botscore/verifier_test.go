package botscore

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func provider(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "test-secret", r.PostForm.Get("secret"))
		assert.Equal(t, "client-token", r.PostForm.Get("response"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newVerifier(url string) *Verifier {
	return New(Config{Secret: "test-secret", VerifyURL: url, Timeout: time.Second}, WithLogger(quietLogger()))
}

func TestVerifyOutcomes(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		action     string
		want       Outcome
		wantScore  float64
		wantDetail string
	}{
		{
			name:      "verified",
			status:    http.StatusOK,
			body:      `{"success":true,"score":0.9,"action":"submit_quote","hostname":"example.com"}`,
			action:    "submit_quote",
			want:      Verified,
			wantScore: 0.9,
		},
		{
			name:      "low score still verified",
			status:    http.StatusOK,
			body:      `{"success":true,"score":0.3,"action":"submit_quote"}`,
			action:    "submit_quote",
			want:      Verified,
			wantScore: 0.3,
		},
		{
			name:       "empty expected action does not match a tagged token",
			status:     http.StatusOK,
			body:       `{"success":true,"score":0.9,"action":"login"}`,
			want:       Rejected,
			wantScore:  0.9,
			wantDetail: "action mismatch",
		},
		{
			name:       "action mismatch rejected even with high score",
			status:     http.StatusOK,
			body:       `{"success":true,"score":0.95,"action":"login"}`,
			action:     "submit_quote",
			want:       Rejected,
			wantScore:  0.95,
			wantDetail: "action mismatch",
		},
		{
			name:       "provider failure fails open",
			status:     http.StatusOK,
			body:       `{"success":false,"error-codes":["timeout-or-duplicate"]}`,
			action:     "submit_quote",
			want:       Degraded,
			wantDetail: "provider reported failure",
		},
		{
			name:       "non-2xx fails open",
			status:     http.StatusBadGateway,
			body:       `oops`,
			want:       Degraded,
			wantDetail: "provider unreachable",
		},
		{
			name:       "garbage body fails open",
			status:     http.StatusOK,
			body:       `<html>`,
			want:       Degraded,
			wantDetail: "provider unreachable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := provider(t, tt.status, tt.body)
			res := newVerifier(srv.URL).Verify(context.Background(), "client-token", tt.action)

			assert.Equal(t, tt.want, res.Outcome)
			assert.InDelta(t, tt.wantScore, res.Score, 1e-9)
			assert.Equal(t, tt.wantDetail, res.Detail)
		})
	}
}

func TestVerifyProviderErrorCodesKept(t *testing.T) {
	srv := provider(t, http.StatusOK, `{"success":false,"error-codes":["invalid-input-response","bad-request"]}`)
	res := newVerifier(srv.URL).Verify(context.Background(), "client-token", "")

	assert.True(t, res.FailedOpen())
	assert.True(t, res.Success())
	assert.Equal(t, []string{"invalid-input-response", "bad-request"}, res.ErrorCodes)
}

func TestVerifyTimeoutFailsOpen(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	v := New(Config{Secret: "s", VerifyURL: srv.URL, Timeout: 50 * time.Millisecond}, WithLogger(quietLogger()))

	start := time.Now()
	res := v.Verify(context.Background(), "client-token", "submit_quote")

	assert.Equal(t, Degraded, res.Outcome)
	assert.Equal(t, "provider timeout", res.Detail)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestVerifyCancelledRequestFailsOpen(t *testing.T) {
	srv := provider(t, http.StatusOK, `{"success":true,"score":1}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newVerifier(srv.URL).Verify(ctx, "client-token", "")
	assert.Equal(t, Degraded, res.Outcome)
}

func TestVerifyUnconfigured(t *testing.T) {
	v := New(Config{}, WithLogger(quietLogger()))

	res := v.Verify(context.Background(), "client-token", "submit_quote")
	assert.Equal(t, Degraded, res.Outcome)
	assert.Zero(t, res.Score)
	assert.True(t, res.Success())
	assert.True(t, res.FailedOpen())
	assert.False(t, v.Configured())
}

func TestVerifyEmptyTokenRejected(t *testing.T) {
	v := New(Config{Secret: "s", VerifyURL: "http://127.0.0.1:1"}, WithLogger(quietLogger()))

	for _, tok := range []string{"", "   "} {
		res := v.Verify(context.Background(), tok, "")
		assert.Equal(t, Rejected, res.Outcome)
		assert.False(t, res.Success())
		assert.False(t, res.FailedOpen())
	}
}

func TestScoreHelpers(t *testing.T) {
	assert.True(t, IsScoreAcceptable(0.5, DefaultMinScore))
	assert.False(t, IsScoreAcceptable(0.49, DefaultMinScore))

	assert.Equal(t, "very likely human", ScoreDescription(0.95))
	assert.Equal(t, "likely human", ScoreDescription(0.7))
	assert.Equal(t, "neutral", ScoreDescription(0.5))
	assert.Equal(t, "likely bot", ScoreDescription(0.3))
	assert.Equal(t, "very likely bot", ScoreDescription(0.1))
}
