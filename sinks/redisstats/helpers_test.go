package redisstats

import (
	"net/http"
	"net/http/httptest"
	"strings"
)

func httpRequestWithoutToken() *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/submit-quote", strings.NewReader(`{}`))
	r.RemoteAddr = "203.0.113.7:41000"
	return r
}
