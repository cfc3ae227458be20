package middleware

import (
	"net/http"

	"github.com/MrEthical07/formguard"
)

type tokenBody struct {
	Token string `json:"token"`
}

// TokenHandler serves GET requests with a fresh anti-forgery token: the cookie is set on
// the response and the value the client must echo is returned as {"token":"..."}.
func TokenHandler(guard *formguard.Guard) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
			return
		}
		if guard == nil {
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to generate security token"})
			return
		}

		value, err := guard.IssueToken(w)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to generate security token"})
			return
		}
		writeJSON(w, http.StatusOK, tokenBody{Token: value})
	})
}
