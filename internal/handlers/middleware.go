package handlers

import (
	"net/http"

	"github.com/llmgov/gateway/internal/auth"
	"github.com/llmgov/gateway/internal/reqcontext"
)

// RequireAuth authenticates the bearer credential and attaches the
// matched APIKey to the request context for downstream handlers
// (notably the analytics endpoints, which scope every query to the
// caller's own key).
func RequireAuth(authenticator *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearer, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "missing or malformed authorization header")
				return
			}

			apiKey, err := authenticator.Authenticate(r.Context(), bearer)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid or inactive api key")
				return
			}

			ctx := reqcontext.WithAPIKey(r.Context(), apiKey)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
