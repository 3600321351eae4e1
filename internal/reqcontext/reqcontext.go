// Package reqcontext holds the request-scoped context keys shared
// between the auth middleware and the handlers/analytics packages that
// read what it attaches.
package reqcontext

import (
	"context"

	"github.com/llmgov/gateway/internal/models"
)

type contextKey int

const apiKeyContextKey contextKey = iota

// WithAPIKey attaches the authenticated APIKey to ctx.
func WithAPIKey(ctx context.Context, key *models.APIKey) context.Context {
	return context.WithValue(ctx, apiKeyContextKey, key)
}

// APIKey retrieves the authenticated APIKey attached by the auth
// middleware, or nil if none is present.
func APIKey(ctx context.Context) *models.APIKey {
	key, _ := ctx.Value(apiKeyContextKey).(*models.APIKey)
	return key
}
