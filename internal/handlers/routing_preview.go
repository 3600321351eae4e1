package handlers

import (
	"net/http"
	"strconv"

	"github.com/llmgov/gateway/internal/ratelimit"
	"github.com/llmgov/gateway/internal/routing"
)

// RoutingPreviewHandler implements the unauthenticated
// GET /v1/routing/preview?task=&budget=&latency_sensitive= endpoint: a
// read-only view into the deterministic router, guarded by a coarse
// IP-keyed limiter rather than the per-key admission contract.
type RoutingPreviewHandler struct {
	guard *ratelimit.PreviewGuard
}

// NewRoutingPreviewHandler creates a RoutingPreviewHandler guarded by guard.
func NewRoutingPreviewHandler(guard *ratelimit.PreviewGuard) *RoutingPreviewHandler {
	return &RoutingPreviewHandler{guard: guard}
}

type routingPreviewResponse struct {
	SelectedProvider string   `json:"selected_provider"`
	ProviderName     string   `json:"provider_name"`
	Reason           string   `json:"reason"`
	FallbackChain    []string `json:"fallback_chain"`
}

func (h *RoutingPreviewHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.guard.Allow(r.RemoteAddr) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	q := r.URL.Query()
	latencySensitive, _ := strconv.ParseBool(q.Get("latency_sensitive"))

	decision := routing.Route(routing.Hints{
		Task:             q.Get("task"),
		Budget:           q.Get("budget"),
		LatencySensitive: latencySensitive,
	})

	writeJSON(w, http.StatusOK, routingPreviewResponse{
		SelectedProvider: decision.Primary,
		ProviderName:     decision.Primary,
		Reason:           decision.Reason,
		FallbackChain:    routing.FixedOrder(),
	})
}
