package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llmgov/gateway/internal/ratelimit"
)

// Scenario 6: routing preview is deterministic and reports the full
// canonical fallback chain regardless of which provider is primary.
func TestScenarioRoutingPreviewReasoningTask(t *testing.T) {
	h := NewRoutingPreviewHandler(ratelimit.NewPreviewGuard(100, 100))

	req := httptest.NewRequest(http.MethodGet, "/v1/routing/preview?task=reasoning", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp routingPreviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "huggingface", resp.SelectedProvider)
	require.Equal(t, []string{"openai", "deepseek", "huggingface"}, resp.FallbackChain)
	require.NotEmpty(t, resp.Reason)

	req2 := httptest.NewRequest(http.MethodGet, "/v1/routing/preview?task=reasoning", nil)
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req2)
	require.JSONEq(t, rec.Body.String(), rec2.Body.String())
}
