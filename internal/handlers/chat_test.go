package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/llmgov/gateway/internal/auth"
	"github.com/llmgov/gateway/internal/costs"
	"github.com/llmgov/gateway/internal/fallback"
	"github.com/llmgov/gateway/internal/metrics"
	"github.com/llmgov/gateway/internal/models"
	"github.com/llmgov/gateway/internal/pricing"
	"github.com/llmgov/gateway/internal/providers"
	"github.com/llmgov/gateway/internal/ratelimit"
)

type fakeAdapter struct {
	name string
	err  error
	resp *providers.ChatResponse
}

func (f *fakeAdapter) Name() string         { return f.name }
func (f *fakeAdapter) DefaultModel() string { return "fake-model" }
func (f *fakeAdapter) Invoke(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type fakeKeyStore struct {
	keys []models.APIKey
}

func (f *fakeKeyStore) ListActiveAPIKeys(ctx context.Context) ([]models.APIKey, error) {
	var active []models.APIKey
	for _, k := range f.keys {
		if k.IsActive {
			active = append(active, k)
		}
	}
	return active, nil
}

func (f *fakeKeyStore) GetAPIKey(ctx context.Context, id string) (*models.APIKey, error) {
	for _, k := range f.keys {
		if k.ID == id {
			key := k
			return &key, nil
		}
	}
	return nil, fmt.Errorf("api key %s not found", id)
}

type fakeLogStore struct {
	logs []*models.RequestLog
}

func (f *fakeLogStore) InsertRequestLog(ctx context.Context, log *models.RequestLog) error {
	f.logs = append(f.logs, log)
	return nil
}

type fakeCostStore struct {
	records []*models.CostRecord
}

func (f *fakeCostStore) InsertCostRecord(ctx context.Context, rec *models.CostRecord) error {
	f.records = append(f.records, rec)
	return nil
}

func testAPIKey(t *testing.T, id, plaintext string, rateLimit int) models.APIKey {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.MinCost)
	require.NoError(t, err)
	return models.APIKey{ID: id, KeyHash: string(hash), RateLimitPerMinute: rateLimit, IsActive: true}
}

func newTestHandler(t *testing.T, keys []models.APIKey, table providers.Table) (*ChatHandler, *fakeLogStore, *fakeCostStore) {
	t.Helper()
	logs := &fakeLogStore{}
	costStore := &fakeCostStore{}
	authenticator := auth.New(&fakeKeyStore{keys: keys}, 60)
	limiter := ratelimit.NewLimiter()
	executor := fallback.New(table, 2*time.Second)
	recorder := costs.New(costStore, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h := NewChatHandler(authenticator, limiter, executor, recorder, logs, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return h, logs, costStore
}

func postChat(t *testing.T, h *ChatHandler, bearer, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// Scenario 1: summarization routes to DeepSeek.
func TestScenarioSummarizationRoutesToDeepSeek(t *testing.T) {
	key := testAPIKey(t, "key-1", "secret-1", 60)
	table := providers.Table{
		"deepseek": &fakeAdapter{name: "deepseek", resp: &providers.ChatResponse{
			ID: "resp-1", Model: "deepseek-chat",
			Choices:   []providers.Choice{{Index: 0, Role: "assistant", Content: "Summary of X"}},
			TokensIn:  10, TokensOut: 5,
		}},
	}
	h, _, costStore := newTestHandler(t, []models.APIKey{key}, table)

	rec := postChat(t, h, "secret-1", `{"task":"summarization","budget":"low","messages":[{"role":"user","content":"Summarize: X"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp chatResponseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "deepseek", resp.Provider)
	require.Equal(t, pricing.Cost("deepseek", "deepseek-chat", 10, 5).String(), resp.CostUSD)
	require.Len(t, costStore.records, 1)
	require.Equal(t, "deepseek", costStore.records[0].Provider)
}

// Scenario 2: primary fails, fallback succeeds.
func TestScenarioPrimaryFailsFallbackSucceeds(t *testing.T) {
	key := testAPIKey(t, "key-1", "secret-1", 60)
	table := providers.Table{
		"openai": &fakeAdapter{name: "openai", err: &providers.ProviderError{Provider: "openai", Message: "upstream 500"}},
		"deepseek": &fakeAdapter{name: "deepseek", resp: &providers.ChatResponse{
			ID: "resp-2", Model: "deepseek-chat",
			Choices:   []providers.Choice{{Index: 0, Role: "assistant", Content: "ok"}},
			TokensIn:  20, TokensOut: 10,
		}},
	}
	h, _, costStore := newTestHandler(t, []models.APIKey{key}, table)

	errorsBefore := testutil.ToFloat64(metrics.ErrorsTotal.WithLabelValues("key-1", "openai", "provider_error"))
	fallbacksBefore := testutil.ToFloat64(metrics.FallbacksTotal.WithLabelValues("key-1", "openai", "deepseek"))
	successBefore := testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("key-1", "deepseek", "success"))

	rec := postChat(t, h, "secret-1", `{"messages":[{"role":"user","content":"hi"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp chatResponseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "deepseek", resp.Provider)
	require.Equal(t, pricing.Cost("deepseek", "deepseek-chat", 20, 10).String(), resp.CostUSD)
	require.Len(t, costStore.records, 1)

	require.Equal(t, errorsBefore+1, testutil.ToFloat64(metrics.ErrorsTotal.WithLabelValues("key-1", "openai", "provider_error")))
	require.Equal(t, fallbacksBefore+1, testutil.ToFloat64(metrics.FallbacksTotal.WithLabelValues("key-1", "openai", "deepseek")))
	require.Equal(t, successBefore+1, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("key-1", "deepseek", "success")))
}

// Scenario 3: all providers fail.
func TestScenarioAllProvidersFail(t *testing.T) {
	key := testAPIKey(t, "key-1", "secret-1", 60)
	timeoutErr := &providers.ProviderTimeoutError{Provider: "x", Message: "deadline exceeded"}
	table := providers.Table{
		"openai":      &fakeAdapter{name: "openai", err: timeoutErr},
		"deepseek":    &fakeAdapter{name: "deepseek", err: timeoutErr},
		"huggingface": &fakeAdapter{name: "huggingface", err: timeoutErr},
	}
	h, _, costStore := newTestHandler(t, []models.APIKey{key}, table)

	rec := postChat(t, h, "secret-1", `{"messages":[{"role":"user","content":"hi"}]}`)

	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Contains(t, rec.Body.String(), "provider error")
	require.Empty(t, costStore.records)
}

// Scenario 4: rate limit exceeded.
func TestScenarioRateLimitExceeded(t *testing.T) {
	key := testAPIKey(t, "key-1", "secret-1", 60)
	table := providers.Table{
		"openai": &fakeAdapter{name: "openai", resp: &providers.ChatResponse{ID: "r", Model: "gpt-3.5-turbo", TokensIn: 1, TokensOut: 1}},
	}
	h, _, costStore := newTestHandler(t, []models.APIKey{key}, table)

	admitted, rejected := 0, 0
	for i := 0; i < 61; i++ {
		rec := postChat(t, h, "secret-1", `{"messages":[{"role":"user","content":"hi"}]}`)
		if rec.Code == http.StatusTooManyRequests {
			rejected++
		} else {
			admitted++
		}
	}

	require.Equal(t, 60, admitted)
	require.Equal(t, 1, rejected)
	require.Len(t, costStore.records, 60)
}

// Scenario 5: inactive key.
func TestScenarioInactiveKeyRejected(t *testing.T) {
	key := testAPIKey(t, "key-1", "secret-1", 60)
	key.IsActive = false
	table := providers.Table{}
	h, logs, costStore := newTestHandler(t, []models.APIKey{key}, table)

	rec := postChat(t, h, "secret-1", `{"messages":[{"role":"user","content":"hi"}]}`)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, costStore.records)
	require.Empty(t, logs.logs)
}
