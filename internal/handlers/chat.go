// Package handlers wires the gateway's HTTP surface to the pipeline:
// authenticate, admit, validate, route, execute the fallback chain,
// record cost, and respond.
package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/llmgov/gateway/internal/auth"
	"github.com/llmgov/gateway/internal/costs"
	"github.com/llmgov/gateway/internal/fallback"
	"github.com/llmgov/gateway/internal/logging"
	"github.com/llmgov/gateway/internal/metrics"
	"github.com/llmgov/gateway/internal/models"
	"github.com/llmgov/gateway/internal/providers"
	"github.com/llmgov/gateway/internal/ratelimit"
	"github.com/llmgov/gateway/internal/routing"
)

// logStore is the subset of store.Store the chat handler depends on for
// the supplemental request-log trace table.
type logStore interface {
	InsertRequestLog(ctx context.Context, log *models.RequestLog) error
}

// ChatHandler implements POST /v1/chat/completions.
type ChatHandler struct {
	authenticator *auth.Authenticator
	limiter       *ratelimit.Limiter
	executor      *fallback.Executor
	recorder      *costs.Recorder
	logs          logStore
	logger        *slog.Logger
}

// NewChatHandler assembles a ChatHandler from its collaborators.
func NewChatHandler(authenticator *auth.Authenticator, limiter *ratelimit.Limiter, executor *fallback.Executor, recorder *costs.Recorder, logs logStore, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		authenticator: authenticator,
		limiter:       limiter,
		executor:      executor,
		recorder:      recorder,
		logs:          logs,
		logger:        logger,
	}
}

// chatRequestBody is the wire shape of the incoming request.
type chatRequestBody struct {
	Model            string             `json:"model"`
	Messages         []providers.Message `json:"messages"`
	Temperature      *float32           `json:"temperature,omitempty"`
	MaxTokens        *int               `json:"max_tokens,omitempty"`
	Task             string             `json:"task,omitempty"`
	Budget           string             `json:"budget,omitempty"`
	LatencySensitive bool               `json:"latency_sensitive,omitempty"`
}

type usagePayload struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponseBody struct {
	ID       string                 `json:"id"`
	Object   string                 `json:"object"`
	Created  int64                  `json:"created"`
	Model    string                 `json:"model"`
	Choices  []providers.Choice     `json:"choices"`
	Usage    usagePayload           `json:"usage"`
	Provider string                 `json:"provider"`
	CostUSD  string                 `json:"cost_usd"`
}

// ServeHTTP implements the 8-step pipeline in spec §4.9.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := newRequestID()
	logger := logging.WithRequestID(h.logger, requestID)
	ctx := logging.IntoContext(r.Context(), logger)

	bearer, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing or malformed authorization header")
		return
	}

	apiKey, err := h.authenticator.Authenticate(ctx, bearer)
	if err != nil {
		logger.Warn("authentication failed", "error_type", "auth_error")
		writeError(w, http.StatusUnauthorized, "invalid or inactive api key")
		return
	}

	if !h.limiter.Allow(apiKey.ID, apiKey.RateLimitPerMinute) {
		logger.Warn("rate limit rejection", "api_key_id", apiKey.ID, "error_type", "rate_limited_local")
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var body chatRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := validateChatRequest(body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	decision := routing.Route(routing.Hints{
		Task:             body.Task,
		Budget:           body.Budget,
		LatencySensitive: body.LatencySensitive,
	})

	req := providers.ChatRequest{
		Messages:      body.Messages,
		ModelOverride: body.Model,
		Temperature:   body.Temperature,
		MaxTokens:     body.MaxTokens,
	}

	start := time.Now()
	result := h.executor.Run(ctx, decision.Chain(), req, func(a fallback.Attempt) {
		h.emitAttempt(apiKey.ID, requestID, a, logger)
	})
	elapsed := time.Since(start)

	if result.Err != nil || result.Response == nil {
		metrics.RequestsTotal.WithLabelValues(apiKey.ID, decision.Primary, "failure").Inc()
		h.logRequest(ctx, requestID, apiKey.ID, body, "", "failure")
		logger.Error("providers exhausted",
			"api_key_id", apiKey.ID,
			"error_type", "providers_exhausted",
		)
		writeError(w, http.StatusBadGateway, "LLM provider error: "+errMessage(result.Err))
		return
	}

	resp := result.Response
	metrics.RequestsTotal.WithLabelValues(apiKey.ID, result.Provider, "success").Inc()
	metrics.LatencySeconds.WithLabelValues(apiKey.ID, result.Provider).Observe(elapsed.Seconds())
	if result.FallbackUsed {
		metrics.FallbacksTotal.WithLabelValues(apiKey.ID, decision.Primary, result.Provider).Inc()
	}

	cost := h.recorder.Record(ctx, apiKey.ID, requestID, result.Provider, resp.Model, resp.TokensIn, resp.TokensOut, int(elapsed.Milliseconds()))

	logger.Info("chat completion succeeded",
		"api_key_id", apiKey.ID,
		"provider", result.Provider,
		"latency_ms", elapsed.Milliseconds(),
		"cost_usd", cost.String(),
		"fallback_used", result.FallbackUsed,
	)
	h.logRequest(ctx, requestID, apiKey.ID, body, result.Provider, "success")

	writeJSON(w, http.StatusOK, chatResponseBody{
		ID:      resp.ID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   resp.Model,
		Choices: resp.Choices,
		Usage: usagePayload{
			PromptTokens:     resp.TokensIn,
			CompletionTokens: resp.TokensOut,
			TotalTokens:      resp.TokensIn + resp.TokensOut,
		},
		Provider: result.Provider,
		CostUSD:  cost.String(),
	})
}

func (h *ChatHandler) emitAttempt(apiKeyID, requestID string, a fallback.Attempt, logger *slog.Logger) {
	if a.Err == nil {
		return
	}
	errType := errorType(a.Err)
	metrics.ErrorsTotal.WithLabelValues(apiKeyID, a.Provider, errType).Inc()
	logger.Warn("fallback attempt failed",
		"api_key_id", apiKeyID,
		"provider", a.Provider,
		"error_type", errType,
		"latency_ms", a.LatencyMs,
	)
}

func (h *ChatHandler) logRequest(ctx context.Context, requestID, apiKeyID string, body chatRequestBody, provider, status string) {
	err := h.logs.InsertRequestLog(ctx, &models.RequestLog{
		ID:               uuid.NewString(),
		RequestID:        requestID,
		APIKeyID:         apiKeyID,
		Task:             body.Task,
		Budget:           body.Budget,
		LatencySensitive: body.LatencySensitive,
		ProviderUsed:     provider,
		Status:           status,
		CreatedAt:        time.Now(),
	})
	if err != nil {
		logging.FromContext(ctx).Error("request log persistence failed", "request_id", requestID, "error", err.Error())
	}
}

func validateChatRequest(body chatRequestBody) error {
	if len(body.Messages) == 0 {
		return errors.New("messages must be non-empty")
	}
	for _, m := range body.Messages {
		switch m.Role {
		case "system", "user", "assistant":
		default:
			return errors.New("message role must be one of system, user, assistant")
		}
		if m.Content == "" {
			return errors.New("message content must be a non-empty string")
		}
	}
	if body.Temperature != nil && (*body.Temperature < 0 || *body.Temperature > 2) {
		return errors.New("temperature must be in [0, 2]")
	}
	if body.MaxTokens != nil && *body.MaxTokens <= 0 {
		return errors.New("max_tokens must be positive")
	}
	return nil
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) <= len(prefix) || h[:len(prefix)] != prefix {
		return "", false
	}
	return h[len(prefix):], true
}

func newRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return "req-" + hex.EncodeToString(buf)
}

func errorType(err error) string {
	var (
		timeoutErr   *providers.ProviderTimeoutError
		rateLimitErr *providers.ProviderRateLimitError
	)
	switch {
	case errors.As(err, &timeoutErr):
		return "provider_timeout"
	case errors.As(err, &rateLimitErr):
		return "provider_rate_limit"
	default:
		return "provider_error"
	}
}

func errMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
