package providers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIAdapter invokes OpenAI's chat completions API.
type OpenAIAdapter struct {
	client *openai.Client
}

// NewOpenAIAdapter creates an OpenAI-style adapter using the provider's own
// API key from configuration.
func NewOpenAIAdapter(apiKey string) *OpenAIAdapter {
	return &OpenAIAdapter{client: openai.NewClient(apiKey)}
}

func (a *OpenAIAdapter) Name() string         { return "openai" }
func (a *OpenAIAdapter) DefaultModel() string { return "gpt-3.5-turbo" }

// Invoke translates the internal request, performs a single POST with the
// configured timeout, and normalizes the response. It never retries.
func (a *OpenAIAdapter) Invoke(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	model := req.ModelOverride
	if model == "" {
		model = a.DefaultModel()
	}

	openaiReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: toChatCompletionMessages(req.Messages),
	}
	if req.Temperature != nil {
		openaiReq.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		openaiReq.MaxTokens = *req.MaxTokens
	}

	resp, err := a.client.CreateChatCompletion(ctx, openaiReq)
	latencyMs := int(time.Since(start).Milliseconds())
	if err != nil {
		return nil, classifyOpenAIError(a.Name(), err)
	}

	choices := make([]Choice, 0, len(resp.Choices))
	for _, c := range resp.Choices {
		choices = append(choices, Choice{
			Index:        c.Index,
			Role:         c.Message.Role,
			Content:      c.Message.Content,
			FinishReason: string(c.FinishReason),
		})
	}

	return &ChatResponse{
		ID:           resp.ID,
		Model:        resp.Model,
		Choices:      choices,
		TokensIn:     resp.Usage.PromptTokens,
		TokensOut:    resp.Usage.CompletionTokens,
		RawLatencyMs: latencyMs,
	}, nil
}

// classifyOpenAIError maps go-openai's error taxonomy (and a generic
// context deadline) onto the gateway's three retryable kinds. Anything
// unrecognized becomes a ProviderError.
func classifyOpenAIError(provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ProviderTimeoutError{Provider: provider, Message: "request timed out"}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests:
			return &ProviderRateLimitError{Provider: provider, Message: "rate limit exceeded"}
		case http.StatusGatewayTimeout, http.StatusRequestTimeout:
			return &ProviderTimeoutError{Provider: provider, Message: "upstream timed out"}
		}
		return &ProviderError{Provider: provider, Message: "upstream API error", Cause: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			return &ProviderRateLimitError{Provider: provider, Message: "rate limit exceeded"}
		}
		return &ProviderError{Provider: provider, Message: "request failed", Cause: err}
	}

	return &ProviderError{Provider: provider, Message: "request failed", Cause: err}
}
