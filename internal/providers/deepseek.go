package providers

import (
	"context"
	"time"

	"github.com/sashabaranov/go-openai"
)

// DeepSeekBaseURL is DeepSeek's OpenAI-compatible API base.
const DeepSeekBaseURL = "https://api.deepseek.com/v1"

// DeepSeekAdapter invokes DeepSeek's chat completions API, which follows
// the OpenAI request/response schema at a different base URL.
type DeepSeekAdapter struct {
	client *openai.Client
}

// NewDeepSeekAdapter creates a DeepSeek-style adapter using the provider's
// own API key from configuration.
func NewDeepSeekAdapter(apiKey string) *DeepSeekAdapter {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = DeepSeekBaseURL
	return &DeepSeekAdapter{client: openai.NewClientWithConfig(cfg)}
}

func (a *DeepSeekAdapter) Name() string         { return "deepseek" }
func (a *DeepSeekAdapter) DefaultModel() string { return "deepseek-chat" }

// Invoke mirrors OpenAIAdapter.Invoke: same wire schema, different base
// URL and default model, same error classification.
func (a *DeepSeekAdapter) Invoke(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
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
