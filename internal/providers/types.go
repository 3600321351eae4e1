// Package providers implements the uniform adapter contract over the
// upstream LLM HTTP APIs (OpenAI-style, DeepSeek-style, HuggingFace
// inference) and the error taxonomy the fallback executor classifies on.
package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// Message is one chat turn in the internal request contract.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the internal, provider-agnostic chat completion request.
type ChatRequest struct {
	Messages       []Message
	ModelOverride  string
	Temperature    *float32
	MaxTokens      *int
}

// Choice is one candidate completion in the normalized response.
type Choice struct {
	Index        int
	Role         string
	Content      string
	FinishReason string
}

// ChatResponse is the internal, provider-agnostic normalized response.
type ChatResponse struct {
	ID              string
	Model           string
	Choices         []Choice
	TokensIn        int
	TokensOut       int
	TokensEstimated bool
	RawLatencyMs    int
}

// Adapter is the capability set every provider variant implements:
// request translation, HTTP invocation with a total timeout, and response
// normalization. Adapters never retry internally — retry and fallback
// live in the fallback executor.
type Adapter interface {
	Name() string
	DefaultModel() string
	Invoke(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Error kinds. Only ProviderTimeoutError, ProviderRateLimitError, and
// ProviderError are retried via the fallback chain; AuthError,
// RateLimitedLocal, and ValidationError are handler-local and never reach
// an adapter.
var (
	ErrAuth             = errors.New("auth error")
	ErrRateLimitedLocal = errors.New("local rate limit exceeded")
	ErrValidation       = errors.New("validation error")
	ErrProvidersExhausted = errors.New("providers exhausted")
	ErrPersistence      = errors.New("persistence error")
)

// ProviderError is any upstream failure that is not a timeout or an
// upstream rate limit: 5xx, parse errors, unexpected response shapes.
// Non-classified adapter errors are wrapped as ProviderError.
type ProviderError struct {
	Provider string
	Message  string
	Cause    error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// ProviderTimeoutError is raised when an adapter invocation exceeds its
// deadline.
type ProviderTimeoutError struct {
	Provider string
	Message  string
}

func (e *ProviderTimeoutError) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ProviderRateLimitError is raised when the upstream provider itself
// returns HTTP 429.
type ProviderRateLimitError struct {
	Provider string
	Message  string
}

func (e *ProviderRateLimitError) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// toChatCompletionMessages converts the internal message list to the
// go-openai wire vocabulary shared by the OpenAI-style and DeepSeek-style
// adapters.
func toChatCompletionMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
