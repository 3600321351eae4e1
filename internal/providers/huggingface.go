package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HuggingFaceBaseURL is the HuggingFace Inference API base for model
// invocations.
const HuggingFaceBaseURL = "https://api-inference.huggingface.co/models"

// HuggingFaceAdapter invokes a HuggingFace Inference API model. HuggingFace
// takes a single flattened prompt rather than a structured message list,
// and most models do not report token usage, so usage is estimated from
// character length.
type HuggingFaceAdapter struct {
	apiKey     string
	httpClient *http.Client
	models     map[string]string
}

// NewHuggingFaceAdapter creates a HuggingFace-inference adapter using the
// provider's own API key from configuration and the given total timeout.
func NewHuggingFaceAdapter(apiKey string, timeout time.Duration) *HuggingFaceAdapter {
	return &HuggingFaceAdapter{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		models: map[string]string{
			"llama-3": "meta-llama/Meta-Llama-3-8B-Instruct",
			"mixtral": "mistralai/Mixtral-8x7B-Instruct-v0.1",
			"qwen":    "Qwen/Qwen2-7B-Instruct",
		},
	}
}

func (a *HuggingFaceAdapter) Name() string         { return "huggingface" }
func (a *HuggingFaceAdapter) DefaultModel() string { return "llama-3" }

type hfGenerationParams struct {
	Temperature   *float32 `json:"temperature,omitempty"`
	MaxNewTokens  *int     `json:"max_new_tokens,omitempty"`
}

type hfRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters hfGenerationParams `json:"parameters"`
}

type hfResponseElement struct {
	GeneratedText string `json:"generated_text"`
}

// Invoke flattens the message list into a single prompt, POSTs it to the
// model's inference endpoint, and estimates token usage by character
// length (chars/4, rounded down) since HuggingFace omits usage for most
// models.
func (a *HuggingFaceAdapter) Invoke(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	model := req.ModelOverride
	if model == "" {
		model = a.DefaultModel()
	}
	endpoint := fmt.Sprintf("%s/%s", HuggingFaceBaseURL, a.resolveModelPath(model))

	prompt := flattenMessages(req.Messages)

	payload := hfRequest{
		Inputs: prompt,
		Parameters: hfGenerationParams{
			Temperature:  req.Temperature,
			MaxNewTokens: req.MaxTokens,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &ProviderError{Provider: a.Name(), Message: "failed to encode request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &ProviderError{Provider: a.Name(), Message: "failed to build request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &ProviderTimeoutError{Provider: a.Name(), Message: "request timed out"}
		}
		return nil, &ProviderError{Provider: a.Name(), Message: "request failed", Cause: err}
	}
	defer httpResp.Body.Close()

	respBody, _ := io.ReadAll(httpResp.Body)

	switch httpResp.StatusCode {
	case http.StatusTooManyRequests:
		return nil, &ProviderRateLimitError{Provider: a.Name(), Message: "rate limit exceeded"}
	case http.StatusServiceUnavailable:
		return nil, &ProviderError{Provider: a.Name(), Message: "model is currently unavailable", Cause: fmt.Errorf("%s", string(respBody))}
	case http.StatusGatewayTimeout:
		return nil, &ProviderTimeoutError{Provider: a.Name(), Message: "upstream timed out"}
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Provider: a.Name(), Message: fmt.Sprintf("unexpected status %d", httpResp.StatusCode), Cause: fmt.Errorf("%s", string(respBody))}
	}

	content, err := parseHFContent(respBody, prompt)
	if err != nil {
		return nil, &ProviderError{Provider: a.Name(), Message: "failed to parse response", Cause: err}
	}

	latencyMs := int(time.Since(start).Milliseconds())

	return &ChatResponse{
		ID:              fmt.Sprintf("hf-%d", time.Now().UnixNano()),
		Model:           model,
		Choices: []Choice{{
			Index:        0,
			Role:         "assistant",
			Content:      content,
			FinishReason: "stop",
		}},
		TokensIn:        estimateTokens(prompt),
		TokensOut:       estimateTokens(content),
		TokensEstimated: true,
		RawLatencyMs:    latencyMs,
	}, nil
}

func (a *HuggingFaceAdapter) resolveModelPath(model string) string {
	if full, ok := a.models[strings.ToLower(model)]; ok {
		return full
	}
	return model
}

// flattenMessages formats the message list into a single prompt, since
// HuggingFace's inference endpoint takes raw text rather than a chat
// message array.
func flattenMessages(messages []Message) string {
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case "system":
			fmt.Fprintf(&b, "System: %s\n", m.Content)
		case "user":
			fmt.Fprintf(&b, "User: %s\n", m.Content)
		case "assistant":
			fmt.Fprintf(&b, "Assistant: %s\n", m.Content)
		}
	}
	b.WriteString("Assistant:")
	return b.String()
}

func parseHFContent(body []byte, prompt string) (string, error) {
	var arr []hfResponseElement
	if err := json.Unmarshal(body, &arr); err == nil && len(arr) > 0 {
		return strings.TrimSpace(strings.TrimPrefix(arr[0].GeneratedText, prompt)), nil
	}

	var obj hfResponseElement
	if err := json.Unmarshal(body, &obj); err == nil && obj.GeneratedText != "" {
		return strings.TrimSpace(strings.TrimPrefix(obj.GeneratedText, prompt)), nil
	}

	return "", fmt.Errorf("unrecognized response shape: %s", string(body))
}

// estimateTokens is the documented HuggingFace token-usage heuristic:
// roughly one token per four characters, rounded down.
func estimateTokens(s string) int {
	return len(s) / 4
}
