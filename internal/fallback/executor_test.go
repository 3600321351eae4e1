package fallback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/llmgov/gateway/internal/providers"
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

func TestExecutorSucceedsOnPrimary(t *testing.T) {
	table := providers.Table{
		"openai": &fakeAdapter{name: "openai", resp: &providers.ChatResponse{ID: "1", Model: "gpt-4"}},
	}
	e := New(table, time.Second)

	result := e.Run(context.Background(), []string{"openai"}, providers.ChatRequest{}, nil)

	require.NoError(t, result.Err)
	require.False(t, result.FallbackUsed)
	require.Equal(t, "openai", result.Provider)
	require.Len(t, result.Attempts, 1)
}

func TestExecutorAdvancesChainOnFailure(t *testing.T) {
	table := providers.Table{
		"openai":   &fakeAdapter{name: "openai", err: &providers.ProviderError{Provider: "openai", Message: "boom"}},
		"deepseek": &fakeAdapter{name: "deepseek", resp: &providers.ChatResponse{ID: "2", Model: "deepseek-chat"}},
	}
	e := New(table, time.Second)

	var attempts []Attempt
	result := e.Run(context.Background(), []string{"openai", "deepseek"}, providers.ChatRequest{}, func(a Attempt) {
		attempts = append(attempts, a)
	})

	require.NoError(t, result.Err)
	require.True(t, result.FallbackUsed)
	require.Equal(t, "deepseek", result.Provider)
	require.Equal(t, 1, result.AttemptIndex)
	require.Len(t, attempts, 2)
	require.Error(t, attempts[0].Err)
	require.NoError(t, attempts[1].Err)
}

func TestExecutorExhaustsChainWhenAllFail(t *testing.T) {
	table := providers.Table{
		"openai":      &fakeAdapter{name: "openai", err: &providers.ProviderTimeoutError{Provider: "openai", Message: "timeout"}},
		"deepseek":    &fakeAdapter{name: "deepseek", err: &providers.ProviderRateLimitError{Provider: "deepseek", Message: "429"}},
		"huggingface": &fakeAdapter{name: "huggingface", err: &providers.ProviderError{Provider: "huggingface", Message: "503"}},
	}
	e := New(table, time.Second)

	result := e.Run(context.Background(), []string{"openai", "deepseek", "huggingface"}, providers.ChatRequest{}, nil)

	require.Error(t, result.Err)
	require.Nil(t, result.Response)
	require.Len(t, result.Attempts, 3)
}

func TestExecutorWrapsUnclassifiedErrorsAsProviderError(t *testing.T) {
	table := providers.Table{
		"openai": &fakeAdapter{name: "openai", err: context.DeadlineExceeded},
	}
	e := New(table, time.Second)

	result := e.Run(context.Background(), []string{"openai"}, providers.ChatRequest{}, nil)

	require.Error(t, result.Err)
	var providerErr *providers.ProviderError
	require.ErrorAs(t, result.Err, &providerErr)
}

func TestExecutorMissingAdapterProducesProviderError(t *testing.T) {
	table := providers.Table{}
	e := New(table, time.Second)

	result := e.Run(context.Background(), []string{"openai"}, providers.ChatRequest{}, nil)

	require.Error(t, result.Err)
}
