package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCostOpenAIGPT4(t *testing.T) {
	cost := Cost("openai", "gpt-4-0613", 1000, 1000)
	require.True(t, cost.Equal(decimal.NewFromFloat(0.09)))
}

func TestCostOpenAIGPT35(t *testing.T) {
	cost := Cost("openai", "gpt-3.5-turbo", 1000, 1000)
	require.True(t, cost.Equal(decimal.NewFromFloat(0.0035)))
}

func TestCostDeepseekUsesProviderDefault(t *testing.T) {
	cost := Cost("deepseek", "deepseek-chat", 1000, 1000)
	require.True(t, cost.Equal(decimal.NewFromFloat(0.00042)))
}

func TestCostHuggingFaceIsZero(t *testing.T) {
	cost := Cost("huggingface", "gpt2", 1000, 1000)
	require.True(t, cost.Equal(decimal.Zero))
}

func TestCostUnknownProviderIsZeroNotError(t *testing.T) {
	cost := Cost("unknown-provider", "some-model", 500, 500)
	require.True(t, cost.Equal(decimal.Zero))
}

func TestCostLongestPrefixWins(t *testing.T) {
	Table = append(Table, Entry{
		Provider:      "openai",
		ModelPrefix:   "gpt-4-turbo",
		PriceInPer1k:  decimal.NewFromFloat(0.01),
		PriceOutPer1k: decimal.NewFromFloat(0.03),
	})
	defer func() { Table = Table[:len(Table)-1] }()

	cost := Cost("openai", "gpt-4-turbo-preview", 1000, 0)
	require.True(t, cost.Equal(decimal.NewFromFloat(0.01)))
}
