package routing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRouteIsDeterministic(t *testing.T) {
	h := Hints{Task: "summarization", Budget: "low", LatencySensitive: true}

	first := Route(h)
	second := Route(h)

	require.Equal(t, first, second)
}

func TestRouteTaskSummarizationSelectsDeepseek(t *testing.T) {
	d := Route(Hints{Task: "summarization"})
	require.Equal(t, "deepseek", d.Primary)
	require.Equal(t, []string{"openai", "huggingface"}, d.Fallback)
}

func TestRouteTaskReasoningSelectsHuggingface(t *testing.T) {
	d := Route(Hints{Task: "reasoning"})
	require.Equal(t, "huggingface", d.Primary)
}

func TestRouteLatencySensitiveSelectsOpenAI(t *testing.T) {
	d := Route(Hints{LatencySensitive: true})
	require.Equal(t, "openai", d.Primary)
}

func TestRouteBudgetLowSelectsDeepseek(t *testing.T) {
	d := Route(Hints{Budget: "low"})
	require.Equal(t, "deepseek", d.Primary)
}

func TestRouteBudgetHighSelectsOpenAI(t *testing.T) {
	d := Route(Hints{Budget: "high"})
	require.Equal(t, "openai", d.Primary)
}

func TestRouteDefaultsToOpenAI(t *testing.T) {
	d := Route(Hints{})
	require.Equal(t, "openai", d.Primary)
}

func TestRoutePriorityOrderTaskBeatsBudget(t *testing.T) {
	d := Route(Hints{Task: "reasoning", Budget: "high"})
	require.Equal(t, "huggingface", d.Primary)
}

func TestFallbackChainPreservesFixedOrderMinusPrimary(t *testing.T) {
	d := Route(Hints{Budget: "high"})
	require.Equal(t, "openai", d.Primary)
	require.Equal(t, []string{"deepseek", "huggingface"}, d.Fallback)
	require.Equal(t, []string{"openai", "deepseek", "huggingface"}, d.Chain())
}
