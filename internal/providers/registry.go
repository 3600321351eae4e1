package providers

import "time"

// Table is the dispatch-by-value adapter set: provider name -> Adapter.
// No inheritance hierarchy is required; callers look the adapter up by the
// name the router or fallback chain produced.
type Table map[string]Adapter

// NewTable builds the adapter table from configuration. A provider with no
// configured API key is simply absent from the table; the router still
// names it, and the fallback executor treats the missing adapter as an
// immediate ProviderError for that slot.
func NewTable(openAIKey, deepSeekKey, huggingFaceKey string, timeout time.Duration) Table {
	t := Table{}
	if openAIKey != "" {
		t["openai"] = NewOpenAIAdapter(openAIKey)
	}
	if deepSeekKey != "" {
		t["deepseek"] = NewDeepSeekAdapter(deepSeekKey)
	}
	if huggingFaceKey != "" {
		t["huggingface"] = NewHuggingFaceAdapter(huggingFaceKey, timeout)
	}
	return t
}
