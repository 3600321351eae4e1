// Package pricing maps (provider, model, tokens_in, tokens_out) to a USD
// cost using a static table, in fixed-precision decimal to avoid
// binary-floating drift.
package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Entry is one static pricing row: price per 1k tokens, in and out, for a
// given provider and model prefix. ModelPrefix == "" marks the provider's
// default entry, used when no model-specific prefix matches.
type Entry struct {
	Provider       string
	ModelPrefix    string
	PriceInPer1k   decimal.Decimal
	PriceOutPer1k  decimal.Decimal
}

// Table is the immutable, compile-time pricing table required by the
// gateway. Prices are USD per 1k tokens.
var Table = []Entry{
	{Provider: "openai", ModelPrefix: "gpt-4", PriceInPer1k: decimal.NewFromFloat(0.03), PriceOutPer1k: decimal.NewFromFloat(0.06)},
	{Provider: "openai", ModelPrefix: "gpt-3.5", PriceInPer1k: decimal.NewFromFloat(0.0015), PriceOutPer1k: decimal.NewFromFloat(0.002)},
	{Provider: "deepseek", ModelPrefix: "", PriceInPer1k: decimal.NewFromFloat(0.00014), PriceOutPer1k: decimal.NewFromFloat(0.00028)},
	{Provider: "huggingface", ModelPrefix: "", PriceInPer1k: decimal.Zero, PriceOutPer1k: decimal.Zero},
}

const per1k = 1000

// Cost computes (tokens_in/1000 * price_in + tokens_out/1000 * price_out)
// in fixed-precision decimal. Lookup finds the pricing entry for the
// provider whose model_prefix matches model with the longest prefix; if
// none matches, it falls back to the provider's default entry (empty
// prefix); if there is still no entry, cost is zero. An unknown model
// must still be served and recorded, never reject the request.
func Cost(provider, model string, tokensIn, tokensOut int) decimal.Decimal {
	entry, ok := lookup(provider, model)
	if !ok {
		return decimal.Zero
	}

	in := decimal.NewFromInt(int64(tokensIn)).Div(decimal.NewFromInt(per1k)).Mul(entry.PriceInPer1k)
	out := decimal.NewFromInt(int64(tokensOut)).Div(decimal.NewFromInt(per1k)).Mul(entry.PriceOutPer1k)
	return in.Add(out).Round(6)
}

// lookup finds the entry for provider whose ModelPrefix is the longest
// prefix of model; falls back to the provider's default (empty-prefix)
// entry if no prefix matches.
func lookup(provider, model string) (Entry, bool) {
	var (
		best      Entry
		bestLen   = -1
		haveBest  bool
		defaultE  Entry
		haveDef   bool
	)

	for _, e := range Table {
		if e.Provider != provider {
			continue
		}
		if e.ModelPrefix == "" {
			defaultE = e
			haveDef = true
			continue
		}
		if strings.HasPrefix(model, e.ModelPrefix) && len(e.ModelPrefix) > bestLen {
			best = e
			bestLen = len(e.ModelPrefix)
			haveBest = true
		}
	}

	if haveBest {
		return best, true
	}
	if haveDef {
		return defaultE, true
	}
	return Entry{}, false
}
