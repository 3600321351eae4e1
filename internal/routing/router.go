// Package routing implements the deterministic provider selection and
// fallback-chain construction described by the gateway's routing rules.
package routing

import (
	"fmt"
	"strings"
)

// fixedOrder is the canonical provider order fallback chains are built
// from: the primary is pulled out of this slice, and the remainder keeps
// this relative order.
var fixedOrder = []string{"openai", "deepseek", "huggingface"}

// FixedOrder returns the canonical provider order, independent of any
// routing decision. The routing-preview endpoint reports this verbatim
// as its fallback_chain, not Decision.Fallback (which excludes whichever
// provider was chosen as primary).
func FixedOrder() []string {
	order := make([]string, len(fixedOrder))
	copy(order, fixedOrder)
	return order
}

// Hints carries the optional request-level signals the router selects on.
type Hints struct {
	Task             string // summarization, reasoning, general
	Budget           string // low, medium, high
	LatencySensitive bool
}

// Decision is the router's output: the selected primary provider, the
// ordered fallback chain after it (primary excluded), and a
// human-readable explanation of which inputs triggered the choice.
type Decision struct {
	Primary  string
	Fallback []string
	Reason   string
}

// Chain returns the full ordered chain, primary first.
func (d Decision) Chain() []string {
	return append([]string{d.Primary}, d.Fallback...)
}

// Route deterministically selects a primary provider from the hints and
// builds its fallback chain. Identical hint tuples always produce a
// byte-identical Decision.
//
// Selection priority (first matching rule wins):
//  1. task == summarization -> deepseek
//  2. task == reasoning -> huggingface
//  3. latency_sensitive == true -> openai
//  4. budget == low -> deepseek
//  5. budget == high -> openai
//  6. default -> openai
func Route(h Hints) Decision {
	primary, reason := selectPrimary(h)
	return Decision{
		Primary:  primary,
		Fallback: fallbackChain(primary),
		Reason:   reason,
	}
}

func selectPrimary(h Hints) (string, string) {
	var reasons []string

	switch strings.ToLower(h.Task) {
	case "summarization":
		reasons = append(reasons, "task=summarization")
		return "deepseek", reason(reasons)
	case "reasoning":
		reasons = append(reasons, "task=reasoning")
		return "huggingface", reason(reasons)
	}

	if h.LatencySensitive {
		reasons = append(reasons, "latency_sensitive=true")
		return "openai", reason(reasons)
	}

	switch strings.ToLower(h.Budget) {
	case "low":
		reasons = append(reasons, "budget=low")
		return "deepseek", reason(reasons)
	case "high":
		reasons = append(reasons, "budget=high")
		return "openai", reason(reasons)
	}

	return "openai", "default routing (openai)"
}

func reason(parts []string) string {
	return fmt.Sprintf("selected because: %s", strings.Join(parts, ", "))
}

// fallbackChain returns the fixed-order providers minus primary, in the
// canonical [openai, deepseek, huggingface] order.
func fallbackChain(primary string) []string {
	chain := make([]string, 0, len(fixedOrder)-1)
	for _, p := range fixedOrder {
		if p != primary {
			chain = append(chain, p)
		}
	}
	return chain
}
