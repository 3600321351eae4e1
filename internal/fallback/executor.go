// Package fallback drives a provider chain sequentially: invoke,
// classify failure, advance or give up. There is no concurrent fan-out
// across providers, to keep cost attribution and ordering deterministic.
package fallback

import (
	"context"
	"errors"
	"time"

	"github.com/llmgov/gateway/internal/providers"
)

const interAttemptDelay = 500 * time.Millisecond

// Attempt records the outcome of one chain element, used by the caller
// to emit per-attempt metrics and log lines regardless of the chain's
// final outcome.
type Attempt struct {
	Provider  string
	Err       error
	LatencyMs int64
}

// Result is the executor's terminal outcome.
type Result struct {
	Response     *providers.ChatResponse
	Provider     string
	AttemptIndex int
	FallbackUsed bool
	Attempts     []Attempt
	Err          error // set when no attempt succeeded: every attempt failed (EXHAUSTED), or ctx ended before the next attempt
}

// Executor walks an ordered chain of providers, invoking the matching
// adapter from table for each, with a shared per-attempt timeout.
type Executor struct {
	table          providers.Table
	attemptTimeout time.Duration
}

// New creates an Executor backed by table, bounding each adapter
// invocation to attemptTimeout.
func New(table providers.Table, attemptTimeout time.Duration) *Executor {
	return &Executor{table: table, attemptTimeout: attemptTimeout}
}

// Run drives TRYING(0) through either DONE or EXHAUSTED for chain,
// invoking each adapter with req. onAttempt, if non-nil, is called after
// every attempt (success or failure) so the caller can emit metrics and
// logs without the executor knowing about either.
func (e *Executor) Run(ctx context.Context, chain []string, req providers.ChatRequest, onAttempt func(Attempt)) Result {
	var (
		attempts []Attempt
		lastErr  error
	)

	for i, provider := range chain {
		adapter, ok := e.table[provider]
		if !ok {
			lastErr = &providers.ProviderError{Provider: provider, Message: "no adapter registered for provider"}
			attempts = append(attempts, Attempt{Provider: provider, Err: lastErr})
			if onAttempt != nil {
				onAttempt(attempts[len(attempts)-1])
			}
			continue
		}

		attemptCtx, cancel := context.WithTimeout(ctx, e.attemptTimeout)
		start := time.Now()
		resp, err := adapter.Invoke(attemptCtx, req)
		latency := time.Since(start)
		cancel()

		attempt := Attempt{Provider: provider, LatencyMs: latency.Milliseconds()}

		if err == nil {
			attempt.Err = nil
			attempts = append(attempts, attempt)
			if onAttempt != nil {
				onAttempt(attempt)
			}
			return Result{
				Response:     resp,
				Provider:     provider,
				AttemptIndex: i,
				FallbackUsed: i > 0,
				Attempts:     attempts,
			}
		}

		classified := classify(provider, err)
		attempt.Err = classified
		attempts = append(attempts, attempt)
		lastErr = classified
		if onAttempt != nil {
			onAttempt(attempt)
		}

		if i+1 < len(chain) {
			select {
			case <-ctx.Done():
				return Result{Attempts: attempts, Err: ctx.Err()}
			case <-time.After(interAttemptDelay):
			}
		}
	}

	return Result{Attempts: attempts, Err: lastErr}
}

// classify ensures every adapter error is one of the three recognized
// provider error types, wrapping anything else as a generic
// ProviderError so the handler's status-code mapping always has a type
// to switch on.
func classify(provider string, err error) error {
	var (
		timeoutErr   *providers.ProviderTimeoutError
		rateLimitErr *providers.ProviderRateLimitError
		providerErr  *providers.ProviderError
	)
	switch {
	case errors.As(err, &timeoutErr):
		return err
	case errors.As(err, &rateLimitErr):
		return err
	case errors.As(err, &providerErr):
		return err
	default:
		return &providers.ProviderError{Provider: provider, Message: "unclassified adapter error", Cause: err}
	}
}
