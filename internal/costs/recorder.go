// Package costs implements the cost recorder: it turns a successful
// fallback-chain outcome into a persisted CostRecord and the matching
// Prometheus cost counter update.
package costs

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/llmgov/gateway/internal/metrics"
	"github.com/llmgov/gateway/internal/models"
	"github.com/llmgov/gateway/internal/pricing"
)

// recordStore is the subset of store.Store the recorder depends on.
type recordStore interface {
	InsertCostRecord(ctx context.Context, rec *models.CostRecord) error
}

// Recorder writes cost attribution for successful provider attempts.
// Persistence failures are logged and swallowed: the upstream response
// has already been produced, so the request still succeeds. Durability
// of cost is best-effort and not two-phased.
type Recorder struct {
	store  recordStore
	logger *slog.Logger
}

// New creates a Recorder backed by store, logging persistence failures
// through logger.
func New(store recordStore, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Record computes cost from tokens, persists a CostRecord, and updates
// the cost counter. The write is synchronous relative to the HTTP
// response so clients see cost data immediately.
func (r *Recorder) Record(ctx context.Context, apiKeyID, requestID, provider, model string, tokensIn, tokensOut, latencyMs int) decimal.Decimal {
	cost := pricing.Cost(provider, model, tokensIn, tokensOut)

	rec := &models.CostRecord{
		ID:        uuid.NewString(),
		APIKeyID:  apiKeyID,
		RequestID: requestID,
		Provider:  provider,
		Model:     model,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
		CostUSD:   cost,
		LatencyMs: latencyMs,
		CreatedAt: time.Now(),
	}

	if err := r.store.InsertCostRecord(ctx, rec); err != nil {
		r.logger.Error("cost record persistence failed",
			"request_id", requestID,
			"api_key_id", apiKeyID,
			"provider", provider,
			"error_type", "persistence_error",
			"error", err.Error(),
		)
	}

	costFloat, _ := cost.Float64()
	metrics.CostTotal.WithLabelValues(apiKeyID, provider, model).Add(costFloat)

	return cost
}
