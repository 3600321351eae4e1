// Package analytics implements the read-only cost and usage aggregation
// endpoints layered on top of the persisted cost_records table. These endpoints supplement the core cost
// contract; none of them participate in the request pipeline's
// pass/fail outcome.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/llmgov/gateway/internal/models"
	"github.com/llmgov/gateway/internal/reqcontext"
	"github.com/llmgov/gateway/internal/store"
)

var decimalHundred = decimal.NewFromInt(100)

// aggregateStore is the subset of store.Store the analytics endpoints
// depend on.
type aggregateStore interface {
	Overview(ctx context.Context, apiKeyID string) (store.OverviewStats, error)
	CostSummary(ctx context.Context, filter store.CostFilter) (store.CostSummary, error)
	CostRecords(ctx context.Context, filter store.CostFilter, limit, offset int) ([]models.CostRecord, error)
	RecentTransactions(ctx context.Context, apiKeyID string, limit int) ([]models.CostRecord, int, error)
	PeriodSummary(ctx context.Context, apiKeyID string, start, end *time.Time, endInclusive bool) (store.PeriodSummary, error)
	DailyCostTrend(ctx context.Context, apiKeyID string, start, end time.Time) ([]store.DailyCost, error)
	MonthlyCostTrend(ctx context.Context, apiKeyID string) ([]store.MonthlyCost, error)
	ProviderCostBreakdown(ctx context.Context, apiKeyID string, start, end *time.Time) ([]store.ProviderCost, error)
}

// Handlers groups the analytics endpoints over a shared store.
type Handlers struct {
	store aggregateStore
}

// New creates an analytics Handlers backed by s.
func New(s aggregateStore) *Handlers {
	return &Handlers{store: s}
}

func apiKeyFromContext(r *http.Request) string {
	if key := reqcontext.APIKey(r.Context()); key != nil {
		return key.ID
	}
	return ""
}

// parseCostFilter reads the start_date/end_date/provider/model query
// params shared by /v1/costs and /v1/costs/records, matching
// original_source/app/api/routes.py's Optional[datetime]/Optional[str]
// filters.
func parseCostFilter(r *http.Request, apiKeyID string) (store.CostFilter, error) {
	q := r.URL.Query()
	filter := store.CostFilter{
		APIKeyID: apiKeyID,
		Provider: q.Get("provider"),
		Model:    q.Get("model"),
	}
	if raw := q.Get("start_date"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, fmt.Errorf("invalid start_date: %w", err)
		}
		filter.StartDate = &t
	}
	if raw := q.Get("end_date"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, fmt.Errorf("invalid end_date: %w", err)
		}
		filter.EndDate = &t
	}
	return filter, nil
}

// costAggregate is the wire shape of one by_provider/by_model/by_api_key
// row; only the field matching the breakdown's dimension is populated,
// mirroring original_source's CostAggregate Pydantic model.
type costAggregate struct {
	Provider       string  `json:"provider,omitempty"`
	Model          string  `json:"model,omitempty"`
	APIKeyName     string  `json:"api_key_name,omitempty"`
	TotalCostUSD   string  `json:"total_cost_usd"`
	RequestCount   int     `json:"request_count"`
	TotalTokensIn  int64   `json:"total_tokens_in"`
	TotalTokensOut int64   `json:"total_tokens_out"`
	TotalTokens    int64   `json:"total_tokens"`
	AvgLatencyMs   float64 `json:"avg_latency_ms"`
}

func toCostAggregates(rows []store.CostAggregate, dimension string) []costAggregate {
	out := make([]costAggregate, 0, len(rows))
	for _, r := range rows {
		a := costAggregate{
			TotalCostUSD:   r.TotalCostUSD.String(),
			RequestCount:   r.RequestCount,
			TotalTokensIn:  r.TotalTokensIn,
			TotalTokensOut: r.TotalTokensOut,
			TotalTokens:    r.TotalTokensIn + r.TotalTokensOut,
			AvgLatencyMs:   r.AvgLatencyMs,
		}
		switch dimension {
		case "provider":
			a.Provider = r.Key
		case "model":
			a.Model = r.Key
		case "api_key_name":
			a.APIKeyName = r.Key
		}
		out = append(out, a)
	}
	return out
}

type timeRange struct {
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`
}

type costSummaryResponse struct {
	TotalCostUSD   string          `json:"total_cost_usd"`
	TotalRequests  int             `json:"total_requests"`
	TotalTokensIn  int64           `json:"total_tokens_in"`
	TotalTokensOut int64           `json:"total_tokens_out"`
	TotalTokens    int64           `json:"total_tokens"`
	ByProvider     []costAggregate `json:"by_provider"`
	ByModel        []costAggregate `json:"by_model"`
	ByAPIKey       []costAggregate `json:"by_api_key"`
	TimeRange      timeRange       `json:"time_range"`
}

// Costs implements GET /v1/costs: total spend for the caller's API key,
// with by_provider/by_model/by_api_key breakdowns, optionally narrowed
// by start_date/end_date/provider/model.
func (h *Handlers) Costs(w http.ResponseWriter, r *http.Request) {
	filter, err := parseCostFilter(r, apiKeyFromContext(r))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := h.store.CostSummary(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, costSummaryResponse{
		TotalCostUSD:   summary.TotalCostUSD.String(),
		TotalRequests:  summary.TotalRequests,
		TotalTokensIn:  summary.TotalTokensIn,
		TotalTokensOut: summary.TotalTokensOut,
		TotalTokens:    summary.TotalTokensIn + summary.TotalTokensOut,
		ByProvider:     toCostAggregates(summary.ByProvider, "provider"),
		ByModel:        toCostAggregates(summary.ByModel, "model"),
		ByAPIKey:       toCostAggregates(summary.ByAPIKey, "api_key_name"),
		TimeRange:      timeRange{Start: filter.StartDate, End: filter.EndDate},
	})
}

type costRecordDetail struct {
	ID          string    `json:"id"`
	RequestID   string    `json:"request_id"`
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	TokensIn    int       `json:"tokens_in"`
	TokensOut   int       `json:"tokens_out"`
	TotalTokens int       `json:"total_tokens"`
	CostUSD     string    `json:"cost_usd"`
	LatencyMs   int       `json:"latency_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

func toCostRecordDetails(records []models.CostRecord) []costRecordDetail {
	out := make([]costRecordDetail, 0, len(records))
	for _, r := range records {
		out = append(out, costRecordDetail{
			ID:          r.ID,
			RequestID:   r.RequestID,
			Provider:    r.Provider,
			Model:       r.Model,
			TokensIn:    r.TokensIn,
			TokensOut:   r.TokensOut,
			TotalTokens: r.TokensIn + r.TokensOut,
			CostUSD:     r.CostUSD.String(),
			LatencyMs:   r.LatencyMs,
			CreatedAt:   r.CreatedAt,
		})
	}
	return out
}

// CostRecords implements GET /v1/costs/records: paginated detailed
// cost_records rows for the caller's API key, narrowed by the same
// filters as /v1/costs plus limit/offset pagination.
func (h *Handlers) CostRecords(w http.ResponseWriter, r *http.Request) {
	filter, err := parseCostFilter(r, apiKeyFromContext(r))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 1 && n <= 1000 {
			limit = n
		}
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}

	records, err := h.store.CostRecords(r.Context(), filter, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toCostRecordDetails(records))
}

type transactionRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	Tokens    int       `json:"tokens"`
	CostUSD   string    `json:"cost_usd"`
	LatencyMs int       `json:"latency_ms"`
}

type recentTransactionsResponse struct {
	Transactions []transactionRecord `json:"transactions"`
	Total        int                 `json:"total"`
}

// TransactionsRecent implements GET /v1/transactions/recent: the
// caller's most recent cost_records as a flat transaction list, plus an
// unfiltered total row count for that key. Its limit defaults and range
// are independent of /v1/costs/records', matching original_source's
// separately-scoped endpoint.
func (h *Handlers) TransactionsRecent(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 1 && n <= 100 {
			limit = n
		}
	}

	records, total, err := h.store.RecentTransactions(r.Context(), apiKeyFromContext(r), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	transactions := make([]transactionRecord, 0, len(records))
	for _, rec := range records {
		transactions = append(transactions, transactionRecord{
			ID:        rec.ID,
			Timestamp: rec.CreatedAt,
			Provider:  rec.Provider,
			Model:     rec.Model,
			Tokens:    rec.TokensIn + rec.TokensOut,
			CostUSD:   rec.CostUSD.String(),
			LatencyMs: rec.LatencyMs,
		})
	}

	writeJSON(w, http.StatusOK, recentTransactionsResponse{Transactions: transactions, Total: total})
}

type overviewResponse struct {
	TotalRoutedRequests  int            `json:"total_routed_requests"`
	AggregatedSavingsUSD string         `json:"aggregated_savings_usd"`
	IntegratedProviders  int            `json:"integrated_providers"`
	CurrentCostUSD       string         `json:"current_cost_usd"`
	SavingsPercentage    float64        `json:"savings_percentage"`
	Providers            []ProviderInfo `json:"providers"`
}

// Overview implements GET /v1/overview: total routed requests, actual
// spend, and the savings against an all-OpenAI-GPT-3.5 baseline,
// alongside the provider catalogue for dashboard rendering.
func (h *Handlers) Overview(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Overview(r.Context(), apiKeyFromContext(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	savings := stats.BaselineCostUSD.Sub(stats.ActualCostUSD)
	if savings.IsNegative() {
		savings = decimal.Zero
	}

	var savingsPercentage float64
	if stats.BaselineCostUSD.IsPositive() {
		savingsPercentage, _ = savings.Div(stats.BaselineCostUSD).Mul(decimalHundred).Float64()
		if savingsPercentage < 0 {
			savingsPercentage = 0
		}
	}

	writeJSON(w, http.StatusOK, overviewResponse{
		TotalRoutedRequests:  stats.TotalRequests,
		AggregatedSavingsUSD: savings.String(),
		IntegratedProviders:  len(providerCatalogue),
		CurrentCostUSD:       stats.ActualCostUSD.String(),
		SavingsPercentage:    savingsPercentage,
		Providers:            providerCatalogue,
	})
}

// Providers implements GET /v1/providers: the static, unauthenticated
// provider catalogue. It runs no query — it describes the gateway's own
// adapter set, not per-caller usage.
func (h *Handlers) Providers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, providerCatalogue)
}

type kpiMetric struct {
	Value           float64 `json:"value"`
	Label           string  `json:"label"`
	TrendPercentage float64 `json:"trend_percentage"`
	TrendDirection  string  `json:"trend_direction"`
}

type costTrendPoint struct {
	Date    string  `json:"date"`
	DayName string  `json:"day_name"`
	CostUSD float64 `json:"cost_usd"`
}

type providerCostBreakdown struct {
	Provider   string  `json:"provider"`
	CostUSD    float64 `json:"cost_usd"`
	Percentage float64 `json:"percentage"`
	Color      string  `json:"color"`
}

type analyticsDashboardResponse struct {
	TotalCost      kpiMetric               `json:"total_cost"`
	TotalRequests  kpiMetric               `json:"total_requests"`
	AverageLatency kpiMetric               `json:"average_latency"`
	TokensUsed     kpiMetric               `json:"tokens_used"`
	CostTrend      []costTrendPoint        `json:"cost_trend"`
	CostByProvider []providerCostBreakdown `json:"cost_by_provider"`
	Period         string                  `json:"period"`
	StartDate      *time.Time              `json:"start_date"`
	EndDate        *time.Time              `json:"end_date"`
}

// calculateTrend computes a period-over-period percentage change and
// direction, matching original_source/app/api/routes.py's
// calculate_trend. When the previous period is zero, there is nothing
// to divide by, so the trend is reported as flat with a direction that
// only reflects whether the current period is positive.
func calculateTrend(current, previous float64) (float64, string) {
	if previous == 0 {
		if current > 0 {
			return 0, "up"
		}
		return 0, "down"
	}
	changePct := (current - previous) / previous * 100
	if changePct < 0 {
		return changePct, "down"
	}
	return changePct, "up"
}

// invertDirection flips a trend direction, used for latency where a
// lower value is the favorable direction.
func invertDirection(direction string) string {
	if direction == "up" {
		return "down"
	}
	return "up"
}

// periodDateRange computes the current period's start (nil for ALL) and
// the immediately preceding period's [start, end) bounds, matching
// original_source's 1D/7D/30D/ALL period calculation.
func periodDateRange(period string, now time.Time) (start, previousStart, previousEnd *time.Time) {
	var window time.Duration
	switch period {
	case "1D":
		window = 24 * time.Hour
	case "30D":
		window = 30 * 24 * time.Hour
	case "ALL":
		return nil, nil, nil
	default:
		window = 7 * 24 * time.Hour
	}
	s := now.Add(-window)
	ps := s.Add(-window)
	return &s, &ps, &s
}

var dayNames = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// buildDailyCostTrend zero-fills every calendar day between start and
// end inclusive, so the cost-trend chart never skips a day with no
// cost_records rows.
func buildDailyCostTrend(daily []store.DailyCost, start, end time.Time) []costTrendPoint {
	byDay := make(map[string]decimal.Decimal, len(daily))
	for _, d := range daily {
		byDay[d.Date.Format("2006-01-02")] = d.CostUSD
	}

	var points []costTrendPoint
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		key := day.Format("2006-01-02")
		cost := byDay[key]
		f, _ := cost.Float64()
		points = append(points, costTrendPoint{
			Date:    key,
			DayName: dayNames[day.Weekday()],
			CostUSD: f,
		})
	}
	return points
}

func buildMonthlyCostTrend(monthly []store.MonthlyCost) []costTrendPoint {
	points := make([]costTrendPoint, 0, len(monthly))
	for _, m := range monthly {
		f, _ := m.CostUSD.Float64()
		points = append(points, costTrendPoint{
			Date:    fmt.Sprintf("%04d-%02d-01", m.Year, m.Month),
			DayName: fmt.Sprintf("Month %d", m.Month),
			CostUSD: f,
		})
	}
	return points
}

func providerColor(provider string) string {
	for _, p := range providerCatalogue {
		if p.Name == provider {
			return p.IconColor
		}
	}
	return "#6b7280"
}

// buildProviderCostBreakdown computes each provider's share of
// totalCost for the donut chart, guarding the divide-by-zero case the
// same way original_source does (substituting 1 for a zero total).
func buildProviderCostBreakdown(rows []store.ProviderCost, totalCost decimal.Decimal) []providerCostBreakdown {
	denom := totalCost
	if !denom.IsPositive() {
		denom = decimal.NewFromInt(1)
	}

	out := make([]providerCostBreakdown, 0, len(rows))
	for _, row := range rows {
		pct, _ := row.CostUSD.Div(denom).Mul(decimalHundred).Float64()
		costFloat, _ := row.CostUSD.Float64()
		out = append(out, providerCostBreakdown{
			Provider:   row.Provider,
			CostUSD:    costFloat,
			Percentage: pct,
			Color:      providerColor(row.Provider),
		})
	}
	return out
}

// Analytics implements GET /v1/analytics?period=1D|7D|30D|ALL: KPIs with
// period-over-period trends, a daily (or monthly, for ALL) cost-trend
// series, and a cost-by-provider breakdown, matching
// original_source/app/api/routes.py's get_analytics_dashboard.
func (h *Handlers) Analytics(w http.ResponseWriter, r *http.Request) {
	apiKeyID := apiKeyFromContext(r)

	period := r.URL.Query().Get("period")
	switch period {
	case "1D", "7D", "30D", "ALL":
	default:
		period = "7D"
	}

	now := time.Now().UTC()
	start, previousStart, previousEnd := periodDateRange(period, now)

	current, err := h.store.PeriodSummary(r.Context(), apiKeyID, start, &now, true)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var previous store.PeriodSummary
	if previousStart != nil && previousEnd != nil {
		previous, err = h.store.PeriodSummary(r.Context(), apiKeyID, previousStart, previousEnd, false)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	currentCost, _ := current.TotalCostUSD.Float64()
	previousCost, _ := previous.TotalCostUSD.Float64()
	costTrendPct, costDir := calculateTrend(currentCost, previousCost)

	currentRequests := float64(current.TotalRequests)
	previousRequests := float64(previous.TotalRequests)
	requestsTrendPct, requestsDir := calculateTrend(currentRequests, previousRequests)

	latencyTrendPct, latencyDir := calculateTrend(current.AvgLatencyMs, previous.AvgLatencyMs)
	latencyDir = invertDirection(latencyDir)

	currentTokens := float64(current.TotalTokens)
	previousTokens := float64(previous.TotalTokens)
	tokensTrendPct, tokensDir := calculateTrend(currentTokens, previousTokens)

	var costTrend []costTrendPoint
	if start != nil {
		daily, err := h.store.DailyCostTrend(r.Context(), apiKeyID, *start, now)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		costTrend = buildDailyCostTrend(daily, *start, now)
	} else {
		monthly, err := h.store.MonthlyCostTrend(r.Context(), apiKeyID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		costTrend = buildMonthlyCostTrend(monthly)
	}

	providerRows, err := h.store.ProviderCostBreakdown(r.Context(), apiKeyID, start, &now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	costByProvider := buildProviderCostBreakdown(providerRows, current.TotalCostUSD)

	writeJSON(w, http.StatusOK, analyticsDashboardResponse{
		TotalCost:      kpiMetric{Value: currentCost, Label: "TOTAL COST", TrendPercentage: math.Abs(costTrendPct), TrendDirection: costDir},
		TotalRequests:  kpiMetric{Value: currentRequests, Label: "TOTAL REQUESTS", TrendPercentage: math.Abs(requestsTrendPct), TrendDirection: requestsDir},
		AverageLatency: kpiMetric{Value: current.AvgLatencyMs, Label: "AVG. LATENCY", TrendPercentage: math.Abs(latencyTrendPct), TrendDirection: latencyDir},
		TokensUsed:     kpiMetric{Value: currentTokens, Label: "TOKENS USED", TrendPercentage: math.Abs(tokensTrendPct), TrendDirection: tokensDir},
		CostTrend:      costTrend,
		CostByProvider: costByProvider,
		Period:         period,
		StartDate:      start,
		EndDate:        &now,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
