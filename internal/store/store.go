package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/llmgov/gateway/internal/models"
)

// Store is the Postgres-backed persistence layer for API keys, cost
// records, and the supplemental request-log trace table.
type Store struct {
	conn *sql.DB
}

// New opens a connection pool to databaseURL and verifies it with a ping.
func New(databaseURL string) (*Store, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(10)
	conn.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return &Store{conn: conn}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.conn.Close()
}

// DB exposes the underlying *sql.DB. The analytics endpoints do not use
// it; they go through the Store's own query methods.
func (s *Store) DB() *sql.DB {
	return s.conn
}

// ListActiveAPIKeys returns every APIKey row with is_active = true. The
// authenticator scans this set, bcrypt-comparing the bearer credential
// against each key_hash, because a key's lookup is by credential, not by
// id, and bcrypt hashes cannot be queried by plaintext.
func (s *Store) ListActiveAPIKeys(ctx context.Context) ([]models.APIKey, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, key_hash, name, rate_limit_per_minute, is_active, created_at
		FROM api_keys
		WHERE is_active = true
	`)
	if err != nil {
		return nil, fmt.Errorf("list active api keys: %w", err)
	}
	defer rows.Close()

	var keys []models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.KeyHash, &k.Name, &k.RateLimitPerMinute, &k.IsActive, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// GetAPIKey fetches a single key by id. The authenticator calls this on
// every cache hit to recheck is_active before trusting an entry whose
// TTL has not yet expired, without paying for a full bcrypt scan.
func (s *Store) GetAPIKey(ctx context.Context, id string) (*models.APIKey, error) {
	var k models.APIKey
	err := s.conn.QueryRowContext(ctx, `
		SELECT id, key_hash, name, rate_limit_per_minute, is_active, created_at
		FROM api_keys WHERE id = $1
	`, id).Scan(&k.ID, &k.KeyHash, &k.Name, &k.RateLimitPerMinute, &k.IsActive, &k.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("api key %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return &k, nil
}

// InsertCostRecord persists one successful provider attempt's cost
// attribution. Only called on the fallback chain's successful outcome.
func (s *Store) InsertCostRecord(ctx context.Context, rec *models.CostRecord) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO cost_records (id, api_key_id, request_id, provider, model, tokens_in, tokens_out, cost_usd, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, rec.ID, rec.APIKeyID, rec.RequestID, rec.Provider, rec.Model, rec.TokensIn, rec.TokensOut, rec.CostUSD, rec.LatencyMs, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert cost record: %w", err)
	}
	return nil
}

// InsertRequestLog persists a per-request trace row, for a provider
// chain that succeeded or failed. This supplements the cost-only persistence contract with the
// original system's request tracing table.
func (s *Store) InsertRequestLog(ctx context.Context, log *models.RequestLog) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO request_logs (id, request_id, api_key_id, task, budget, latency_sensitive, provider_used, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, log.ID, log.RequestID, log.APIKeyID, log.Task, log.Budget, log.LatencySensitive, log.ProviderUsed, log.Status, log.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert request log: %w", err)
	}
	return nil
}

// CostFilter narrows a cost_records aggregation or listing query to the
// caller's API key and, optionally, a date range and provider/model,
// matching original_source/app/api/routes.py's get_cost_summary and
// get_cost_records filters.
type CostFilter struct {
	APIKeyID  string
	StartDate *time.Time
	EndDate   *time.Time
	Provider  string
	Model     string
}

// whereClause builds the shared WHERE clause every /v1/costs query
// applies, qualifying every column with the cost_records table so the
// same clause is safe to reuse in by-api-key's joined query.
func (f CostFilter) whereClause(startIdx int) (string, []interface{}) {
	clauses := []string{fmt.Sprintf("cost_records.api_key_id = $%d", startIdx)}
	args := []interface{}{f.APIKeyID}
	idx := startIdx + 1

	if f.StartDate != nil {
		clauses = append(clauses, fmt.Sprintf("cost_records.created_at >= $%d", idx))
		args = append(args, *f.StartDate)
		idx++
	}
	if f.EndDate != nil {
		clauses = append(clauses, fmt.Sprintf("cost_records.created_at <= $%d", idx))
		args = append(args, *f.EndDate)
		idx++
	}
	if f.Provider != "" {
		clauses = append(clauses, fmt.Sprintf("cost_records.provider = $%d", idx))
		args = append(args, f.Provider)
		idx++
	}
	if f.Model != "" {
		clauses = append(clauses, fmt.Sprintf("cost_records.model = $%d", idx))
		args = append(args, f.Model)
		idx++
	}
	return strings.Join(clauses, " AND "), args
}

// CostAggregate is one grouped row of a by_provider/by_model/by_api_key
// breakdown. Key holds the group's label (provider name, model name, or
// api_keys.name, depending on which breakdown produced it).
type CostAggregate struct {
	Key            string
	TotalCostUSD   decimal.Decimal
	RequestCount   int
	TotalTokensIn  int64
	TotalTokensOut int64
	AvgLatencyMs   float64
}

// CostSummary is the full /v1/costs response body: overall totals plus
// the three dimension breakdowns original_source's get_cost_summary
// computes.
type CostSummary struct {
	TotalCostUSD   decimal.Decimal
	TotalRequests  int
	TotalTokensIn  int64
	TotalTokensOut int64
	ByProvider     []CostAggregate
	ByModel        []CostAggregate
	ByAPIKey       []CostAggregate
}

// CostSummary aggregates cost_records matching filter into overall
// totals and by_provider/by_model/by_api_key breakdowns, backing
// /v1/costs.
func (s *Store) CostSummary(ctx context.Context, filter CostFilter) (CostSummary, error) {
	var summary CostSummary

	where, args := filter.whereClause(1)
	var totalCostStr sql.NullString
	var tokensIn, tokensOut sql.NullInt64
	err := s.conn.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COALESCE(SUM(cost_usd), 0), COUNT(*), COALESCE(SUM(tokens_in), 0), COALESCE(SUM(tokens_out), 0)
		FROM cost_records WHERE %s
	`, where), args...).Scan(&totalCostStr, &summary.TotalRequests, &tokensIn, &tokensOut)
	if err != nil {
		return summary, fmt.Errorf("cost summary totals: %w", err)
	}
	if totalCostStr.Valid {
		if d, err := decimal.NewFromString(totalCostStr.String); err == nil {
			summary.TotalCostUSD = d
		}
	}
	summary.TotalTokensIn = tokensIn.Int64
	summary.TotalTokensOut = tokensOut.Int64

	byProvider, err := s.costAggregateBy(ctx, "cost_records.provider", where, args)
	if err != nil {
		return summary, fmt.Errorf("cost summary by provider: %w", err)
	}
	byModel, err := s.costAggregateBy(ctx, "cost_records.model", where, args)
	if err != nil {
		return summary, fmt.Errorf("cost summary by model: %w", err)
	}
	byAPIKey, err := s.costAggregateByAPIKeyName(ctx, where, args)
	if err != nil {
		return summary, fmt.Errorf("cost summary by api key: %w", err)
	}

	summary.ByProvider = byProvider
	summary.ByModel = byModel
	summary.ByAPIKey = byAPIKey
	return summary, nil
}

func (s *Store) costAggregateBy(ctx context.Context, groupColumn, where string, args []interface{}) ([]CostAggregate, error) {
	query := fmt.Sprintf(`
		SELECT %s, COALESCE(SUM(cost_records.cost_usd), 0), COUNT(*),
		       COALESCE(SUM(cost_records.tokens_in), 0), COALESCE(SUM(cost_records.tokens_out), 0),
		       COALESCE(AVG(cost_records.latency_ms), 0)
		FROM cost_records WHERE %s GROUP BY %s
	`, groupColumn, where, groupColumn)
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CostAggregate
	for rows.Next() {
		var agg CostAggregate
		var costStr string
		if err := rows.Scan(&agg.Key, &costStr, &agg.RequestCount, &agg.TotalTokensIn, &agg.TotalTokensOut, &agg.AvgLatencyMs); err != nil {
			return nil, err
		}
		if d, err := decimal.NewFromString(costStr); err == nil {
			agg.TotalCostUSD = d
		}
		out = append(out, agg)
	}
	return out, rows.Err()
}

// costAggregateByAPIKeyName mirrors costAggregateBy but joins api_keys so
// the group label is the key's human name rather than its id, matching
// original_source's by_api_key breakdown.
func (s *Store) costAggregateByAPIKeyName(ctx context.Context, where string, args []interface{}) ([]CostAggregate, error) {
	query := fmt.Sprintf(`
		SELECT api_keys.name, COALESCE(SUM(cost_records.cost_usd), 0), COUNT(*),
		       COALESCE(SUM(cost_records.tokens_in), 0), COALESCE(SUM(cost_records.tokens_out), 0),
		       COALESCE(AVG(cost_records.latency_ms), 0)
		FROM cost_records
		JOIN api_keys ON cost_records.api_key_id = api_keys.id
		WHERE %s GROUP BY api_keys.name
	`, where)
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CostAggregate
	for rows.Next() {
		var agg CostAggregate
		var costStr string
		if err := rows.Scan(&agg.Key, &costStr, &agg.RequestCount, &agg.TotalTokensIn, &agg.TotalTokensOut, &agg.AvgLatencyMs); err != nil {
			return nil, err
		}
		if d, err := decimal.NewFromString(costStr); err == nil {
			agg.TotalCostUSD = d
		}
		out = append(out, agg)
	}
	return out, rows.Err()
}

// CostRecords returns the detailed cost_records rows matching filter,
// newest first, with offset/limit pagination, backing
// /v1/costs/records.
func (s *Store) CostRecords(ctx context.Context, filter CostFilter, limit, offset int) ([]models.CostRecord, error) {
	where, args := filter.whereClause(1)
	query := fmt.Sprintf(`
		SELECT id, api_key_id, request_id, provider, model, tokens_in, tokens_out, cost_usd, latency_ms, created_at
		FROM cost_records WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cost records: %w", err)
	}
	defer rows.Close()

	return scanCostRecords(rows)
}

// RecentTransactions returns the most recent n cost_records for an API
// key, newest first, plus the total row count for that key (unfiltered
// by limit), backing /v1/transactions/recent.
func (s *Store) RecentTransactions(ctx context.Context, apiKeyID string, limit int) ([]models.CostRecord, int, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, api_key_id, request_id, provider, model, tokens_in, tokens_out, cost_usd, latency_ms, created_at
		FROM cost_records
		WHERE api_key_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, apiKeyID, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("recent transactions: %w", err)
	}
	defer rows.Close()

	records, err := scanCostRecords(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM cost_records WHERE api_key_id = $1`, apiKeyID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("recent transactions total: %w", err)
	}

	return records, total, nil
}

func scanCostRecords(rows *sql.Rows) ([]models.CostRecord, error) {
	var out []models.CostRecord
	for rows.Next() {
		var r models.CostRecord
		var costStr string
		if err := rows.Scan(&r.ID, &r.APIKeyID, &r.RequestID, &r.Provider, &r.Model, &r.TokensIn, &r.TokensOut, &costStr, &r.LatencyMs, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cost record: %w", err)
		}
		if d, err := decimal.NewFromString(costStr); err == nil {
			r.CostUSD = d
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PeriodSummary is one period's aggregate totals, computed for both the
// current and the immediately preceding period so /v1/analytics can
// derive a period-over-period trend.
type PeriodSummary struct {
	TotalCostUSD  decimal.Decimal
	TotalRequests int
	AvgLatencyMs  float64
	TotalTokens   int64
}

// PeriodSummary aggregates cost_records for apiKeyID bounded by
// [start, end). When endInclusive is true the end bound is <= instead
// of <, matching original_source's current-period query (inclusive of
// "now") versus its previous-period query (exclusive, so the boundary
// instant is not double-counted).
func (s *Store) PeriodSummary(ctx context.Context, apiKeyID string, start, end *time.Time, endInclusive bool) (PeriodSummary, error) {
	var summary PeriodSummary

	query := `
		SELECT COALESCE(SUM(cost_usd), 0), COUNT(*), COALESCE(AVG(latency_ms), 0), COALESCE(SUM(tokens_in + tokens_out), 0)
		FROM cost_records WHERE api_key_id = $1
	`
	args := []interface{}{apiKeyID}
	idx := 2
	if start != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", idx)
		args = append(args, *start)
		idx++
	}
	if end != nil {
		op := "<"
		if endInclusive {
			op = "<="
		}
		query += fmt.Sprintf(" AND created_at %s $%d", op, idx)
		args = append(args, *end)
		idx++
	}

	var (
		costStr sql.NullString
		avgLat  sql.NullFloat64
		tokens  sql.NullInt64
	)
	if err := s.conn.QueryRowContext(ctx, query, args...).Scan(&costStr, &summary.TotalRequests, &avgLat, &tokens); err != nil {
		return summary, fmt.Errorf("period summary: %w", err)
	}
	if costStr.Valid {
		if d, err := decimal.NewFromString(costStr.String); err == nil {
			summary.TotalCostUSD = d
		}
	}
	summary.AvgLatencyMs = avgLat.Float64
	summary.TotalTokens = tokens.Int64
	return summary, nil
}

// DailyCost is one calendar day's total spend, backing /v1/analytics's
// 1D/7D/30D cost-trend series.
type DailyCost struct {
	Date    time.Time
	CostUSD decimal.Decimal
}

// DailyCostTrend groups cost_records by calendar day within
// [start, end], backing the daily cost-trend chart for the 1D/7D/30D
// analytics periods. Days with no rows are simply absent; the caller
// zero-fills them.
func (s *Store) DailyCostTrend(ctx context.Context, apiKeyID string, start, end time.Time) ([]DailyCost, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT date_trunc('day', created_at) AS day, COALESCE(SUM(cost_usd), 0)
		FROM cost_records
		WHERE api_key_id = $1 AND created_at >= $2 AND created_at <= $3
		GROUP BY day
		ORDER BY day
	`, apiKeyID, start, end)
	if err != nil {
		return nil, fmt.Errorf("daily cost trend: %w", err)
	}
	defer rows.Close()

	var out []DailyCost
	for rows.Next() {
		var d DailyCost
		var costStr string
		if err := rows.Scan(&d.Date, &costStr); err != nil {
			return nil, fmt.Errorf("scan daily cost: %w", err)
		}
		if dec, err := decimal.NewFromString(costStr); err == nil {
			d.CostUSD = dec
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// MonthlyCost is one calendar month's total spend, backing
// /v1/analytics's ALL-period cost-trend series (which has no fixed
// start date to anchor a daily chart to).
type MonthlyCost struct {
	Year    int
	Month   int
	CostUSD decimal.Decimal
}

// MonthlyCostTrend groups all of an API key's cost_records by
// (year, month), ordered oldest to newest.
func (s *Store) MonthlyCostTrend(ctx context.Context, apiKeyID string) ([]MonthlyCost, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT EXTRACT(YEAR FROM created_at)::int, EXTRACT(MONTH FROM created_at)::int, COALESCE(SUM(cost_usd), 0)
		FROM cost_records
		WHERE api_key_id = $1
		GROUP BY 1, 2
		ORDER BY 1, 2
	`, apiKeyID)
	if err != nil {
		return nil, fmt.Errorf("monthly cost trend: %w", err)
	}
	defer rows.Close()

	var out []MonthlyCost
	for rows.Next() {
		var m MonthlyCost
		var costStr string
		if err := rows.Scan(&m.Year, &m.Month, &costStr); err != nil {
			return nil, fmt.Errorf("scan monthly cost: %w", err)
		}
		if dec, err := decimal.NewFromString(costStr); err == nil {
			m.CostUSD = dec
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ProviderCost is one provider's total spend within a window, backing
// /v1/analytics's cost-by-provider donut chart.
type ProviderCost struct {
	Provider string
	CostUSD  decimal.Decimal
}

// ProviderCostBreakdown aggregates cost_records by provider for
// apiKeyID, optionally bounded by [start, end], ordered by spend
// descending.
func (s *Store) ProviderCostBreakdown(ctx context.Context, apiKeyID string, start, end *time.Time) ([]ProviderCost, error) {
	query := `
		SELECT provider, COALESCE(SUM(cost_usd), 0)
		FROM cost_records WHERE api_key_id = $1
	`
	args := []interface{}{apiKeyID}
	idx := 2
	if start != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", idx)
		args = append(args, *start)
		idx++
	}
	if end != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", idx)
		args = append(args, *end)
		idx++
	}
	query += " GROUP BY provider ORDER BY SUM(cost_usd) DESC"

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("provider cost breakdown: %w", err)
	}
	defer rows.Close()

	var out []ProviderCost
	for rows.Next() {
		var p ProviderCost
		var costStr string
		if err := rows.Scan(&p.Provider, &costStr); err != nil {
			return nil, fmt.Errorf("scan provider cost: %w", err)
		}
		if dec, err := decimal.NewFromString(costStr); err == nil {
			p.CostUSD = dec
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// baselineInputPricePer1k and baselineOutputPricePer1k are OpenAI
// GPT-3.5-turbo's per-1k-token prices, the fixed baseline /v1/overview
// compares actual spend against to report savings.
var (
	baselineInputPricePer1k  = decimal.NewFromFloat(0.0015)
	baselineOutputPricePer1k = decimal.NewFromFloat(0.002)
	per1kTokens              = decimal.NewFromInt(1000)
)

// OverviewStats is the dashboard summary backing /v1/overview: total
// routed requests, actual spend, and what that spend would have been had
// every request used OpenAI GPT-3.5-turbo instead of the router's actual
// choice.
type OverviewStats struct {
	TotalRequests   int
	ActualCostUSD   decimal.Decimal
	BaselineCostUSD decimal.Decimal
}

// Overview aggregates cost_records for apiKeyID (or all keys if
// apiKeyID is empty) into the actual-vs-baseline figures /v1/overview
// reports. The baseline is computed from the same aggregated token sums
// rather than per-row, since baseline cost is linear in tokens.
func (s *Store) Overview(ctx context.Context, apiKeyID string) (OverviewStats, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(cost_usd), 0),
			COALESCE(SUM(tokens_in), 0),
			COALESCE(SUM(tokens_out), 0)
		FROM cost_records
	`
	var args []interface{}
	if apiKeyID != "" {
		query += " WHERE api_key_id = $1"
		args = append(args, apiKeyID)
	}

	var (
		stats        OverviewStats
		actualStr    string
		tokensInSum  int64
		tokensOutSum int64
	)
	err := s.conn.QueryRowContext(ctx, query, args...).Scan(&stats.TotalRequests, &actualStr, &tokensInSum, &tokensOutSum)
	if err != nil {
		return stats, fmt.Errorf("overview: %w", err)
	}

	if d, err := decimal.NewFromString(actualStr); err == nil {
		stats.ActualCostUSD = d
	}

	baselineIn := decimal.NewFromInt(tokensInSum).Div(per1kTokens).Mul(baselineInputPricePer1k)
	baselineOut := decimal.NewFromInt(tokensOutSum).Div(per1kTokens).Mul(baselineOutputPricePer1k)
	stats.BaselineCostUSD = baselineIn.Add(baselineOut).Round(6)

	return stats, nil
}
