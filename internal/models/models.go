// Package models holds the persisted row types shared across the gateway.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// APIKey is a caller credential record. key_hash is a bcrypt-style one-way
// hash; the plaintext key is never stored. is_active=false disables
// authentication without deleting the row.
type APIKey struct {
	ID                 string
	KeyHash            string
	Name               string
	RateLimitPerMinute int
	IsActive           bool
	CreatedAt          time.Time
}

// CostRecord attributes tokens and USD cost to one successful provider
// attempt. Only successful attempts are recorded; failed attempts never
// produce a CostRecord.
type CostRecord struct {
	ID         string
	APIKeyID   string
	RequestID  string
	Provider   string
	Model      string
	TokensIn   int
	TokensOut  int
	CostUSD    decimal.Decimal
	LatencyMs  int
	CreatedAt  time.Time
}

// RequestLog is a per-request trace row written for every request that
// reaches the provider chain, whether it succeeds or fails, independent
// of the cost contract (supplements spec.md's cost-only
// persistence with the original system's tracing table).
type RequestLog struct {
	ID                string
	RequestID         string
	APIKeyID          string
	Task              string
	Budget            string
	LatencySensitive  bool
	ProviderUsed      string
	Status            string // success, failure
	CreatedAt         time.Time
}
