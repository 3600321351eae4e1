// Package metrics exposes the gateway's Prometheus series. Names and
// labels are an external contract and must not drift.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LatencyBuckets are the fixed histogram buckets for llm_gateway_latency_seconds.
var LatencyBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60}

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_gateway_requests_total",
			Help: "Total chat completion requests by outcome.",
		},
		[]string{"api_key_id", "provider", "status"},
	)

	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_gateway_errors_total",
			Help: "Total classified provider errors.",
		},
		[]string{"api_key_id", "provider", "error_type"},
	)

	FallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_gateway_fallbacks_total",
			Help: "Total times the fallback chain advanced past the primary provider.",
		},
		[]string{"api_key_id", "from_provider", "to_provider"},
	)

	CostTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_gateway_cost_total",
			Help: "Total attributed cost in USD.",
		},
		[]string{"api_key_id", "provider", "model"},
	)

	LatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_gateway_latency_seconds",
			Help:    "Fallback executor elapsed time per request.",
			Buckets: LatencyBuckets,
		},
		[]string{"api_key_id", "provider"},
	)
)

// Handler returns the /metrics exposition handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
