// Package metrics provides Prometheus instrumentation for dispatched AI calls.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation labels.
const (
	OperationChat      = "chat"
	OperationEmbedding = "embedding"
)

var (
	// DispatchTotal counts dispatched calls by outcome.
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockai_dispatch_total",
			Help: "Total number of dispatched provider calls.",
		},
		[]string{"provider", "operation", "status"}, // status: "success", "error", "cache_hit"
	)

	// DispatchLatency tracks provider call latency in seconds.
	DispatchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stockai_dispatch_latency_seconds",
			Help:    "Provider call latency in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "operation"},
	)

	// TokenUsageTotal tracks tokens reported by providers.
	TokenUsageTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockai_token_usage_total",
			Help: "Total number of tokens consumed.",
		},
		[]string{"provider", "direction"}, // direction: "input" or "output"
	)

	// EmbeddingCacheLookups counts embedding cache lookups by result.
	EmbeddingCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockai_embedding_cache_lookups_total",
			Help: "Total number of embedding cache lookups.",
		},
		[]string{"result"}, // "hit", "miss", "error"
	)

	// ActiveDispatches tracks the number of in-flight provider calls.
	ActiveDispatches = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stockai_active_dispatches",
			Help: "Number of in-flight provider calls.",
		},
	)

	// ProviderSwitchesTotal counts permanent current-provider switches.
	ProviderSwitchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stockai_provider_switches_total",
			Help: "Total number of current provider switches.",
		},
	)
)

// ObserveDispatch records one finished call.
func ObserveDispatch(provider, operation string, err error, elapsed time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	DispatchTotal.WithLabelValues(provider, operation, status).Inc()
	DispatchLatency.WithLabelValues(provider, operation).Observe(elapsed.Seconds())
}

// ObserveCacheHit records a call answered from the embedding cache.
func ObserveCacheHit(provider string) {
	DispatchTotal.WithLabelValues(provider, OperationEmbedding, "cache_hit").Inc()
}

// RecordTokens adds prompt and completion token counts.
func RecordTokens(provider string, input, output int) {
	if input > 0 {
		TokenUsageTotal.WithLabelValues(provider, "input").Add(float64(input))
	}
	if output > 0 {
		TokenUsageTotal.WithLabelValues(provider, "output").Add(float64(output))
	}
}

// RecordCacheLookup records the result of an embedding cache lookup.
func RecordCacheLookup(result string) {
	EmbeddingCacheLookups.WithLabelValues(result).Inc()
}
