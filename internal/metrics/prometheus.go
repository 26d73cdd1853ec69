// Package metrics provides Prometheus metrics for the agent.
// It tracks cognitive cycles, memory persistence, provider calls and publishing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "murmur"
)

// LatencyBuckets defines histogram buckets for provider and stage latency (in seconds).
var LatencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5,
	1.0, 2.0, 3.0, 5.0, 7.5, 10.0, 15.0, 20.0,
	30.0, 60.0, 120.0,
}

// =============================================================================
// Cycle Metrics
// =============================================================================

var (
	// CyclesTotal counts cognitive cycles by outcome ("acted", "idle", "failed", "interrupted", "inactive").
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Total number of cognitive cycles",
		},
		[]string{"outcome"},
	)

	// StageDuration tracks the latency of each cycle stage.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Cognitive cycle stage duration in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"stage"},
	)

	// StageFailures counts stage failures by stage and error kind.
	StageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Total number of failed cycle stages",
		},
		[]string{"stage", "kind"},
	)

	// ThoughtSignificance tracks the distribution of thought significance scores.
	ThoughtSignificance = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "thought_significance",
			Help:      "Significance score of generated thoughts",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	// InteractionsTotal counts handled interactions by decision ("responded", "ignored", "failed").
	InteractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interactions_total",
			Help:      "Total number of handled interactions",
		},
		[]string{"decision"},
	)

	// WalletAddressesDetected counts wallet addresses found in generated posts.
	WalletAddressesDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wallet_addresses_detected_total",
			Help:      "Total number of wallet addresses found in generated posts",
		},
	)
)

// =============================================================================
// Memory Metrics
// =============================================================================

var (
	// MemoryStoreTotal counts long-term store attempts by outcome ("stored", "skipped", "failed").
	MemoryStoreTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_store_total",
			Help:      "Total number of long-term memory store attempts",
		},
		[]string{"outcome"},
	)

	// ShortTermSize tracks the number of entries held in short-term memory.
	ShortTermSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "short_term_memory_size",
			Help:      "Current number of short-term memory entries",
		},
	)

	// ConsolidationMerges counts memories merged by consolidation.
	ConsolidationMerges = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consolidation_merges_total",
			Help:      "Total number of memory pairs merged",
		},
	)

	// ConsolidationRuns counts consolidation passes by result ("ok", "failed").
	ConsolidationRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consolidation_runs_total",
			Help:      "Total number of consolidation passes",
		},
		[]string{"result"},
	)

	// EmbeddingCacheRequests counts embedding cache lookups by tier ("local", "redis", "miss").
	EmbeddingCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_requests_total",
			Help:      "Total number of embedding cache lookups",
		},
		[]string{"tier"},
	)
)

// =============================================================================
// Provider Metrics
// =============================================================================

var (
	// ProviderRequests counts provider calls by provider, operation and status code.
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total number of provider requests",
		},
		[]string{"provider", "operation", "status_code"},
	)

	// ProviderLatency tracks provider call latency.
	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_latency_seconds",
			Help:      "Provider request latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"provider", "operation"},
	)

	// CircuitBreakerState tracks circuit breaker status.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"provider"},
	)

	// PublishTotal counts publish attempts by kind ("post", "reply") and result.
	PublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_total",
			Help:      "Total number of publish attempts",
		},
		[]string{"kind", "result"},
	)
)

// =============================================================================
// System Health Metrics
// =============================================================================

var (
	// StoreConnections reports the memory store pool by state: in_use, idle, limit.
	StoreConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "connections",
			Help:      "Memory store connections by state",
		},
		[]string{"state"},
	)

	// StoreConnectionWaits is the cumulative count of callers that blocked on an exhausted pool.
	StoreConnectionWaits = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "connection_waits",
			Help:      "Cumulative number of waits for a free connection",
		},
	)

	// StoreConnectionWaitSeconds is the cumulative time spent waiting for a connection.
	StoreConnectionWaitSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "connection_wait_seconds",
			Help:      "Cumulative time spent waiting for a free connection",
		},
	)

	// ArchiveQueueSize tracks records buffered for the archive.
	ArchiveQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "archive_queue_size",
			Help:      "Number of records waiting to be archived",
		},
	)
)
