package metrics

import (
	"strconv"
	"time"
)

// RecordProviderRequest records a completed provider call. statusCode 0 means no response.
func RecordProviderRequest(provider, operation string, statusCode int, latency time.Duration) {
	ProviderRequests.WithLabelValues(provider, operation, strconv.Itoa(statusCode)).Inc()
	ProviderLatency.WithLabelValues(provider, operation).Observe(latency.Seconds())
}

// RecordStage records the duration of a cycle stage.
func RecordStage(stage string, d time.Duration) {
	StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordStageFailure records a failed stage.
func RecordStageFailure(stage, kind string) {
	if kind == "" {
		kind = "unknown"
	}
	StageFailures.WithLabelValues(stage, kind).Inc()
}

// RecordCircuitState records a circuit breaker transition.
func RecordCircuitState(provider string, state int) {
	CircuitBreakerState.WithLabelValues(provider).Set(float64(state))
}
