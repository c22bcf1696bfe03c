// Package observability provides Prometheus metrics instrumentation for the
// story engine.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// PIPELINE METRICS
// =============================================================================

var (
	pipelineExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aventura_pipeline_executions_total",
			Help: "Total number of generation pipeline executions",
		},
		[]string{"pipeline", "status"}, // status: completed, aborted, failed
	)

	pipelineDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aventura_pipeline_duration_seconds",
			Help:    "Generation pipeline duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"pipeline"},
	)
)

// =============================================================================
// PHASE METRICS
// =============================================================================

var (
	phaseExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aventura_phase_executions_total",
			Help: "Total number of phase executions",
		},
		[]string{"phase", "status"}, // status: success, skipped, aborted, error
	)

	phaseDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aventura_phase_duration_seconds",
			Help:    "Phase execution duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"phase"},
	)
)

// =============================================================================
// PROVIDER METRICS
// =============================================================================

var (
	providerCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aventura_provider_calls_total",
			Help: "Total number of model provider calls",
		},
		[]string{"provider", "operation", "status"}, // status: success, error
	)

	providerDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aventura_provider_duration_seconds",
			Help:    "Model provider call duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "operation"},
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordPipelineExecution records pipeline execution metrics.
// This should be called after a generation run completes.
func RecordPipelineExecution(pipeline string, status string, durationMS int) {
	pipelineExecutionsTotal.WithLabelValues(pipeline, status).Inc()
	pipelineDurationSeconds.WithLabelValues(pipeline).Observe(float64(durationMS) / 1000.0)
}

// RecordPhaseExecution records phase execution metrics.
// This should be called after a phase's terminal event.
func RecordPhaseExecution(phase string, status string, durationMS int) {
	phaseExecutionsTotal.WithLabelValues(phase, status).Inc()
	phaseDurationSeconds.WithLabelValues(phase).Observe(float64(durationMS) / 1000.0)
}

// RecordProviderCall records model provider call metrics.
// This should be called after a dependency-bundle operation settles.
func RecordProviderCall(provider, operation, status string, durationMS int) {
	providerCallsTotal.WithLabelValues(provider, operation, status).Inc()
	providerDurationSeconds.WithLabelValues(provider, operation).Observe(float64(durationMS) / 1000.0)
}
