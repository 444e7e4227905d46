// Package metrics exposes Prometheus instrumentation for chart pipeline runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline outcomes.
const (
	OutcomeOK                = "ok"
	OutcomeInsufficientData  = "insufficient_data"
	OutcomeSourceUnavailable = "source_unavailable"
	OutcomeCancelled         = "cancelled"
	OutcomeError             = "error"
)

var (
	pipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capacity_trend_pipeline_runs_total",
		Help: "Chart pipeline runs by outcome.",
	}, []string{"outcome"})

	pipelineDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "capacity_trend_pipeline_duration_seconds",
		Help:    "Time to build one chart, including both source fetches.",
		Buckets: prometheus.DefBuckets,
	})

	pipelineIterations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "capacity_trend_last_chart_iterations",
		Help: "Iterations with capacity data in the most recently built chart.",
	})

	supersededInvocations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capacity_trend_superseded_invocations_total",
		Help: "Session refreshes whose result was discarded because a newer refresh started.",
	})
)

// ObservePipeline records one pipeline run.
func ObservePipeline(outcome string, elapsed time.Duration, iterations int) {
	pipelineRuns.WithLabelValues(outcome).Inc()
	pipelineDuration.Observe(elapsed.Seconds())
	if outcome == OutcomeOK || outcome == OutcomeInsufficientData {
		pipelineIterations.Set(float64(iterations))
	}
}

// ObserveSuperseded records a discarded session refresh.
func ObserveSuperseded() {
	supersededInvocations.Inc()
}
