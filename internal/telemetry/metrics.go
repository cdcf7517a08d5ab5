// Package telemetry exposes Prometheus collectors for the discovery pipeline.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	itemsFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discovery_items_fetched_total",
			Help: "Raw items fetched, labeled by source.",
		},
		[]string{"source"},
	)

	itemsAdmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discovery_items_admitted_total",
			Help: "Items classified as entities, labeled by source.",
		},
		[]string{"source"},
	)

	itemsNoiseTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discovery_items_noise_total",
			Help: "Items dropped as noise, labeled by source and reason.",
		},
		[]string{"source", "reason"},
	)

	sourceFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discovery_source_failures_total",
			Help: "Source-level failures, labeled by source and kind.",
		},
		[]string{"source", "kind"},
	)

	recordsResolvedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discovery_records_resolved_total",
			Help: "Resolver outcomes, labeled by action (created, merged, unchanged).",
		},
		[]string{"action"},
	)

	throttleDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "discovery_throttle_delay_seconds",
			Help:    "Delay introduced by the per-source rate limiter.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"source"},
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discovery_runs_total",
			Help: "Completed discovery runs, labeled by status.",
		},
		[]string{"status"},
	)
)

// CountFetched records raw items fetched from a source.
func CountFetched(source string, n int) {
	itemsFetchedTotal.WithLabelValues(source).Add(float64(n))
}

// CountAdmitted records items that passed classification.
func CountAdmitted(source string) {
	itemsAdmittedTotal.WithLabelValues(source).Inc()
}

// CountNoise records items dropped as noise.
func CountNoise(source, reason string) {
	itemsNoiseTotal.WithLabelValues(source, reason).Inc()
}

// CountSourceFailure records a source-level failure by kind.
func CountSourceFailure(source, kind string) {
	sourceFailuresTotal.WithLabelValues(source, kind).Inc()
}

// CountResolved records a resolver outcome.
func CountResolved(action string) {
	recordsResolvedTotal.WithLabelValues(action).Inc()
}

// ObserveThrottleDelay records time spent waiting on a source's token bucket.
func ObserveThrottleDelay(source string, d time.Duration) {
	throttleDelaySeconds.WithLabelValues(source).Observe(d.Seconds())
}

// CountRun records a completed run by status.
func CountRun(status string) {
	runsTotal.WithLabelValues(status).Inc()
}
