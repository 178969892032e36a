// Package telemetry exposes Prometheus metrics for the harvester.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	documentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_documents_total",
			Help: "Documents processed, labeled by source category and outcome.",
		},
		[]string{"category", "outcome"},
	)

	bytesFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_bytes_fetched_total",
			Help: "Bytes downloaded and persisted, labeled by source category.",
		},
		[]string{"category"},
	)

	dedupDropsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_dedup_drops_total",
			Help: "Metadata inserts dropped because the dedup key already existed.",
		},
	)

	rateLimitDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvester_rate_limit_delay_seconds",
			Help:    "Time spent waiting on a host-class rate limit slot.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"host_class"},
	)

	passDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harvester_pass_duration_seconds",
			Help:    "Duration of full collection passes over the universe.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	companyFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_company_stage_failures_total",
			Help: "Per-company stage failures during a pass, labeled by stage.",
		},
		[]string{"stage"},
	)
)

// Handler returns the standard Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDocument records one terminal fetch outcome.
func ObserveDocument(category, outcome string, bytes int64) {
	documentsTotal.WithLabelValues(category, outcome).Inc()
	if bytes > 0 {
		bytesFetchedTotal.WithLabelValues(category).Add(float64(bytes))
	}
}

// ObserveDedupDrop records a duplicate insert silently dropped by the store.
func ObserveDedupDrop() {
	dedupDropsTotal.Inc()
}

// ObserveRateLimitDelay records the wait introduced by a host-class limiter.
func ObserveRateLimitDelay(hostClass string, d time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(hostClass).Observe(d.Seconds())
}

// ObservePass records the duration of a full collection pass.
func ObservePass(d time.Duration) {
	passDurationSeconds.Observe(d.Seconds())
}

// ObserveCompanyFailure records an isolated per-company stage failure.
func ObserveCompanyFailure(stage string) {
	companyFailuresTotal.WithLabelValues(stage).Inc()
}
