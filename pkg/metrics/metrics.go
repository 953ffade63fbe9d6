// Package metrics exposes Prometheus instrumentation for the extraction
// engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// APIRequests counts outbound API calls by operation and outcome.
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldpipe",
		Name:      "api_requests_total",
		Help:      "Outbound API calls by operation and outcome.",
	}, []string{"op", "outcome"})

	// APIRetries counts backoff retries by operation.
	APIRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldpipe",
		Name:      "api_retries_total",
		Help:      "Retries of transient API failures by operation.",
	}, []string{"op"})

	// RecordsExtracted counts records extracted by entity.
	RecordsExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldpipe",
		Name:      "records_extracted_total",
		Help:      "Records extracted by entity.",
	}, []string{"entity"})

	// RecordsLoaded counts records handed to the sink by entity and table.
	RecordsLoaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldpipe",
		Name:      "records_loaded_total",
		Help:      "Records loaded to the warehouse by entity and table.",
	}, []string{"entity", "table"})

	// RunDuration observes entity run durations by entity and result.
	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fieldpipe",
		Name:      "run_duration_seconds",
		Help:      "Entity extraction run duration.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{"entity", "result"})
)

// ObserveRun records a completed entity run.
func ObserveRun(entity string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	RunDuration.WithLabelValues(entity, result).Observe(time.Since(start).Seconds())
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
