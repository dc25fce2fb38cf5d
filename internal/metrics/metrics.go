// Package metrics exposes Prometheus collectors for the service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ingestRunsTotal            *prometheus.CounterVec
	eventsCrawledTotal         *prometheus.CounterVec
	eventsInsertedTotal        prometheus.Counter
	eventsDuplicateTotal       prometheus.Counter
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		ingestRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whatson_ingest_runs_total",
				Help: "Total scheduled ingestion runs, labeled by outcome.",
			},
			[]string{"status"},
		)
		eventsCrawledTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whatson_events_crawled_total",
				Help: "Total event records returned by crawlers, labeled by source.",
			},
			[]string{"source"},
		)
		eventsInsertedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "whatson_events_inserted_total",
				Help: "Total event records newly persisted.",
			},
		)
		eventsDuplicateTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "whatson_events_duplicate_total",
				Help: "Total crawled records absorbed as fingerprint duplicates.",
			},
		)
		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "whatson_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// IngestRun records one scheduled run outcome ("success" or "error").
func IngestRun(status string) {
	if ingestRunsTotal != nil {
		ingestRunsTotal.WithLabelValues(status).Inc()
	}
}

// EventsCrawled records how many records a source returned.
func EventsCrawled(source string, n int) {
	if eventsCrawledTotal != nil {
		eventsCrawledTotal.WithLabelValues(source).Add(float64(n))
	}
}

// EventsInserted records newly persisted records.
func EventsInserted(n int) {
	if eventsInsertedTotal != nil {
		eventsInsertedTotal.Add(float64(n))
	}
}

// EventsDuplicate records absorbed duplicates.
func EventsDuplicate(n int) {
	if eventsDuplicateTotal != nil {
		eventsDuplicateTotal.Add(float64(n))
	}
}

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request durations per method and chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if httpRequestDurationSeconds == nil {
			return
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		httpRequestDurationSeconds.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
