// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	recordsTotal               *prometheus.CounterVec
	harvestDurationSeconds     prometheus.Histogram
	fetchTotal                 *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	breakerEventsTotal         *prometheus.CounterVec
	emailsPerRecord            prometheus.Histogram
	storeErrorsTotal           *prometheus.CounterVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	activeWorkers              prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times. Observe functions are
// no-ops until Init has run.
func Init() {
	once.Do(func() {
		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_records_total",
				Help: "Total number of records harvested, labeled by final status.",
			},
			[]string{"status"},
		)

		harvestDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvester_harvest_duration_seconds",
				Help:    "Histogram of per-record harvest durations.",
				Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
			},
		)

		fetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_fetch_total",
				Help: "Total number of page fetches, labeled by mode and outcome.",
			},
			[]string{"mode", "outcome"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies, labeled by mode.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"mode"},
		)

		breakerEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_breaker_events_total",
				Help: "Circuit breaker transitions, labeled by event.",
			},
			[]string{"event"},
		)

		emailsPerRecord = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvester_emails_per_record",
				Help:    "Histogram of prioritized emails per harvested record.",
				Buckets: []float64{0, 1, 2, 3, 5, 10},
			},
		)

		storeErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_store_errors_total",
				Help: "Record store failures, labeled by operation.",
			},
			[]string{"op"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_ratelimit_delay_seconds",
				Help:    "Histogram of politeness wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_http_requests_total",
				Help: "Total number of API requests, labeled by method, route and code.",
			},
			[]string{"method", "route", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_http_request_duration_seconds",
				Help:    "Histogram of API request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_active_workers",
				Help: "Number of workers currently harvesting a record.",
			},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRecord records a finished harvest.
func ObserveRecord(status string, emails int, duration time.Duration) {
	if recordsTotal == nil {
		return
	}
	recordsTotal.WithLabelValues(status).Inc()
	harvestDurationSeconds.Observe(duration.Seconds())
	emailsPerRecord.Observe(float64(emails))
}

// ObserveFetch records one page fetch. mode is "light" or "rich".
func ObserveFetch(mode, outcome string, duration time.Duration) {
	if fetchTotal == nil {
		return
	}
	fetchTotal.WithLabelValues(mode, outcome).Inc()
	fetchDurationSeconds.WithLabelValues(mode).Observe(duration.Seconds())
}

// BreakerEvent counts a circuit breaker transition. It satisfies breaker.Observer.
func BreakerEvent(event string) {
	if breakerEventsTotal == nil {
		return
	}
	breakerEventsTotal.WithLabelValues(event).Inc()
}

// ObserveStoreError counts a failed record store operation.
func ObserveStoreError(op string) {
	if storeErrorsTotal == nil {
		return
	}
	storeErrorsTotal.WithLabelValues(op).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	if rateLimitDelaySeconds == nil {
		return
	}
	rateLimitDelaySeconds.WithLabelValues(SanitizeSite(domain)).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Dec()
}
