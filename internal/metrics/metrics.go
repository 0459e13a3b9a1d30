// Package metrics exposes Prometheus collectors for the scan, alert and HTTP paths.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scanRunsTotal              *prometheus.CounterVec
	scanRecordsTotal           *prometheus.CounterVec
	scanDurationSeconds        *prometheus.HistogramVec
	recordsDeactivatedTotal    prometheus.Counter
	alertsTotal                *prometheus.CounterVec
	geocodeLookupsTotal        *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scanRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitescan_scan_runs_total",
				Help: "Total number of per-source scan runs, labeled by source and terminal status.",
			},
			[]string{"source", "status"},
		)

		scanRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitescan_scan_records_total",
				Help: "Records observed by scans, labeled by source and kind (found or new).",
			},
			[]string{"source", "kind"},
		)

		scanDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitescan_scan_duration_seconds",
				Help:    "Histogram of per-source scan durations.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"source"},
		)

		recordsDeactivatedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sitescan_records_deactivated_total",
				Help: "Records flipped to inactive by liveness reconciliation.",
			},
		)

		alertsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitescan_alerts_total",
				Help: "Alert deliveries, labeled by channel and outcome.",
			},
			[]string{"channel", "outcome"},
		)

		geocodeLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitescan_geocode_lookups_total",
				Help: "Geocode lookups, labeled by how they were answered.",
			},
			[]string{"result"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveScan records the outcome of one source scan.
func ObserveScan(source, status string, found, added int, duration time.Duration) {
	Init()
	scanRunsTotal.WithLabelValues(source, status).Inc()
	scanRecordsTotal.WithLabelValues(source, "found").Add(float64(found))
	scanRecordsTotal.WithLabelValues(source, "new").Add(float64(added))
	scanDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
}

// ObserveDeactivated records records flipped to inactive.
func ObserveDeactivated(n int64) {
	Init()
	recordsDeactivatedTotal.Add(float64(n))
}

// ObserveAlert records one delivery attempt.
func ObserveAlert(channel, outcome string) {
	Init()
	alertsTotal.WithLabelValues(channel, outcome).Inc()
}

// ObserveGeocode records how a geocode lookup was answered.
func ObserveGeocode(result string) {
	Init()
	geocodeLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
