// Package metrics exposes the EMR's Prometheus collectors:
//   - emr_http_requests_total, emr_http_request_duration_seconds, emr_http_requests_in_flight
//   - emr_rate_limiter_buckets
//   - emr_catalog_medications, emr_catalog_entries, emr_catalog_last_refresh_timestamp_seconds
//   - emr_catalog_refresh_total by result, emr_selection_rejections_total by stage
//
// Collectors are registered with the default registry at init.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "emr"

var (
	HTTPRequestTotals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	HTTPRequestInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current in-flight requests",
		},
	)

	RateLimiterBuckets = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rate_limiter_buckets",
			Help:      "Client token buckets currently tracked",
		},
	)

	CatalogMedications = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_medications",
			Help:      "Distinct medication names in the served catalog index",
		},
	)

	CatalogEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_entries",
			Help:      "Distinct (medication, dosage) pairs in the served catalog index",
		},
	)

	CatalogLastRefresh = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_last_refresh_timestamp_seconds",
			Help:      "Unix time of the last successful catalog refresh",
		},
	)

	CatalogRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_refresh_total",
			Help:      "Catalog refresh and sync attempts by job and result",
		},
		[]string{"job", "result"},
	)

	SelectionRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selection_rejections_total",
			Help:      "Medication/dosage selections rejected against the catalog",
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestTotals,
		HTTPRequestDuration,
		HTTPRequestInFlight,
		RateLimiterBuckets,
		CatalogMedications,
		CatalogEntries,
		CatalogLastRefresh,
		CatalogRefreshTotal,
		SelectionRejections,
	)
}

// RecordCatalog publishes the size of a freshly installed index
func RecordCatalog(medications, entries int, at time.Time) {
	CatalogMedications.Set(float64(medications))
	CatalogEntries.Set(float64(entries))
	CatalogLastRefresh.Set(float64(at.Unix()))
}

// RecordRefresh counts one refresh or sync attempt
func RecordRefresh(job string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	CatalogRefreshTotal.WithLabelValues(job, result).Inc()
}
