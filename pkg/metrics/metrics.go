// Package metrics exposes qconsole's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Backend call kinds.
const (
	KindWindow     = "window"
	KindSingle     = "single"
	KindCount      = "count"
	KindViewLookup = "view_lookup"
)

var (
	// RequestsTotal counts dispatched operations by outcome.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qconsole_requests_total",
			Help: "Total number of dispatched operations",
		},
		[]string{"operation", "status"},
	)

	// BackendCallsTotal counts backend executor calls by kind.
	BackendCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qconsole_backend_calls_total",
			Help: "Total number of backend query executor calls",
		},
		[]string{"kind"},
	)

	// QueryDuration is the elapsed time of the record fetch.
	QueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qconsole_query_duration_seconds",
			Help:    "Paginated fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// RowsReturned is the number of records assembled per fetch.
	RowsReturned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qconsole_rows_returned",
			Help:    "Records returned per paginated fetch",
			Buckets: prometheus.ExponentialBuckets(1, 10, 7),
		},
	)
)

// ObserveRequest records one dispatched operation.
func ObserveRequest(operation string, ok bool) {
	if operation == "" {
		operation = "unknown"
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	RequestsTotal.WithLabelValues(operation, status).Inc()
}

// ObserveBackendCall records one executor call.
func ObserveBackendCall(kind string) {
	BackendCallsTotal.WithLabelValues(kind).Inc()
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
