// Package telemetry holds the Prometheus collectors for the bridge and the
// dashboard.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	Fetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solax_fetches_total",
			Help: "Total number of Solax realtime fetches",
		},
		[]string{"result"},
	)

	FetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "solax_fetch_duration_seconds",
			Help:    "Duration of Solax realtime fetches in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SkippedFields = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "solax_skipped_fields_total",
			Help: "Total number of non-numeric fields dropped during normalization",
		},
	)

	Pushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cantao_pushes_total",
			Help: "Total number of metric pushes to CANTAO",
		},
		[]string{"result"},
	)

	PushedMetrics = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cantao_pushed_metrics_total",
			Help: "Total number of metrics accepted by CANTAO",
		},
	)

	DashboardRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_requests_total",
			Help: "Total number of dashboard HTTP requests",
		},
		[]string{"path", "status"},
	)
)

func init() {
	prometheus.MustRegister(Fetches, FetchDuration, SkippedFields, Pushes, PushedMetrics, DashboardRequests)
}

// Result maps an error to the result label.
func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}

// ObserveFetch records a finished fetch.
func ObserveFetch(start time.Time, err error) {
	FetchDuration.Observe(time.Since(start).Seconds())
	Fetches.WithLabelValues(Result(err)).Inc()
}

// ObserveRequest records a finished dashboard request.
func ObserveRequest(path string, status int) {
	DashboardRequests.WithLabelValues(path, strconv.Itoa(status)).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
