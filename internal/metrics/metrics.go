// Package metrics holds the Prometheus collectors for the HTTP layer and the
// lead/ledger operations.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crm_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	distributions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_distributions_total",
			Help: "Distribution attempts by outcome",
		},
		[]string{"outcome"},
	)

	leadsDistributed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_leads_distributed_total",
			Help: "Lead credits debited by successful distributions",
		},
	)

	leadsImported = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_leads_imported_total",
			Help: "Leads created by batch imports",
		},
	)

	rowsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_import_rows_skipped_total",
			Help: "Import rows skipped as duplicates",
		},
	)

	notifyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_notify_failures_total",
			Help: "Failed notifier deliveries",
		},
		[]string{"channel"},
	)
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and latency, labelled by chi route pattern
// so that ids in paths do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordDistribution counts one distribution attempt; outcome is "ok",
// "insufficient" or "error".
func RecordDistribution(outcome string, count int64) {
	distributions.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		leadsDistributed.Add(float64(count))
	}
}

func RecordImport(imported, skipped int) {
	leadsImported.Add(float64(imported))
	rowsSkipped.Add(float64(skipped))
}

func RecordNotifyFailure(channel string) {
	notifyFailures.WithLabelValues(channel).Inc()
}
