// Package middleware provides HTTP middleware for the DNS broker API.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dns_broker_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dns_broker_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dns_broker_errors_total",
			Help: "Total number of errors by type",
		},
		[]string{"type"},
	)

	// OperationsTotal counts broker operations by action, plan, and terminal state.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dns_broker_operations_total",
			Help: "Total number of broker operations by action, plan, and state",
		},
		[]string{"action", "plan", "state"},
	)

	// StepRetriesTotal counts pipeline step retry attempts by step name.
	StepRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dns_broker_step_retries_total",
			Help: "Total number of pipeline step retry attempts",
		},
		[]string{"step"},
	)

	// ReconcilerRunsTotal counts duplicate-certificate reconciler sweeps.
	ReconcilerRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dns_broker_reconciler_runs_total",
			Help: "Total number of duplicate-certificate reconciler sweeps",
		},
	)

	// ReconcilerCertsCleanedTotal counts duplicate certificates removed by the reconciler.
	ReconcilerCertsCleanedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dns_broker_reconciler_certs_cleaned_total",
			Help: "Total number of duplicate certificate rows cleaned up by the reconciler",
		},
	)
)

// Metrics returns a middleware that records Prometheus metrics for every HTTP request.
func Metrics() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

			path := normalizePath(r)

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.status)

			httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)

			if wrapped.status >= 400 {
				errorType := "client_error"
				if wrapped.status >= 500 {
					errorType = "server_error"
				}
				errorsTotal.WithLabelValues(errorType).Inc()
			}
		})
	}
}

type metricsResponseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.status = code
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

// normalizePath normalizes URL paths to prevent cardinality explosion, preferring
// chi's matched route pattern and falling back to masking instance-id segments.
func normalizePath(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}

	path := r.URL.Path
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if len(seg) == 36 && strings.Count(seg, "-") == 4 {
			segments[i] = "{instance_id}"
		}
	}
	return strings.Join(segments, "/")
}
