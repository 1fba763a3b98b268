package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "firmauth"

var (
	authAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Authentication attempts by credential method and result",
		},
		[]string{"method", "result"},
	)

	rateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_decisions_total",
			Help:      "Admission decisions by tier, window and result",
		},
		[]string{"tier", "window", "result"},
	)

	quotaStoreOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_store_operations_total",
			Help:      "Quota store operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	quotaStoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quota_store_operation_duration_seconds",
			Help:      "Duration of quota store operations in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	activityQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "activity_queue_depth",
			Help:      "Pending activity writes waiting for a worker",
		},
	)

	activityWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activity_writes_total",
			Help:      "Activity writes by kind, path (queued or inline) and status",
		},
		[]string{"kind", "path", "status"},
	)

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)
)

// RecordAuthAttempt counts an authentication attempt. method is one of
// password, session, renewal or api_key.
func RecordAuthAttempt(method, result string) {
	authAttempts.WithLabelValues(method, result).Inc()
}

// RecordRateLimitDecision counts an admission decision
func RecordRateLimitDecision(tier, window, result string) {
	rateLimitDecisions.WithLabelValues(tier, window, result).Inc()
}

// ObserveStoreOp records the outcome and latency of a quota store call
func ObserveStoreOp(operation string, start time.Time, err error) {
	quotaStoreDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil {
		status = "error"
	}
	quotaStoreOps.WithLabelValues(operation, status).Inc()
}

// SetActivityQueueDepth reports the number of queued activity writes
func SetActivityQueueDepth(n int) {
	activityQueueDepth.Set(float64(n))
}

// RecordActivityWrite counts a processed activity write
func RecordActivityWrite(kind, path string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	activityWrites.WithLabelValues(kind, path, status).Inc()
}

// HTTPMetrics instruments requests using the matched chi route pattern as
// the route label so cardinality stays bounded.
func HTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
