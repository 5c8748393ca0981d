package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	operationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "contentgov",
		Name:      "operations_total",
		Help:      "Governance operations by name and HTTP status code.",
	}, []string{"operation", "code"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "contentgov",
		Name:      "operation_duration_seconds",
		Help:      "Governance operation latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
)

// RegisterMetricsHandler exposes the Prometheus endpoint on the mux.
func RegisterMetricsHandler(mux *http.ServeMux) {
	mux.Handle("GET /metrics", promhttp.Handler())
}

// statusRecorder captures the response status code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument wraps a handler with request counting and latency metrics.
func (h *Handler) instrument(operation string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()

		next(rec, r)

		operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
		operationTotal.WithLabelValues(operation, strconv.Itoa(rec.code)).Inc()
	}
}
