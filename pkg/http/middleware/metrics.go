package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

type HttpMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

func NewHttpMetrics(reg prometheus.Registerer) *HttpMetrics {
	factory := promauto.With(reg)

	return &HttpMetrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sweeper",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Count of processed HTTP requests.",
		}, []string{"method", "route", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sweeper",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers.",
			Buckets:   histogramBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// Middleware records every request routed by the router. It is meant to be
// installed with (*mux.Router).Use so the matched route is known.
func (m *HttpMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startAt := time.Now()
		sw := statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(&sw, r)

		labels := prometheus.Labels{
			"method": r.Method,
			"route":  routeTemplate(r),
			"status": strconv.Itoa(sw.status),
		}

		m.RequestsTotal.With(labels).Inc()
		m.RequestDuration.With(labels).Observe(time.Since(startAt).Seconds())
	})
}

var _ mux.MiddlewareFunc = (&HttpMetrics{}).Middleware
