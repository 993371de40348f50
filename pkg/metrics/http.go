package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics records request-level measurements for the API surface.
type HTTPMetrics interface {
	// ObserveRequest records one finished request.
	ObserveRequest(method, route string, status int, duration time.Duration)
}

// NewHTTPMetrics returns a Prometheus-backed recorder, or a no-op when
// metrics are disabled.
func NewHTTPMetrics() HTTPMetrics {
	if !IsEnabled() {
		return noopHTTPMetrics{}
	}

	return &httpMetrics{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "brofm_http_requests_total",
				Help: "Total HTTP requests by method, route, and status",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "brofm_http_request_duration_seconds",
				Help:    "HTTP request latency by method and route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

type httpMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func (m *httpMetrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	statusClass := statusLabel(status)
	m.requestsTotal.WithLabelValues(method, route, statusClass).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

type noopHTTPMetrics struct{}

func (noopHTTPMetrics) ObserveRequest(string, string, int, time.Duration) {}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
