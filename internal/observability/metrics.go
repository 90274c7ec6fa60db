package observability

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics for the standalone server
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizmock_http_requests_total",
			Help: "Total number of HTTP requests served",
		},
		[]string{"method", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quizmock_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)

	// Engine metrics
	interceptedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizmock_intercepted_requests_total",
			Help: "Total number of requests answered by the mock engine",
		},
		[]string{"service", "outcome"},
	)

	passthroughTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizmock_passthrough_requests_total",
			Help: "Total number of requests delegated to the real transport",
		},
		[]string{"reason"}, // stopped, unmatched, disabled
	)

	injectedErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizmock_injected_errors_total",
			Help: "Total number of injected error responses",
		},
		[]string{"service", "status"},
	)

	// Realtime metrics
	realtimeChannelsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quizmock_realtime_channels_open",
			Help: "Number of open mock realtime channels",
		},
	)

	realtimeEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizmock_realtime_events_total",
			Help: "Total number of realtime messages",
		},
		[]string{"direction", "type"}, // sent, received
	)
)

// MetricsMiddleware wraps an HTTP handler with metrics collection
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		status := strconv.Itoa(wrapped.statusCode)
		httpRequestsTotal.WithLabelValues(r.Method, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, status).Observe(time.Since(start).Seconds())
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack passes through to the underlying writer so websocket upgrades still work
func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}

// Flush passes through so event streams are not buffered
func (w *responseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// RecordIntercepted records a mocked response
func RecordIntercepted(service, outcome string) {
	interceptedTotal.WithLabelValues(service, outcome).Inc()
}

// RecordPassthrough records a request handed to the real transport
func RecordPassthrough(reason string) {
	passthroughTotal.WithLabelValues(reason).Inc()
}

// RecordInjectedError records an injected error response
func RecordInjectedError(service string, status int) {
	injectedErrorsTotal.WithLabelValues(service, strconv.Itoa(status)).Inc()
}

// RecordChannelOpen records realtime channel open/close transitions
func RecordChannelOpen(delta int) {
	realtimeChannelsActive.Add(float64(delta))
}

// RecordRealtimeEvent records a realtime message
func RecordRealtimeEvent(direction, eventType string) {
	realtimeEventsTotal.WithLabelValues(direction, eventType).Inc()
}

// MetricsHandler returns the Prometheus metrics HTTP handler
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
