// Package metrics provides Prometheus instrumentation for the surveillance engine.
package metrics

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EvaluationsTotal counts evaluations by outcome ("ok", "invalid", "cancelled", "error").
	EvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "surveillance_evaluations_total",
		Help: "Total number of rule evaluations",
	}, []string{"outcome"})

	// EvaluationLatency tracks engine run time.
	EvaluationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "surveillance_evaluation_duration_seconds",
		Help:    "Rule evaluation latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// NearEvents counts near-side events selected across evaluations.
	NearEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "surveillance_near_events_total",
		Help: "Near-side events selected",
	})

	// FarCandidates counts far-side orders matched to near-side events.
	FarCandidates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "surveillance_far_candidates_total",
		Help: "Far-side candidate orders matched",
	})

	// AlertsTotal counts alerts raised, partitioned by reason.
	AlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "surveillance_alerts_total",
		Help: "Alerts raised by the smoking rule",
	}, []string{"reason"})

	// PublishFailures counts alerts that could not be handed to the publisher.
	PublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "surveillance_publish_failures_total",
		Help: "Alerts that failed to publish",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "surveillance_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "surveillance_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "surveillance_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Route pattern keeps alert ids out of the label set.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the WebSocket upgrader take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(w.ResponseWriter).Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
