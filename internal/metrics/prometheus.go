// Package metrics provides Prometheus metrics for the voice agent.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/devrev/hvac-voice-agent/internal/dialog"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge

	turnsTotal        *prometheus.CounterVec
	turnDuration      prometheus.Histogram
	transitionsTotal  *prometheus.CounterVec
	callOutcomes      *prometheus.CounterVec
	duplicateWebhooks prometheus.Counter
	lockTimeouts      prometheus.Counter

	audioCacheLookups *prometheus.CounterVec
	synthDuration     *prometheus.HistogramVec
	extractionsTotal  *prometheus.CounterVec
	bookingsTotal     *prometheus.CounterVec

	healthStatus prometheus.Gauge
}

var globalMetrics *Metrics

// NewMetrics creates and registers Prometheus metrics.
func NewMetrics() *Metrics {
	if globalMetrics != nil {
		return globalMetrics
	}

	globalMetrics = &Metrics{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hvac_agent_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hvac_agent_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
			},
			[]string{"method", "route", "status"},
		),
		requestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "hvac_agent_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),
		turnsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hvac_agent_dialog_turns_total",
				Help: "Conversation turns handled, by the state that answered",
			},
			[]string{"state"},
		),
		turnDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hvac_agent_dialog_turn_duration_seconds",
				Help:    "Time to produce a reply for one caller turn",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 12},
			},
		),
		transitionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hvac_agent_dialog_transitions_total",
				Help: "Dialog state transitions",
			},
			[]string{"from", "to"},
		),
		callOutcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hvac_agent_call_outcomes_total",
				Help: "Finished calls by outcome",
			},
			[]string{"outcome"},
		),
		duplicateWebhooks: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "hvac_agent_duplicate_webhooks_total",
				Help: "Redelivered Gather webhooks answered by replaying the last reply",
			},
		),
		lockTimeouts: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "hvac_agent_session_lock_timeouts_total",
				Help: "Webhooks that gave up waiting for the per-call session lock",
			},
		),
		audioCacheLookups: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hvac_agent_audio_cache_lookups_total",
				Help: "Synthesized audio cache lookups",
			},
			[]string{"result"},
		),
		synthDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hvac_agent_tts_duration_seconds",
				Help:    "Text-to-speech synthesis duration in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8},
			},
			[]string{"status"},
		),
		extractionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hvac_agent_llm_extractions_total",
				Help: "LLM slot extraction calls",
			},
			[]string{"source", "status"},
		),
		bookingsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hvac_agent_bookings_total",
				Help: "Appointment writes",
			},
			[]string{"emergency", "status"},
		),
		healthStatus: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "hvac_agent_health_status",
				Help: "Readiness of the voice agent (1 = ready, 0 = not ready)",
			},
		),
	}

	return globalMetrics
}

// RecordHTTPRequest records metrics for an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)
	m.requestsTotal.WithLabelValues(method, route, status).Inc()
	m.requestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// RecordTurn records one handled caller turn.
func (m *Metrics) RecordTurn(state string, duration time.Duration) {
	m.turnsTotal.WithLabelValues(state).Inc()
	m.turnDuration.Observe(duration.Seconds())
}

// RecordDuplicateWebhook counts a replayed webhook.
func (m *Metrics) RecordDuplicateWebhook() {
	m.duplicateWebhooks.Inc()
}

// RecordLockTimeout counts a webhook that could not take the session lock.
func (m *Metrics) RecordLockTimeout() {
	m.lockTimeouts.Inc()
}

// CacheLookup records an audio cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if hit {
		m.audioCacheLookups.WithLabelValues("hit").Inc()
	} else {
		m.audioCacheLookups.WithLabelValues("miss").Inc()
	}
}

// Synthesis records a text-to-speech call.
func (m *Metrics) Synthesis(err error, duration time.Duration) {
	m.synthDuration.WithLabelValues(statusLabel(err)).Observe(duration.Seconds())
}

// RecordBooking records an appointment write.
func (m *Metrics) RecordBooking(emergency bool, err error) {
	m.bookingsTotal.WithLabelValues(strconv.FormatBool(emergency), statusLabel(err)).Inc()
}

// Transition implements dialog.Observer.
func (m *Metrics) Transition(from, to dialog.State) {
	m.transitionsTotal.WithLabelValues(string(from), string(to)).Inc()
}

// Finished implements dialog.Observer.
func (m *Metrics) Finished(outcome dialog.Outcome) {
	m.callOutcomes.WithLabelValues(string(outcome)).Inc()
}

// Extraction implements dialog.Observer.
func (m *Metrics) Extraction(source string, err error) {
	m.extractionsTotal.WithLabelValues(source, statusLabel(err)).Inc()
}

// RecordAbandoned counts a call finalized by the abandoned session sweep.
func (m *Metrics) RecordAbandoned() {
	m.callOutcomes.WithLabelValues(string(dialog.OutcomeAbandoned)).Inc()
}

// SetHealthStatus sets the health status.
func (m *Metrics) SetHealthStatus(healthy bool) {
	if healthy {
		m.healthStatus.Set(1)
	} else {
		m.healthStatus.Set(0)
	}
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// MetricsServer provides a separate HTTP server for Prometheus metrics.
type MetricsServer struct {
	server *http.Server
	logger *zap.Logger
}

// NewMetricsServer creates a new metrics server.
func NewMetricsServer(port int, path string, logger *zap.Logger) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	return &MetricsServer{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start starts the metrics server.
func (ms *MetricsServer) Start() error {
	ms.logger.Info("starting metrics server", zap.String("addr", ms.server.Addr))
	return ms.server.ListenAndServe()
}

// Shutdown gracefully shuts down the metrics server.
func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}

// MetricsMiddleware creates middleware that records HTTP metrics, labelled
// by route template so per-call paths do not explode cardinality.
func MetricsMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.requestsInFlight.Inc()
			defer m.requestsInFlight.Dec()

			start := time.Now()
			rw := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			m.RecordHTTPRequest(r.Method, routeLabel(r), rw.statusCode, time.Since(start))
		})
	}
}

func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// metricsResponseWriter wraps http.ResponseWriter to capture the status.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code.
func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
