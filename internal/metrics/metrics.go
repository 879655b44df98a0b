package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private Prometheus registry. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	bookingRequests  *prometheus.CounterVec
	bookingDecisions *prometheus.CounterVec
	slotsGenerated   prometheus.Counter
	callJoins        *prometheus.CounterVec
	activeSessions   prometheus.Gauge
	notifyFailures   *prometheus.CounterVec
}

// New registers the HTTP and booking collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	bookingRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_requests_total",
		Help: "Session requests by outcome",
	}, []string{"outcome"})

	bookingDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_decisions_total",
		Help: "Trainer decisions on session requests",
	}, []string{"decision", "outcome"})

	slotsGenerated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slots_generated_total",
		Help: "Concrete slots materialized from weekly templates",
	})

	callJoins := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "video_call_joins_total",
		Help: "Join attempts by outcome",
	}, []string{"outcome"})

	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "video_call_active_sessions",
		Help: "Sessions that went active minus sessions that ended, since process start",
	})

	notifyFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_failures_total",
		Help: "Notifications that could not be enqueued or delivered",
	}, []string{"type"})

	registry.MustRegister(requestDuration, requestTotal, bookingRequests, bookingDecisions,
		slotsGenerated, callJoins, activeSessions, notifyFailures)

	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		bookingRequests:  bookingRequests,
		bookingDecisions: bookingDecisions,
		slotsGenerated:   slotsGenerated,
		callJoins:        callJoins,
		activeSessions:   activeSessions,
		notifyFailures:   notifyFailures,
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, code).Inc()
}

func (m *Metrics) BookingRequest(outcome string) {
	if m == nil {
		return
	}
	m.bookingRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) BookingDecision(decision, outcome string) {
	if m == nil {
		return
	}
	m.bookingDecisions.WithLabelValues(decision, outcome).Inc()
}

func (m *Metrics) SlotsGenerated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.slotsGenerated.Add(float64(n))
}

func (m *Metrics) CallJoin(outcome string) {
	if m == nil {
		return
	}
	m.callJoins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

func (m *Metrics) NotificationFailed(kind string) {
	if m == nil {
		return
	}
	m.notifyFailures.WithLabelValues(kind).Inc()
}
