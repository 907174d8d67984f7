package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exported on /metrics. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec

	conversationsStarted  prometheus.Counter
	conversationsActive   prometheus.Gauge
	conversationsFinished *prometheus.CounterVec
	stepTimeouts          *prometheus.CounterVec
	verifications         *prometheus.CounterVec
	roleGrantFailures     prometheus.Counter
}

// NewMetrics registers all collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route, method and status",
		}, []string{"path", "method", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "HTTP errors by route, method and error code",
		}, []string{"path", "method", "code"}),
		conversationsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "conversations_started_total",
			Help: "Conversation attempts started",
		}),
		conversationsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "conversations_active",
			Help: "Conversations currently awaiting input",
		}),
		conversationsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conversations_finished_total",
			Help: "Conversation attempts by final result",
		}, []string{"result"}),
		stepTimeouts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conversation_step_timeouts_total",
			Help: "Expired conversation steps by state",
		}, []string{"state"}),
		verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verification_outcomes_total",
			Help: "Confirmation verifier outcomes",
		}, []string{"outcome"}),
		roleGrantFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "role_grant_failures_total",
			Help: "Role grants that failed after an entitlement was recorded",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

func (m *Metrics) ConversationStarted() {
	if m == nil {
		return
	}
	m.conversationsStarted.Inc()
	m.conversationsActive.Inc()
}

func (m *Metrics) ConversationFinished(result string) {
	if m == nil {
		return
	}
	m.conversationsActive.Dec()
	m.conversationsFinished.WithLabelValues(result).Inc()
}

func (m *Metrics) StepTimedOut(state string) {
	if m == nil {
		return
	}
	m.stepTimeouts.WithLabelValues(state).Inc()
}

func (m *Metrics) RecordVerification(outcome string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RoleGrantFailed() {
	if m == nil {
		return
	}
	m.roleGrantFailures.Inc()
}
