package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for bankbot.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration  *prometheus.HistogramVec
	ledgerOperations *prometheus.CounterVec
	ledgerAmount     *prometheus.CounterVec
	flowEvents       *prometheus.CounterVec
	activeSessions   prometheus.Gauge
	breakerChanges   *prometheus.CounterVec
	requestsTotal    *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bankbot_ledger_operation_duration_seconds",
				Help:    "Duration of ledger and chat operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		ledgerOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankbot_ledger_operations_total",
				Help: "Ledger operations by outcome (success or error kind).",
			},
			[]string{"operation", "outcome"},
		),
		ledgerAmount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankbot_ledger_amount_total",
				Help: "Committed money moved, by transaction type.",
			},
			[]string{"type"},
		),
		flowEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankbot_flow_events_total",
				Help: "Conversation flow events (started, reprompted, completed, failed, cancelled).",
			},
			[]string{"flow", "event"},
		),
		activeSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bankbot_chat_sessions_active",
				Help: "Chat sessions started and not yet ended.",
			},
		),
		breakerChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankbot_circuit_breaker_transitions_total",
				Help: "Circuit breaker state transitions.",
			},
			[]string{"name", "to"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankbot_chat_messages_total",
				Help: "Chat messages processed.",
			},
			[]string{"status"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrLedgerOperation counts one ledger operation with its outcome.
func (m *Metrics) IncrLedgerOperation(operation, outcome string) {
	m.ledgerOperations.WithLabelValues(operation, outcome).Inc()
}

// AddLedgerAmount adds a committed amount. Precision loss is acceptable here.
func (m *Metrics) AddLedgerAmount(txType string, amount float64) {
	m.ledgerAmount.WithLabelValues(txType).Add(amount)
}

// IncrFlowEvent counts a conversation flow event.
func (m *Metrics) IncrFlowEvent(flow, event string) {
	m.flowEvents.WithLabelValues(flow, event).Inc()
}

// SessionStarted increments the active sessions gauge.
func (m *Metrics) SessionStarted() {
	m.activeSessions.Inc()
}

// SessionEnded decrements the active sessions gauge.
func (m *Metrics) SessionEnded() {
	m.activeSessions.Dec()
}

// IncrBreakerTransition counts a circuit breaker state change.
func (m *Metrics) IncrBreakerTransition(name, to string) {
	m.breakerChanges.WithLabelValues(name, to).Inc()
}

// IncrRequest increments the chat message counter with a status label.
func (m *Metrics) IncrRequest(status string) {
	m.requestsTotal.WithLabelValues(status).Inc()
}

// LedgerOperationCount returns the current count for an operation/outcome
// pair.
func (m *Metrics) LedgerOperationCount(operation, outcome string) float64 {
	return getCounterValue(m.ledgerOperations.WithLabelValues(operation, outcome))
}

// FlowEventCount returns the current count for a flow/event pair.
func (m *Metrics) FlowEventCount(flow, event string) float64 {
	return getCounterValue(m.flowEvents.WithLabelValues(flow, event))
}

// getCounterValue extracts the current float64 value from a counter.
func getCounterValue(counter prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
