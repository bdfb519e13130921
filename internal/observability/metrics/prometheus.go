// Package metrics provides Prometheus metrics for the evaluation service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gestor-t/neuroeval/internal/domain/evaluation"
	"github.com/gestor-t/neuroeval/pkg/circuitbreaker"
)

// Metrics holds all application metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	AdministrationsRecorded *prometheus.CounterVec
	PatientSwitches         prometheus.Counter
	SynthesesInFlight       prometheus.Gauge
	SynthesisOutcomes       *prometheus.CounterVec
	SynthesisDuration       prometheus.Histogram
	GatewayCalls            *prometheus.CounterVec
	GatewayLatency          *prometheus.HistogramVec
	ActiveSessions          prometheus.Gauge
	EventsPublished         *prometheus.CounterVec
	CircuitBreakerState     *prometheus.GaugeVec
}

// Model calls take seconds to minutes
var llmBuckets = []float64{.25, .5, 1, 2.5, 5, 10, 20, 40, 80, 160}

// New creates all metrics and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AdministrationsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "neuroeval_administrations_recorded_total",
			Help: "Total test administrations recorded",
		}, []string{"instrument"}),
		PatientSwitches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neuroeval_patient_switches_total",
			Help: "Total active patient changes, each discarding the session results",
		}),
		SynthesesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "neuroeval_syntheses_in_flight",
			Help: "Diagnostic syntheses currently awaiting a response",
		}),
		SynthesisOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "neuroeval_synthesis_outcomes_total",
			Help: "Diagnostic synthesis requests by outcome",
		}, []string{"outcome"}),
		SynthesisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "neuroeval_synthesis_duration_seconds",
			Help:    "Time from synthesis request to applied response",
			Buckets: llmBuckets,
		}),
		GatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "neuroeval_gateway_calls_total",
			Help: "Assistant gateway calls by task and outcome",
		}, []string{"task", "outcome"}),
		GatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "neuroeval_gateway_latency_seconds",
			Help:    "Assistant gateway call latency",
			Buckets: llmBuckets,
		}, []string{"task"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "neuroeval_sessions_active",
			Help: "Open evaluation sessions",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "neuroeval_events_published_total",
			Help: "Workflow events handed to the broker, by result",
		}, []string{"result"}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	reg.MustRegister(
		m.AdministrationsRecorded,
		m.PatientSwitches,
		m.SynthesesInFlight,
		m.SynthesisOutcomes,
		m.SynthesisDuration,
		m.GatewayCalls,
		m.GatewayLatency,
		m.ActiveSessions,
		m.EventsPublished,
		m.CircuitBreakerState,
	)

	return m
}

// AdministrationRecorded counts a saved score form
func (m *Metrics) AdministrationRecorded(instrumentID string) {
	if m == nil {
		return
	}
	m.AdministrationsRecorded.WithLabelValues(instrumentID).Inc()
}

// PatientSwitched counts a patient change
func (m *Metrics) PatientSwitched() {
	if m == nil {
		return
	}
	m.PatientSwitches.Inc()
}

// SynthesisStarted marks a synthesis in flight
func (m *Metrics) SynthesisStarted() {
	if m == nil {
		return
	}
	m.SynthesesInFlight.Inc()
}

// SynthesisFinished records how a synthesis request ended. Suppressed and
// discarded outcomes never had, or no longer have, a request in flight.
func (m *Metrics) SynthesisFinished(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.SynthesisOutcomes.WithLabelValues(outcome).Inc()
	switch outcome {
	case evaluation.OutcomeSuccess, evaluation.OutcomeFailure:
		m.SynthesesInFlight.Dec()
		m.SynthesisDuration.Observe(elapsed.Seconds())
	case evaluation.OutcomeCancelled:
		m.SynthesesInFlight.Dec()
	}
}

// ObserveGatewayCall records one assistant call
func (m *Metrics) ObserveGatewayCall(task, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.GatewayCalls.WithLabelValues(task, outcome).Inc()
	m.GatewayLatency.WithLabelValues(task).Observe(elapsed.Seconds())
}

// SessionOpened increments the active session gauge
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

// SessionClosed decrements the active session gauge
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

// EventPublished counts a broker hand-off; ok is false when it failed
func (m *Metrics) EventPublished(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.EventsPublished.WithLabelValues(result).Inc()
}

// BreakerStateChanged is a circuitbreaker state listener
func (m *Metrics) BreakerStateChanged(name string, to circuitbreaker.State) {
	if m == nil {
		return
	}
	var v float64
	switch to {
	case circuitbreaker.StateOpen:
		v = 1
	case circuitbreaker.StateHalfOpen:
		v = 2
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(v)
}

// Handler returns the Prometheus HTTP handler for the given gatherer
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
