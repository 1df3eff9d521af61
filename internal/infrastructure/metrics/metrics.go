// Package metrics holds the Prometheus collectors for settlement and authorization.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	SettlementsTotal     *prometheus.CounterVec
	SettlementsFlagged   *prometheus.CounterVec
	DuplicateCallbacks   prometheus.Counter
	Refunds              prometheus.Counter
	PolicyDenials        *prometheus.CounterVec
	AppointmentsCreated  prometheus.Counter
	StatusTransitions    *prometheus.CounterVec
	PrescriptionsIssued  prometheus.Counter
	ProviderCallDuration *prometheus.HistogramVec
	CircuitBreakerState  *prometheus.GaugeVec
	EventsPublished      *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them on reg. Pass a fresh
// prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		SettlementsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_settlements_total",
			Help: "Settlement callbacks recorded, by rail and resulting row status",
		}, []string{"rail", "status"}),
		SettlementsFlagged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_settlements_flagged_total",
			Help: "Settlements flagged for manual review, by reason",
		}, []string{"reason"}),
		DuplicateCallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payment_duplicate_callbacks_total",
			Help: "Replayed settlement callbacks answered from the ledger",
		}),
		Refunds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payment_refunds_total",
			Help: "Refund rows appended",
		}),
		PolicyDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "policy_denials_total",
			Help: "Role gate denials, by action and kind",
		}, []string{"action", "kind"}),
		AppointmentsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "appointments_created_total",
			Help: "Appointments booked",
		}),
		StatusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appointment_status_transitions_total",
			Help: "Appointment status transitions, by target status",
		}, []string{"to"}),
		PrescriptionsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prescriptions_issued_total",
			Help: "Prescriptions issued",
		}),
		ProviderCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payment_provider_call_duration_seconds",
			Help:    "Payment provider call duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"rail", "outcome"}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		}, []string{"name"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "domain_events_published_total",
			Help: "Domain events handed to the broker, by type and outcome",
		}, []string{"type", "outcome"}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.SettlementsTotal,
		m.SettlementsFlagged,
		m.DuplicateCallbacks,
		m.Refunds,
		m.PolicyDenials,
		m.AppointmentsCreated,
		m.StatusTransitions,
		m.PrescriptionsIssued,
		m.ProviderCallDuration,
		m.CircuitBreakerState,
		m.EventsPublished,
	)

	return m
}

// Handler returns the Prometheus HTTP handler for the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
