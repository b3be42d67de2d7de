// Package metrics exposes Prometheus counters for the decision pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the counters the engine increments. Construct with New and
// a registry, or Nop for tests and metric-less deployments.
type Metrics struct {
	EntriesOpened     prometheus.Counter
	EntriesBlocked    *prometheus.CounterVec // labeled by stage
	SignalsDeferred   prometheus.Counter
	PositionsClosed   *prometheus.CounterVec // labeled by reason
	EmergencyCloses   prometheus.Counter
	VerificationRetry prometheus.Counter
}

// New creates and registers the engine metrics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EntriesOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_entries_opened_total",
			Help: "Positions opened after a full entry approval.",
		}),
		EntriesBlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_entries_blocked_total",
			Help: "Entry evaluations blocked, by pipeline stage.",
		}, []string{"stage"}),
		SignalsDeferred: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_signals_deferred_total",
			Help: "Signals deferred to a retest zone after a missed impulse.",
		}),
		PositionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_positions_closed_total",
			Help: "Positions closed, by close reason.",
		}, []string{"reason"}),
		EmergencyCloses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_emergency_closes_total",
			Help: "Emergency closes after protection verification failed.",
		}),
		VerificationRetry: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_protection_verification_retries_total",
			Help: "Protection verification retry rounds.",
		}),
	}
	reg.MustRegister(m.EntriesOpened, m.EntriesBlocked, m.SignalsDeferred,
		m.PositionsClosed, m.EmergencyCloses, m.VerificationRetry)
	return m
}

// Nop returns metrics backed by unregistered collectors. Increments are safe
// and invisible; call sites never branch on metric availability.
func Nop() *Metrics {
	return &Metrics{
		EntriesOpened: prometheus.NewCounter(prometheus.CounterOpts{Name: "nop_entries_opened_total"}),
		EntriesBlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nop_entries_blocked_total",
		}, []string{"stage"}),
		SignalsDeferred: prometheus.NewCounter(prometheus.CounterOpts{Name: "nop_signals_deferred_total"}),
		PositionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nop_positions_closed_total",
		}, []string{"reason"}),
		EmergencyCloses:   prometheus.NewCounter(prometheus.CounterOpts{Name: "nop_emergency_closes_total"}),
		VerificationRetry: prometheus.NewCounter(prometheus.CounterOpts{Name: "nop_protection_verification_retries_total"}),
	}
}
