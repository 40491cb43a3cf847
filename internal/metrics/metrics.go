// Package metrics exposes prometheus counters for task transitions, emails,
// notifications and reminder sweeps. A nil *Metrics is valid and records
// nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "kpi"

// Email send outcomes
const (
	EmailSent    = "sent"
	EmailFailed  = "failed"
	EmailSkipped = "skipped"
)

// Metrics holds the counters exported on /metrics. A nil *Metrics records nothing.
type Metrics struct {
	Transitions   *prometheus.CounterVec
	Emails        *prometheus.CounterVec
	Notifications *prometheus.CounterVec
	SweepRuns     *prometheus.CounterVec
}

// New creates the counters and registers them with reg when reg is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_transitions_total",
			Help:      "Persisted task status changes.",
		}, []string{"from", "to"}),
		Emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_total",
			Help:      "Email attempts by kind and result.",
		}, []string{"kind", "result"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "In-app notifications created by type.",
		}, []string{"type"}),
		SweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_sweeps_total",
			Help:      "Due-soon reminder sweeps by outcome.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.Transitions, m.Emails, m.Notifications, m.SweepRuns)
	}
	return m
}

func (m *Metrics) Transition(from, to string) {
	if m == nil || from == to {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) Email(kind, result string) {
	if m == nil {
		return
	}
	m.Emails.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) Notification(kind string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(kind).Inc()
}

// Sweep records one reminder sweep; err nil counts as ok.
func (m *Metrics) Sweep(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SweepRuns.WithLabelValues(result).Inc()
}
