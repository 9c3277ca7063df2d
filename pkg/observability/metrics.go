package observability

import (
	"context"
	"strconv"

	"github.com/aretw0/statestack/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors fed by lifecycle hooks.
// Labels are kept to descriptor identities and enums; agent ids are never used as labels.
type Metrics struct {
	StateActions *prometheus.CounterVec
	Transitions  *prometheus.CounterVec
	Faults       *prometheus.CounterVec
	Wakes        *prometheus.CounterVec
	StackDepth   prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg. A nil reg skips registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StateActions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "statestack_state_actions_total",
				Help: "State lifecycle actions (begin, end, push, pop, pause, resume) by state",
			},
			[]string{"state_id", "action"},
		),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "statestack_transitions_total",
				Help: "Transition requests by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		Faults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "statestack_faults_total",
				Help: "Faults isolated inside agents",
			},
			[]string{"state_id", "fatal"},
		),
		Wakes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "statestack_wakes_total",
				Help: "Suspended behaviors woken, by reason",
			},
			[]string{"reason"},
		),
		StackDepth: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "statestack_stack_depth",
				Help:    "Stack depth after each applied transition",
				Buckets: prometheus.LinearBuckets(1, 1, 8),
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.StateActions, m.Transitions, m.Faults, m.Wakes, m.StackDepth)
	}
	return m
}

// Hooks returns lifecycle hooks recording into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStateAction: func(_ context.Context, e *domain.StateEvent) {
			m.StateActions.WithLabelValues(string(e.StateID), string(e.Action)).Inc()
		},
		OnTransition: func(_ context.Context, e *domain.TransitionEvent) {
			outcome := "applied"
			if e.Rejected {
				outcome = "rejected"
			} else {
				m.StackDepth.Observe(float64(e.Depth))
			}
			m.Transitions.WithLabelValues(string(e.Kind), outcome).Inc()
		},
		OnFault: func(_ context.Context, e *domain.FaultEvent) {
			m.Faults.WithLabelValues(string(e.StateID), strconv.FormatBool(e.Fatal)).Inc()
		},
		OnWake: func(_ context.Context, e *domain.WakeEvent) {
			m.Wakes.WithLabelValues(string(e.Reason)).Inc()
		},
	}
}
