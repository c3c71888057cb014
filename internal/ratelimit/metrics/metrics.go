package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions *prometheus.CounterVec
	Resets    prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "safereport_ratelimit_decisions_total",
			Help: "Rate limit checks by action and outcome",
		}, []string{"action", "outcome"}),
		Resets: f.NewCounter(prometheus.CounterOpts{
			Name: "safereport_ratelimit_resets_total",
			Help: "Operator resets of rate limit windows",
		}),
	}
}

func (m *Metrics) IncrementAllowed(action string) {
	if m != nil {
		m.Decisions.WithLabelValues(action, "allowed").Inc()
	}
}

func (m *Metrics) IncrementDenied(action string) {
	if m != nil {
		m.Decisions.WithLabelValues(action, "denied").Inc()
	}
}

func (m *Metrics) IncrementResets() {
	if m != nil {
		m.Resets.Inc()
	}
}
