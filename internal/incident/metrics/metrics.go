package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers incident reads and writes.
type Metrics struct {
	PagesServed       prometheus.Counter
	QueryStepDuration *prometheus.HistogramVec
	AvatarFailures    prometheus.Counter
	Mutations         *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PagesServed: f.NewCounter(prometheus.CounterOpts{
			Name: "safereport_incident_pages_served_total",
			Help: "Incident list pages served",
		}),
		QueryStepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "safereport_incident_query_step_duration_seconds",
			Help:    "Latency of each batched list query step",
			Buckets: prometheus.DefBuckets,
		}, []string{"step"}),
		AvatarFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "safereport_incident_avatar_resolution_failures_total",
			Help: "Avatar URLs that could not be resolved and were left blank",
		}),
		Mutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "safereport_incident_mutations_total",
			Help: "Incident writes, by operation",
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncPagesServed() {
	if m != nil {
		m.PagesServed.Inc()
	}
}

func (m *Metrics) ObserveStep(step string, d time.Duration) {
	if m != nil {
		m.QueryStepDuration.WithLabelValues(step).Observe(d.Seconds())
	}
}

func (m *Metrics) IncAvatarFailures() {
	if m != nil {
		m.AvatarFailures.Inc()
	}
}

func (m *Metrics) IncMutation(operation string) {
	if m != nil {
		m.Mutations.WithLabelValues(operation).Inc()
	}
}
