package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers audit persistence and streaming.
type Metrics struct {
	EntriesPersisted *prometheus.CounterVec
	PersistFailures  prometheus.Counter
	PersistDuration  prometheus.Histogram
	EntriesStreamed  prometheus.Counter
	StreamFailures   prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EntriesPersisted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "safereport_audit_entries_persisted_total",
			Help: "Audit entries written to the store, by action",
		}, []string{"action"}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "safereport_audit_persist_failures_total",
			Help: "Audit writes that failed and aborted their mutation",
		}),
		PersistDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "safereport_audit_persist_duration_seconds",
			Help:    "Latency of synchronous audit writes",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}),
		EntriesStreamed: f.NewCounter(prometheus.CounterOpts{
			Name: "safereport_audit_entries_streamed_total",
			Help: "Persisted audit entries delivered to the stream",
		}),
		StreamFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "safereport_audit_stream_failures_total",
			Help: "Failed attempts to deliver audit entries to the stream",
		}),
	}
}

func (m *Metrics) IncPersisted(action string) {
	if m != nil {
		m.EntriesPersisted.WithLabelValues(action).Inc()
	}
}

func (m *Metrics) IncPersistFailures() {
	if m != nil {
		m.PersistFailures.Inc()
	}
}

func (m *Metrics) ObservePersistDuration(d time.Duration) {
	if m != nil {
		m.PersistDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) AddStreamed(n int) {
	if m != nil {
		m.EntriesStreamed.Add(float64(n))
	}
}

func (m *Metrics) IncStreamFailures() {
	if m != nil {
		m.StreamFailures.Inc()
	}
}
