package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers batch jobs and destructive operations.
type Metrics struct {
	JobRecords  *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec
	Backups     *prometheus.CounterVec
	Restored    prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		JobRecords: f.NewCounterVec(prometheus.CounterOpts{
			Name: "safereport_lifecycle_job_records_total",
			Help: "Records handled by lifecycle jobs, by job and outcome",
		}, []string{"job", "outcome"}),
		JobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "safereport_lifecycle_job_duration_seconds",
			Help:    "Wall time of lifecycle job runs",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 30, 120, 600},
		}, []string{"job"}),
		Backups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "safereport_lifecycle_backups_total",
			Help: "Backup and restore operations, by operation and outcome",
		}, []string{"operation", "outcome"}),
		Restored: f.NewCounter(prometheus.CounterOpts{
			Name: "safereport_lifecycle_restored_incidents_total",
			Help: "Incidents re-inserted by restores",
		}),
	}
}

func (m *Metrics) AddJobRecords(job, outcome string, n int) {
	if m != nil && n > 0 {
		m.JobRecords.WithLabelValues(job, outcome).Add(float64(n))
	}
}

func (m *Metrics) ObserveJob(job string, d time.Duration) {
	if m != nil {
		m.JobDuration.WithLabelValues(job).Observe(d.Seconds())
	}
}

func (m *Metrics) IncBackupOp(operation, outcome string) {
	if m != nil {
		m.Backups.WithLabelValues(operation, outcome).Inc()
	}
}

func (m *Metrics) AddRestored(n int) {
	if m != nil {
		m.Restored.Add(float64(n))
	}
}
