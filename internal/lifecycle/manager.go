// Package lifecycle moves incidents through archival, soft deletion, and
// the retention purge, and reports what is about to expire.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"safereport/internal/audit"
	"safereport/internal/incident/models"
	"safereport/internal/incident/validation"
	"safereport/internal/lifecycle/metrics"
	mmodels "safereport/internal/membership/models"
	id "safereport/pkg/domain"
	dErrors "safereport/pkg/domain-errors"
	"safereport/pkg/platform/sentinel"
	txcontext "safereport/pkg/platform/tx"
)

const (
	// ArchiveAfter is the age by creation time at which the archival job
	// freezes an incident.
	ArchiveAfter = 365 * 24 * time.Hour

	PurgeReasonRetentionExpired = "retention_period_expired"

	DefaultBatchSize      = 500
	DefaultExpiryHorizon  = 30
	MaxExpiryHorizonDays  = 3650
	jobArchival           = "archival"
	jobPurge              = "retention_purge"
	outcomeSucceeded      = "succeeded"
	outcomeFailed         = "failed"
	maxSoftDeleteReasonSz = 500
)

// SystemUserID attributes audit entries written by scheduled jobs.
var SystemUserID = id.UserID(uuid.MustParse("00000000-0000-0000-0000-000000000001"))

type IncidentStore interface {
	FindByID(ctx context.Context, incidentID id.IncidentID) (*models.Incident, error)
	SaveTransition(ctx context.Context, incident *models.Incident, from models.State) error
	Delete(ctx context.Context, incidentID id.IncidentID) error
	ListArchivable(ctx context.Context, cutoff time.Time, limit int) ([]*models.Incident, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.Incident, error)
	ListScheduledForDeletion(ctx context.Context, scope models.Scope, until time.Time) ([]*models.Incident, error)
}

type Access interface {
	ResolveTeamAccess(ctx context.Context, userID id.UserID, teamID id.TeamID) (*mmodels.Membership, error)
	ResolveScopeAccess(ctx context.Context, userID id.UserID, scope models.Scope) (*mmodels.Membership, error)
	CheckPermission(ctx context.Context, userID id.UserID, action mmodels.Action) (*mmodels.Membership, error)
}

type AuditLogger interface {
	LogDataAccess(ctx context.Context, incidentID *id.IncidentID, userID id.UserID, metadata audit.Metadata) error
}

// JobResult is the aggregate outcome of one batch job run.
type JobResult struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// RetentionReport summarizes incidents in a scope approaching their
// retention deadline.
type RetentionReport struct {
	Scope             string              `json:"scope"`
	DaysUntilExpiry   int                 `json:"days_until_expiry"`
	ExpiringCount     int                 `json:"expiring_count"`
	ExpiredCount      int                 `json:"expired_count"`
	ExpiringIncidents []*ExpiringIncident `json:"expiring_incidents"`
}

type ExpiringIncident struct {
	ID                  id.IncidentID `json:"id"`
	Date                string        `json:"date"`
	Level               models.Level  `json:"incident_level"`
	State               models.State  `json:"state"`
	ScheduledDeletionAt time.Time     `json:"scheduled_deletion_at"`
	DaysRemaining       int           `json:"days_remaining"`
}

type Manager struct {
	incidents IncidentStore
	access    Access
	audit     AuditLogger
	tx        txcontext.Runner
	batchSize int
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	now       func() time.Time
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func WithBatchSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.batchSize = n
		}
	}
}

func NewManager(incidents IncidentStore, access Access, auditLogger AuditLogger, tx txcontext.Runner, opts ...Option) (*Manager, error) {
	switch {
	case incidents == nil:
		return nil, errors.New("incident store is required")
	case access == nil:
		return nil, errors.New("access engine is required")
	case auditLogger == nil:
		return nil, errors.New("audit logger is required")
	case tx == nil:
		return nil, errors.New("transaction runner is required")
	}
	m := &Manager{
		incidents: incidents,
		access:    access,
		audit:     auditLogger,
		tx:        tx,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
		tracer:    otel.Tracer("safereport/lifecycle"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// RunArchival archives every active incident created more than a year ago
// and schedules its deletion. A failure on one incident is logged and the
// job moves on.
func (m *Manager) RunArchival(ctx context.Context) (*JobResult, error) {
	ctx, span := m.tracer.Start(ctx, "lifecycle.archival")
	defer span.End()
	start := time.Now()
	now := m.now().UTC()

	candidates, err := m.incidents.ListArchivable(ctx, now.Add(-ArchiveAfter), m.batchSize)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list archivable incidents: %w", err)
	}

	res := &JobResult{Processed: len(candidates)}
	for _, inc := range candidates {
		if err := m.archiveOne(ctx, inc, now); err != nil {
			res.Failed++
			m.logger.ErrorContext(ctx, "archival failed for incident",
				"incident_id", inc.ID.String(),
				"error", err,
			)
			continue
		}
		res.Succeeded++
	}

	m.finishJob(ctx, span, jobArchival, res, start)
	return res, nil
}

// archiveOne writes only the lifecycle columns and only if the record is
// still active, so a concurrent edit or soft delete is never overwritten.
func (m *Manager) archiveOne(ctx context.Context, inc *models.Incident, now time.Time) error {
	if err := inc.Archive(models.ArchiveReasonAutomatic, now); err != nil {
		return err
	}
	if err := inc.ScheduleDeletion(now); err != nil {
		return err
	}
	return m.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := m.incidents.SaveTransition(ctx, inc, models.StateActive); err != nil {
			return fmt.Errorf("save archived incident: %w", err)
		}
		return m.audit.LogDataAccess(ctx, &inc.ID, SystemUserID, audit.ArchiveMetadata{
			Reason:              models.ArchiveReasonAutomatic,
			ScheduledDeletionAt: *inc.ScheduledDeletionAt,
			Automatic:           true,
		})
	})
}

// RunRetentionPurge permanently deletes incidents whose retention deadline
// has passed. Each deletion is preceded by a purge audit entry in the same
// transaction, so the trail outlives the record.
func (m *Manager) RunRetentionPurge(ctx context.Context) (*JobResult, error) {
	ctx, span := m.tracer.Start(ctx, "lifecycle.retention_purge")
	defer span.End()
	start := time.Now()
	now := m.now().UTC()

	expired, err := m.incidents.ListExpired(ctx, now, m.batchSize)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list expired incidents: %w", err)
	}

	res := &JobResult{Processed: len(expired)}
	for _, inc := range expired {
		if err := m.purgeOne(ctx, inc); err != nil {
			res.Failed++
			m.logger.ErrorContext(ctx, "retention purge failed for incident",
				"incident_id", inc.ID.String(),
				"error", err,
			)
			continue
		}
		res.Succeeded++
	}

	m.finishJob(ctx, span, jobPurge, res, start)
	return res, nil
}

func (m *Manager) purgeOne(ctx context.Context, inc *models.Incident) error {
	deadline := *inc.ScheduledDeletionAt
	level := inc.Level
	if err := inc.MarkPurged(); err != nil {
		return err
	}
	return m.tx.RunInTx(ctx, func(ctx context.Context) error {
		err := m.audit.LogDataAccess(ctx, &inc.ID, SystemUserID, audit.PurgeMetadata{
			Level:               string(level),
			Reason:              PurgeReasonRetentionExpired,
			ScheduledDeletionAt: deadline,
		})
		if err != nil {
			return err
		}
		if err := m.incidents.Delete(ctx, inc.ID); err != nil {
			return fmt.Errorf("delete incident: %w", err)
		}
		return nil
	})
}

func (m *Manager) finishJob(ctx context.Context, span trace.Span, job string, res *JobResult, start time.Time) {
	span.SetAttributes(
		attribute.Int("processed", res.Processed),
		attribute.Int("succeeded", res.Succeeded),
		attribute.Int("failed", res.Failed),
	)
	m.metrics.AddJobRecords(job, outcomeSucceeded, res.Succeeded)
	m.metrics.AddJobRecords(job, outcomeFailed, res.Failed)
	m.metrics.ObserveJob(job, time.Since(start))
	if res.Processed > 0 {
		m.logger.InfoContext(ctx, "lifecycle job finished",
			"job", job,
			"processed", res.Processed,
			"succeeded", res.Succeeded,
			"failed", res.Failed,
		)
	}
}

// SoftDelete hides an incident without removing its bytes. Only roles with
// the delete permission (owners) may call it.
func (m *Manager) SoftDelete(ctx context.Context, userID id.UserID, incidentID id.IncidentID, reason string) (*models.Incident, error) {
	reason = validation.SanitizeText(reason)
	if reason == "" {
		return nil, dErrors.Validation("reason", "a deletion reason is required")
	}
	if len(reason) > maxSoftDeleteReasonSz {
		return nil, dErrors.Validation("reason", "deletion reason is too long")
	}

	inc, err := m.incidents.FindByID(ctx, incidentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "incident not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load incident")
	}
	if _, err := m.access.ResolveTeamAccess(ctx, userID, inc.TeamID); err != nil {
		return nil, err
	}
	if _, err := m.access.CheckPermission(ctx, userID, mmodels.ActionDelete); err != nil {
		return nil, err
	}

	now := m.now().UTC()
	from := inc.State
	if err := inc.SoftDelete(reason, now); err != nil {
		return nil, err
	}
	inc.UpdatedBy, inc.UpdatedAt = userID, now

	err = m.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := m.incidents.SaveTransition(ctx, inc, from); err != nil {
			if errors.Is(err, sentinel.ErrInvalidState) {
				return dErrors.New(dErrors.CodeConflict, "incident changed state while being deleted").
					WithDetail("from", string(from))
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save incident")
		}
		return m.audit.LogDataAccess(ctx, &inc.ID, userID, audit.DeleteMetadata{
			Reason:              reason,
			ScheduledDeletionAt: *inc.ScheduledDeletionAt,
		})
	})
	if err != nil {
		return nil, err
	}
	m.logger.InfoContext(ctx, "incident soft deleted",
		"incident_id", inc.ID.String(),
		"user_id", userID.String(),
	)
	return inc, nil
}

// GetRetentionReport lists incidents in scope whose deletion falls within
// daysUntilExpiry days, and counts those already past their deadline.
func (m *Manager) GetRetentionReport(ctx context.Context, userID id.UserID, scope models.Scope, daysUntilExpiry int) (*RetentionReport, error) {
	if daysUntilExpiry < 0 || daysUntilExpiry > MaxExpiryHorizonDays {
		return nil, dErrors.New(dErrors.CodeBadRequest, "days_until_expiry out of range").WithDetail("field", "days_until_expiry")
	}
	if daysUntilExpiry == 0 {
		daysUntilExpiry = DefaultExpiryHorizon
	}
	if _, err := m.access.ResolveScopeAccess(ctx, userID, scope); err != nil {
		return nil, err
	}
	if _, err := m.access.CheckPermission(ctx, userID, mmodels.ActionView); err != nil {
		return nil, err
	}

	now := m.now().UTC()
	scheduled, err := m.incidents.ListScheduledForDeletion(ctx, scope, now.AddDate(0, 0, daysUntilExpiry))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load retention data")
	}

	report := &RetentionReport{
		Scope:             scope.String(),
		DaysUntilExpiry:   daysUntilExpiry,
		ExpiringIncidents: []*ExpiringIncident{},
	}
	for _, inc := range scheduled {
		if inc.IsExpired(now) {
			report.ExpiredCount++
			continue
		}
		report.ExpiringCount++
		report.ExpiringIncidents = append(report.ExpiringIncidents, &ExpiringIncident{
			ID:                  inc.ID,
			Date:                inc.Date,
			Level:               inc.Level,
			State:               inc.State,
			ScheduledDeletionAt: *inc.ScheduledDeletionAt,
			DaysRemaining:       daysBetween(now, *inc.ScheduledDeletionAt),
		})
	}
	return report, nil
}

func daysBetween(from, to time.Time) int {
	d := to.Sub(from)
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) > 0 {
		days++
	}
	return days
}

func (r *JobResult) String() string {
	return fmt.Sprintf("processed=%d succeeded=%d failed=%d", r.Processed, r.Succeeded, r.Failed)
}
