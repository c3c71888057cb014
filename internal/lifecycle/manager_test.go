package lifecycle_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"safereport/internal/audit"
	auditmemory "safereport/internal/audit/store/memory"
	"safereport/internal/incident/models"
	"safereport/internal/incident/store"
	"safereport/internal/lifecycle"
	"safereport/internal/lifecycle/metrics"
	mservice "safereport/internal/membership/service"
	mstore "safereport/internal/membership/store"
	dErrors "safereport/pkg/domain-errors"
	txcontext "safereport/pkg/platform/tx"
	fixture "safereport/pkg/testutil"
)

type ManagerSuite struct {
	suite.Suite
	ctx       context.Context
	clock     time.Time
	tenant    *fixture.Tenant
	outsider  *fixture.Tenant
	incidents *store.InMemoryIncidentStore
	auditLog  *auditmemory.InMemoryStore
	metrics   *metrics.Metrics
	manager   *lifecycle.Manager
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return s.clock }

	memberships := mstore.NewInMemoryMembershipStore()
	residents := mstore.NewInMemoryResidentStore()
	s.tenant = fixture.NewTenant(s.T(), memberships, residents)
	s.outsider = fixture.NewTenant(s.T(), memberships, residents)

	access, err := mservice.New(memberships, residents)
	s.Require().NoError(err)
	s.auditLog = auditmemory.NewInMemoryStore()
	logger, err := audit.NewLogger(s.auditLog, audit.WithClock(now))
	s.Require().NoError(err)

	s.incidents = store.NewInMemoryIncidentStore()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.manager, err = lifecycle.NewManager(s.incidents, access, logger, txcontext.NewLockRunner(),
		lifecycle.WithClock(now),
		lifecycle.WithMetrics(s.metrics),
	)
	s.Require().NoError(err)
}

func (s *ManagerSuite) seed(createdAt time.Time) *models.Incident {
	inc := s.tenant.ActiveIncident(createdAt.Format("2006-01-02"), createdAt)
	s.Require().NoError(s.incidents.Create(s.ctx, inc))
	return inc
}

func (s *ManagerSuite) TestArchivalFreezesOnlyRecordsOlderThanAYear() {
	old := s.seed(s.clock.AddDate(-1, 0, -1))
	recent := s.seed(s.clock.AddDate(0, -6, 0))

	res, err := s.manager.RunArchival(s.ctx)
	s.Require().NoError(err)
	s.Equal(lifecycle.JobResult{Processed: 1, Succeeded: 1}, *res)

	got, err := s.incidents.FindByID(s.ctx, old.ID)
	s.Require().NoError(err)
	s.Equal(models.StateScheduledDeletion, got.State)
	s.True(got.IsArchived)
	s.True(got.IsReadOnly)
	s.Equal(models.ArchiveReasonAutomatic, got.ArchiveReason)
	s.Require().NotNil(got.ScheduledDeletionAt)
	s.Equal(s.clock.AddDate(models.RetentionPeriodYears, 0, 0), *got.ScheduledDeletionAt)

	untouched, err := s.incidents.FindByID(s.ctx, recent.ID)
	s.Require().NoError(err)
	s.Equal(models.StateActive, untouched.State)

	entries := s.auditLog.All()
	s.Require().Len(entries, 1)
	s.Equal(audit.ActionArchive, entries[0].Action)
	s.Equal(lifecycle.SystemUserID, entries[0].UserID)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.JobRecords.WithLabelValues("archival", "succeeded")))
}

func (s *ManagerSuite) TestArchivalIsIdempotent() {
	s.seed(s.clock.AddDate(-2, 0, 0))

	_, err := s.manager.RunArchival(s.ctx)
	s.Require().NoError(err)
	res, err := s.manager.RunArchival(s.ctx)
	s.Require().NoError(err)
	s.Zero(res.Processed)
	s.Equal(1, s.auditLog.CountByAction(audit.ActionArchive))
}

func (s *ManagerSuite) TestArchivalSkipsRecordWhoseAuditFails() {
	s.seed(s.clock.AddDate(-2, 0, 0))
	s.auditLog.FailAppends(errors.New("disk full"))

	res, err := s.manager.RunArchival(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, res.Processed)
	s.Equal(1, res.Failed)
	s.Zero(res.Succeeded)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.JobRecords.WithLabelValues("archival", "failed")))
}

func (s *ManagerSuite) TestPurgeDeletesExpiredRecordAfterAuditing() {
	inc := s.seed(s.clock.AddDate(-8, 0, 0))
	s.Require().NoError(inc.Archive(models.ArchiveReasonAutomatic, s.clock.AddDate(-8, 0, 0)))
	s.Require().NoError(inc.ScheduleDeletion(s.clock.AddDate(-8, 0, 0)))
	deadline := s.clock.Add(-time.Millisecond)
	inc.ScheduledDeletionAt = &deadline
	s.Require().NoError(s.incidents.SaveTransition(s.ctx, inc, models.StateActive))

	res, err := s.manager.RunRetentionPurge(s.ctx)
	s.Require().NoError(err)
	s.Equal(lifecycle.JobResult{Processed: 1, Succeeded: 1}, *res)

	_, err = s.incidents.FindByID(s.ctx, inc.ID)
	s.Error(err)

	s.Equal(1, s.auditLog.CountByAction(audit.ActionPurge))
	entry := s.auditLog.All()[0]
	meta, ok := entry.Metadata.(audit.PurgeMetadata)
	s.Require().True(ok)
	s.Equal(lifecycle.PurgeReasonRetentionExpired, meta.Reason)
	s.Equal(string(models.LevelNoHarm), meta.Level)
	s.True(meta.ScheduledDeletionAt.Equal(deadline))

	res, err = s.manager.RunRetentionPurge(s.ctx)
	s.Require().NoError(err)
	s.Zero(res.Processed)
	s.Equal(1, s.auditLog.CountByAction(audit.ActionPurge))
}

func (s *ManagerSuite) TestPurgeLeavesRecordsNotYetDue() {
	inc := s.seed(s.clock.AddDate(-2, 0, 0))
	_, err := s.manager.RunArchival(s.ctx)
	s.Require().NoError(err)

	res, err := s.manager.RunRetentionPurge(s.ctx)
	s.Require().NoError(err)
	s.Zero(res.Processed)
	_, err = s.incidents.FindByID(s.ctx, inc.ID)
	s.NoError(err)
}

func (s *ManagerSuite) TestSoftDeleteRequiresOwner() {
	inc := s.seed(s.clock.AddDate(0, -1, 0))

	_, err := s.manager.SoftDelete(s.ctx, s.tenant.Admin, inc.ID, "duplicate report")
	s.Equal(dErrors.ReasonPermissionDenied, dErrors.Reason(err))

	_, err = s.manager.SoftDelete(s.ctx, s.outsider.Owner, inc.ID, "duplicate report")
	s.Equal(dErrors.ReasonAccessDenied, dErrors.Reason(err))

	deleted, err := s.manager.SoftDelete(s.ctx, s.tenant.Owner, inc.ID, "  duplicate <b>report</b> ")
	s.Require().NoError(err)
	s.Equal(models.StateSoftDeleted, deleted.State)
	s.Equal(models.DeletedReasonPrefix+"duplicate report", deleted.ArchiveReason)
	s.Equal(s.tenant.Owner, deleted.UpdatedBy)

	entries := s.auditLog.All()
	s.Require().Len(entries, 1)
	s.Equal(audit.ActionDelete, entries[0].Action)
}

func (s *ManagerSuite) TestSoftDeleteAfterArchivalKeepsEarlierDeadline() {
	inc := s.seed(s.clock.AddDate(-2, 0, 0))
	_, err := s.manager.RunArchival(s.ctx)
	s.Require().NoError(err)
	archived, err := s.incidents.FindByID(s.ctx, inc.ID)
	s.Require().NoError(err)
	s.Require().Equal(models.StateScheduledDeletion, archived.State)

	s.clock = s.clock.AddDate(1, 0, 0)
	deleted, err := s.manager.SoftDelete(s.ctx, s.tenant.Owner, inc.ID, "wrong resident")
	s.Require().NoError(err)
	s.Equal(models.StateSoftDeleted, deleted.State)
	s.Equal(*archived.ScheduledDeletionAt, *deleted.ScheduledDeletionAt)
	s.Equal(*archived.ArchivedAt, *deleted.ArchivedAt)

	_, err = s.manager.SoftDelete(s.ctx, s.tenant.Owner, inc.ID, "again")
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	s.Equal(1, s.auditLog.CountByAction(audit.ActionDelete))

	s.clock = *deleted.ScheduledDeletionAt
	res, err := s.manager.RunRetentionPurge(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, res.Succeeded)
}

func (s *ManagerSuite) TestSoftDeleteRejectsBlankReasonAndMissingRecord() {
	inc := s.seed(s.clock.AddDate(0, -1, 0))

	_, err := s.manager.SoftDelete(s.ctx, s.tenant.Owner, inc.ID, "   ")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	other := s.tenant.ActiveIncident("2025-01-01", s.clock)
	_, err = s.manager.SoftDelete(s.ctx, s.tenant.Owner, other.ID, "gone")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.Empty(s.auditLog.All())
}

func (s *ManagerSuite) TestRetentionReportSplitsExpiredAndExpiring() {
	expiring := s.seed(s.clock.AddDate(-1, 0, 0))
	s.Require().NoError(expiring.Archive(models.ArchiveReasonAutomatic, s.clock))
	s.Require().NoError(expiring.ScheduleDeletion(s.clock))
	soon := s.clock.Add(36 * time.Hour)
	expiring.ScheduledDeletionAt = &soon
	s.Require().NoError(s.incidents.SaveTransition(s.ctx, expiring, models.StateActive))

	expired := s.seed(s.clock.AddDate(-1, 0, 0))
	s.Require().NoError(expired.Archive(models.ArchiveReasonAutomatic, s.clock))
	s.Require().NoError(expired.ScheduleDeletion(s.clock))
	past := s.clock.Add(-time.Hour)
	expired.ScheduledDeletionAt = &past
	s.Require().NoError(s.incidents.SaveTransition(s.ctx, expired, models.StateActive))

	s.seed(s.clock.AddDate(-2, 0, 0))
	_, err := s.manager.RunArchival(s.ctx)
	s.Require().NoError(err)

	report, err := s.manager.GetRetentionReport(s.ctx, s.tenant.Member, models.TeamScope(s.tenant.TeamID), 0)
	s.Require().NoError(err)
	s.Equal(lifecycle.DefaultExpiryHorizon, report.DaysUntilExpiry)
	s.Equal(1, report.ExpiredCount)
	s.Equal(1, report.ExpiringCount)
	s.Require().Len(report.ExpiringIncidents, 1)
	s.Equal(expiring.ID, report.ExpiringIncidents[0].ID)
	s.Equal(2, report.ExpiringIncidents[0].DaysRemaining)
}

func (s *ManagerSuite) TestRetentionReportGuards() {
	_, err := s.manager.GetRetentionReport(s.ctx, s.tenant.Member, models.TeamScope(s.tenant.TeamID), -1)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	_, err = s.manager.GetRetentionReport(s.ctx, s.outsider.Owner, models.TeamScope(s.tenant.TeamID), 30)
	s.Equal(dErrors.ReasonAccessDenied, dErrors.Reason(err))
}

func (s *ManagerSuite) TestSchedulerRunOnceArchivesThenPurges() {
	s.seed(s.clock.AddDate(-2, 0, 0))
	sched, err := lifecycle.NewScheduler(s.manager, time.Hour, nil)
	s.Require().NoError(err)

	sched.RunOnce(s.ctx)
	s.Equal(1, s.auditLog.CountByAction(audit.ActionArchive))
	s.Zero(s.auditLog.CountByAction(audit.ActionPurge))

	s.clock = s.clock.AddDate(models.RetentionPeriodYears, 0, 1)
	sched.RunOnce(s.ctx)
	s.Equal(1, s.auditLog.CountByAction(audit.ActionPurge))
}

func (s *ManagerSuite) TestSchedulerStopsOnCancel() {
	sched, err := lifecycle.NewScheduler(s.manager, time.Hour, nil)
	s.Require().NoError(err)
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	s.ErrorIs(sched.Start(ctx), context.Canceled)
}

func (s *ManagerSuite) TestSchedulerPassArchivesThenPurgesExpired() {
	old := s.seed(s.clock.AddDate(-1, 0, -1))
	expired := s.seed(s.clock.AddDate(-8, 0, 0))
	past := s.clock.Add(-time.Millisecond)
	expired.State = models.StateScheduledDeletion
	expired.IsArchived, expired.IsReadOnly = true, true
	expired.ScheduledDeletionAt = &past
	s.Require().NoError(s.incidents.SaveTransition(s.ctx, expired, models.StateActive))

	scheduler, err := lifecycle.NewScheduler(s.manager, time.Hour, nil)
	s.Require().NoError(err)
	scheduler.RunOnce(s.ctx)

	got, err := s.incidents.FindByID(s.ctx, old.ID)
	s.Require().NoError(err)
	s.Equal(models.StateScheduledDeletion, got.State, "archived in the same pass but not purged")
	_, err = s.incidents.FindByID(s.ctx, expired.ID)
	s.Error(err)
}

func (s *ManagerSuite) TestSchedulerStopsWithContext() {
	scheduler, err := lifecycle.NewScheduler(s.manager, time.Hour, nil)
	s.Require().NoError(err)
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan error, 1)
	go func() { done <- scheduler.Start(ctx) }()
	cancel()
	select {
	case err := <-done:
		s.ErrorIs(err, context.Canceled)
	case <-time.After(2 * time.Second):
		s.Fail("scheduler did not stop")
	}
}

func TestNewSchedulerRequiresManager(t *testing.T) {
	_, err := lifecycle.NewScheduler(nil, time.Minute, nil)
	if err == nil {
		t.Fatal("expected error")
	}
}
