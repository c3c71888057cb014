package backup

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
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
	"safereport/internal/lifecycle/metrics"
	mmodels "safereport/internal/membership/models"
	id "safereport/pkg/domain"
	dErrors "safereport/pkg/domain-errors"
	"safereport/pkg/platform/sentinel"
	txcontext "safereport/pkg/platform/tx"
)

type BackupStore interface {
	Create(ctx context.Context, b *Backup) error
	FindByID(ctx context.Context, backupID id.BackupID) (*Backup, error)
	ListByScope(ctx context.Context, scope models.Scope) ([]*Backup, error)
}

// BlobStore holds snapshot bytes under a storage key.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

type IncidentStore interface {
	ListByScope(ctx context.Context, scope models.Scope) ([]*models.Incident, error)
	CreateIfAbsent(ctx context.Context, incident *models.Incident) (bool, error)
}

type Access interface {
	ResolveScopeAccess(ctx context.Context, userID id.UserID, scope models.Scope) (*mmodels.Membership, error)
	RequireRole(ctx context.Context, userID id.UserID, role mmodels.Role, operation string) (*mmodels.Membership, error)
}

type AuditLogger interface {
	LogDataAccess(ctx context.Context, incidentID *id.IncidentID, userID id.UserID, metadata audit.Metadata) error
}

type Service struct {
	backups   BackupStore
	blobs     BlobStore
	incidents IncidentStore
	access    Access
	audit     AuditLogger
	tx        txcontext.Runner
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	now       func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

type Deps struct {
	Backups   BackupStore
	Blobs     BlobStore
	Incidents IncidentStore
	Access    Access
	Audit     AuditLogger
	Tx        txcontext.Runner
}

func New(deps Deps, opts ...Option) (*Service, error) {
	switch {
	case deps.Backups == nil:
		return nil, errors.New("backup store is required")
	case deps.Blobs == nil:
		return nil, errors.New("blob store is required")
	case deps.Incidents == nil:
		return nil, errors.New("incident store is required")
	case deps.Access == nil:
		return nil, errors.New("access engine is required")
	case deps.Audit == nil:
		return nil, errors.New("audit logger is required")
	case deps.Tx == nil:
		return nil, errors.New("transaction runner is required")
	}
	s := &Service{
		backups:   deps.Backups,
		blobs:     deps.Blobs,
		incidents: deps.Incidents,
		access:    deps.Access,
		audit:     deps.Audit,
		tx:        deps.Tx,
		logger:    slog.Default(),
		tracer:    otel.Tracer("safereport/backup"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) authorize(ctx context.Context, userID id.UserID, scope models.Scope, operation string) (*mmodels.Membership, error) {
	if scope.Kind != models.ScopeTeam && scope.Kind != models.ScopeOrganization {
		return nil, dErrors.New(dErrors.CodeBadRequest, "backups cover a team or an organization").WithDetail("field", "scope")
	}
	if _, err := s.access.RequireRole(ctx, userID, mmodels.RoleOwner, operation); err != nil {
		return nil, err
	}
	return s.access.ResolveScopeAccess(ctx, userID, scope)
}

// CreateBackup snapshots every incident in scope. Owners only.
func (s *Service) CreateBackup(ctx context.Context, userID id.UserID, scope models.Scope) (*CreateResult, error) {
	ctx, span := s.tracer.Start(ctx, "backup.create", trace.WithAttributes(attribute.String("scope", scope.String())))
	defer span.End()

	m, err := s.authorize(ctx, userID, scope, "create_backup")
	if err != nil {
		return nil, err
	}

	incidents, err := s.incidents.ListByScope(ctx, scope)
	if err != nil {
		return nil, s.fail(ctx, "create", dErrors.Wrap(err, dErrors.CodeInternal, "failed to read incidents for backup"))
	}
	now := s.now().UTC()
	data, err := json.Marshal(Snapshot{
		Version:   SnapshotVersion,
		Scope:     scope.String(),
		CreatedAt: now,
		Incidents: incidents,
	})
	if err != nil {
		return nil, s.fail(ctx, "create", dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode snapshot"))
	}

	backupID := id.BackupID(uuid.New())
	b := &Backup{
		ID:             backupID,
		BackupDate:     now,
		IncidentCount:  len(incidents),
		FileSize:       int64(len(data)),
		StorageKey:     storageKey(m.OrganizationID, backupID),
		Status:         StatusCompleted,
		Checksum:       checksum(data),
		ScopeKind:      scope.Kind,
		OrganizationID: m.OrganizationID,
		CreatedBy:      userID,
	}
	if scope.Kind == models.ScopeTeam {
		b.TeamID = id.TeamID(scope.ID)
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.blobs.Put(ctx, b.StorageKey, data); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store backup blob")
		}
		if err := s.backups.Create(ctx, b); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record backup")
		}
		return s.audit.LogDataAccess(ctx, nil, userID, audit.BackupMetadata{
			BackupID:      backupID.String(),
			Scope:         scope.String(),
			IncidentCount: b.IncidentCount,
			Checksum:      b.Checksum,
		})
	})
	if err != nil {
		return nil, s.fail(ctx, "create", err)
	}

	s.metrics.IncBackupOp("create", "succeeded")
	s.logger.InfoContext(ctx, "backup created",
		"backup_id", backupID.String(),
		"scope", scope.String(),
		"incident_count", b.IncidentCount,
		"size_bytes", b.FileSize,
	)
	return &CreateResult{BackupID: backupID, IncidentCount: b.IncidentCount, Checksum: b.Checksum}, nil
}

// RestoreFromBackup re-inserts incidents from a verified snapshot. Records
// whose id already exists are left alone, so a second restore inserts
// nothing. A checksum mismatch aborts before any write.
func (s *Service) RestoreFromBackup(ctx context.Context, userID id.UserID, backupID id.BackupID, confirm bool) (*RestoreResult, error) {
	ctx, span := s.tracer.Start(ctx, "backup.restore", trace.WithAttributes(attribute.String("backup_id", backupID.String())))
	defer span.End()

	if !confirm {
		return nil, dErrors.New(dErrors.CodeBadRequest, "restore must be explicitly confirmed").WithDetail("field", "confirm")
	}
	b, err := s.backups.FindByID(ctx, backupID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "backup not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load backup")
	}
	if _, err := s.authorize(ctx, userID, b.Scope(), "restore_backup"); err != nil {
		return nil, err
	}
	if b.Status != StatusCompleted {
		return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("backup is %s", b.Status)).WithDetail("status", string(b.Status))
	}

	data, err := s.blobs.Get(ctx, b.StorageKey)
	if err != nil {
		return nil, s.fail(ctx, "restore", dErrors.Wrap(err, dErrors.CodeInternal, "failed to read backup blob"))
	}
	if got := checksum(data); subtle.ConstantTimeCompare([]byte(got), []byte(b.Checksum)) != 1 {
		s.logger.ErrorContext(ctx, "backup checksum mismatch",
			"backup_id", backupID.String(),
			"expected", b.Checksum,
			"actual", got,
		)
		return nil, s.fail(ctx, "restore", dErrors.Integrity("backup checksum does not match").WithDetail("backup_id", backupID.String()))
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, s.fail(ctx, "restore", dErrors.Wrap(err, dErrors.CodeIntegrity, "backup blob is not a valid snapshot"))
	}
	if snap.Version != SnapshotVersion {
		return nil, s.fail(ctx, "restore", dErrors.Integrity(fmt.Sprintf("unsupported snapshot version %d", snap.Version)))
	}

	res := &RestoreResult{BackupID: backupID, TotalInBackup: len(snap.Incidents)}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		restored := 0
		for _, inc := range snap.Incidents {
			created, err := s.incidents.CreateIfAbsent(ctx, inc)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to restore incident")
			}
			if created {
				restored++
			}
		}
		res.RestoredCount = restored
		return s.audit.LogDataAccess(ctx, nil, userID, audit.RestoreMetadata{
			BackupID:      backupID.String(),
			RestoredCount: restored,
			TotalInBackup: res.TotalInBackup,
		})
	})
	if err != nil {
		return nil, s.fail(ctx, "restore", err)
	}

	s.metrics.IncBackupOp("restore", "succeeded")
	s.metrics.AddRestored(res.RestoredCount)
	s.logger.InfoContext(ctx, "backup restored",
		"backup_id", backupID.String(),
		"restored", res.RestoredCount,
		"total", res.TotalInBackup,
	)
	return res, nil
}

// ListBackups returns backups taken over scope, newest first.
func (s *Service) ListBackups(ctx context.Context, userID id.UserID, scope models.Scope) ([]*Backup, error) {
	if _, err := s.authorize(ctx, userID, scope, "list_backups"); err != nil {
		return nil, err
	}
	out, err := s.backups.ListByScope(ctx, scope)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list backups")
	}
	if out == nil {
		out = []*Backup{}
	}
	return out, nil
}

func (s *Service) fail(ctx context.Context, operation string, err error) error {
	s.metrics.IncBackupOp(operation, "failed")
	trace.SpanFromContext(ctx).RecordError(err)
	return err
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
