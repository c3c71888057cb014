package compliance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"safereport/internal/audit"
	"safereport/internal/incident/models"
	mmodels "safereport/internal/membership/models"
	id "safereport/pkg/domain"
	dErrors "safereport/pkg/domain-errors"
)

// DefaultAuditPageSize is how many audit entries one export reads per
// round trip. The export keeps reading until the subject's trail is
// exhausted.
const DefaultAuditPageSize = 1000

type IncidentStore interface {
	ListByCreator(ctx context.Context, userID id.UserID) ([]*models.Incident, error)
	ListByScope(ctx context.Context, scope models.Scope) ([]*models.Incident, error)
}

type AuditReader interface {
	List(ctx context.Context, filter audit.Filter, limit int) ([]*audit.Entry, error)
}

type Access interface {
	ResolveAccess(ctx context.Context, userID id.UserID, residentID id.ResidentID) (*mmodels.Resident, error)
	ResolveUserAccess(ctx context.Context, userID, subjectID id.UserID) (*mmodels.Membership, error)
	RequireRole(ctx context.Context, userID id.UserID, role mmodels.Role, operation string) (*mmodels.Membership, error)
}

type AuditLogger interface {
	LogDataAccess(ctx context.Context, incidentID *id.IncidentID, userID id.UserID, metadata audit.Metadata) error
}

type Exporter struct {
	incidents  IncidentStore
	auditLog   AuditReader
	access     Access
	audit      AuditLogger
	pseudonyms *Pseudonymizer
	pageSize   int
	logger     *slog.Logger
	now        func() time.Time
}

type Option func(*Exporter)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Exporter) {
		e.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Exporter) {
		e.now = now
	}
}

func WithAuditPageSize(n int) Option {
	return func(e *Exporter) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

func New(incidents IncidentStore, auditLog AuditReader, access Access, auditLogger AuditLogger, pseudonymKey []byte, opts ...Option) (*Exporter, error) {
	switch {
	case incidents == nil:
		return nil, errors.New("incident store is required")
	case auditLog == nil:
		return nil, errors.New("audit reader is required")
	case access == nil:
		return nil, errors.New("access engine is required")
	case auditLogger == nil:
		return nil, errors.New("audit logger is required")
	case len(pseudonymKey) == 0:
		return nil, errors.New("pseudonym key is required")
	}
	e := &Exporter{
		incidents:  incidents,
		auditLog:   auditLog,
		access:     access,
		audit:      auditLogger,
		pseudonyms: NewPseudonymizer(pseudonymKey),
		pageSize:   DefaultAuditPageSize,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// ExportSubjectData collects every incident and audit entry tied to the
// subject and serializes them. Users may export their own data; anything
// else is reserved for owners of the subject's team.
func (e *Exporter) ExportSubjectData(ctx context.Context, userID id.UserID, subject Subject, format Format) (*Result, error) {
	pkg := &Package{GeneratedAt: e.now().UTC()}

	var (
		incidents []*models.Incident
		filter    audit.Filter
		err       error
	)
	switch subject.Kind {
	case SubjectUser:
		subjectID := id.UserID(subject.ID)
		if _, err := e.access.ResolveUserAccess(ctx, userID, subjectID); err != nil {
			return nil, err
		}
		if subjectID != userID {
			if _, err := e.access.RequireRole(ctx, userID, mmodels.RoleOwner, "export_subject_data"); err != nil {
				return nil, err
			}
		}
		pkg.Subject = SubjectInfo{Kind: SubjectUser, Reference: e.pseudonyms.User(subject.ID)}
		incidents, err = e.incidents.ListByCreator(ctx, subjectID)
		filter.UserID = &subjectID
	case SubjectResident:
		resident, rerr := e.access.ResolveAccess(ctx, userID, id.ResidentID(subject.ID))
		if rerr != nil {
			return nil, rerr
		}
		if _, err := e.access.RequireRole(ctx, userID, mmodels.RoleOwner, "export_subject_data"); err != nil {
			return nil, err
		}
		pkg.Subject = SubjectInfo{Kind: SubjectResident, Reference: resident.ID.String(), Name: resident.Name}
		incidents, err = e.incidents.ListByScope(ctx, models.ResidentScope(resident.ID))
	default:
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown subject kind").WithDetail("field", "subject")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to collect incidents")
	}

	pkg.Incidents = make([]IncidentRecord, 0, len(incidents))
	for _, inc := range incidents {
		pkg.Incidents = append(pkg.Incidents, e.incidentRecord(inc))
	}

	if subject.Kind == SubjectResident {
		filter.IncidentIDs = make([]id.IncidentID, 0, len(incidents))
		for _, inc := range incidents {
			filter.IncidentIDs = append(filter.IncidentIDs, inc.ID)
		}
	}
	pkg.AuditEntries = []AuditRecord{}
	// An empty id list would match every entry.
	if subject.Kind == SubjectUser || len(filter.IncidentIDs) > 0 {
		if err := e.collectAudit(ctx, filter, pkg); err != nil {
			return nil, err
		}
	}

	data, err := encode(pkg, format)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to serialize export")
	}

	count := pkg.RecordCount()
	err = e.audit.LogDataAccess(ctx, nil, userID, audit.ExportMetadata{
		SubjectKind: string(subject.Kind),
		Format:      string(format),
		RecordCount: count,
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "subject data exported",
		"user_id", userID.String(),
		"subject_kind", string(subject.Kind),
		"format", string(format),
		"record_count", count,
	)
	return &Result{
		Data:        data,
		Filename:    Filename(subject.Kind, format, pkg.GeneratedAt),
		ContentType: format.ContentType(),
		RecordCount: count,
	}, nil
}

// collectAudit pages through the subject's trail newest first until a short
// page signals the end.
func (e *Exporter) collectAudit(ctx context.Context, filter audit.Filter, pkg *Package) error {
	pages := 0
	for {
		entries, err := e.auditLog.List(ctx, filter, e.pageSize)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to collect audit entries")
		}
		pages++
		for _, entry := range entries {
			rec, err := e.auditRecord(entry)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to project audit entry")
			}
			pkg.AuditEntries = append(pkg.AuditEntries, rec)
		}
		if len(entries) < e.pageSize {
			break
		}
		filter.After = audit.PositionOf(entries[len(entries)-1])
	}
	if pages > 1 {
		e.logger.DebugContext(ctx, "audit entries collected in pages",
			"pages", pages,
			"entries", len(pkg.AuditEntries),
		)
	}
	return nil
}

// Filename is subject-export-<kind>-<date>.<ext>.
func Filename(kind SubjectKind, format Format, at time.Time) string {
	return fmt.Sprintf("subject-export-%s-%s.%s", kind, at.UTC().Format("2006-01-02"), format)
}

func (e *Exporter) incidentRecord(inc *models.Incident) IncidentRecord {
	rec := IncidentRecord{
		Reference:            inc.ID.String(),
		Date:                 inc.Date,
		Time:                 inc.Time,
		IncidentTypes:        inc.IncidentTypes,
		Level:                string(inc.Level),
		Description:          inc.Description,
		InjuryDescription:    inc.InjuryDescription,
		TreatmentDescription: inc.TreatmentDescription,
		ActionsTaken:         inc.ActionsTaken,
		Witnesses:            inc.Witnesses,
		ContributingFactors:  inc.ContributingFactors,
		HomeName:             inc.HomeName,
		Unit:                 inc.Unit,
		HealthIdentifier:     inc.HealthIdentifier,
		State:                string(inc.State),
		ArchivedAt:           inc.ArchivedAt,
		ScheduledDeletionAt:  inc.ScheduledDeletionAt,
		CreatedBy:            e.pseudonyms.User(uuid.UUID(inc.CreatedBy)),
		CreatedAt:            inc.CreatedAt,
		UpdatedBy:            e.pseudonyms.User(uuid.UUID(inc.UpdatedBy)),
	}
	if !inc.UpdatedAt.IsZero() {
		updated := inc.UpdatedAt
		rec.UpdatedAt = &updated
	}
	return rec
}

// auditRecord keeps metadata except identifier keys.
func (e *Exporter) auditRecord(entry *audit.Entry) (AuditRecord, error) {
	rec := AuditRecord{
		Actor:     e.pseudonyms.User(uuid.UUID(entry.UserID)),
		Action:    string(entry.Action),
		Timestamp: entry.Timestamp,
	}
	if entry.IncidentID != nil {
		rec.IncidentReference = entry.IncidentID.String()
	}
	if entry.Metadata == nil {
		return rec, nil
	}
	raw, err := audit.EncodeMetadata(entry.Metadata)
	if err != nil {
		return rec, err
	}
	var details map[string]any
	if err := json.Unmarshal(raw, &details); err != nil {
		return rec, err
	}
	for k := range details {
		if k == "id" || strings.HasSuffix(k, "_id") {
			delete(details, k)
		}
	}
	if len(details) > 0 {
		rec.Details = details
	}
	return rec, nil
}
