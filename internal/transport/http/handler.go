package httptransport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"safereport/internal/audit"
	"safereport/internal/compliance"
	"safereport/internal/identity"
	"safereport/internal/incident/models"
	"safereport/internal/incident/query"
	"safereport/internal/lifecycle"
	"safereport/internal/lifecycle/backup"
	id "safereport/pkg/domain"
	dErrors "safereport/pkg/domain-errors"
	"safereport/pkg/platform/httputil"
	"safereport/pkg/requestcontext"
)

type IncidentService interface {
	Create(ctx context.Context, userID id.UserID, payload models.Payload) (*models.Incident, error)
	GetIncidentsPage(ctx context.Context, userID id.UserID, scope models.Scope, rawCursor string, limit int) (*query.Page, error)
	GetIncident(ctx context.Context, userID id.UserID, incidentID id.IncidentID) (*models.Incident, error)
	Update(ctx context.Context, userID id.UserID, incidentID id.IncidentID, fields models.UpdateFields) (*models.Incident, error)
	MarkRead(ctx context.Context, userID id.UserID, incidentID id.IncidentID) error
	RecordPrint(ctx context.Context, userID id.UserID, incidentID id.IncidentID) error
}

type LifecycleService interface {
	SoftDelete(ctx context.Context, userID id.UserID, incidentID id.IncidentID, reason string) (*models.Incident, error)
	GetRetentionReport(ctx context.Context, userID id.UserID, scope models.Scope, daysUntilExpiry int) (*lifecycle.RetentionReport, error)
}

type AuditTrail interface {
	GetAuditTrail(ctx context.Context, callerID id.UserID, filter audit.Filter, limit int) ([]*audit.Entry, error)
}

type BackupService interface {
	CreateBackup(ctx context.Context, userID id.UserID, scope models.Scope) (*backup.CreateResult, error)
	RestoreFromBackup(ctx context.Context, userID id.UserID, backupID id.BackupID, confirm bool) (*backup.RestoreResult, error)
	ListBackups(ctx context.Context, userID id.UserID, scope models.Scope) ([]*backup.Backup, error)
}

type Exporter interface {
	ExportSubjectData(ctx context.Context, userID id.UserID, subject compliance.Subject, format compliance.Format) (*compliance.Result, error)
}

// IdentityResolver maps the verified email on the request to a user.
type IdentityResolver interface {
	Resolve(ctx context.Context) (*identity.User, error)
}

// Deps groups the services the handler delegates to.
type Deps struct {
	Identity  IdentityResolver
	Incidents IncidentService
	Lifecycle LifecycleService
	Audit     AuditTrail
	Backups   BackupService
	Exports   Exporter
}

// Handler is the thin HTTP layer over the domain services. It parses
// requests, resolves the caller, and renders results or domain errors.
type Handler struct {
	identity  IdentityResolver
	incidents IncidentService
	lifecycle LifecycleService
	audit     AuditTrail
	backups   BackupService
	exports   Exporter
	logger    *slog.Logger
}

func New(deps Deps, logger *slog.Logger) (*Handler, error) {
	switch {
	case deps.Identity == nil:
		return nil, errors.New("identity resolver is required")
	case deps.Incidents == nil:
		return nil, errors.New("incident service is required")
	case deps.Lifecycle == nil:
		return nil, errors.New("lifecycle service is required")
	case deps.Audit == nil:
		return nil, errors.New("audit trail is required")
	case deps.Backups == nil:
		return nil, errors.New("backup service is required")
	case deps.Exports == nil:
		return nil, errors.New("exporter is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		identity:  deps.Identity,
		incidents: deps.Incidents,
		lifecycle: deps.Lifecycle,
		audit:     deps.Audit,
		backups:   deps.Backups,
		exports:   deps.Exports,
		logger:    logger,
	}, nil
}

// Register mounts the API routes on r. Authentication is applied by the
// caller's router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/incidents", func(r chi.Router) {
		r.Post("/", h.handleCreateIncident)
		r.Get("/", h.handleListIncidents)
		r.Get("/{id}", h.handleGetIncident)
		r.Patch("/{id}", h.handleUpdateIncident)
		r.Delete("/{id}", h.handleDeleteIncident)
		r.Post("/{id}/read", h.handleMarkRead)
		r.Post("/{id}/print", h.handleRecordPrint)
	})
	r.Get("/residents/{id}/incidents", h.handleResidentIncidents)
	r.Get("/audit", h.handleAuditTrail)
	r.Route("/backups", func(r chi.Router) {
		r.Post("/", h.handleCreateBackup)
		r.Get("/", h.handleListBackups)
		r.Post("/{id}/restore", h.handleRestoreBackup)
	})
	r.Get("/exports", h.handleExport)
	r.Get("/retention/report", h.handleRetentionReport)
}

// caller resolves the authenticated user or writes the error response.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (id.UserID, bool) {
	user, err := h.identity.Resolve(r.Context())
	if err != nil {
		h.fail(w, r, err, "identity resolution failed")
		return id.UserID{}, false
	}
	return user.ID, true
}

// fail logs err at a level matching its status and writes it.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	ctx := r.Context()
	status := http.StatusInternalServerError
	if de, ok := dErrors.As(err); ok {
		status = dErrors.HTTPStatus(de.Code)
	}
	attrs := []any{
		"error", err,
		"status", status,
		"path", r.URL.Path,
		"request_id", requestcontext.RequestID(ctx),
	}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}

func parseLimit(raw string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "limit must be a non-negative integer").WithDetail("field", "limit")
	}
	return n, nil
}

func parseTime(field, raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "expected an RFC 3339 timestamp").WithDetail("field", field)
	}
	return &t, nil
}

func queryScope(r *http.Request) (models.Scope, error) {
	q := r.URL.Query()
	return models.ParseScope(q.Get("scope"), q.Get("scope_id"))
}
