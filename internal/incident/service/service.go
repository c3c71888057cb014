package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"safereport/internal/audit"
	"safereport/internal/incident/metrics"
	"safereport/internal/incident/models"
	"safereport/internal/incident/query"
	"safereport/internal/incident/validation"
	mmodels "safereport/internal/membership/models"
	rlmodels "safereport/internal/ratelimit/models"
	id "safereport/pkg/domain"
	dErrors "safereport/pkg/domain-errors"
	"safereport/pkg/platform/sentinel"
	txcontext "safereport/pkg/platform/tx"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks IncidentStore AuditLogger

type IncidentStore interface {
	Create(ctx context.Context, incident *models.Incident) error
	FindByID(ctx context.Context, incidentID id.IncidentID) (*models.Incident, error)
	UpdateContent(ctx context.Context, incident *models.Incident) error
}

type ReadStatusStore interface {
	MarkRead(ctx context.Context, status *models.ReadStatus) error
}

// Access is the membership engine as seen by incident operations.
type Access interface {
	ResolveAccess(ctx context.Context, userID id.UserID, residentID id.ResidentID) (*mmodels.Resident, error)
	ResolveTeamAccess(ctx context.Context, userID id.UserID, teamID id.TeamID) (*mmodels.Membership, error)
	ResolveScopeAccess(ctx context.Context, userID id.UserID, scope models.Scope) (*mmodels.Membership, error)
	CheckPermission(ctx context.Context, userID id.UserID, action mmodels.Action) (*mmodels.Membership, error)
}

type RateLimiter interface {
	Check(ctx context.Context, userID id.UserID, action rlmodels.Action) (*rlmodels.Result, error)
}

type AuditLogger interface {
	LogDataAccess(ctx context.Context, incidentID *id.IncidentID, userID id.UserID, metadata audit.Metadata) error
}

type Pager interface {
	Page(ctx context.Context, userID id.UserID, scope models.Scope, cursor *models.Cursor, limit int) (*query.Page, error)
}

// Service implements the interactive incident operations. Every write runs
// in one transaction with its audit entry.
type Service struct {
	incidents IncidentStore
	reads     ReadStatusStore
	access    Access
	limiter   RateLimiter
	audit     AuditLogger
	pager     Pager
	tx        txcontext.Runner
	logger    *slog.Logger
	metrics   *metrics.Metrics
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

// Deps groups the collaborators New requires.
type Deps struct {
	Incidents IncidentStore
	Reads     ReadStatusStore
	Access    Access
	Limiter   RateLimiter
	Audit     AuditLogger
	Pager     Pager
	Tx        txcontext.Runner
}

func New(deps Deps, opts ...Option) (*Service, error) {
	switch {
	case deps.Incidents == nil:
		return nil, errors.New("incident store is required")
	case deps.Reads == nil:
		return nil, errors.New("read status store is required")
	case deps.Access == nil:
		return nil, errors.New("access engine is required")
	case deps.Limiter == nil:
		return nil, errors.New("rate limiter is required")
	case deps.Audit == nil:
		return nil, errors.New("audit logger is required")
	case deps.Pager == nil:
		return nil, errors.New("pager is required")
	case deps.Tx == nil:
		return nil, errors.New("transaction runner is required")
	}
	s := &Service{
		incidents: deps.Incidents,
		reads:     deps.Reads,
		access:    deps.Access,
		limiter:   deps.Limiter,
		audit:     deps.Audit,
		pager:     deps.Pager,
		tx:        deps.Tx,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create validates, rate-limits, and stores a new incident. Tenancy comes
// from the resident, never from the payload.
func (s *Service) Create(ctx context.Context, userID id.UserID, payload models.Payload) (*models.Incident, error) {
	if _, err := s.access.CheckPermission(ctx, userID, mmodels.ActionCreate); err != nil {
		return nil, err
	}
	resident, err := s.access.ResolveAccess(ctx, userID, payload.ResidentID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err := validation.Validate(payload, now); err != nil {
		return nil, err
	}
	if _, err := s.limiter.Check(ctx, userID, rlmodels.ActionCreateIncident); err != nil {
		return nil, err
	}

	clean := validation.Sanitize(payload)
	incident := &models.Incident{
		ID:                   id.IncidentID(uuid.New()),
		Date:                 clean.Date,
		Time:                 clean.Time,
		IncidentTypes:        clean.IncidentTypes,
		Level:                clean.Level,
		Description:          clean.Description,
		InjuryDescription:    clean.InjuryDescription,
		TreatmentDescription: clean.TreatmentDescription,
		ActionsTaken:         clean.ActionsTaken,
		Witnesses:            clean.Witnesses,
		ContributingFactors:  clean.ContributingFactors,
		HomeName:             clean.HomeName,
		Unit:                 clean.Unit,
		HealthIdentifier:     clean.HealthIdentifier,
		ResidentID:           resident.ID,
		TeamID:               resident.TeamID,
		OrganizationID:       resident.OrganizationID,
		State:                models.StateActive,
		RetentionPeriodYears: models.RetentionPeriodYears,
		CreatedBy:            userID,
		CreatedAt:            now,
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.incidents.Create(ctx, incident); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save incident")
		}
		return s.audit.LogDataAccess(ctx, &incident.ID, userID, audit.CreateMetadata{
			ResidentID: resident.ID.String(),
			Level:      string(incident.Level),
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncMutation("create")
	s.logger.InfoContext(ctx, "incident created",
		"incident_id", incident.ID.String(),
		"user_id", userID.String(),
		"level", string(incident.Level),
	)
	return incident, nil
}

// GetIncidentsPage serves one page of a scope and records a view_list entry.
func (s *Service) GetIncidentsPage(ctx context.Context, userID id.UserID, scope models.Scope, rawCursor string, limit int) (*query.Page, error) {
	if _, err := s.access.ResolveScopeAccess(ctx, userID, scope); err != nil {
		return nil, err
	}
	if _, err := s.access.CheckPermission(ctx, userID, mmodels.ActionView); err != nil {
		return nil, err
	}
	cursor, err := models.DecodeCursor(rawCursor)
	if err != nil {
		return nil, err
	}
	page, err := s.pager.Page(ctx, userID, scope, cursor, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load incidents")
	}
	err = s.audit.LogDataAccess(ctx, nil, userID, audit.ListMetadata{
		Scope:       scope.String(),
		ResultCount: len(page.Items),
		HasMore:     page.HasMore,
		Cursor:      rawCursor,
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// GetIncident returns a single incident and records a view entry.
func (s *Service) GetIncident(ctx context.Context, userID id.UserID, incidentID id.IncidentID) (*models.Incident, error) {
	incident, err := s.load(ctx, userID, incidentID, mmodels.ActionView)
	if err != nil {
		return nil, err
	}
	if err := s.audit.LogDataAccess(ctx, &incident.ID, userID, audit.ViewMetadata{ResidentID: incident.ResidentID.String()}); err != nil {
		return nil, err
	}
	return incident, nil
}

// Update applies a whitelisted partial update. Archived, read-only, and
// non-active incidents are immutable for every role. The store re-checks
// mutability at write time, so an archival or deletion that lands after the
// read still wins.
func (s *Service) Update(ctx context.Context, userID id.UserID, incidentID id.IncidentID, fields models.UpdateFields) (*models.Incident, error) {
	incident, err := s.load(ctx, userID, incidentID, mmodels.ActionEdit)
	if err != nil {
		return nil, err
	}
	if !incident.IsMutable() {
		return nil, dErrors.Immutable("incident is archived or read-only").
			WithDetail("state", string(incident.State))
	}
	now := s.now().UTC()
	if err := validation.ValidateUpdate(fields, incident, now); err != nil {
		return nil, err
	}
	clean := validation.SanitizeUpdate(fields)
	incident.ApplyUpdate(clean, userID, now)

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.incidents.UpdateContent(ctx, incident); err != nil {
			return s.storeError(err, "failed to update incident")
		}
		return s.audit.LogDataAccess(ctx, &incident.ID, userID, audit.UpdateMetadata{
			ChangedFields: clean.ChangedFields(),
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncMutation("update")
	return incident, nil
}

// MarkRead records that the caller opened the incident. It is idempotent
// and not audited; GetIncident already records the view.
func (s *Service) MarkRead(ctx context.Context, userID id.UserID, incidentID id.IncidentID) error {
	incident, err := s.load(ctx, userID, incidentID, mmodels.ActionView)
	if err != nil {
		return err
	}
	err = s.reads.MarkRead(ctx, &models.ReadStatus{UserID: userID, IncidentID: incident.ID, ReadAt: s.now().UTC()})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark incident read")
	}
	return nil
}

// RecordPrint audits that the caller rendered the incident for printing.
func (s *Service) RecordPrint(ctx context.Context, userID id.UserID, incidentID id.IncidentID) error {
	incident, err := s.load(ctx, userID, incidentID, mmodels.ActionView)
	if err != nil {
		return err
	}
	return s.audit.LogDataAccess(ctx, &incident.ID, userID, audit.PrintMetadata{ResidentID: incident.ResidentID.String()})
}

// load fetches the incident, then checks tenancy and role. A caller outside
// the incident's team gets AccessDenied, not NotFound.
func (s *Service) load(ctx context.Context, userID id.UserID, incidentID id.IncidentID, action mmodels.Action) (*models.Incident, error) {
	incident, err := s.incidents.FindByID(ctx, incidentID)
	if err != nil {
		return nil, s.storeError(err, "failed to load incident")
	}
	// Soft-deleted records stay on disk for retention but are not served.
	if incident.State == models.StateSoftDeleted {
		return nil, dErrors.New(dErrors.CodeNotFound, "incident not found")
	}
	if _, err := s.access.ResolveTeamAccess(ctx, userID, incident.TeamID); err != nil {
		return nil, err
	}
	if _, err := s.access.CheckPermission(ctx, userID, action); err != nil {
		return nil, err
	}
	return incident, nil
}

func (s *Service) storeError(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "incident not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Immutable("incident was archived or deleted while being edited")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
