package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks MembershipStore,ResidentStore

import (
	"context"
	"errors"
	"log/slog"

	imodels "safereport/internal/incident/models"
	"safereport/internal/membership/models"
	id "safereport/pkg/domain"
	dErrors "safereport/pkg/domain-errors"
	"safereport/pkg/platform/sentinel"
)

// MembershipStore loads a user's team membership.
type MembershipStore interface {
	FindByUser(ctx context.Context, userID id.UserID) (*models.Membership, error)
	FindByUserAndTeam(ctx context.Context, userID id.UserID, teamID id.TeamID) (*models.Membership, error)
}

// ResidentStore loads residents for tenancy resolution.
type ResidentStore interface {
	FindByID(ctx context.Context, residentID id.ResidentID) (*models.Resident, error)
}

// Service answers "may this user touch this resident" and "may this role do
// this action". Both checks are read-only.
type Service struct {
	memberships MembershipStore
	residents   ResidentStore
	logger      *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(memberships MembershipStore, residents ResidentStore, opts ...Option) (*Service, error) {
	if memberships == nil {
		return nil, errors.New("membership store is required")
	}
	if residents == nil {
		return nil, errors.New("resident store is required")
	}
	s := &Service{memberships: memberships, residents: residents}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ResolveAccess loads the resident and the caller's membership for the
// resident's team. It returns the resident on success.
//
// Errors: CodeNotFound for an unknown resident, AccessDenied when the caller
// has no membership in the resident's team.
func (s *Service) ResolveAccess(ctx context.Context, userID id.UserID, residentID id.ResidentID) (*models.Resident, error) {
	resident, err := s.resident(ctx, residentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.ResolveTeamAccess(ctx, userID, resident.TeamID); err != nil {
		return nil, err
	}
	return resident, nil
}

func (s *Service) resident(ctx context.Context, residentID id.ResidentID) (*models.Resident, error) {
	resident, err := s.residents.FindByID(ctx, residentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "resident not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load resident")
	}
	return resident, nil
}

// ResolveTeamAccess returns the caller's membership row for teamID.
func (s *Service) ResolveTeamAccess(ctx context.Context, userID id.UserID, teamID id.TeamID) (*models.Membership, error) {
	m, err := s.memberships.FindByUserAndTeam(ctx, userID, teamID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.logDenied(ctx, userID, "access_denied", "team_id", teamID)
			return nil, dErrors.AccessDenied()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load membership")
	}
	return m, nil
}

// ResolveOrganizationAccess returns the caller's membership when it belongs
// to organizationID.
func (s *Service) ResolveOrganizationAccess(ctx context.Context, userID id.UserID, organizationID id.OrganizationID) (*models.Membership, error) {
	m, err := s.membership(ctx, userID)
	if err != nil {
		return nil, err
	}
	if m.OrganizationID != organizationID {
		s.logDenied(ctx, userID, "access_denied", "organization_id", organizationID)
		return nil, dErrors.AccessDenied()
	}
	return m, nil
}

// ResolveScopeAccess checks the caller may read the whole scope: a member of
// the team, of the organization, or of the resident's team.
func (s *Service) ResolveScopeAccess(ctx context.Context, userID id.UserID, scope imodels.Scope) (*models.Membership, error) {
	switch scope.Kind {
	case imodels.ScopeTeam:
		return s.ResolveTeamAccess(ctx, userID, id.TeamID(scope.ID))
	case imodels.ScopeOrganization:
		return s.ResolveOrganizationAccess(ctx, userID, id.OrganizationID(scope.ID))
	case imodels.ScopeResident:
		resident, err := s.resident(ctx, id.ResidentID(scope.ID))
		if err != nil {
			return nil, err
		}
		return s.ResolveTeamAccess(ctx, userID, resident.TeamID)
	}
	return nil, dErrors.New(dErrors.CodeBadRequest, "unknown scope").WithDetail("field", "scope")
}

// ResolveUserAccess checks the caller shares a team with subjectID. A caller
// always has access to itself.
func (s *Service) ResolveUserAccess(ctx context.Context, userID, subjectID id.UserID) (*models.Membership, error) {
	subject, err := s.membership(ctx, subjectID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeForbidden) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, err
	}
	if userID == subjectID {
		return subject, nil
	}
	return s.ResolveTeamAccess(ctx, userID, subject.TeamID)
}

// CheckPermission consults the static role matrix. It is purely role-based and
// never looks at record ownership.
//
// Errors: AccessDenied when the user has no membership at all,
// PermissionDenied (with action and role) when the matrix row lacks action.
func (s *Service) CheckPermission(ctx context.Context, userID id.UserID, action models.Action) (*models.Membership, error) {
	m, err := s.membership(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !m.Role.Allows(action) {
		s.logDenied(ctx, userID, "permission_denied", "action", action, "role", m.Role)
		return nil, dErrors.PermissionDenied(string(action), string(m.Role))
	}
	return m, nil
}

// RequireRole gates operations reserved for one role (restore, backup).
func (s *Service) RequireRole(ctx context.Context, userID id.UserID, role models.Role, operation string) (*models.Membership, error) {
	m, err := s.membership(ctx, userID)
	if err != nil {
		return nil, err
	}
	if m.Role != role {
		s.logDenied(ctx, userID, "permission_denied", "operation", operation, "role", m.Role)
		return nil, dErrors.PermissionDenied(operation, string(m.Role))
	}
	return m, nil
}

func (s *Service) membership(ctx context.Context, userID id.UserID) (*models.Membership, error) {
	m, err := s.memberships.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.AccessDenied()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load membership")
	}
	return m, nil
}

func (s *Service) logDenied(ctx context.Context, userID id.UserID, event string, attrs ...any) {
	if s.logger == nil {
		return
	}
	args := append([]any{"user_id", userID.String(), "event", event}, attrs...)
	s.logger.WarnContext(ctx, event, args...)
}
