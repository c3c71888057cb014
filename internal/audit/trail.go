package audit

import (
	"context"
	"errors"
	"log/slog"

	mmodels "safereport/internal/membership/models"
	id "safereport/pkg/domain"
	dErrors "safereport/pkg/domain-errors"
)

// PermissionChecker is the membership engine's permission check.
type PermissionChecker interface {
	CheckPermission(ctx context.Context, userID id.UserID, action mmodels.Action) (*mmodels.Membership, error)
}

// TrailService answers audit trail queries.
type TrailService struct {
	store       Store
	permissions PermissionChecker
	logger      *slog.Logger
}

func NewTrailService(store Store, permissions PermissionChecker, logger *slog.Logger) (*TrailService, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	if permissions == nil {
		return nil, errors.New("permission checker is required")
	}
	return &TrailService{store: store, permissions: permissions, logger: logger}, nil
}

// GetAuditTrail returns entries newest first. The caller needs view
// permission and the filter must name an incident or a user.
func (s *TrailService) GetAuditTrail(ctx context.Context, callerID id.UserID, filter Filter, limit int) ([]*Entry, error) {
	if _, err := s.permissions.CheckPermission(ctx, callerID, mmodels.ActionView); err != nil {
		return nil, err
	}
	if len(filter.IncidentIDs) == 0 && filter.UserID == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "filter by incident_id or user_id")
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "from must not be after to").WithDetail("field", "from")
	}
	entries, err := s.store.List(ctx, filter, ClampLimit(limit))
	if err != nil {
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "audit trail query failed", "error", err)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit trail")
	}
	return entries, nil
}
