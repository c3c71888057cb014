package models

import (
	id "safereport/pkg/domain"
	dErrors "safereport/pkg/domain-errors"
)

// Role is a fixed enumeration; roles are not user-defined.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// ParseRole validates a role read from storage or a token.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid role: "+s)
	}
	return r, nil
}

func (r Role) IsValid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// Membership ties a user to exactly one team (and its organization).
type Membership struct {
	UserID         id.UserID         `json:"user_id"`
	TeamID         id.TeamID         `json:"team_id"`
	OrganizationID id.OrganizationID `json:"organization_id"`
	Role           Role              `json:"role"`
}

// Resident is the subject of an incident. It is read-only here and only used
// to resolve tenancy.
type Resident struct {
	ID             id.ResidentID     `json:"id"`
	Name           string            `json:"name"`
	RoomNumber     string            `json:"room_number,omitempty"`
	TeamID         id.TeamID         `json:"team_id"`
	OrganizationID id.OrganizationID `json:"organization_id"`
}
