package models

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	id "safereport/pkg/domain"
	dErrors "safereport/pkg/domain-errors"
)

// DateLayout is the calendar date format of incident dates and cursors.
const DateLayout = "2006-01-02"

// ScopeKind selects the tenancy level of a list or batch operation.
type ScopeKind string

const (
	ScopeTeam         ScopeKind = "team"
	ScopeOrganization ScopeKind = "organization"
	ScopeResident     ScopeKind = "resident"
)

// Scope is a (kind, id) pair naming a team, organization, or resident.
type Scope struct {
	Kind ScopeKind `json:"kind"`
	ID   uuid.UUID `json:"id"`
}

func TeamScope(teamID id.TeamID) Scope {
	return Scope{Kind: ScopeTeam, ID: uuid.UUID(teamID)}
}

func OrganizationScope(orgID id.OrganizationID) Scope {
	return Scope{Kind: ScopeOrganization, ID: uuid.UUID(orgID)}
}

func ResidentScope(residentID id.ResidentID) Scope {
	return Scope{Kind: ScopeResident, ID: uuid.UUID(residentID)}
}

// ParseScope validates a kind/id pair from a query string.
func ParseScope(kind, rawID string) (Scope, error) {
	k := ScopeKind(kind)
	switch k {
	case ScopeTeam, ScopeOrganization, ScopeResident:
	default:
		return Scope{}, dErrors.New(dErrors.CodeBadRequest, "scope must be team, organization, or resident").WithDetail("field", "scope")
	}
	u, err := uuid.Parse(rawID)
	if err != nil || u == uuid.Nil {
		return Scope{}, dErrors.New(dErrors.CodeBadRequest, "invalid scope_id").WithDetail("field", "scope_id")
	}
	return Scope{Kind: k, ID: u}, nil
}

// Contains reports whether the incident falls inside the scope.
func (s Scope) Contains(i *Incident) bool {
	switch s.Kind {
	case ScopeTeam:
		return uuid.UUID(i.TeamID) == s.ID
	case ScopeOrganization:
		return uuid.UUID(i.OrganizationID) == s.ID
	case ScopeResident:
		return uuid.UUID(i.ResidentID) == s.ID
	}
	return false
}

func (s Scope) String() string { return string(s.Kind) + ":" + s.ID.String() }

// Cursor is the keyset position of the last row of a page. Rows strictly
// before it in (date desc, id desc) order form the next page.
type Cursor struct {
	Date string        `json:"date"`
	ID   id.IncidentID `json:"id"`
}

// CursorFor builds the cursor positioned at incident.
func CursorFor(i *Incident) *Cursor {
	return &Cursor{Date: i.Date, ID: i.ID}
}

// Encode returns the opaque base64url form handed to clients.
func (c *Cursor) Encode() string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses an opaque cursor. An empty string means first page.
func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid cursor").WithDetail("field", "cursor")
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid cursor").WithDetail("field", "cursor")
	}
	if c.Date == "" || c.ID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid cursor").WithDetail("field", "cursor")
	}
	if _, err := time.Parse(DateLayout, c.Date); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid cursor").WithDetail("field", "cursor")
	}
	return &c, nil
}

// Admits reports whether i belongs to a page after the cursor, that is
// (i.Date, i.ID) < (c.Date, c.ID). A nil cursor admits everything.
func (c *Cursor) Admits(i *Incident) bool {
	if c == nil {
		return true
	}
	if i.Date != c.Date {
		return i.Date < c.Date
	}
	return uuidLess(uuid.UUID(i.ID), uuid.UUID(c.ID))
}

// Less orders incidents by (date desc, id desc).
func Less(a, b *Incident) bool {
	if a.Date != b.Date {
		return a.Date > b.Date
	}
	return uuidLess(uuid.UUID(b.ID), uuid.UUID(a.ID))
}

func uuidLess(a, b uuid.UUID) bool {
	for k := range a {
		if a[k] != b[k] {
			return a[k] < b[k]
		}
	}
	return false
}
