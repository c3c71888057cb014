package domain

import (
	"github.com/google/uuid"

	dErrors "safereport/pkg/domain-errors"
)

// Typed identifiers. Each wraps a UUID so that a ResidentID can never be
// passed where an IncidentID is expected.
type (
	UserID         uuid.UUID
	TeamID         uuid.UUID
	OrganizationID uuid.UUID
	ResidentID     uuid.UUID
	IncidentID     uuid.UUID
	MediaID        uuid.UUID
	BackupID       uuid.UUID
	AuditEntryID   uuid.UUID
)

func (id UserID) String() string         { return uuid.UUID(id).String() }
func (id TeamID) String() string         { return uuid.UUID(id).String() }
func (id OrganizationID) String() string { return uuid.UUID(id).String() }
func (id ResidentID) String() string     { return uuid.UUID(id).String() }
func (id IncidentID) String() string     { return uuid.UUID(id).String() }
func (id MediaID) String() string        { return uuid.UUID(id).String() }
func (id BackupID) String() string       { return uuid.UUID(id).String() }
func (id AuditEntryID) String() string   { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id TeamID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id OrganizationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ResidentID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id IncidentID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id MediaID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id BackupID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id AuditEntryID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

// MarshalText lets typed ids travel through JSON as plain UUID strings.
func (id IncidentID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

// UnmarshalText parses a UUID string into an IncidentID.
func (id *IncidentID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id ResidentID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *ResidentID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id UserID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id TeamID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *TeamID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id OrganizationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *OrganizationID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id BackupID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *BackupID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id MediaID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *MediaID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id AuditEntryID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *AuditEntryID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

// ParseUserID parses a user id from external input.
//
// Errors: CodeInvalidInput when the value is empty, malformed, or the nil UUID.
func ParseUserID(s string) (UserID, error) { return parseID[UserID]("user_id", s) }

func ParseTeamID(s string) (TeamID, error) { return parseID[TeamID]("team_id", s) }

func ParseOrganizationID(s string) (OrganizationID, error) {
	return parseID[OrganizationID]("organization_id", s)
}

func ParseResidentID(s string) (ResidentID, error) { return parseID[ResidentID]("resident_id", s) }

func ParseIncidentID(s string) (IncidentID, error) { return parseID[IncidentID]("incident_id", s) }

func ParseBackupID(s string) (BackupID, error) { return parseID[BackupID]("backup_id", s) }

func parseID[T ~[16]byte](field, s string) (T, error) {
	var zero T
	if s == "" {
		return zero, dErrors.New(dErrors.CodeInvalidInput, field+" cannot be empty").WithDetail("field", field)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return zero, dErrors.New(dErrors.CodeInvalidInput, "invalid "+field).WithDetail("field", field)
	}
	if u == uuid.Nil {
		return zero, dErrors.New(dErrors.CodeInvalidInput, field+" cannot be nil").WithDetail("field", field)
	}
	return T(u), nil
}
