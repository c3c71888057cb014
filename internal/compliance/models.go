// Package compliance assembles portable data packages for a user or a
// resident with internal identifiers removed.
package compliance

import (
	"strings"
	"time"

	"github.com/google/uuid"

	id "safereport/pkg/domain"
	dErrors "safereport/pkg/domain-errors"
)

type SubjectKind string

const (
	SubjectUser     SubjectKind = "user"
	SubjectResident SubjectKind = "resident"
)

type Subject struct {
	Kind SubjectKind
	ID   uuid.UUID
}

func UserSubject(userID id.UserID) Subject {
	return Subject{Kind: SubjectUser, ID: uuid.UUID(userID)}
}

func ResidentSubject(residentID id.ResidentID) Subject {
	return Subject{Kind: SubjectResident, ID: uuid.UUID(residentID)}
}

// ParseSubject validates a kind/id pair from a query string.
func ParseSubject(kind, rawID string) (Subject, error) {
	k := SubjectKind(strings.ToLower(strings.TrimSpace(kind)))
	if k != SubjectUser && k != SubjectResident {
		return Subject{}, dErrors.New(dErrors.CodeBadRequest, "subject must be user or resident").WithDetail("field", "subject")
	}
	parsed, err := uuid.Parse(strings.TrimSpace(rawID))
	if err != nil {
		return Subject{}, dErrors.New(dErrors.CodeBadRequest, "invalid subject id").WithDetail("field", "subject_id")
	}
	return Subject{Kind: k, ID: parsed}, nil
}

type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case FormatJSON, FormatCSV, FormatXLSX:
		return f, nil
	case "":
		return FormatJSON, nil
	}
	return "", dErrors.New(dErrors.CodeBadRequest, "format must be json, csv or xlsx").WithDetail("field", "format")
}

func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/json"
	}
}

// Package is the export document. User ids appear only as pseudonyms and
// tenant ids are absent.
type Package struct {
	Subject      SubjectInfo      `json:"subject"`
	GeneratedAt  time.Time        `json:"generated_at"`
	Incidents    []IncidentRecord `json:"incidents"`
	AuditEntries []AuditRecord    `json:"audit_entries"`
}

type SubjectInfo struct {
	Kind      SubjectKind `json:"kind"`
	Reference string      `json:"reference"`
	Name      string      `json:"name,omitempty"`
}

type IncidentRecord struct {
	Reference            string     `json:"reference"`
	Date                 string     `json:"date"`
	Time                 string     `json:"time"`
	IncidentTypes        []string   `json:"incident_types"`
	Level                string     `json:"incident_level"`
	Description          string     `json:"description"`
	InjuryDescription    string     `json:"injury_description,omitempty"`
	TreatmentDescription string     `json:"treatment_description,omitempty"`
	ActionsTaken         string     `json:"actions_taken,omitempty"`
	Witnesses            []string   `json:"witnesses,omitempty"`
	ContributingFactors  []string   `json:"contributing_factors,omitempty"`
	HomeName             string     `json:"home_name"`
	Unit                 string     `json:"unit"`
	HealthIdentifier     string     `json:"health_identifier,omitempty"`
	State                string     `json:"state"`
	ArchivedAt           *time.Time `json:"archived_at,omitempty"`
	ScheduledDeletionAt  *time.Time `json:"scheduled_deletion_at,omitempty"`
	CreatedBy            string     `json:"created_by"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedBy            string     `json:"updated_by,omitempty"`
	UpdatedAt            *time.Time `json:"updated_at,omitempty"`
}

type AuditRecord struct {
	IncidentReference string         `json:"incident_reference,omitempty"`
	Actor             string         `json:"actor"`
	Action            string         `json:"action"`
	Timestamp         time.Time      `json:"timestamp"`
	Details           map[string]any `json:"details,omitempty"`
}

// Result is the serialized export.
type Result struct {
	Data        []byte
	Filename    string
	ContentType string
	RecordCount int
}

func (p *Package) RecordCount() int {
	return len(p.Incidents) + len(p.AuditEntries)
}
