package models

import (
	"slices"
	"time"

	id "safereport/pkg/domain"
)

// RetentionPeriodYears is how long an archived or deleted incident is kept
// before the retention purge removes it.
const RetentionPeriodYears = 7

// Level grades the outcome of an incident.
type Level string

const (
	LevelDeath         Level = "death"
	LevelPermanentHarm Level = "permanent_harm"
	LevelMinorInjury   Level = "minor_injury"
	LevelNoHarm        Level = "no_harm"
	LevelNearMiss      Level = "near_miss"
)

func (l Level) IsValid() bool {
	switch l {
	case LevelDeath, LevelPermanentHarm, LevelMinorInjury, LevelNoHarm, LevelNearMiss:
		return true
	}
	return false
}

// IsSevere reports whether the level requires the extended narrative.
func (l Level) IsSevere() bool {
	return l == LevelDeath || l == LevelPermanentHarm
}

// Incident is a persisted safety report about one resident.
type Incident struct {
	ID                   id.IncidentID     `json:"id"`
	Date                 string            `json:"date"`
	Time                 string            `json:"time"`
	IncidentTypes        []string          `json:"incident_types"`
	Level                Level             `json:"incident_level"`
	Description          string            `json:"description"`
	InjuryDescription    string            `json:"injury_description,omitempty"`
	TreatmentDescription string            `json:"treatment_description,omitempty"`
	ActionsTaken         string            `json:"actions_taken,omitempty"`
	Witnesses            []string          `json:"witnesses,omitempty"`
	ContributingFactors  []string          `json:"contributing_factors,omitempty"`
	HomeName             string            `json:"home_name"`
	Unit                 string            `json:"unit"`
	HealthIdentifier     string            `json:"health_identifier,omitempty"`
	ResidentID           id.ResidentID     `json:"resident_id"`
	TeamID               id.TeamID         `json:"team_id"`
	OrganizationID       id.OrganizationID `json:"organization_id"`

	State                State      `json:"state"`
	IsArchived           bool       `json:"is_archived"`
	IsReadOnly           bool       `json:"is_read_only"`
	ArchivedAt           *time.Time `json:"archived_at,omitempty"`
	ArchiveReason        string     `json:"archive_reason,omitempty"`
	ScheduledDeletionAt  *time.Time `json:"scheduled_deletion_at,omitempty"`
	RetentionPeriodYears int        `json:"retention_period_years"`

	CreatedBy id.UserID `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedBy id.UserID `json:"updated_by"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsMutable reports whether updateIncident may touch this record.
func (i *Incident) IsMutable() bool {
	return !i.IsArchived && !i.IsReadOnly && i.State == StateActive
}

// Clone returns a deep copy so stores never share slices with callers.
func (i *Incident) Clone() *Incident {
	if i == nil {
		return nil
	}
	cp := *i
	cp.IncidentTypes = slices.Clone(i.IncidentTypes)
	cp.Witnesses = slices.Clone(i.Witnesses)
	cp.ContributingFactors = slices.Clone(i.ContributingFactors)
	if i.ArchivedAt != nil {
		t := *i.ArchivedAt
		cp.ArchivedAt = &t
	}
	if i.ScheduledDeletionAt != nil {
		t := *i.ScheduledDeletionAt
		cp.ScheduledDeletionAt = &t
	}
	return &cp
}

// Payload is the create request. Tenancy is not part of it; the service
// derives team and organization from the resident.
type Payload struct {
	ResidentID           id.ResidentID `json:"resident_id"`
	Date                 string        `json:"date"`
	Time                 string        `json:"time"`
	IncidentTypes        []string      `json:"incident_types"`
	Level                Level         `json:"incident_level"`
	Description          string        `json:"description"`
	InjuryDescription    string        `json:"injury_description"`
	TreatmentDescription string        `json:"treatment_description"`
	ActionsTaken         string        `json:"actions_taken"`
	Witnesses            []string      `json:"witnesses"`
	ContributingFactors  []string      `json:"contributing_factors"`
	HomeName             string        `json:"home_name"`
	Unit                 string        `json:"unit"`
	HealthIdentifier     string        `json:"health_identifier"`
}

// UpdateFields is the whitelisted partial update. A nil field is left
// unchanged. Tenancy, lifecycle, and provenance fields are deliberately
// absent, so a decoded request body cannot reassign them.
type UpdateFields struct {
	Date                 *string   `json:"date,omitempty"`
	Time                 *string   `json:"time,omitempty"`
	IncidentTypes        *[]string `json:"incident_types,omitempty"`
	Level                *Level    `json:"incident_level,omitempty"`
	Description          *string   `json:"description,omitempty"`
	InjuryDescription    *string   `json:"injury_description,omitempty"`
	TreatmentDescription *string   `json:"treatment_description,omitempty"`
	ActionsTaken         *string   `json:"actions_taken,omitempty"`
	Witnesses            *[]string `json:"witnesses,omitempty"`
	ContributingFactors  *[]string `json:"contributing_factors,omitempty"`
	HomeName             *string   `json:"home_name,omitempty"`
	Unit                 *string   `json:"unit,omitempty"`
	HealthIdentifier     *string   `json:"health_identifier,omitempty"`
}

// ChangedFields lists the wire names of the present fields, in declaration
// order.
func (u UpdateFields) ChangedFields() []string {
	var out []string
	add := func(present bool, name string) {
		if present {
			out = append(out, name)
		}
	}
	add(u.Date != nil, "date")
	add(u.Time != nil, "time")
	add(u.IncidentTypes != nil, "incident_types")
	add(u.Level != nil, "incident_level")
	add(u.Description != nil, "description")
	add(u.InjuryDescription != nil, "injury_description")
	add(u.TreatmentDescription != nil, "treatment_description")
	add(u.ActionsTaken != nil, "actions_taken")
	add(u.Witnesses != nil, "witnesses")
	add(u.ContributingFactors != nil, "contributing_factors")
	add(u.HomeName != nil, "home_name")
	add(u.Unit != nil, "unit")
	add(u.HealthIdentifier != nil, "health_identifier")
	return out
}

// IsEmpty reports whether no field is present.
func (u UpdateFields) IsEmpty() bool {
	return len(u.ChangedFields()) == 0
}

// ApplyUpdate copies the present fields onto the incident and stamps
// provenance.
func (i *Incident) ApplyUpdate(u UpdateFields, by id.UserID, now time.Time) {
	setStr := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setSlice := func(dst *[]string, src *[]string) {
		if src != nil {
			*dst = slices.Clone(*src)
		}
	}
	setStr(&i.Date, u.Date)
	setStr(&i.Time, u.Time)
	setSlice(&i.IncidentTypes, u.IncidentTypes)
	if u.Level != nil {
		i.Level = *u.Level
	}
	setStr(&i.Description, u.Description)
	setStr(&i.InjuryDescription, u.InjuryDescription)
	setStr(&i.TreatmentDescription, u.TreatmentDescription)
	setStr(&i.ActionsTaken, u.ActionsTaken)
	setSlice(&i.Witnesses, u.Witnesses)
	setSlice(&i.ContributingFactors, u.ContributingFactors)
	setStr(&i.HomeName, u.HomeName)
	setStr(&i.Unit, u.Unit)
	setStr(&i.HealthIdentifier, u.HealthIdentifier)
	i.UpdatedBy = by
	i.UpdatedAt = now
}

// AssignContent copies the editable fields and update stamp of src. The
// lifecycle fields are left alone.
func (i *Incident) AssignContent(src *Incident) {
	i.Date, i.Time = src.Date, src.Time
	i.IncidentTypes = slices.Clone(src.IncidentTypes)
	i.Level = src.Level
	i.Description = src.Description
	i.InjuryDescription = src.InjuryDescription
	i.TreatmentDescription = src.TreatmentDescription
	i.ActionsTaken = src.ActionsTaken
	i.Witnesses = slices.Clone(src.Witnesses)
	i.ContributingFactors = slices.Clone(src.ContributingFactors)
	i.HomeName, i.Unit, i.HealthIdentifier = src.HomeName, src.Unit, src.HealthIdentifier
	i.UpdatedBy, i.UpdatedAt = src.UpdatedBy, src.UpdatedAt
}

// AssignLifecycle copies the lifecycle fields and update stamp of src.
func (i *Incident) AssignLifecycle(src *Incident) {
	c := src.Clone()
	i.State = c.State
	i.IsArchived, i.IsReadOnly = c.IsArchived, c.IsReadOnly
	i.ArchivedAt, i.ArchiveReason = c.ArchivedAt, c.ArchiveReason
	i.ScheduledDeletionAt = c.ScheduledDeletionAt
	i.RetentionPeriodYears = c.RetentionPeriodYears
	i.UpdatedBy, i.UpdatedAt = c.UpdatedBy, c.UpdatedAt
}

// MediaKindAvatar is the only media kind the list view joins.
const MediaKindAvatar = "avatar"

// Media is a stored file attached to a resident.
type Media struct {
	ID         id.MediaID    `json:"id"`
	OwnerID    id.ResidentID `json:"owner_id"`
	StorageKey string        `json:"-"`
	Kind       string        `json:"kind"`
}

// ReadStatus records that a user has opened an incident.
type ReadStatus struct {
	UserID     id.UserID     `json:"user_id"`
	IncidentID id.IncidentID `json:"incident_id"`
	ReadAt     time.Time     `json:"read_at"`
}
