package audit

import (
	"bytes"
	"time"

	id "safereport/pkg/domain"
)

// Action is the closed set of audited operations.
type Action string

const (
	ActionCreate   Action = "create"
	ActionView     Action = "view"
	ActionViewList Action = "view_list"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
	ActionArchive  Action = "archive"
	ActionExport   Action = "export"
	ActionPrint    Action = "print"
	ActionRestore  Action = "restore"
	ActionBackup   Action = "backup"
	ActionPurge    Action = "purge"
)

func (a Action) IsValid() bool {
	_, ok := metadataFactories[a]
	return ok
}

// RequestInfo is the caller context captured at write time.
type RequestInfo struct {
	RequestID string `json:"request_id,omitempty"`
	ClientIP  string `json:"client_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// Entry is one append-only audit row. IncidentID is nil for actions that are
// not about a single incident (view_list, backup, restore, export).
type Entry struct {
	ID         id.AuditEntryID   `json:"id"`
	IncidentID *id.IncidentID    `json:"incident_id,omitempty"`
	UserID     id.UserID         `json:"user_id"`
	Action     Action            `json:"action"`
	Timestamp  time.Time         `json:"timestamp"`
	Metadata   Metadata          `json:"metadata"`
	Additional map[string]string `json:"additional,omitempty"`
	Request    RequestInfo       `json:"request"`
}

const (
	DefaultTrailLimit = 100
	MaxTrailLimit     = 1000
)

// Position marks an entry in newest-first (timestamp desc, id desc) order.
type Position struct {
	Timestamp time.Time
	ID        id.AuditEntryID
}

// PositionOf returns the keyset position of e.
func PositionOf(e *Entry) *Position {
	return &Position{Timestamp: e.Timestamp, ID: e.ID}
}

// Follows reports whether e sorts strictly after p in newest-first order.
func (p Position) Follows(e *Entry) bool {
	if !e.Timestamp.Equal(p.Timestamp) {
		return e.Timestamp.Before(p.Timestamp)
	}
	return bytes.Compare(e.ID[:], p.ID[:]) < 0
}

// CompareNewestFirst orders entries by timestamp desc, then id desc.
func CompareNewestFirst(a, b *Entry) int {
	if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
		return c
	}
	return bytes.Compare(b.ID[:], a.ID[:])
}

// Filter selects entries for a trail query. At least one of IncidentIDs or
// UserID must be set for caller-facing queries. After resumes a listing
// past the last entry of a previous page.
type Filter struct {
	IncidentIDs []id.IncidentID
	UserID      *id.UserID
	From        *time.Time
	To          *time.Time
	After       *Position
}

// Matches reports whether e passes every set criterion.
func (f Filter) Matches(e *Entry) bool {
	if len(f.IncidentIDs) > 0 {
		if e.IncidentID == nil {
			return false
		}
		found := false
		for _, iid := range f.IncidentIDs {
			if iid == *e.IncidentID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.UserID != nil && *f.UserID != e.UserID {
		return false
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	if f.After != nil && !f.After.Follows(e) {
		return false
	}
	return true
}

// ClampLimit applies the trail default and maximum.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultTrailLimit
	}
	return min(limit, MaxTrailLimit)
}
