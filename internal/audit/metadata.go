package audit

import (
	"encoding/json"
	"fmt"
	"time"
)

// Metadata is the typed payload of an entry. Each action has exactly one
// implementation, so the action of an entry is always derivable from its
// metadata.
type Metadata interface {
	Action() Action
}

type CreateMetadata struct {
	ResidentID string `json:"resident_id"`
	Level      string `json:"incident_level"`
}

type ViewMetadata struct {
	ResidentID string `json:"resident_id"`
}

type ListMetadata struct {
	Scope       string `json:"scope"`
	ResultCount int    `json:"result_count"`
	HasMore     bool   `json:"has_more"`
	Cursor      string `json:"cursor,omitempty"`
}

type UpdateMetadata struct {
	ChangedFields []string `json:"changed_fields"`
}

type DeleteMetadata struct {
	Reason              string    `json:"reason"`
	ScheduledDeletionAt time.Time `json:"scheduled_deletion_at"`
}

type ArchiveMetadata struct {
	Reason              string    `json:"reason"`
	ScheduledDeletionAt time.Time `json:"scheduled_deletion_at"`
	Automatic           bool      `json:"automatic"`
}

type ExportMetadata struct {
	SubjectKind string `json:"subject_kind"`
	Format      string `json:"format"`
	RecordCount int    `json:"record_count"`
}

type PrintMetadata struct {
	ResidentID string `json:"resident_id"`
}

type RestoreMetadata struct {
	BackupID      string `json:"backup_id"`
	RestoredCount int    `json:"restored_count"`
	TotalInBackup int    `json:"total_in_backup"`
}

type BackupMetadata struct {
	BackupID      string `json:"backup_id"`
	Scope         string `json:"scope"`
	IncidentCount int    `json:"incident_count"`
	Checksum      string `json:"checksum"`
}

type PurgeMetadata struct {
	Level               string    `json:"incident_level"`
	Reason              string    `json:"reason"`
	ScheduledDeletionAt time.Time `json:"scheduled_deletion_at"`
}

func (CreateMetadata) Action() Action  { return ActionCreate }
func (ViewMetadata) Action() Action    { return ActionView }
func (ListMetadata) Action() Action    { return ActionViewList }
func (UpdateMetadata) Action() Action  { return ActionUpdate }
func (DeleteMetadata) Action() Action  { return ActionDelete }
func (ArchiveMetadata) Action() Action { return ActionArchive }
func (ExportMetadata) Action() Action  { return ActionExport }
func (PrintMetadata) Action() Action   { return ActionPrint }
func (RestoreMetadata) Action() Action { return ActionRestore }
func (BackupMetadata) Action() Action  { return ActionBackup }
func (PurgeMetadata) Action() Action   { return ActionPurge }

var metadataFactories = map[Action]func() Metadata{
	ActionCreate:   func() Metadata { return &CreateMetadata{} },
	ActionView:     func() Metadata { return &ViewMetadata{} },
	ActionViewList: func() Metadata { return &ListMetadata{} },
	ActionUpdate:   func() Metadata { return &UpdateMetadata{} },
	ActionDelete:   func() Metadata { return &DeleteMetadata{} },
	ActionArchive:  func() Metadata { return &ArchiveMetadata{} },
	ActionExport:   func() Metadata { return &ExportMetadata{} },
	ActionPrint:    func() Metadata { return &PrintMetadata{} },
	ActionRestore:  func() Metadata { return &RestoreMetadata{} },
	ActionBackup:   func() Metadata { return &BackupMetadata{} },
	ActionPurge:    func() Metadata { return &PurgeMetadata{} },
}

// EncodeMetadata serializes m for storage. The action column carries the tag.
func EncodeMetadata(m Metadata) ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMetadata rebuilds the typed metadata for action from raw JSON.
func DecodeMetadata(action Action, raw []byte) (Metadata, error) {
	factory, ok := metadataFactories[action]
	if !ok {
		return nil, fmt.Errorf("unknown audit action %q", action)
	}
	m := factory()
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, m); err != nil {
			return nil, fmt.Errorf("decode %s metadata: %w", action, err)
		}
	}
	return deref(m), nil
}

// deref returns the value form so decoded metadata compares equal to what
// callers passed to LogDataAccess.
func deref(m Metadata) Metadata {
	switch v := m.(type) {
	case *CreateMetadata:
		return *v
	case *ViewMetadata:
		return *v
	case *ListMetadata:
		return *v
	case *UpdateMetadata:
		return *v
	case *DeleteMetadata:
		return *v
	case *ArchiveMetadata:
		return *v
	case *ExportMetadata:
		return *v
	case *PrintMetadata:
		return *v
	case *RestoreMetadata:
		return *v
	case *BackupMetadata:
		return *v
	case *PurgeMetadata:
		return *v
	}
	return m
}

// UnmarshalJSON lets an Entry round-trip through JSON (streaming, export).
func (e *Entry) UnmarshalJSON(b []byte) error {
	type alias Entry
	var raw struct {
		alias
		Metadata json.RawMessage `json:"metadata"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*e = Entry(raw.alias)
	m, err := DecodeMetadata(e.Action, raw.Metadata)
	if err != nil {
		return err
	}
	e.Metadata = m
	return nil
}
