// Package backup snapshots a tenant's incidents into checksummed blobs and
// restores them without overwriting live records.
package backup

import (
	"time"

	"github.com/google/uuid"

	"safereport/internal/incident/models"
	id "safereport/pkg/domain"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// SnapshotVersion is written into every blob. Restore refuses other versions.
const SnapshotVersion = 1

type Backup struct {
	ID             id.BackupID       `json:"id"`
	BackupDate     time.Time         `json:"backup_date"`
	IncidentCount  int               `json:"incident_count"`
	FileSize       int64             `json:"file_size"`
	StorageKey     string            `json:"-"`
	Status         Status            `json:"status"`
	Checksum       string            `json:"checksum"`
	ScopeKind      models.ScopeKind  `json:"scope"`
	OrganizationID id.OrganizationID `json:"organization_id"`
	TeamID         id.TeamID         `json:"team_id,omitempty"`
	CreatedBy      id.UserID         `json:"created_by"`
}

// Scope returns the scope the backup was taken over.
func (b *Backup) Scope() models.Scope {
	if b.ScopeKind == models.ScopeTeam {
		return models.TeamScope(b.TeamID)
	}
	return models.OrganizationScope(b.OrganizationID)
}

// Snapshot is the blob layout.
type Snapshot struct {
	Version   int                `json:"version"`
	Scope     string             `json:"scope"`
	CreatedAt time.Time          `json:"created_at"`
	Incidents []*models.Incident `json:"incidents"`
}

type CreateResult struct {
	BackupID      id.BackupID `json:"backup_id"`
	IncidentCount int         `json:"incident_count"`
	Checksum      string      `json:"checksum"`
}

type RestoreResult struct {
	BackupID      id.BackupID `json:"backup_id"`
	RestoredCount int         `json:"restored_count"`
	TotalInBackup int         `json:"total_in_backup"`
}

func storageKey(orgID id.OrganizationID, backupID id.BackupID) string {
	return "backups/" + orgID.String() + "/" + uuid.UUID(backupID).String() + ".json"
}
