package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"safereport/internal/incident/models"
	id "safereport/pkg/domain"
)

// PostgresMediaStore reads the media table.
type PostgresMediaStore struct {
	db *sql.DB
}

func NewPostgresMediaStore(db *sql.DB) *PostgresMediaStore {
	return &PostgresMediaStore{db: db}
}

// FindAvatarsByOwners loads avatar rows for all owners with one query.
func (s *PostgresMediaStore) FindAvatarsByOwners(ctx context.Context, owners []id.ResidentID) ([]*models.Media, error) {
	if len(owners) == 0 {
		return nil, nil
	}
	keys := make([]string, len(owners))
	for i, o := range owners {
		keys[i] = o.String()
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, storage_key, kind
		FROM media
		WHERE owner_id = ANY($1::uuid[]) AND kind = $2
	`, pq.Array(keys), models.MediaKindAvatar)
	if err != nil {
		return nil, fmt.Errorf("find avatars: %w", err)
	}
	defer rows.Close()

	var out []*models.Media
	for rows.Next() {
		var (
			m              models.Media
			mediaID, owner uuid.UUID
		)
		if err := rows.Scan(&mediaID, &owner, &m.StorageKey, &m.Kind); err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		m.ID, m.OwnerID = id.MediaID(mediaID), id.ResidentID(owner)
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate media: %w", err)
	}
	return out, nil
}

// PostgresReadStatusStore reads and writes the read_status table.
type PostgresReadStatusStore struct {
	db *sql.DB
}

func NewPostgresReadStatusStore(db *sql.DB) *PostgresReadStatusStore {
	return &PostgresReadStatusStore{db: db}
}

// MarkRead upserts the read marker, keeping the first read time.
func (s *PostgresReadStatusStore) MarkRead(ctx context.Context, status *models.ReadStatus) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO read_status (user_id, incident_id, read_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, incident_id) DO NOTHING
	`, uuid.UUID(status.UserID), uuid.UUID(status.IncidentID), status.ReadAt)
	if err != nil {
		return fmt.Errorf("mark incident read: %w", err)
	}
	return nil
}

// ReadSet returns the subset of incidentIDs that userID has read.
func (s *PostgresReadStatusStore) ReadSet(ctx context.Context, userID id.UserID, incidentIDs []id.IncidentID) (map[id.IncidentID]struct{}, error) {
	out := make(map[id.IncidentID]struct{})
	if len(incidentIDs) == 0 {
		return out, nil
	}
	keys := make([]string, len(incidentIDs))
	for i, iid := range incidentIDs {
		keys[i] = iid.String()
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT incident_id FROM read_status
		WHERE user_id = $1 AND incident_id = ANY($2::uuid[])
	`, uuid.UUID(userID), pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("load read status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var iid uuid.UUID
		if err := rows.Scan(&iid); err != nil {
			return nil, fmt.Errorf("scan read status: %w", err)
		}
		out[id.IncidentID(iid)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate read status: %w", err)
	}
	return out, nil
}
