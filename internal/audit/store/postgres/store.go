package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"safereport/internal/audit"
	id "safereport/pkg/domain"
	txcontext "safereport/pkg/platform/tx"
)

// Store implements audit.Store on the audit_log table. Rows double as the
// streaming outbox: streamed_at stays NULL until the stream worker has
// delivered them.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append inserts one entry inside the caller's transaction when present.
func (s *Store) Append(ctx context.Context, entry *audit.Entry) error {
	metadata, err := audit.EncodeMetadata(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}
	var additional any
	if len(entry.Additional) > 0 {
		raw, err := json.Marshal(entry.Additional)
		if err != nil {
			return fmt.Errorf("marshal audit additional: %w", err)
		}
		additional = string(raw)
	}
	var incidentID any
	if entry.IncidentID != nil {
		incidentID = uuid.UUID(*entry.IncidentID)
	}

	query := `
		INSERT INTO audit_log (
			id, incident_id, user_id, action, timestamp,
			metadata, additional, request_id, client_ip, user_agent
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(entry.ID),
		incidentID,
		uuid.UUID(entry.UserID),
		string(entry.Action),
		entry.Timestamp,
		string(metadata),
		additional,
		entry.Request.RequestID,
		entry.Request.ClientIP,
		entry.Request.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT id, incident_id, user_id, action, timestamp,
		   metadata, additional, request_id, client_ip, user_agent
	FROM audit_log
`

// List returns matching entries, newest first.
func (s *Store) List(ctx context.Context, filter audit.Filter, limit int) ([]*audit.Entry, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if len(filter.IncidentIDs) > 0 {
		keys := make([]string, len(filter.IncidentIDs))
		for i, iid := range filter.IncidentIDs {
			keys[i] = iid.String()
		}
		where = append(where, "incident_id = ANY("+arg(pq.Array(keys))+"::uuid[])")
	}
	if filter.UserID != nil {
		where = append(where, "user_id = "+arg(uuid.UUID(*filter.UserID)))
	}
	if filter.From != nil {
		where = append(where, "timestamp >= "+arg(*filter.From))
	}
	if filter.To != nil {
		where = append(where, "timestamp <= "+arg(*filter.To))
	}
	if filter.After != nil {
		ts := arg(filter.After.Timestamp)
		where = append(where, "(timestamp, id) < ("+ts+", "+arg(uuid.UUID(filter.After.ID))+")")
	}

	query := selectColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC"
	if limit > 0 {
		query += " LIMIT " + arg(limit)
	}

	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ListUnstreamed returns the oldest entries not yet delivered to the stream.
func (s *Store) ListUnstreamed(ctx context.Context, limit int) ([]*audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`
		WHERE streamed_at IS NULL
		ORDER BY timestamp ASC, id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unstreamed audit entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// MarkStreamed stamps delivered entries.
func (s *Store) MarkStreamed(ctx context.Context, ids []id.AuditEntryID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, eid := range ids {
		keys[i] = eid.String()
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE audit_log SET streamed_at = $1
		WHERE id = ANY($2::uuid[])
	`, at, pq.Array(keys))
	if err != nil {
		return fmt.Errorf("mark audit entries streamed: %w", err)
	}
	return nil
}

func scanEntries(rows *sql.Rows) ([]*audit.Entry, error) {
	var entries []*audit.Entry
	for rows.Next() {
		var (
			entry      audit.Entry
			entryID    uuid.UUID
			incidentID *uuid.UUID
			userID     uuid.UUID
			action     string
			metadata   []byte
			additional []byte
		)
		err := rows.Scan(
			&entryID,
			&incidentID,
			&userID,
			&action,
			&entry.Timestamp,
			&metadata,
			&additional,
			&entry.Request.RequestID,
			&entry.Request.ClientIP,
			&entry.Request.UserAgent,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.ID = id.AuditEntryID(entryID)
		entry.UserID = id.UserID(userID)
		entry.Action = audit.Action(action)
		if incidentID != nil {
			iid := id.IncidentID(*incidentID)
			entry.IncidentID = &iid
		}
		entry.Metadata, err = audit.DecodeMetadata(entry.Action, metadata)
		if err != nil {
			return nil, err
		}
		if len(additional) > 0 {
			if err := json.Unmarshal(additional, &entry.Additional); err != nil {
				return nil, fmt.Errorf("decode audit additional: %w", err)
			}
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
