package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"safereport/internal/incident/models"
	"safereport/internal/lifecycle/backup"
	id "safereport/pkg/domain"
	"safereport/pkg/platform/sentinel"
	txcontext "safereport/pkg/platform/tx"
)

const uniqueViolation = "23505"

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func execer(ctx context.Context, db *sql.DB) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return db
}

type PostgresBackupStore struct {
	db *sql.DB
}

func NewPostgresBackupStore(db *sql.DB) *PostgresBackupStore {
	return &PostgresBackupStore{db: db}
}

const backupColumns = `
	id, backup_date, incident_count, file_size, storage_key, status, checksum,
	scope_kind, organization_id, team_id, created_by
`

func (s *PostgresBackupStore) Create(ctx context.Context, b *backup.Backup) error {
	var teamID uuid.NullUUID
	if b.ScopeKind == models.ScopeTeam {
		teamID = uuid.NullUUID{UUID: uuid.UUID(b.TeamID), Valid: true}
	}
	_, err := execer(ctx, s.db).ExecContext(ctx, `
		INSERT INTO backups (`+backupColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.UUID(b.ID), b.BackupDate, b.IncidentCount, b.FileSize, b.StorageKey,
		string(b.Status), b.Checksum, string(b.ScopeKind),
		uuid.UUID(b.OrganizationID), teamID, uuid.UUID(b.CreatedBy),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrAlreadyExists
		}
		return fmt.Errorf("insert backup: %w", err)
	}
	return nil
}

func (s *PostgresBackupStore) FindByID(ctx context.Context, backupID id.BackupID) (*backup.Backup, error) {
	rows, err := execer(ctx, s.db).QueryContext(ctx,
		`SELECT `+backupColumns+` FROM backups WHERE id = $1`, uuid.UUID(backupID))
	if err != nil {
		return nil, fmt.Errorf("find backup: %w", err)
	}
	out, err := scanBackups(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return out[0], nil
}

func (s *PostgresBackupStore) ListByScope(ctx context.Context, scope models.Scope) ([]*backup.Backup, error) {
	var (
		rows *sql.Rows
		err  error
	)
	switch scope.Kind {
	case models.ScopeTeam:
		rows, err = execer(ctx, s.db).QueryContext(ctx,
			`SELECT `+backupColumns+` FROM backups WHERE scope_kind = $1 AND team_id = $2 ORDER BY backup_date DESC`,
			string(scope.Kind), scope.ID)
	case models.ScopeOrganization:
		rows, err = execer(ctx, s.db).QueryContext(ctx,
			`SELECT `+backupColumns+` FROM backups WHERE scope_kind = $1 AND organization_id = $2 ORDER BY backup_date DESC`,
			string(scope.Kind), scope.ID)
	default:
		return nil, fmt.Errorf("backups are not kept for scope %q", scope.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	return scanBackups(rows)
}

func scanBackups(rows *sql.Rows) ([]*backup.Backup, error) {
	defer rows.Close()
	var out []*backup.Backup
	for rows.Next() {
		var (
			b                   backup.Backup
			backupID, orgID, by uuid.UUID
			teamID              uuid.NullUUID
			status, kind        string
		)
		if err := rows.Scan(&backupID, &b.BackupDate, &b.IncidentCount, &b.FileSize, &b.StorageKey,
			&status, &b.Checksum, &kind, &orgID, &teamID, &by); err != nil {
			return nil, fmt.Errorf("scan backup: %w", err)
		}
		b.ID = id.BackupID(backupID)
		b.Status = backup.Status(status)
		b.ScopeKind = models.ScopeKind(kind)
		b.OrganizationID = id.OrganizationID(orgID)
		if teamID.Valid {
			b.TeamID = id.TeamID(teamID.UUID)
		}
		b.CreatedBy = id.UserID(by)
		out = append(out, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backups: %w", err)
	}
	return out, nil
}

// PostgresBlobStore keeps snapshot bytes in a bytea column.
type PostgresBlobStore struct {
	db *sql.DB
}

func NewPostgresBlobStore(db *sql.DB) *PostgresBlobStore {
	return &PostgresBlobStore{db: db}
}

func (s *PostgresBlobStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := execer(ctx, s.db).ExecContext(ctx, `
		INSERT INTO backup_blobs (storage_key, data, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (storage_key) DO UPDATE SET data = EXCLUDED.data`,
		key, data)
	if err != nil {
		return fmt.Errorf("put blob: %w", err)
	}
	return nil
}

func (s *PostgresBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := execer(ctx, s.db).QueryRowContext(ctx,
		`SELECT data FROM backup_blobs WHERE storage_key = $1`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get blob: %w", err)
	}
	return data, nil
}
