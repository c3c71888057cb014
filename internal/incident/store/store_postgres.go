package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"safereport/internal/incident/models"
	id "safereport/pkg/domain"
	"safereport/pkg/platform/sentinel"
	txcontext "safereport/pkg/platform/tx"
)

// PostgresIncidentStore persists incidents. String lists are stored as jsonb
// and the date as a DATE column so keyset pagination can use the
// (scope, date, id) indexes.
type PostgresIncidentStore struct {
	db *sql.DB
}

func NewPostgresIncidentStore(db *sql.DB) *PostgresIncidentStore {
	return &PostgresIncidentStore{db: db}
}

const uniqueViolation = "23505"

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresIncidentStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const incidentColumns = `
	id, to_char(date, 'YYYY-MM-DD'), time, incident_types, incident_level,
	description, injury_description, treatment_description, actions_taken,
	witnesses, contributing_factors, home_name, unit, health_identifier,
	resident_id, team_id, organization_id,
	state, is_archived, is_read_only, archived_at, archive_reason,
	scheduled_deletion_at, retention_period_years,
	created_by, created_at, updated_by, updated_at
`

const insertIncident = `
	INSERT INTO incidents (
		id, date, time, incident_types, incident_level,
		description, injury_description, treatment_description, actions_taken,
		witnesses, contributing_factors, home_name, unit, health_identifier,
		resident_id, team_id, organization_id,
		state, is_archived, is_read_only, archived_at, archive_reason,
		scheduled_deletion_at, retention_period_years,
		created_by, created_at, updated_by, updated_at
	)
	VALUES ($1, $2::date, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)
`

func (s *PostgresIncidentStore) Create(ctx context.Context, incident *models.Incident) error {
	args, err := incidentArgs(incident)
	if err != nil {
		return err
	}
	_, err = s.execer(ctx).ExecContext(ctx, insertIncident, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrAlreadyExists
		}
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

// CreateIfAbsent inserts incident unless its id is taken and reports whether
// it was inserted. A conflict does not abort the surrounding transaction.
func (s *PostgresIncidentStore) CreateIfAbsent(ctx context.Context, incident *models.Incident) (bool, error) {
	args, err := incidentArgs(incident)
	if err != nil {
		return false, err
	}
	res, err := s.execer(ctx).ExecContext(ctx, insertIncident+" ON CONFLICT (id) DO NOTHING", args...)
	if err != nil {
		return false, fmt.Errorf("insert incident: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert incident: %w", err)
	}
	return n == 1, nil
}

func (s *PostgresIncidentStore) FindByID(ctx context.Context, incidentID id.IncidentID) (*models.Incident, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		"SELECT "+incidentColumns+" FROM incidents WHERE id = $1", uuid.UUID(incidentID))
	if err != nil {
		return nil, fmt.Errorf("find incident: %w", err)
	}
	defer rows.Close()
	incidents, err := scanIncidents(rows)
	if err != nil {
		return nil, err
	}
	if len(incidents) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return incidents[0], nil
}

// UpdateContent writes the editable columns only, and only while the row is
// active and writable. A row archived, deleted or frozen since it was read
// yields sentinel.ErrInvalidState.
func (s *PostgresIncidentStore) UpdateContent(ctx context.Context, incident *models.Incident) error {
	types, witnesses, factors, err := encodeLists(incident)
	if err != nil {
		return err
	}
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE incidents SET
			date = $2::date, time = $3, incident_types = $4, incident_level = $5,
			description = $6, injury_description = $7, treatment_description = $8,
			actions_taken = $9, witnesses = $10, contributing_factors = $11,
			home_name = $12, unit = $13, health_identifier = $14,
			updated_by = $15, updated_at = $16
		WHERE id = $1 AND state = 'active' AND NOT is_archived AND NOT is_read_only
	`,
		uuid.UUID(incident.ID), incident.Date, incident.Time, types, string(incident.Level),
		incident.Description, incident.InjuryDescription, incident.TreatmentDescription,
		incident.ActionsTaken, witnesses, factors,
		incident.HomeName, incident.Unit, incident.HealthIdentifier,
		nullableUser(incident.UpdatedBy), incident.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update incident: %w", err)
	}
	return s.guardedResult(ctx, res, incident.ID)
}

// SaveTransition writes the lifecycle columns only, and only while the row is
// still in state from.
func (s *PostgresIncidentStore) SaveTransition(ctx context.Context, incident *models.Incident, from models.State) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE incidents SET
			state = $2, is_archived = $3, is_read_only = $4, archived_at = $5,
			archive_reason = $6, scheduled_deletion_at = $7,
			retention_period_years = $8, updated_by = $9, updated_at = $10
		WHERE id = $1 AND state = $11
	`,
		uuid.UUID(incident.ID), string(incident.State), incident.IsArchived, incident.IsReadOnly,
		incident.ArchivedAt, incident.ArchiveReason, incident.ScheduledDeletionAt,
		incident.RetentionPeriodYears, nullableUser(incident.UpdatedBy), incident.UpdatedAt,
		string(from),
	)
	if err != nil {
		return fmt.Errorf("save incident transition: %w", err)
	}
	return s.guardedResult(ctx, res, incident.ID)
}

// guardedResult tells a missing row from one whose guard did not hold.
func (s *PostgresIncidentStore) guardedResult(ctx context.Context, res sql.Result, incidentID id.IncidentID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	var exists bool
	err = s.execer(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM incidents WHERE id = $1)`, uuid.UUID(incidentID)).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check incident: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrInvalidState
}

// Delete removes the row permanently. Audit rows keep their incident_id.
func (s *PostgresIncidentStore) Delete(ctx context.Context, incidentID id.IncidentID) error {
	res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM incidents WHERE id = $1`, uuid.UUID(incidentID))
	if err != nil {
		return fmt.Errorf("delete incident: %w", err)
	}
	return expectOneRow(res)
}

// ListPage is the index fetch of a list page: one query on the scope's
// (column, date, id) index. Soft-deleted rows are skipped.
func (s *PostgresIncidentStore) ListPage(ctx context.Context, scope models.Scope, cursor *models.Cursor, limit int) ([]*models.Incident, error) {
	column, err := scopeColumn(scope)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + incidentColumns + " FROM incidents WHERE " + column + " = $1 AND state <> 'soft_deleted'"
	args := []any{scope.ID}
	if cursor != nil {
		query += " AND (date, id) < ($2::date, $3)"
		args = append(args, cursor.Date, uuid.UUID(cursor.ID))
	}
	query += fmt.Sprintf(" ORDER BY date DESC, id DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)
	return s.query(ctx, "list incident page", query, args...)
}

func (s *PostgresIncidentStore) ListByScope(ctx context.Context, scope models.Scope) ([]*models.Incident, error) {
	column, err := scopeColumn(scope)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, "list incidents by scope",
		"SELECT "+incidentColumns+" FROM incidents WHERE "+column+" = $1 ORDER BY date DESC, id DESC", scope.ID)
}

func (s *PostgresIncidentStore) ListByCreator(ctx context.Context, userID id.UserID) ([]*models.Incident, error) {
	return s.query(ctx, "list incidents by creator",
		"SELECT "+incidentColumns+" FROM incidents WHERE created_by = $1 ORDER BY date DESC, id DESC", uuid.UUID(userID))
}

func (s *PostgresIncidentStore) ListArchivable(ctx context.Context, cutoff time.Time, limit int) ([]*models.Incident, error) {
	return s.query(ctx, "list archivable incidents",
		"SELECT "+incidentColumns+` FROM incidents
		WHERE is_archived = false AND state = 'active' AND created_at < $1
		ORDER BY created_at ASC LIMIT $2`, cutoff, limit)
}

func (s *PostgresIncidentStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.Incident, error) {
	return s.query(ctx, "list expired incidents",
		"SELECT "+incidentColumns+` FROM incidents
		WHERE scheduled_deletion_at IS NOT NULL AND scheduled_deletion_at <= $1
		ORDER BY scheduled_deletion_at ASC LIMIT $2`, now, limit)
}

func (s *PostgresIncidentStore) ListScheduledForDeletion(ctx context.Context, scope models.Scope, until time.Time) ([]*models.Incident, error) {
	column, err := scopeColumn(scope)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, "list incidents scheduled for deletion",
		"SELECT "+incidentColumns+" FROM incidents WHERE "+column+` = $1
		AND scheduled_deletion_at IS NOT NULL AND scheduled_deletion_at <= $2
		ORDER BY scheduled_deletion_at ASC`, scope.ID, until)
}

func (s *PostgresIncidentStore) query(ctx context.Context, op, query string, args ...any) ([]*models.Incident, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()
	return scanIncidents(rows)
}

func scopeColumn(scope models.Scope) (string, error) {
	switch scope.Kind {
	case models.ScopeTeam:
		return "team_id", nil
	case models.ScopeOrganization:
		return "organization_id", nil
	case models.ScopeResident:
		return "resident_id", nil
	}
	return "", fmt.Errorf("unknown scope kind %q", scope.Kind)
}

func incidentArgs(i *models.Incident) ([]any, error) {
	types, witnesses, factors, err := encodeLists(i)
	if err != nil {
		return nil, err
	}
	return []any{
		uuid.UUID(i.ID), i.Date, i.Time, types, string(i.Level),
		i.Description, i.InjuryDescription, i.TreatmentDescription, i.ActionsTaken,
		witnesses, factors, i.HomeName, i.Unit, i.HealthIdentifier,
		uuid.UUID(i.ResidentID), uuid.UUID(i.TeamID), uuid.UUID(i.OrganizationID),
		string(i.State), i.IsArchived, i.IsReadOnly, i.ArchivedAt, i.ArchiveReason,
		i.ScheduledDeletionAt, i.RetentionPeriodYears,
		uuid.UUID(i.CreatedBy), i.CreatedAt, nullableUser(i.UpdatedBy), i.UpdatedAt,
	}, nil
}

func encodeLists(i *models.Incident) (types, witnesses, factors string, err error) {
	enc := func(v []string) (string, error) {
		if v == nil {
			v = []string{}
		}
		raw, err := json.Marshal(v)
		return string(raw), err
	}
	if types, err = enc(i.IncidentTypes); err != nil {
		return "", "", "", fmt.Errorf("marshal incident types: %w", err)
	}
	if witnesses, err = enc(i.Witnesses); err != nil {
		return "", "", "", fmt.Errorf("marshal witnesses: %w", err)
	}
	if factors, err = enc(i.ContributingFactors); err != nil {
		return "", "", "", fmt.Errorf("marshal contributing factors: %w", err)
	}
	return types, witnesses, factors, nil
}

func nullableUser(u id.UserID) any {
	if u.IsNil() {
		return nil
	}
	return uuid.UUID(u)
}

func scanIncidents(rows *sql.Rows) ([]*models.Incident, error) {
	var out []*models.Incident
	for rows.Next() {
		var (
			inc                         models.Incident
			incID, resID, teamID, orgID uuid.UUID
			createdBy                   uuid.UUID
			updatedBy                   uuid.NullUUID
			types, witnesses, factors   []byte
			level, state                string
			injury, treatment, actions  sql.NullString
			health, archiveReason       sql.NullString
			archivedAt, deletionAt      sql.NullTime
			updatedAt                   sql.NullTime
		)
		err := rows.Scan(
			&incID, &inc.Date, &inc.Time, &types, &level,
			&inc.Description, &injury, &treatment, &actions,
			&witnesses, &factors, &inc.HomeName, &inc.Unit, &health,
			&resID, &teamID, &orgID,
			&state, &inc.IsArchived, &inc.IsReadOnly, &archivedAt, &archiveReason,
			&deletionAt, &inc.RetentionPeriodYears,
			&createdBy, &inc.CreatedAt, &updatedBy, &updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		inc.ID = id.IncidentID(incID)
		inc.ResidentID = id.ResidentID(resID)
		inc.TeamID = id.TeamID(teamID)
		inc.OrganizationID = id.OrganizationID(orgID)
		inc.CreatedBy = id.UserID(createdBy)
		if updatedBy.Valid {
			inc.UpdatedBy = id.UserID(updatedBy.UUID)
		}
		if updatedAt.Valid {
			inc.UpdatedAt = updatedAt.Time
		}
		inc.Level = models.Level(level)
		inc.State = models.State(state)
		inc.InjuryDescription = injury.String
		inc.TreatmentDescription = treatment.String
		inc.ActionsTaken = actions.String
		inc.HealthIdentifier = health.String
		inc.ArchiveReason = archiveReason.String
		if archivedAt.Valid {
			t := archivedAt.Time
			inc.ArchivedAt = &t
		}
		if deletionAt.Valid {
			t := deletionAt.Time
			inc.ScheduledDeletionAt = &t
		}
		for _, f := range []struct {
			raw []byte
			dst *[]string
		}{{types, &inc.IncidentTypes}, {witnesses, &inc.Witnesses}, {factors, &inc.ContributingFactors}} {
			if len(f.raw) == 0 {
				continue
			}
			if err := json.Unmarshal(f.raw, f.dst); err != nil {
				return nil, fmt.Errorf("decode incident lists: %w", err)
			}
		}
		out = append(out, &inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return out, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
