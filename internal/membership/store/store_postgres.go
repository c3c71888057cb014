package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"safereport/internal/membership/models"
	id "safereport/pkg/domain"
	"safereport/pkg/platform/sentinel"
)

// PostgresMembershipStore reads the memberships table.
type PostgresMembershipStore struct {
	db *sql.DB
}

func NewPostgresMembershipStore(db *sql.DB) *PostgresMembershipStore {
	return &PostgresMembershipStore{db: db}
}

func (s *PostgresMembershipStore) FindByUser(ctx context.Context, userID id.UserID) (*models.Membership, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, team_id, organization_id, role
		FROM memberships
		WHERE user_id = $1
		LIMIT 1
	`, uuid.UUID(userID))
	return scanMembership(row)
}

func (s *PostgresMembershipStore) FindByUserAndTeam(ctx context.Context, userID id.UserID, teamID id.TeamID) (*models.Membership, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, team_id, organization_id, role
		FROM memberships
		WHERE user_id = $1 AND team_id = $2
	`, uuid.UUID(userID), uuid.UUID(teamID))
	return scanMembership(row)
}

func scanMembership(row *sql.Row) (*models.Membership, error) {
	var (
		userID, teamID, orgID uuid.UUID
		role                  string
	)
	if err := row.Scan(&userID, &teamID, &orgID, &role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan membership: %w", err)
	}
	parsed, err := models.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("scan membership: %w", err)
	}
	return &models.Membership{
		UserID:         id.UserID(userID),
		TeamID:         id.TeamID(teamID),
		OrganizationID: id.OrganizationID(orgID),
		Role:           parsed,
	}, nil
}

// PostgresResidentStore reads the residents table.
type PostgresResidentStore struct {
	db *sql.DB
}

func NewPostgresResidentStore(db *sql.DB) *PostgresResidentStore {
	return &PostgresResidentStore{db: db}
}

func (s *PostgresResidentStore) FindByID(ctx context.Context, residentID id.ResidentID) (*models.Resident, error) {
	var (
		r             models.Resident
		rid, tid, oid uuid.UUID
		room          sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, room_number, team_id, organization_id
		FROM residents WHERE id = $1
	`, uuid.UUID(residentID)).Scan(&rid, &r.Name, &room, &tid, &oid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find resident: %w", err)
	}
	r.ID, r.TeamID, r.OrganizationID, r.RoomNumber = id.ResidentID(rid), id.TeamID(tid), id.OrganizationID(oid), room.String
	return &r, nil
}

// FindByIDs loads every resident in ids with a single ANY($1) query.
func (s *PostgresResidentStore) FindByIDs(ctx context.Context, ids []id.ResidentID) ([]*models.Resident, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, rid := range ids {
		keys[i] = rid.String()
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, room_number, team_id, organization_id
		FROM residents WHERE id = ANY($1::uuid[])
	`, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("find residents: %w", err)
	}
	defer rows.Close()

	var out []*models.Resident
	for rows.Next() {
		var (
			r             models.Resident
			rid, tid, oid uuid.UUID
			room          sql.NullString
		)
		if err := rows.Scan(&rid, &r.Name, &room, &tid, &oid); err != nil {
			return nil, fmt.Errorf("scan resident: %w", err)
		}
		r.ID, r.TeamID, r.OrganizationID, r.RoomNumber = id.ResidentID(rid), id.TeamID(tid), id.OrganizationID(oid), room.String
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate residents: %w", err)
	}
	return out, nil
}
