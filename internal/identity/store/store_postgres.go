package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"safereport/internal/identity"
	id "safereport/pkg/domain"
	"safereport/pkg/platform/sentinel"
)

// PostgresUserStore reads the users table populated by the auth provider sync.
type PostgresUserStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

func (s *PostgresUserStore) FindByEmail(ctx context.Context, email string) (*identity.User, error) {
	return s.findOne(ctx, `SELECT id, email, name, created_at FROM users WHERE lower(email) = lower($1)`, email)
}

func (s *PostgresUserStore) FindByID(ctx context.Context, userID id.UserID) (*identity.User, error) {
	return s.findOne(ctx, `SELECT id, email, name, created_at FROM users WHERE id = $1`, uuid.UUID(userID))
}

func (s *PostgresUserStore) findOne(ctx context.Context, query string, arg any) (*identity.User, error) {
	var (
		u   identity.User
		uid uuid.UUID
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&uid, &u.Email, &u.Name, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	u.ID = id.UserID(uid)
	return &u, nil
}
