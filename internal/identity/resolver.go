package identity

import (
	"context"
	"errors"

	dErrors "safereport/pkg/domain-errors"
	emailutil "safereport/pkg/email"
	"safereport/pkg/platform/sentinel"
	"safereport/pkg/requestcontext"
)

// UserStore looks users up by their verified email.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// Resolver maps the verified email claim on the request to an internal user.
type Resolver struct {
	users UserStore
}

func NewResolver(users UserStore) *Resolver {
	return &Resolver{users: users}
}

// Resolve returns the caller's user record.
//
// Errors: Unauthenticated when no claim is present, UserNotFound when the
// claim matches no record, CodeInternal on store failure.
func (r *Resolver) Resolve(ctx context.Context) (*User, error) {
	email := emailutil.Normalize(requestcontext.Email(ctx))
	if email == "" {
		return nil, dErrors.Unauthenticated()
	}
	user, err := r.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.UserNotFound()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return user, nil
}
