package identity

import (
	"time"

	id "safereport/pkg/domain"
)

// User is the internal record behind an authenticated identity. Users are
// synced from the auth provider; this layer only reads them.
type User struct {
	ID        id.UserID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
