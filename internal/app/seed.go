package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"safereport/internal/identity"
	identitystore "safereport/internal/identity/store"
	mmodels "safereport/internal/membership/models"
	membershipstore "safereport/internal/membership/store"
	id "safereport/pkg/domain"
	emailutil "safereport/pkg/email"
)

// Demo account emails. Tokens for them come from `safereportctl issue-token`.
const (
	DemoOwnerEmail  = "owner@safereport.local"
	DemoAdminEmail  = "admin@safereport.local"
	DemoMemberEmail = "member@safereport.local"
)

// DemoTenant is one organization with one team, a user per role, and a
// resident.
type DemoTenant struct {
	OrganizationID id.OrganizationID
	TeamID         id.TeamID
	ResidentID     id.ResidentID
	Users          map[mmodels.Role]id.UserID
}

// SeedDemoTenant creates the demo tenant so an in-memory deployment is usable
// without provisioning.
func SeedDemoTenant(ctx context.Context, users *identitystore.InMemoryUserStore, memberships *membershipstore.InMemoryMembershipStore, residents *membershipstore.InMemoryResidentStore) (*DemoTenant, error) {
	now := time.Now().UTC()
	t := &DemoTenant{
		OrganizationID: id.OrganizationID(uuid.New()),
		TeamID:         id.TeamID(uuid.New()),
		ResidentID:     id.ResidentID(uuid.New()),
		Users:          make(map[mmodels.Role]id.UserID, 3),
	}
	accounts := []struct {
		role  mmodels.Role
		email string
	}{
		{mmodels.RoleOwner, DemoOwnerEmail},
		{mmodels.RoleAdmin, DemoAdminEmail},
		{mmodels.RoleMember, DemoMemberEmail},
	}
	for _, acc := range accounts {
		userID := id.UserID(uuid.New())
		if err := users.Save(ctx, &identity.User{ID: userID, Email: acc.email, Name: emailutil.DisplayName(acc.email), CreatedAt: now}); err != nil {
			return nil, err
		}
		err := memberships.Save(ctx, &mmodels.Membership{
			UserID:         userID,
			TeamID:         t.TeamID,
			OrganizationID: t.OrganizationID,
			Role:           acc.role,
		})
		if err != nil {
			return nil, err
		}
		t.Users[acc.role] = userID
	}
	err := residents.Save(ctx, &mmodels.Resident{
		ID:             t.ResidentID,
		Name:           "Demo Resident",
		RoomNumber:     "1A",
		TeamID:         t.TeamID,
		OrganizationID: t.OrganizationID,
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}
