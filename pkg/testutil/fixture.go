package testutil

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"safereport/internal/incident/models"
	mmodels "safereport/internal/membership/models"
	mstore "safereport/internal/membership/store"
	id "safereport/pkg/domain"
)

// Tenant is one team inside one organization with a user per role and a
// resident, backed by in-memory membership stores that several tenants may
// share.
type Tenant struct {
	TeamID         id.TeamID
	OrganizationID id.OrganizationID
	Owner          id.UserID
	Admin          id.UserID
	Member         id.UserID
	Resident       *mmodels.Resident

	Memberships *mstore.InMemoryMembershipStore
	Residents   *mstore.InMemoryResidentStore
}

// NewTenant seeds a tenant into the given stores.
func NewTenant(t testing.TB, memberships *mstore.InMemoryMembershipStore, residents *mstore.InMemoryResidentStore) *Tenant {
	t.Helper()
	tn := &Tenant{
		TeamID:         id.TeamID(uuid.New()),
		OrganizationID: id.OrganizationID(uuid.New()),
		Memberships:    memberships,
		Residents:      residents,
	}
	tn.Owner = tn.AddUser(t, mmodels.RoleOwner)
	tn.Admin = tn.AddUser(t, mmodels.RoleAdmin)
	tn.Member = tn.AddUser(t, mmodels.RoleMember)
	tn.Resident = tn.AddResident(t, "Ada Brown")
	return tn
}

func (tn *Tenant) AddUser(t testing.TB, role mmodels.Role) id.UserID {
	t.Helper()
	userID := id.UserID(uuid.New())
	require.NoError(t, tn.Memberships.Save(context.Background(), &mmodels.Membership{
		UserID:         userID,
		TeamID:         tn.TeamID,
		OrganizationID: tn.OrganizationID,
		Role:           role,
	}))
	return userID
}

func (tn *Tenant) AddResident(t testing.TB, name string) *mmodels.Resident {
	t.Helper()
	r := &mmodels.Resident{
		ID:             id.ResidentID(uuid.New()),
		Name:           name,
		RoomNumber:     "12B",
		TeamID:         tn.TeamID,
		OrganizationID: tn.OrganizationID,
	}
	require.NoError(t, tn.Residents.Save(context.Background(), r))
	return r
}

// Narrative returns a plain-text description of at least n characters.
func Narrative(n int) string {
	const sentence = "Resident was found seated beside the bed and was assisted by staff. "
	return strings.TrimSpace(strings.Repeat(sentence, n/len(sentence)+1))
}

// ValidPayload is a minor-injury report dated the day before now.
func ValidPayload(residentID id.ResidentID, now time.Time) models.Payload {
	return models.Payload{
		ResidentID:           residentID,
		Date:                 now.AddDate(0, 0, -1).Format("2006-01-02"),
		Time:                 "14:30",
		IncidentTypes:        []string{"fall"},
		Level:                models.LevelMinorInjury,
		Description:          Narrative(60),
		InjuryDescription:    "Bruised left forearm",
		TreatmentDescription: "Cold compress applied",
		ActionsTaken:         "Bed alarm enabled",
		Witnesses:            []string{"Night nurse"},
		HomeName:             "Maple House",
		Unit:                 "North Wing",
	}
}

// ActiveIncident builds an active incident for the tenant's resident.
func (tn *Tenant) ActiveIncident(date string, createdAt time.Time) *models.Incident {
	return &models.Incident{
		ID:                   id.IncidentID(uuid.New()),
		Date:                 date,
		Time:                 "08:15",
		IncidentTypes:        []string{"fall"},
		Level:                models.LevelNoHarm,
		Description:          Narrative(60),
		HomeName:             "Maple House",
		Unit:                 "North Wing",
		ResidentID:           tn.Resident.ID,
		TeamID:               tn.TeamID,
		OrganizationID:       tn.OrganizationID,
		State:                models.StateActive,
		RetentionPeriodYears: models.RetentionPeriodYears,
		CreatedBy:            tn.Member,
		CreatedAt:            createdAt,
	}
}
