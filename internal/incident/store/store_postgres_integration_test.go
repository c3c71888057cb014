//go:build integration

package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safereport/internal/audit"
	auditpostgres "safereport/internal/audit/store/postgres"
	"safereport/internal/incident/models"
	"safereport/internal/incident/store"
	id "safereport/pkg/domain"
	"safereport/pkg/platform/sentinel"
	txcontext "safereport/pkg/platform/tx"
	"safereport/pkg/testutil"
	"safereport/pkg/testutil/containers"
)

func newIncident(teamID id.TeamID, orgID id.OrganizationID, date string) *models.Incident {
	return &models.Incident{
		ID:                   id.IncidentID(uuid.New()),
		Date:                 date,
		Time:                 "09:00",
		IncidentTypes:        []string{"fall"},
		Level:                models.LevelNoHarm,
		Description:          testutil.Narrative(60),
		HomeName:             "Maple House",
		Unit:                 "North Wing",
		ResidentID:           id.ResidentID(uuid.New()),
		TeamID:               teamID,
		OrganizationID:       orgID,
		State:                models.StateActive,
		RetentionPeriodYears: models.RetentionPeriodYears,
		CreatedBy:            id.UserID(uuid.New()),
		CreatedAt:            time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestPostgresIncidentStoreAgainstRealDatabase(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	ctx := context.Background()
	incidents := store.NewPostgresIncidentStore(pg.DB)
	teamID, orgID := id.TeamID(uuid.New()), id.OrganizationID(uuid.New())

	t.Run("round trip", func(t *testing.T) {
		inc := newIncident(teamID, orgID, "2026-03-01")
		require.NoError(t, incidents.Create(ctx, inc))

		got, err := incidents.FindByID(ctx, inc.ID)
		require.NoError(t, err)
		assert.Equal(t, inc.Date, got.Date)
		assert.Equal(t, inc.IncidentTypes, got.IncidentTypes)
		assert.Equal(t, inc.TeamID, got.TeamID)

		created, err := incidents.CreateIfAbsent(ctx, inc)
		require.NoError(t, err)
		assert.False(t, created)
	})

	t.Run("keyset pages do not overlap", func(t *testing.T) {
		require.NoError(t, pg.Truncate(ctx))
		for _, d := range []string{"2026-01-01", "2026-01-02", "2026-01-03", "2026-01-04", "2026-01-05"} {
			require.NoError(t, incidents.Create(ctx, newIncident(teamID, orgID, d)))
		}
		scope := models.TeamScope(teamID)
		first, err := incidents.ListPage(ctx, scope, nil, 3)
		require.NoError(t, err)
		require.Len(t, first, 3)
		assert.Equal(t, "2026-01-05", first[0].Date)

		second, err := incidents.ListPage(ctx, scope, models.CursorFor(first[2]), 3)
		require.NoError(t, err)
		require.Len(t, second, 2)
		assert.Equal(t, "2026-01-02", second[0].Date)
	})

	t.Run("content update cannot revive a soft-deleted row", func(t *testing.T) {
		require.NoError(t, pg.Truncate(ctx))
		inc := newIncident(teamID, orgID, "2026-03-01")
		require.NoError(t, incidents.Create(ctx, inc))
		stale := inc.Clone()

		require.NoError(t, inc.SoftDelete("entered twice", time.Now().UTC()))
		require.NoError(t, incidents.SaveTransition(ctx, inc, models.StateActive))

		stale.Unit = "South Wing"
		assert.ErrorIs(t, incidents.UpdateContent(ctx, stale), sentinel.ErrInvalidState)

		got, err := incidents.FindByID(ctx, inc.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StateSoftDeleted, got.State)
		assert.NotEqual(t, "South Wing", got.Unit)

		page, err := incidents.ListPage(ctx, models.TeamScope(teamID), nil, 10)
		require.NoError(t, err)
		assert.Empty(t, page)
	})

	t.Run("rolled back transaction drops incident and audit entry", func(t *testing.T) {
		runner := txcontext.NewSQLRunner(pg.DB)
		auditStore := auditpostgres.New(pg.DB)
		inc := newIncident(teamID, orgID, "2026-02-01")
		boom := errors.New("downstream failure")

		err := runner.RunInTx(ctx, func(ctx context.Context) error {
			if err := incidents.Create(ctx, inc); err != nil {
				return err
			}
			if err := auditStore.Append(ctx, &audit.Entry{
				ID:         id.AuditEntryID(uuid.New()),
				IncidentID: &inc.ID,
				UserID:     inc.CreatedBy,
				Action:     audit.ActionCreate,
				Timestamp:  time.Now().UTC(),
				Metadata:   audit.CreateMetadata{ResidentID: inc.ResidentID.String(), Level: string(inc.Level)},
			}); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		_, err = incidents.FindByID(ctx, inc.ID)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		entries, err := auditStore.List(ctx, audit.Filter{IncidentIDs: []id.IncidentID{inc.ID}}, 10)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}
