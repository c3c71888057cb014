package app_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safereport/internal/app"
	"safereport/internal/audit"
	"safereport/internal/compliance"
	"safereport/internal/incident/models"
	mmodels "safereport/internal/membership/models"
	"safereport/internal/platform/config"
	id "safereport/pkg/domain"
	"safereport/pkg/requestcontext"
	"safereport/pkg/testutil"
)

func testConfig() *config.Server {
	return &config.Server{
		MediaBaseURL: "http://media.test",
		RateLimit:    config.RateLimitConfig{CreateLimit: 10, CreateWindow: time.Hour},
		Lifecycle:    config.LifecycleConfig{BatchSize: 100},
		Export:       config.ExportConfig{PseudonymKey: "test-key"},
	}
}

func TestBuildRequiresConfig(t *testing.T) {
	_, err := app.Build(context.Background(), nil, nil, prometheus.NewRegistry())
	assert.Error(t, err)
}

func TestBuildInMemoryWiresEveryService(t *testing.T) {
	ctx := context.Background()
	a, err := app.Build(ctx, testConfig(), slog.New(slog.DiscardHandler), prometheus.NewRegistry())
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.Seed)
	require.NoError(t, a.Ready(ctx))

	owner := a.Seed.Users[mmodels.RoleOwner]
	member, err := a.Identity.Resolve(requestcontext.WithEmail(ctx, app.DemoMemberEmail))
	require.NoError(t, err)
	assert.Equal(t, a.Seed.Users[mmodels.RoleMember], member.ID)
	assert.Equal(t, "Member", member.Name)

	inc, err := a.Incidents.Create(ctx, member.ID, testutil.ValidPayload(a.Seed.ResidentID, time.Now().UTC()))
	require.NoError(t, err)
	assert.Equal(t, a.Seed.TeamID, inc.TeamID)
	assert.Equal(t, a.Seed.OrganizationID, inc.OrganizationID)

	page, err := a.Incidents.GetIncidentsPage(ctx, owner, models.TeamScope(a.Seed.TeamID), "", 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Demo Resident", page.Items[0].Resident.Name)

	created, err := a.Backups.CreateBackup(ctx, owner, models.TeamScope(a.Seed.TeamID))
	require.NoError(t, err)
	assert.Equal(t, 1, created.IncidentCount)

	restored, err := a.Backups.RestoreFromBackup(ctx, owner, created.BackupID, true)
	require.NoError(t, err)
	assert.Equal(t, 0, restored.RestoredCount)
	assert.Equal(t, 1, restored.TotalInBackup)

	exported, err := a.Exports.ExportSubjectData(ctx, member.ID, compliance.UserSubject(member.ID), compliance.FormatJSON)
	require.NoError(t, err)
	assert.Positive(t, exported.RecordCount)

	entries, err := a.Trail.GetAuditTrail(ctx, owner, audit.Filter{IncidentIDs: []id.IncidentID{inc.ID}}, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)

	pending, err := a.AuditStore.ListUnstreamed(ctx, 100)
	require.NoError(t, err)
	assert.NotEmpty(t, pending)
}
