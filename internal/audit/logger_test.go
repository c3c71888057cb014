package audit_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safereport/internal/audit"
	"safereport/internal/audit/metrics"
	"safereport/internal/audit/store/memory"
	id "safereport/pkg/domain"
	dErrors "safereport/pkg/domain-errors"
	"safereport/pkg/requestcontext"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func TestLogger_LogDataAccess(t *testing.T) {
	store := memory.NewInMemoryStore()
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := metrics.New(prometheus.NewRegistry())
	logger, err := audit.NewLogger(store, audit.WithClock(func() time.Time { return fixed }), audit.WithMetrics(m))
	require.NoError(t, err)

	ctx := requestcontext.WithRequestID(context.Background(), "req-123")
	ctx = requestcontext.WithClientMetadata(ctx, "10.0.0.7", chromeUA)

	incidentID := id.IncidentID(uuid.New())
	userID := id.UserID(uuid.New())
	meta := audit.UpdateMetadata{ChangedFields: []string{"description"}}

	require.NoError(t, logger.LogDataAccess(ctx, &incidentID, userID, meta))

	entries := store.All()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, audit.ActionUpdate, e.Action)
	assert.Equal(t, fixed, e.Timestamp)
	assert.Equal(t, incidentID, *e.IncidentID)
	assert.Equal(t, userID, e.UserID)
	assert.Equal(t, meta, e.Metadata)
	assert.Equal(t, "req-123", e.Request.RequestID)
	assert.Equal(t, "10.0.0.7", e.Request.ClientIP)
	assert.Contains(t, e.Request.UserAgent, "Chrome")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EntriesPersisted.WithLabelValues("update")))
}

func TestLogger_FailClosed(t *testing.T) {
	store := memory.NewInMemoryStore()
	store.FailAppends(errors.New("disk full"))
	m := metrics.New(prometheus.NewRegistry())
	logger, err := audit.NewLogger(store, audit.WithMetrics(m))
	require.NoError(t, err)

	err = logger.LogDataAccess(context.Background(), nil, id.UserID(uuid.New()), audit.ListMetadata{Scope: "team"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PersistFailures))
}

func TestLogger_RejectsIncompleteEntries(t *testing.T) {
	logger, err := audit.NewLogger(memory.NewInMemoryStore())
	require.NoError(t, err)

	assert.Error(t, logger.LogDataAccess(context.Background(), nil, id.UserID(uuid.New()), nil))
	assert.Error(t, logger.LogDataAccess(context.Background(), nil, id.UserID{}, audit.ViewMetadata{}))

	_, err = audit.NewLogger(nil)
	assert.Error(t, err)
}

func TestEntry_JSONRoundTrip(t *testing.T) {
	incidentID := id.IncidentID(uuid.New())
	in := &audit.Entry{
		ID:         id.AuditEntryID(uuid.New()),
		IncidentID: &incidentID,
		UserID:     id.UserID(uuid.New()),
		Action:     audit.ActionPurge,
		Timestamp:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Metadata: audit.PurgeMetadata{
			Level:               "near_miss",
			Reason:              "retention_period_expired",
			ScheduledDeletionAt: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		},
		Additional: map[string]string{"job": "retention"},
	}

	raw, err := json.Marshal(in)
	require.NoError(t, err)

	var out audit.Entry
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in, &out)
}

func TestDecodeMetadata_UnknownAction(t *testing.T) {
	_, err := audit.DecodeMetadata(audit.Action("teleport"), []byte(`{}`))
	assert.Error(t, err)
}

func TestSummarizeUserAgent(t *testing.T) {
	assert.Equal(t, "", audit.SummarizeUserAgent(""))
	assert.Contains(t, audit.SummarizeUserAgent(chromeUA), "Windows")
	assert.Contains(t, audit.SummarizeUserAgent("Googlebot/2.1 (+http://www.google.com/bot.html)"), "bot")
}

func TestFilter_Matches(t *testing.T) {
	incidentID := id.IncidentID(uuid.New())
	userID := id.UserID(uuid.New())
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e := &audit.Entry{IncidentID: &incidentID, UserID: userID, Timestamp: ts}

	before := ts.Add(-time.Hour)
	after := ts.Add(time.Hour)
	other := id.UserID(uuid.New())

	assert.True(t, audit.Filter{IncidentIDs: []id.IncidentID{incidentID}}.Matches(e))
	assert.True(t, audit.Filter{UserID: &userID, From: &before, To: &after}.Matches(e))
	assert.False(t, audit.Filter{UserID: &other}.Matches(e))
	assert.False(t, audit.Filter{From: &after}.Matches(e))
	assert.False(t, audit.Filter{IncidentIDs: []id.IncidentID{id.IncidentID(uuid.New())}}.Matches(e))
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 100, audit.ClampLimit(0))
	assert.Equal(t, 5, audit.ClampLimit(5))
	assert.Equal(t, 1000, audit.ClampLimit(5000))
}
