package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"safereport/internal/incident/models"
	id "safereport/pkg/domain"
	"safereport/pkg/platform/sentinel"
)

type InMemoryIncidentStoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *InMemoryIncidentStore
	team  id.TeamID
}

func TestInMemoryIncidentStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryIncidentStoreSuite))
}

func (s *InMemoryIncidentStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemoryIncidentStore()
	s.team = id.TeamID(uuid.New())
}

func (s *InMemoryIncidentStoreSuite) incident(date string) *models.Incident {
	inc := &models.Incident{
		ID:            id.IncidentID(uuid.New()),
		Date:          date,
		Time:          "09:30",
		IncidentTypes: []string{"fall"},
		Level:         models.LevelNoHarm,
		TeamID:        s.team,
		State:         models.StateActive,
		CreatedAt:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	s.Require().NoError(s.store.Create(s.ctx, inc))
	return inc
}

func (s *InMemoryIncidentStoreSuite) TestPagesWithoutGapsOrDuplicates() {
	dates := []string{"2025-03-01", "2025-03-02", "2025-03-02", "2025-03-03", "2025-03-03", "2025-03-03", "2025-03-04"}
	for _, d := range dates {
		s.incident(d)
	}

	scope := models.TeamScope(s.team)
	seen := map[id.IncidentID]bool{}
	var cursor *models.Cursor
	var prev *models.Incident
	for {
		page, err := s.store.ListPage(s.ctx, scope, cursor, 3)
		s.Require().NoError(err)
		if len(page) == 0 {
			break
		}
		for _, inc := range page {
			s.False(seen[inc.ID], "duplicate %s", inc.ID)
			seen[inc.ID] = true
			if prev != nil {
				s.True(models.Less(prev, inc))
			}
			prev = inc
		}
		cursor = models.CursorFor(page[len(page)-1])
	}
	s.Len(seen, len(dates))
}

func (s *InMemoryIncidentStoreSuite) TestCreateRejectsDuplicateID() {
	inc := s.incident("2025-03-01")
	s.ErrorIs(s.store.Create(s.ctx, inc), sentinel.ErrAlreadyExists)

	inserted, err := s.store.CreateIfAbsent(s.ctx, inc)
	s.Require().NoError(err)
	s.False(inserted)
}

func (s *InMemoryIncidentStoreSuite) TestReturnedIncidentsAreCopies() {
	inc := s.incident("2025-03-01")
	got, err := s.store.FindByID(s.ctx, inc.ID)
	s.Require().NoError(err)
	got.IncidentTypes[0] = "mutated"

	again, err := s.store.FindByID(s.ctx, inc.ID)
	s.Require().NoError(err)
	s.Equal("fall", again.IncidentTypes[0])
}

func (s *InMemoryIncidentStoreSuite) TestLifecycleQueries() {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	old := s.incident("2025-01-01")
	expired := s.incident("2025-01-02")
	past := now.Add(-time.Millisecond)
	expired.ScheduledDeletionAt = &past
	expired.IsArchived = true
	expired.State = models.StateScheduledDeletion
	s.Require().NoError(s.store.SaveTransition(s.ctx, expired, models.StateActive))

	archivable, err := s.store.ListArchivable(s.ctx, now.AddDate(-1, 0, 0), 10)
	s.Require().NoError(err)
	s.Require().Len(archivable, 1)
	s.Equal(old.ID, archivable[0].ID)

	due, err := s.store.ListExpired(s.ctx, now, 10)
	s.Require().NoError(err)
	s.Require().Len(due, 1)
	s.Equal(expired.ID, due[0].ID)

	s.Require().NoError(s.store.Delete(s.ctx, expired.ID))
	s.ErrorIs(s.store.Delete(s.ctx, expired.ID), sentinel.ErrNotFound)
	_, err = s.store.FindByID(s.ctx, expired.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryIncidentStoreSuite) TestContentUpdateDoesNotReviveFrozenRecord() {
	inc := s.incident("2025-03-01")
	stale := inc.Clone()

	deleted := inc.Clone()
	s.Require().NoError(deleted.SoftDelete("duplicate", time.Now()))
	s.Require().NoError(s.store.SaveTransition(s.ctx, deleted, models.StateActive))

	stale.Unit = "South Wing"
	s.ErrorIs(s.store.UpdateContent(s.ctx, stale), sentinel.ErrInvalidState)

	got, err := s.store.FindByID(s.ctx, inc.ID)
	s.Require().NoError(err)
	s.Equal(models.StateSoftDeleted, got.State)
	s.Empty(got.Unit)
}

func (s *InMemoryIncidentStoreSuite) TestTransitionKeepsConcurrentContentEdit() {
	inc := s.incident("2025-03-01")
	stale := inc.Clone()

	edited := inc.Clone()
	edited.Unit = "South Wing"
	s.Require().NoError(s.store.UpdateContent(s.ctx, edited))

	s.Require().NoError(stale.Archive(models.ArchiveReasonAutomatic, time.Now()))
	s.Require().NoError(s.store.SaveTransition(s.ctx, stale, models.StateActive))

	got, err := s.store.FindByID(s.ctx, inc.ID)
	s.Require().NoError(err)
	s.Equal(models.StateArchived, got.State)
	s.Equal("South Wing", got.Unit)

	s.ErrorIs(s.store.SaveTransition(s.ctx, stale, models.StateActive), sentinel.ErrInvalidState)
	s.ErrorIs(s.store.UpdateContent(s.ctx, &models.Incident{ID: id.IncidentID(uuid.New())}), sentinel.ErrNotFound)
}

func TestInMemoryMediaStore_FindAvatarsByOwners(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryMediaStore()
	owner := id.ResidentID(uuid.New())
	other := id.ResidentID(uuid.New())
	avatar := &models.Media{ID: id.MediaID(uuid.New()), OwnerID: owner, StorageKey: "avatars/a.png", Kind: models.MediaKindAvatar}
	require.NoError(t, store.Save(ctx, avatar))
	require.NoError(t, store.Save(ctx, &models.Media{ID: id.MediaID(uuid.New()), OwnerID: owner, Kind: "document"}))
	require.NoError(t, store.Save(ctx, &models.Media{ID: id.MediaID(uuid.New()), OwnerID: other, Kind: models.MediaKindAvatar}))

	got, err := store.FindAvatarsByOwners(ctx, []id.ResidentID{owner})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, avatar.ID, got[0].ID)
	assert.Equal(t, 1, store.Calls())
}

func TestInMemoryReadStatusStore(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryReadStatusStore()
	user := id.UserID(uuid.New())
	read := id.IncidentID(uuid.New())
	unread := id.IncidentID(uuid.New())

	require.NoError(t, store.MarkRead(ctx, &models.ReadStatus{UserID: user, IncidentID: read, ReadAt: time.Now()}))
	set, err := store.ReadSet(ctx, user, []id.IncidentID{read, unread})
	require.NoError(t, err)
	assert.Contains(t, set, read)
	assert.NotContains(t, set, unread)

	other, err := store.ReadSet(ctx, id.UserID(uuid.New()), []id.IncidentID{read})
	require.NoError(t, err)
	assert.Empty(t, other)
}
