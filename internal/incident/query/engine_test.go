package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"safereport/internal/incident/metrics"
	"safereport/internal/incident/models"
	"safereport/internal/incident/store"
	mmodels "safereport/internal/membership/models"
	mstore "safereport/internal/membership/store"
	id "safereport/pkg/domain"
)

type EngineSuite struct {
	suite.Suite
	ctx       context.Context
	incidents *store.InMemoryIncidentStore
	residents *mstore.InMemoryResidentStore
	media     *store.InMemoryMediaStore
	reads     *store.InMemoryReadStatusStore
	metrics   *metrics.Metrics
	engine    *Engine
	team      id.TeamID
	user      id.UserID
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.incidents = store.NewInMemoryIncidentStore()
	s.residents = mstore.NewInMemoryResidentStore()
	s.media = store.NewInMemoryMediaStore()
	s.reads = store.NewInMemoryReadStatusStore()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.team = id.TeamID(uuid.New())
	s.user = id.UserID(uuid.New())

	var err error
	s.engine, err = New(s.incidents, s.residents, s.media, s.reads,
		WithMetrics(s.metrics),
		WithURLResolver(NewBaseURLResolver("https://cdn.example.test/media")),
	)
	s.Require().NoError(err)
}

// seed creates n incidents spread over residents, each resident with an avatar.
func (s *EngineSuite) seed(n, residentCount int) []id.ResidentID {
	residentIDs := make([]id.ResidentID, residentCount)
	for r := range residentCount {
		rid := id.ResidentID(uuid.New())
		residentIDs[r] = rid
		s.Require().NoError(s.residents.Save(s.ctx, &mmodels.Resident{
			ID: rid, Name: fmt.Sprintf("Resident %d", r), TeamID: s.team,
		}))
		s.Require().NoError(s.media.Save(s.ctx, &models.Media{
			ID: id.MediaID(uuid.New()), OwnerID: rid, Kind: models.MediaKindAvatar,
			StorageKey: fmt.Sprintf("avatars/%d.png", r),
		}))
	}
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range n {
		s.Require().NoError(s.incidents.Create(s.ctx, &models.Incident{
			ID:         id.IncidentID(uuid.New()),
			Date:       base.AddDate(0, 0, i/3).Format("2006-01-02"),
			Time:       "10:00",
			Level:      models.LevelNoHarm,
			ResidentID: residentIDs[i%residentCount],
			TeamID:     s.team,
			State:      models.StateActive,
		}))
	}
	return residentIDs
}

func (s *EngineSuite) TestBatchedCallsIndependentOfPageSize() {
	for _, n := range []int{5, 50} {
		s.SetupTest()
		s.seed(n, 7)
		residentCalls, mediaCalls, readCalls := s.residents.Calls(), s.media.Calls(), s.reads.Calls()
		indexCalls := s.incidents.Calls()

		page, err := s.engine.Page(s.ctx, s.user, models.TeamScope(s.team), nil, 100)
		s.Require().NoError(err)
		s.Len(page.Items, n)

		s.Equal(1, s.incidents.Calls()-indexCalls, "index fetch for n=%d", n)
		s.Equal(1, s.residents.Calls()-residentCalls, "resident fetch for n=%d", n)
		s.Equal(1, s.media.Calls()-mediaCalls, "media fetch for n=%d", n)
		s.Equal(1, s.reads.Calls()-readCalls, "read status fetch for n=%d", n)
	}
}

func (s *EngineSuite) TestJoinsResidentAvatarAndReadStatus() {
	s.seed(3, 1)
	first, err := s.engine.Page(s.ctx, s.user, models.TeamScope(s.team), nil, 10)
	s.Require().NoError(err)
	s.Require().Len(first.Items, 3)

	readID := first.Items[1].ID
	s.Require().NoError(s.reads.MarkRead(s.ctx, &models.ReadStatus{UserID: s.user, IncidentID: readID, ReadAt: time.Now()}))

	page, err := s.engine.Page(s.ctx, s.user, models.TeamScope(s.team), nil, 10)
	s.Require().NoError(err)
	for _, item := range page.Items {
		s.Require().NotNil(item.Resident)
		s.Equal("Resident 0", item.Resident.Name)
		s.Equal("https://cdn.example.test/media/avatars/0.png", item.Resident.AvatarURL)
		s.Equal(item.ID == readID, item.IsRead)
	}
	s.False(page.HasMore)
	s.Empty(page.NextCursor)
}

func (s *EngineSuite) TestCursorWalkIsGapFree() {
	s.seed(23, 4)
	seen := map[id.IncidentID]bool{}
	var cursor *models.Cursor
	pages := 0
	for {
		page, err := s.engine.Page(s.ctx, s.user, models.TeamScope(s.team), cursor, 5)
		s.Require().NoError(err)
		pages++
		for _, item := range page.Items {
			s.False(seen[item.ID])
			seen[item.ID] = true
		}
		if !page.HasMore {
			break
		}
		cursor, err = models.DecodeCursor(page.NextCursor)
		s.Require().NoError(err)
	}
	s.Len(seen, 23)
	s.Equal(5, pages)
	s.Equal(float64(5), testutil.ToFloat64(s.metrics.PagesServed))
}

func (s *EngineSuite) TestResidentScope() {
	residents := s.seed(9, 3)
	page, err := s.engine.GetByResidentPaginated(s.ctx, s.user, residents[1], 0, nil)
	s.Require().NoError(err)
	s.Len(page.Items, 3)
	for _, item := range page.Items {
		s.Equal(residents[1], item.ResidentID)
	}
}

func (s *EngineSuite) TestEmptyPage() {
	page, err := s.engine.Page(s.ctx, s.user, models.TeamScope(s.team), nil, 10)
	s.Require().NoError(err)
	s.Empty(page.Items)
	s.False(page.HasMore)
	s.Equal(0, s.residents.Calls())
}

type failingResolver struct{}

func (failingResolver) ResolveURL(context.Context, string) (string, error) {
	return "", errors.New("signer unavailable")
}

func (s *EngineSuite) TestAvatarFailureLeavesURLBlank() {
	engine, err := New(s.incidents, s.residents, s.media, s.reads,
		WithMetrics(s.metrics), WithURLResolver(failingResolver{}))
	s.Require().NoError(err)
	s.seed(2, 1)

	page, err := engine.Page(s.ctx, s.user, models.TeamScope(s.team), nil, 10)
	s.Require().NoError(err)
	s.Require().Len(page.Items, 2)
	s.Empty(page.Items[0].Resident.AvatarURL)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.AvatarFailures))
}

func (s *EngineSuite) TestClampLimit() {
	s.Equal(DefaultPageLimit, ClampLimit(0))
	s.Equal(DefaultPageLimit, ClampLimit(-3))
	s.Equal(1, ClampLimit(1))
	s.Equal(MaxPageLimit, ClampLimit(1000))
}

func TestBaseURLResolver(t *testing.T) {
	u, err := NewBaseURLResolver("https://cdn.example.test/").ResolveURL(context.Background(), "/avatars/a b.png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "https://cdn.example.test/avatars/"), u)

	local, err := NewBaseURLResolver("").ResolveURL(context.Background(), "avatars/x.png")
	require.NoError(t, err)
	assert.Equal(t, "/media/avatars/x.png", local)
}
