package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"safereport/internal/incident/models"
	id "safereport/pkg/domain"
	"safereport/pkg/platform/sentinel"
)

// InMemoryIncidentStore keeps incidents in a map and sorts on read. Calls
// counts every store round trip so tests can assert batched access.
type InMemoryIncidentStore struct {
	mu        sync.RWMutex
	incidents map[id.IncidentID]*models.Incident
	calls     int
}

func NewInMemoryIncidentStore() *InMemoryIncidentStore {
	return &InMemoryIncidentStore{incidents: make(map[id.IncidentID]*models.Incident)}
}

func (s *InMemoryIncidentStore) Create(_ context.Context, incident *models.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if _, exists := s.incidents[incident.ID]; exists {
		return sentinel.ErrAlreadyExists
	}
	s.incidents[incident.ID] = incident.Clone()
	return nil
}

// CreateIfAbsent inserts incident unless its id is taken and reports whether
// it was inserted.
func (s *InMemoryIncidentStore) CreateIfAbsent(_ context.Context, incident *models.Incident) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if _, exists := s.incidents[incident.ID]; exists {
		return false, nil
	}
	s.incidents[incident.ID] = incident.Clone()
	return true, nil
}

func (s *InMemoryIncidentStore) FindByID(_ context.Context, incidentID id.IncidentID) (*models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	inc, ok := s.incidents[incidentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return inc.Clone(), nil
}

// UpdateContent writes the editable fields of incident. A stored row that is
// no longer active and writable is left untouched and yields
// sentinel.ErrInvalidState.
func (s *InMemoryIncidentStore) UpdateContent(_ context.Context, incident *models.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	cur, ok := s.incidents[incident.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !cur.IsMutable() {
		return sentinel.ErrInvalidState
	}
	next := cur.Clone()
	next.AssignContent(incident)
	s.incidents[incident.ID] = next
	return nil
}

// SaveTransition writes the lifecycle fields of incident if the stored row
// is still in state from.
func (s *InMemoryIncidentStore) SaveTransition(_ context.Context, incident *models.Incident, from models.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	cur, ok := s.incidents[incident.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if cur.State != from {
		return sentinel.ErrInvalidState
	}
	next := cur.Clone()
	next.AssignLifecycle(incident)
	s.incidents[incident.ID] = next
	return nil
}

// Delete removes the row permanently.
func (s *InMemoryIncidentStore) Delete(_ context.Context, incidentID id.IncidentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if _, ok := s.incidents[incidentID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.incidents, incidentID)
	return nil
}

// ListPage returns up to limit incidents in scope strictly after cursor, in
// (date desc, id desc) order. Soft-deleted rows are skipped.
func (s *InMemoryIncidentStore) ListPage(_ context.Context, scope models.Scope, cursor *models.Cursor, limit int) ([]*models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	out := s.collect(func(i *models.Incident) bool {
		return scope.Contains(i) && cursor.Admits(i) && i.State != models.StateSoftDeleted
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListByScope returns every incident in scope.
func (s *InMemoryIncidentStore) ListByScope(_ context.Context, scope models.Scope) ([]*models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.collect(scope.Contains), nil
}

func (s *InMemoryIncidentStore) ListByCreator(_ context.Context, userID id.UserID) ([]*models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.collect(func(i *models.Incident) bool { return i.CreatedBy == userID }), nil
}

// ListArchivable returns active, unarchived incidents created before cutoff.
func (s *InMemoryIncidentStore) ListArchivable(_ context.Context, cutoff time.Time, limit int) ([]*models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	out := s.collect(func(i *models.Incident) bool {
		return !i.IsArchived && i.State == models.StateActive && i.CreatedAt.Before(cutoff)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListExpired returns incidents whose retention deadline is at or before now.
func (s *InMemoryIncidentStore) ListExpired(_ context.Context, now time.Time, limit int) ([]*models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	out := s.collect(func(i *models.Incident) bool { return i.IsExpired(now) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListScheduledForDeletion returns incidents in scope with a retention
// deadline at or before until.
func (s *InMemoryIncidentStore) ListScheduledForDeletion(_ context.Context, scope models.Scope, until time.Time) ([]*models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.collect(func(i *models.Incident) bool {
		return scope.Contains(i) && i.ScheduledDeletionAt != nil && !i.ScheduledDeletionAt.After(until)
	}), nil
}

// Calls reports store round trips since creation.
func (s *InMemoryIncidentStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *InMemoryIncidentStore) collect(keep func(*models.Incident) bool) []*models.Incident {
	var out []*models.Incident
	for _, inc := range s.incidents {
		if keep(inc) {
			out = append(out, inc.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.Incident) int {
		switch {
		case models.Less(a, b):
			return -1
		case models.Less(b, a):
			return 1
		}
		return 0
	})
	return out
}

// InMemoryMediaStore keeps media rows by id.
type InMemoryMediaStore struct {
	mu    sync.RWMutex
	media map[id.MediaID]*models.Media
	calls int
}

func NewInMemoryMediaStore() *InMemoryMediaStore {
	return &InMemoryMediaStore{media: make(map[id.MediaID]*models.Media)}
}

func (s *InMemoryMediaStore) Save(_ context.Context, m *models.Media) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.media[m.ID] = &cp
	return nil
}

// FindAvatarsByOwners returns avatar media for any of owners.
func (s *InMemoryMediaStore) FindAvatarsByOwners(_ context.Context, owners []id.ResidentID) ([]*models.Media, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	want := make(map[id.ResidentID]struct{}, len(owners))
	for _, o := range owners {
		want[o] = struct{}{}
	}
	var out []*models.Media
	for _, m := range s.media {
		if _, ok := want[m.OwnerID]; ok && m.Kind == models.MediaKindAvatar {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemoryMediaStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type readKey struct {
	user     id.UserID
	incident id.IncidentID
}

// InMemoryReadStatusStore records which users have opened which incidents.
type InMemoryReadStatusStore struct {
	mu    sync.RWMutex
	reads map[readKey]time.Time
	calls int
}

func NewInMemoryReadStatusStore() *InMemoryReadStatusStore {
	return &InMemoryReadStatusStore{reads: make(map[readKey]time.Time)}
}

// MarkRead upserts the read marker, keeping the first read time.
func (s *InMemoryReadStatusStore) MarkRead(_ context.Context, status *models.ReadStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := readKey{user: status.UserID, incident: status.IncidentID}
	if _, ok := s.reads[k]; !ok {
		s.reads[k] = status.ReadAt
	}
	return nil
}

// ReadSet returns the subset of incidentIDs that userID has read.
func (s *InMemoryReadStatusStore) ReadSet(_ context.Context, userID id.UserID, incidentIDs []id.IncidentID) (map[id.IncidentID]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	out := make(map[id.IncidentID]struct{})
	for _, iid := range incidentIDs {
		if _, ok := s.reads[readKey{user: userID, incident: iid}]; ok {
			out[iid] = struct{}{}
		}
	}
	return out, nil
}

func (s *InMemoryReadStatusStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
