package store

import (
	"context"
	"sync"

	"safereport/internal/membership/models"
	id "safereport/pkg/domain"
	"safereport/pkg/platform/sentinel"
)

// InMemoryMembershipStore holds one membership per user.
type InMemoryMembershipStore struct {
	mu     sync.RWMutex
	byUser map[id.UserID]*models.Membership
}

func NewInMemoryMembershipStore() *InMemoryMembershipStore {
	return &InMemoryMembershipStore{byUser: make(map[id.UserID]*models.Membership)}
}

func (s *InMemoryMembershipStore) Save(_ context.Context, m *models.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.byUser[m.UserID] = &cp
	return nil
}

func (s *InMemoryMembershipStore) FindByUser(_ context.Context, userID id.UserID) (*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byUser[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *InMemoryMembershipStore) FindByUserAndTeam(_ context.Context, userID id.UserID, teamID id.TeamID) (*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byUser[userID]
	if !ok || m.TeamID != teamID {
		return nil, sentinel.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

// InMemoryResidentStore keeps residents by id.
type InMemoryResidentStore struct {
	mu        sync.RWMutex
	residents map[id.ResidentID]*models.Resident
	calls     int
}

func NewInMemoryResidentStore() *InMemoryResidentStore {
	return &InMemoryResidentStore{residents: make(map[id.ResidentID]*models.Resident)}
}

func (s *InMemoryResidentStore) Save(_ context.Context, r *models.Resident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.residents[r.ID] = &cp
	return nil
}

func (s *InMemoryResidentStore) FindByID(_ context.Context, residentID id.ResidentID) (*models.Resident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	r, ok := s.residents[residentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// FindByIDs returns the residents that exist among ids, in no particular order.
func (s *InMemoryResidentStore) FindByIDs(_ context.Context, ids []id.ResidentID) ([]*models.Resident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	out := make([]*models.Resident, 0, len(ids))
	for _, rid := range ids {
		if r, ok := s.residents[rid]; ok {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Calls reports how many reads hit the store. Tests use it to guard the
// batched query contract.
func (s *InMemoryResidentStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
