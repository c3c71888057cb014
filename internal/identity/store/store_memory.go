package store

import (
	"context"
	"sync"

	"safereport/internal/identity"
	id "safereport/pkg/domain"
	emailutil "safereport/pkg/email"
	"safereport/pkg/platform/sentinel"
)

// InMemoryUserStore keeps users keyed by lower-cased email.
type InMemoryUserStore struct {
	mu      sync.RWMutex
	byEmail map[string]*identity.User
	byID    map[id.UserID]*identity.User
}

func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{
		byEmail: make(map[string]*identity.User),
		byID:    make(map[id.UserID]*identity.User),
	}
}

// Save is used by seeding and tests; users are otherwise provisioned externally.
func (s *InMemoryUserStore) Save(_ context.Context, user *identity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := *user
	u.Email = emailutil.Normalize(u.Email)
	s.byEmail[u.Email] = &u
	s.byID[u.ID] = &u
	return nil
}

func (s *InMemoryUserStore) FindByEmail(_ context.Context, email string) (*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byEmail[emailutil.Normalize(email)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *InMemoryUserStore) FindByID(_ context.Context, userID id.UserID) (*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *u
	return &cp, nil
}
