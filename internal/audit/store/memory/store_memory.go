package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"safereport/internal/audit"
	id "safereport/pkg/domain"
)

// InMemoryStore keeps entries in append order. It also serves as the outbox
// for the stream worker.
type InMemoryStore struct {
	mu       sync.RWMutex
	entries  []*audit.Entry
	streamed map[id.AuditEntryID]time.Time
	failWith error
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{streamed: make(map[id.AuditEntryID]time.Time)}
}

// FailAppends makes every subsequent Append return err (nil to stop). Tests
// use it to exercise the fail-closed path.
func (s *InMemoryStore) FailAppends(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

func (s *InMemoryStore) Append(_ context.Context, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	cp := *entry
	s.entries = append(s.entries, &cp)
	return nil
}

// List returns matching entries, newest first.
func (s *InMemoryStore) List(_ context.Context, filter audit.Filter, limit int) ([]*audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*audit.Entry
	for _, e := range s.entries {
		if filter.Matches(e) {
			cp := *e
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, audit.CompareNewestFirst)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns every entry in append order.
func (s *InMemoryStore) All() []*audit.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*audit.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		cp := *e
		out = append(out, &cp)
	}
	return out
}

// CountByAction counts entries with action, for tests and reports.
func (s *InMemoryStore) CountByAction(action audit.Action) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		if e.Action == action {
			n++
		}
	}
	return n
}

func (s *InMemoryStore) ListUnstreamed(_ context.Context, limit int) ([]*audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*audit.Entry
	for _, e := range s.entries {
		if _, done := s.streamed[e.ID]; done {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) MarkStreamed(_ context.Context, ids []id.AuditEntryID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, eid := range ids {
		s.streamed[eid] = at
	}
	return nil
}
