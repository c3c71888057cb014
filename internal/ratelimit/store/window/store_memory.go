package window

import (
	"context"
	"sync"
	"time"

	"safereport/internal/ratelimit/models"
)

// InMemoryWindowStore implements a fixed window counter per key.
// Single-instance only; use RedisWindowStore when several replicas share
// limits.
type InMemoryWindowStore struct {
	mu        sync.Mutex
	windows   map[string]*fixedWindow
	now       func() time.Time
	nextSweep time.Time
}

// sweepEvery spaces out the elapsed-window sweeps run from Allow.
const sweepEvery = time.Minute

type fixedWindow struct {
	count   int
	resetAt time.Time
}

type Option func(*InMemoryWindowStore)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *InMemoryWindowStore) {
		s.now = now
	}
}

func NewInMemoryWindowStore(opts ...Option) *InMemoryWindowStore {
	s := &InMemoryWindowStore{
		windows: make(map[string]*fixedWindow),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Allow opens a new window when none exists or the old one elapsed, denies at
// the limit, and otherwise increments.
func (s *InMemoryWindowStore) Allow(_ context.Context, key string, limit int, window time.Duration) (*models.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)
	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &fixedWindow{count: 1, resetAt: now.Add(window)}
		s.windows[key] = w
		return result(true, w, limit), nil
	}
	if w.count >= limit {
		return result(false, w, limit), nil
	}
	w.count++
	return result(true, w, limit), nil
}

// sweep drops elapsed windows so keys of users who stopped calling do not
// accumulate. Callers hold mu.
func (s *InMemoryWindowStore) sweep(now time.Time) {
	if now.Before(s.nextSweep) {
		return
	}
	for key, w := range s.windows {
		if !now.Before(w.resetAt) {
			delete(s.windows, key)
		}
	}
	s.nextSweep = now.Add(sweepEvery)
}

// Len reports how many keys currently hold a window.
func (s *InMemoryWindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// Reset clears the counter for a key.
func (s *InMemoryWindowStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}

// GetCurrentCount returns the count in the live window, zero if elapsed.
func (s *InMemoryWindowStore) GetCurrentCount(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[key]
	if !ok || !s.now().Before(w.resetAt) {
		return 0, nil
	}
	return w.count, nil
}

func result(allowed bool, w *fixedWindow, limit int) *models.Result {
	return &models.Result{
		Allowed:   allowed,
		Limit:     limit,
		Count:     w.count,
		Remaining: max(limit-w.count, 0),
		ResetAt:   w.resetAt,
	}
}
