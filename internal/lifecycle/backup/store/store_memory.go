package store

import (
	"context"
	"slices"
	"sync"

	"safereport/internal/incident/models"
	"safereport/internal/lifecycle/backup"
	id "safereport/pkg/domain"
	"safereport/pkg/platform/sentinel"
)

type InMemoryBackupStore struct {
	mu      sync.Mutex
	backups map[id.BackupID]*backup.Backup
}

func NewInMemoryBackupStore() *InMemoryBackupStore {
	return &InMemoryBackupStore{backups: make(map[id.BackupID]*backup.Backup)}
}

func (s *InMemoryBackupStore) Create(_ context.Context, b *backup.Backup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.backups[b.ID]; ok {
		return sentinel.ErrAlreadyExists
	}
	cp := *b
	s.backups[b.ID] = &cp
	return nil
}

func (s *InMemoryBackupStore) FindByID(_ context.Context, backupID id.BackupID) (*backup.Backup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.backups[backupID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

// ListByScope returns backups taken over exactly this scope, newest first.
func (s *InMemoryBackupStore) ListByScope(_ context.Context, scope models.Scope) ([]*backup.Backup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*backup.Backup
	for _, b := range s.backups {
		if b.Scope() == scope {
			cp := *b
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *backup.Backup) int {
		return b.BackupDate.Compare(a.BackupDate)
	})
	return out, nil
}

// InMemoryBlobStore keeps snapshot bytes keyed by storage key.
type InMemoryBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{blobs: make(map[string][]byte)}
}

func (s *InMemoryBlobStore) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = slices.Clone(data)
	return nil
}

func (s *InMemoryBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return slices.Clone(data), nil
}
