// Package settings provides launcher.SettingsStore backends.
package settings

import (
	"context"
	"fmt"
	"sync"

	"launcher-core/internal/launcher"
)

// DatabaseBackend is the subset of the SQLite database used for settings.
type DatabaseBackend interface {
	GetSetting(ctx context.Context, key string) ([]byte, error)
	PutSetting(ctx context.Context, key string, value []byte) error
	DeleteSetting(ctx context.Context, key string) error
}

// DatabaseStore keeps settings in the metadata database.
type DatabaseStore struct {
	db DatabaseBackend
}

var _ launcher.SettingsStore = (*DatabaseStore)(nil)

func NewDatabaseStore(db DatabaseBackend) *DatabaseStore {
	return &DatabaseStore{db: db}
}

func (s *DatabaseStore) Get(ctx context.Context, key string) ([]byte, error) {
	return s.db.GetSetting(ctx, key)
}

func (s *DatabaseStore) Put(ctx context.Context, key string, value []byte) error {
	return s.db.PutSetting(ctx, key, value)
}

func (s *DatabaseStore) Delete(ctx context.Context, key string) error {
	return s.db.DeleteSetting(ctx, key)
}

// MemoryStore keeps settings in a map. Values do not survive a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

var _ launcher.SettingsStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, fmt.Errorf("setting %s: %w", key, launcher.ErrNotFound)
	}
	return append([]byte(nil), v...), nil
}

func (s *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
