package settings

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"launcher-core/internal/config"
	"launcher-core/internal/launcher"
	"launcher-core/internal/testutil"
)

// fakeRedis implements redisAPI over a map.
type fakeRedis struct {
	mu     sync.Mutex
	values map[string]string
	err    error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: make(map[string]string)}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.values[key] = string(value.([]byte))
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			delete(f.values, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

// exerciseStore runs the SettingsStore contract against s.
func exerciseStore(t *testing.T, s launcher.SettingsStore) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "launcher.actual.linux"); !errors.Is(err, launcher.ErrNotFound) {
		t.Fatalf("Get() unset error = %v, want ErrNotFound", err)
	}
	if err := s.Put(ctx, "launcher.actual.linux", []byte(`{"id":"v1"}`)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Put(ctx, "launcher.actual.linux", []byte(`{"id":"v2"}`)); err != nil {
		t.Fatalf("Put() overwrite error = %v", err)
	}
	got, err := s.Get(ctx, "launcher.actual.linux")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != `{"id":"v2"}` {
		t.Errorf("Get() = %s, want v2", got)
	}
	if err := s.Delete(ctx, "launcher.actual.linux"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, "launcher.actual.linux"); !errors.Is(err, launcher.ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "never-set"); err != nil {
		t.Errorf("Delete() of unset key error = %v", err)
	}
}

func TestStores(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		exerciseStore(t, NewMemoryStore())
	})
	t.Run("database", func(t *testing.T) {
		exerciseStore(t, NewDatabaseStore(testutil.NewTestDatabase(t)))
	})
	t.Run("redis", func(t *testing.T) {
		exerciseStore(t, newRedisStore(newFakeRedis(), "lcore:"))
	})
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	v := []byte("abc")
	if err := s.Put(ctx, "k", v); err != nil {
		t.Fatal(err)
	}
	v[0] = 'x'
	got, _ := s.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("stored value changed through caller slice: %s", got)
	}
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()

	t.Run("keys are prefixed", func(t *testing.T) {
		fake := newFakeRedis()
		s := newRedisStore(fake, "lcore:")
		if err := s.Put(ctx, "k", []byte("v")); err != nil {
			t.Fatal(err)
		}
		if _, ok := fake.values["lcore:k"]; !ok {
			t.Errorf("keys = %v, want lcore:k", fake.values)
		}
	})

	t.Run("backend errors are not ErrNotFound", func(t *testing.T) {
		fake := newFakeRedis()
		fake.err = errors.New("connection refused")
		s := newRedisStore(fake, "")
		_, err := s.Get(ctx, "k")
		if err == nil || errors.Is(err, launcher.ErrNotFound) {
			t.Errorf("Get() error = %v, want backend error", err)
		}
	})
}

func TestNewSettingsStoreFromConfig(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDatabase(t)

	tests := []struct {
		name    string
		cfg     config.SettingsConfig
		wantErr bool
	}{
		{name: "database", cfg: config.SettingsConfig{Type: "database"}},
		{name: "default is database", cfg: config.SettingsConfig{}},
		{name: "memory", cfg: config.SettingsConfig{Type: "memory"}},
		{name: "redis requires addr", cfg: config.SettingsConfig{Type: "redis"}, wantErr: true},
		{name: "unknown", cfg: config.SettingsConfig{Type: "etcd"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, closer, err := NewSettingsStoreFromConfig(ctx, tt.cfg, db)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewSettingsStoreFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if store == nil {
				t.Fatal("store is nil")
			}
			if closer != nil {
				t.Errorf("closer = %v, want nil", closer)
			}
		})
	}
}
