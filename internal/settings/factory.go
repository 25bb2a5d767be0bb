package settings

import (
	"context"
	"fmt"
	"io"

	"launcher-core/internal/config"
	"launcher-core/internal/launcher"
)

// NewSettingsStoreFromConfig creates a SettingsStore based on the settings
// config type. The returned closer is nil when the backend holds nothing
// that needs closing.
func NewSettingsStoreFromConfig(ctx context.Context, cfg config.SettingsConfig, db DatabaseBackend) (launcher.SettingsStore, io.Closer, error) {
	switch cfg.Type {
	case "database", "":
		if db == nil {
			return nil, nil, fmt.Errorf("database settings store requires a database")
		}
		return NewDatabaseStore(db), nil, nil
	case "redis":
		store, client, err := NewRedisStore(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, client, nil
	case "memory":
		return NewMemoryStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown settings type: %s", cfg.Type)
	}
}
