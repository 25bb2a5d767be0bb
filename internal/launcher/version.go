package launcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// VersionRegistry tracks the actual launcher build per OS.
//
// Readers load an immutable *LauncherVersion through an atomic pointer, so a
// swap is never observed half-applied. Writers for the same OS are
// serialized; the new record is persisted to the settings store before it
// becomes visible.
type VersionRegistry struct {
	versions VersionStore
	store    *ArtifactStore
	settings SettingsStore
	logger   Logger
	clock    Clock
	idgen    IDGenerator

	writers [osTypeCount]sync.Mutex
	actual  [osTypeCount]atomic.Pointer[LauncherVersion]
}

// NewVersionRegistry creates a VersionRegistry. Call Load to restore the
// actual pointers persisted by a previous run.
func NewVersionRegistry(versions VersionStore, store *ArtifactStore, settings SettingsStore, logger Logger, clock Clock, idgen IDGenerator) *VersionRegistry {
	return &VersionRegistry{
		versions: versions,
		store:    store,
		settings: settings,
		logger:   logger,
		clock:    clock,
		idgen:    idgen,
	}
}

func actualKey(os OSType) string {
	return "launcher.actual." + os.String()
}

// Load restores every OS's actual pointer from the settings store.
func (r *VersionRegistry) Load(ctx context.Context) error {
	for _, os := range OSTypes() {
		raw, err := r.settings.Get(ctx, actualKey(os))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("loading actual launcher for %s: %w", os, err)
		}
		var v LauncherVersion
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("decoding actual launcher for %s: %w", os, err)
		}
		r.actual[os].Store(&v)
		r.logger.Debug("actual launcher loaded", "os", os.String(), "version", v.ID)
	}
	return nil
}

// Publish stores the build via the ArtifactStore, records it in the history
// and makes it the actual version for os. The previous version keeps its
// artifact reference so Rollback can return to it.
func (r *VersionRegistry) Publish(ctx context.Context, os OSType, build io.Reader) (*LauncherVersion, error) {
	if !os.Valid() {
		return nil, fmt.Errorf("%s: %w", os, ErrPlatformNotSupported)
	}

	hash, err := r.store.Put(ctx, build)
	if err != nil {
		return nil, fmt.Errorf("storing launcher build: %w", err)
	}
	rec, err := r.store.Stat(ctx, hash)
	if err != nil {
		r.releaseBuild(ctx, hash)
		return nil, err
	}

	v := &LauncherVersion{
		ID:           r.idgen.New(),
		OS:           os,
		ArtifactHash: hash,
		Size:         rec.Size,
		CreatedAt:    r.clock.Now(),
	}

	r.writers[os].Lock()
	defer r.writers[os].Unlock()

	if err := r.versions.CreateLauncherVersion(ctx, v); err != nil {
		r.releaseBuild(ctx, hash)
		return nil, fmt.Errorf("recording launcher version: %w", err)
	}
	if err := r.swap(ctx, v); err != nil {
		return nil, err
	}

	launcherPublishesTotal.WithLabelValues(os.String()).Inc()
	r.logger.Info("launcher published", "os", os.String(), "version", v.ID, "hash", hash)
	return v, nil
}

// releaseBuild gives back the reference Put took for a build that never
// became a recorded version.
func (r *VersionRegistry) releaseBuild(ctx context.Context, hash string) {
	if err := r.store.Release(context.WithoutCancel(ctx), hash); err != nil {
		r.logger.Warn("releasing unrecorded launcher build", "hash", hash, "error", err)
	}
}

// GetActual returns the actual version for os, or an error wrapping
// ErrVersionNotLoaded if none was published.
func (r *VersionRegistry) GetActual(os OSType) (*LauncherVersion, error) {
	if !os.Valid() {
		return nil, fmt.Errorf("%s: %w", os, ErrPlatformNotSupported)
	}
	v := r.actual[os].Load()
	if v == nil {
		return nil, fmt.Errorf("launcher for %s: %w", os, ErrVersionNotLoaded)
	}
	cp := *v
	return &cp, nil
}

// Rollback makes a previously published version actual again.
func (r *VersionRegistry) Rollback(ctx context.Context, os OSType, versionID string) (*LauncherVersion, error) {
	if !os.Valid() {
		return nil, fmt.Errorf("%s: %w", os, ErrPlatformNotSupported)
	}

	r.writers[os].Lock()
	defer r.writers[os].Unlock()

	v, err := r.versions.FindLauncherVersion(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("loading launcher version %s: %w", versionID, err)
	}
	if v == nil || v.OS != os {
		return nil, fmt.Errorf("launcher version %s for %s: %w", versionID, os, ErrNotFound)
	}
	if err := r.swap(ctx, v); err != nil {
		return nil, err
	}

	r.logger.Info("launcher rolled back", "os", os.String(), "version", v.ID, "hash", v.ArtifactHash)
	return v, nil
}

// History returns every version published for os, newest first.
func (r *VersionRegistry) History(ctx context.Context, os OSType) ([]*LauncherVersion, error) {
	if !os.Valid() {
		return nil, fmt.Errorf("%s: %w", os, ErrPlatformNotSupported)
	}
	versions, err := r.versions.ListLauncherVersions(ctx, os)
	if err != nil {
		return nil, fmt.Errorf("listing launcher versions for %s: %w", os, err)
	}
	return versions, nil
}

// swap persists v as the whole actual record and then publishes it to
// readers. Callers hold the writer lock for v.OS.
func (r *VersionRegistry) swap(ctx context.Context, v *LauncherVersion) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding launcher version: %w", err)
	}
	if err := r.settings.Put(ctx, actualKey(v.OS), raw); err != nil {
		return fmt.Errorf("persisting actual launcher for %s: %w", v.OS, err)
	}
	cp := *v
	r.actual[v.OS].Store(&cp)
	return nil
}
