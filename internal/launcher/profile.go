package launcher

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ProfileOptions tunes the ProfileManager. Zero values fall back to defaults.
type ProfileOptions struct {
	ProfilesDir    string
	JavaPath       string
	Workers        int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (o ProfileOptions) withDefaults() ProfileOptions {
	if o.JavaPath == "" {
		o.JavaPath = "java"
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 500 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 10 * time.Second
	}
	return o
}

// ProfileManager drives profiles through their lifecycle and orchestrates
// manifest downloads against the ArtifactStore.
type ProfileManager struct {
	profiles  ProfileStore
	store     *ArtifactStore
	source    ManifestSource
	fetcher   Fetcher
	spawner   ProcessSpawner
	workspace Workspace
	feed      *Feed
	logger    Logger
	clock     Clock
	opts      ProfileOptions

	inFlight inFlightSet

	procMu sync.Mutex
	procs  map[string]Process
	games  sync.WaitGroup
}

// NewProfileManager creates a ProfileManager with the provided dependencies.
func NewProfileManager(
	profiles ProfileStore,
	store *ArtifactStore,
	source ManifestSource,
	fetcher Fetcher,
	spawner ProcessSpawner,
	workspace Workspace,
	logger Logger,
	clock Clock,
	opts ProfileOptions,
) *ProfileManager {
	return &ProfileManager{
		profiles:  profiles,
		store:     store,
		source:    source,
		fetcher:   fetcher,
		spawner:   spawner,
		workspace: workspace,
		feed:      NewFeed(),
		logger:    logger,
		clock:     clock,
		opts:      opts.withDefaults(),
		procs:     make(map[string]Process),
	}
}

// Subscribe returns a subscription to the manager's progress lines.
func (m *ProfileManager) Subscribe(buffer int) *Subscription {
	return m.feed.Subscribe(buffer)
}

// acquire takes the per-profile guard or fails with *OperationInProgressError.
func (m *ProfileManager) acquire(name string) (func(), error) {
	release, ok := m.inFlight.TryAcquire(name)
	if !ok {
		return nil, &OperationInProgressError{Name: name}
	}
	return release, nil
}

func validateProfileName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("profile name %q: %w", name, ErrUnsafePath)
	}
	return nil
}

// CreateProfile inserts a new profile in the Created state.
// Returns *ProfileExistsError if the name is taken.
func (m *ProfileManager) CreateProfile(ctx context.Context, name, gameVersion string, loader LoaderKind) (*Profile, error) {
	if err := validateProfileName(name); err != nil {
		return nil, err
	}
	if _, err := loader.Identifier(); err != nil {
		return nil, err
	}
	if gameVersion == "" {
		return nil, fmt.Errorf("profile %q: game version is required", name)
	}

	now := m.clock.Now()
	profile := &Profile{
		Name:        name,
		GameVersion: gameVersion,
		Loader:      loader,
		ClientPath:  filepath.Join(m.opts.ProfilesDir, name),
		State:       StateCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.profiles.CreateProfile(ctx, profile); err != nil {
		return nil, err
	}

	m.logger.Info("profile created", "profile", name, "game_version", gameVersion, "loader", loader.String())
	m.feed.Publishf("[%s] created (%s, %s)", name, gameVersion, loader)
	return profile, nil
}

// GetProfile returns the named profile or an error wrapping ErrNotFound.
func (m *ProfileManager) GetProfile(ctx context.Context, name string) (*Profile, error) {
	p, err := m.profiles.FindProfile(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("loading profile %q: %w", name, err)
	}
	if p == nil {
		return nil, fmt.Errorf("profile %q: %w", name, ErrNotFound)
	}
	return p, nil
}

// ListProfiles returns every profile ordered by name.
func (m *ProfileManager) ListProfiles(ctx context.Context) ([]*Profile, error) {
	profiles, err := m.profiles.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	return profiles, nil
}

// setState validates and persists a transition.
func (m *ProfileManager) setState(ctx context.Context, p *Profile, to ProfileState) error {
	if err := checkTransition(p.State, to); err != nil {
		return err
	}
	now := m.clock.Now()
	if err := m.profiles.UpdateProfileState(ctx, p.Name, to, now); err != nil {
		return fmt.Errorf("persisting profile %q state %s: %w", p.Name, to, err)
	}
	m.logger.Debug("profile state changed", "profile", p.Name, "from", p.State, "to", to)
	m.feed.Publishf("[%s] %s -> %s", p.Name, p.State, to)
	p.State = to
	p.UpdatedAt = now
	return nil
}

// ValidationReport lists the manifest entries with no local artifact.
type ValidationReport struct {
	Profile string
	Total   int
	Missing []ManifestEntry
}

// Complete reports whether every entry is already stored.
func (r *ValidationReport) Complete() bool {
	return len(r.Missing) == 0
}

// Validate resolves the profile's manifest for its game version and loader,
// moves it to Validating, and reports which entries are not yet stored.
// It never modifies the ArtifactStore.
func (m *ProfileManager) Validate(ctx context.Context, name string) (*ValidationReport, error) {
	release, err := m.acquire(name)
	if err != nil {
		return nil, err
	}
	defer release()

	p, err := m.GetProfile(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(p.State, StateValidating); err != nil {
		return nil, err
	}

	manifest, err := m.source.ResolveManifest(ctx, p.GameVersion, p.Loader)
	if err != nil {
		return nil, fmt.Errorf("resolving manifest for %q: %w", name, err)
	}
	for _, e := range manifest.Entries {
		if _, err := safeJoin(p.ClientPath, e.Path); err != nil {
			return nil, err
		}
	}

	now := m.clock.Now()
	if err := m.profiles.SaveManifest(ctx, name, *manifest, StateValidating, now); err != nil {
		return nil, fmt.Errorf("saving manifest for %q: %w", name, err)
	}
	m.feed.Publishf("[%s] %s -> %s", name, p.State, StateValidating)
	p.State = StateValidating
	p.LaunchVersion = manifest.LaunchVersion
	p.Manifest = *manifest

	missing, err := m.missingEntries(ctx, p.Manifest)
	if err != nil {
		return nil, err
	}

	report := &ValidationReport{Profile: name, Total: len(manifest.Entries), Missing: missing}
	m.logger.Info("profile validated", "profile", name, "entries", report.Total, "missing", len(missing))
	m.feed.Publishf("[%s] validated: %d of %d entries missing", name, len(missing), report.Total)
	return report, nil
}

// missingEntries returns the entries whose hash is not stored.
func (m *ProfileManager) missingEntries(ctx context.Context, manifest Manifest) ([]ManifestEntry, error) {
	known := make(map[string]bool)
	var missing []ManifestEntry
	for _, e := range manifest.Entries {
		have, seen := known[e.Hash]
		if !seen {
			var err error
			have, err = m.store.Has(ctx, e.Hash)
			if err != nil {
				return nil, fmt.Errorf("checking artifact for %s: %w", e.Path, err)
			}
			known[e.Hash] = have
		}
		if !have {
			missing = append(missing, e)
		}
	}
	return missing, nil
}

// Remove releases every artifact reference the profile holds and deletes it.
// Removing a profile that does not exist is a no-op.
func (m *ProfileManager) Remove(ctx context.Context, name string) error {
	release, err := m.acquire(name)
	if err != nil {
		return err
	}
	defer release()

	p, err := m.profiles.FindProfile(ctx, name)
	if err != nil {
		return fmt.Errorf("loading profile %q: %w", name, err)
	}
	if p == nil {
		return nil
	}

	m.procMu.Lock()
	proc := m.procs[name]
	delete(m.procs, name)
	m.procMu.Unlock()
	if proc != nil {
		if err := proc.Kill(); err != nil {
			m.logger.Warn("killing game process", "profile", name, "error", err)
		}
	}

	refs, err := m.profiles.ListProfileRefs(ctx, name)
	if err != nil {
		return fmt.Errorf("listing references of %q: %w", name, err)
	}
	for _, hash := range refs {
		if _, err := m.profiles.RemoveProfileRef(ctx, name, hash); err != nil {
			return fmt.Errorf("dropping reference %s of %q: %w", hash, name, err)
		}
		if err := m.store.Release(ctx, hash); err != nil {
			return err
		}
	}
	if err := m.profiles.DeleteProfile(ctx, name); err != nil {
		return fmt.Errorf("deleting profile %q: %w", name, err)
	}

	m.logger.Info("profile removed", "profile", name, "released", len(refs))
	m.feed.Publishf("[%s] %s -> %s", name, p.State, StateRemoved)
	return nil
}

// safeJoin joins rel onto root, rejecting paths that leave root.
func safeJoin(root, rel string) (string, error) {
	if rel == "" || filepath.IsAbs(rel) {
		return "", fmt.Errorf("manifest path %q: %w", rel, ErrUnsafePath)
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("manifest path %q: %w", rel, ErrUnsafePath)
	}
	return filepath.Join(root, clean), nil
}
