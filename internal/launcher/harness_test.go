package launcher_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"launcher-core/internal/database"
	"launcher-core/internal/fs"
	"launcher-core/internal/launcher"
	"launcher-core/internal/staging"
	"launcher-core/internal/testutil"
	"launcher-core/internal/vault"
)

// harness wires a ProfileManager and ArtifactStore against an in-memory
// database, a memory vault and stubbed remote collaborators.
type harness struct {
	db          *database.SQLiteDatabase
	vault       *vault.MemoryVault
	store       *launcher.ArtifactStore
	clock       *testutil.StubClock
	source      *testutil.StubManifestSource
	fetcher     *testutil.StubFetcher
	spawner     *testutil.StubSpawner
	pm          *launcher.ProfileManager
	profilesDir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, launcher.ProfileOptions{})
}

func newHarnessWith(t *testing.T, opts launcher.ProfileOptions) *harness {
	t.Helper()
	sa, err := staging.NewFileSystemStagingArea(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewFileSystemStagingArea() error = %v", err)
	}

	h := &harness{
		db:          testutil.NewTestDatabase(t),
		vault:       vault.NewMemoryVault(),
		clock:       testutil.FixedClock(),
		source:      testutil.NewStubManifestSource(),
		fetcher:     testutil.NewStubFetcher(),
		spawner:     testutil.NewStubSpawner(),
		profilesDir: filepath.Join(t.TempDir(), "profiles"),
	}
	h.store = launcher.NewArtifactStore(h.db, h.vault, sa, launcher.NewNopLogger(), h.clock)

	opts.ProfilesDir = h.profilesDir
	if opts.InitialBackoff == 0 {
		opts.InitialBackoff = time.Millisecond
	}
	if opts.MaxBackoff == 0 {
		opts.MaxBackoff = 5 * time.Millisecond
	}
	h.pm = launcher.NewProfileManager(h.db, h.store, h.source, h.fetcher, h.spawner,
		fs.NewOSWorkspace(), launcher.NewNopLogger(), h.clock, opts)
	t.Cleanup(h.pm.WaitForGames)
	return h
}

// file is one piece of remote content referenced by a manifest.
type file struct {
	path string
	data []byte
	kind launcher.EntryKind
}

func (f file) url() string { return "https://cdn.test/" + f.path }

func (f file) entry() launcher.ManifestEntry {
	return launcher.ManifestEntry{
		Path: f.path,
		Hash: testutil.SHA256Hex(f.data),
		Size: int64(len(f.data)),
		Kind: f.kind,
		URL:  f.url(),
	}
}

var (
	clientJar = file{path: "versions/1.20.1/client.jar", data: []byte("client jar bytes"), kind: launcher.EntryClient}
	libJar    = file{path: "libraries/lib-1.0.jar", data: []byte("library jar bytes"), kind: launcher.EntryLibrary}
	assetFile = file{path: "assets/objects/ab/sound.ogg", data: []byte("asset bytes"), kind: launcher.EntryAsset}
)

// serveManifest registers files with the fetcher and a manifest listing them
// for gameVersion with the vanilla loader.
func (h *harness) serveManifest(gameVersion string, files ...file) launcher.Manifest {
	m := launcher.Manifest{LaunchVersion: gameVersion, MainClass: "net.minecraft.client.main.Main"}
	for _, f := range files {
		h.fetcher.Serve(f.url(), f.data)
		m.Entries = append(m.Entries, f.entry())
	}
	h.source.Set(gameVersion, launcher.LoaderNone, m)
	return m
}

// readyProfile creates, validates and downloads a profile.
func (h *harness) readyProfile(t *testing.T, name string, files ...file) *launcher.Profile {
	t.Helper()
	ctx := context.Background()
	h.serveManifest("1.20.1", files...)
	if _, err := h.pm.CreateProfile(ctx, name, "1.20.1", launcher.LoaderNone); err != nil {
		t.Fatalf("CreateProfile() error = %v", err)
	}
	if _, err := h.pm.Validate(ctx, name); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if _, err := h.pm.Download(ctx, name); err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	return h.profile(t, name)
}

func (h *harness) profile(t *testing.T, name string) *launcher.Profile {
	t.Helper()
	p, err := h.pm.GetProfile(context.Background(), name)
	if err != nil {
		t.Fatalf("GetProfile(%q) error = %v", name, err)
	}
	return p
}

func (h *harness) refCount(t *testing.T, data []byte) int64 {
	t.Helper()
	rec, err := h.store.Stat(context.Background(), testutil.SHA256Hex(data))
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	return rec.RefCount
}

// waitForState polls until the profile reaches want.
func (h *harness) waitForState(t *testing.T, name string, want launcher.ProfileState) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		p, err := h.pm.GetProfile(context.Background(), name)
		if err == nil && p.State == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("profile %q did not reach state %s", name, want)
}

func requireErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("error = %v, want %v", err, target)
	}
}

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }
