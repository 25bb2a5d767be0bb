package launcher_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"launcher-core/internal/launcher"
)

func TestProfileManager_CreateProfile(t *testing.T) {
	ctx := context.Background()

	t.Run("creates in Created state", func(t *testing.T) {
		h := newHarness(t)
		p, err := h.pm.CreateProfile(ctx, "survival", "1.20.1", launcher.LoaderFabric)
		if err != nil {
			t.Fatalf("CreateProfile() error = %v", err)
		}
		if p.State != launcher.StateCreated {
			t.Errorf("State = %s, want created", p.State)
		}
		if p.ClientPath != filepath.Join(h.profilesDir, "survival") {
			t.Errorf("ClientPath = %s", p.ClientPath)
		}

		got := h.profile(t, "survival")
		if got.GameVersion != "1.20.1" || got.Loader != launcher.LoaderFabric {
			t.Errorf("stored profile = %+v", got)
		}
	})

	t.Run("rejects duplicate names", func(t *testing.T) {
		h := newHarness(t)
		if _, err := h.pm.CreateProfile(ctx, "dup", "1.20.1", launcher.LoaderNone); err != nil {
			t.Fatalf("CreateProfile() error = %v", err)
		}
		_, err := h.pm.CreateProfile(ctx, "dup", "1.19.4", launcher.LoaderForge)
		var exists *launcher.ProfileExistsError
		if !errors.As(err, &exists) || exists.Name != "dup" {
			t.Fatalf("CreateProfile() error = %v, want *ProfileExistsError", err)
		}
		requireErrorIs(t, err, launcher.ErrProfileExists)
	})

	t.Run("rejects bad input", func(t *testing.T) {
		h := newHarness(t)
		tests := []struct {
			name    string
			profile string
			version string
			loader  launcher.LoaderKind
			want    error
		}{
			{"path separator", "a/b", "1.20.1", launcher.LoaderNone, launcher.ErrUnsafePath},
			{"dot dot", "..", "1.20.1", launcher.LoaderNone, launcher.ErrUnsafePath},
			{"empty name", "", "1.20.1", launcher.LoaderNone, launcher.ErrUnsafePath},
			{"loader out of range", "x", "1.20.1", launcher.LoaderKind(42), launcher.ErrArgumentOutOfRange},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := h.pm.CreateProfile(ctx, tt.profile, tt.version, tt.loader)
				requireErrorIs(t, err, tt.want)
			})
		}

		if _, err := h.pm.CreateProfile(ctx, "noversion", "", launcher.LoaderNone); err == nil {
			t.Error("CreateProfile() with empty game version succeeded")
		}
	})
}

func TestProfileManager_GetProfile(t *testing.T) {
	h := newHarness(t)
	_, err := h.pm.GetProfile(context.Background(), "ghost")
	requireErrorIs(t, err, launcher.ErrNotFound)
}

func TestProfileManager_ListProfiles(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	for _, name := range []string{"b", "a", "c"} {
		if _, err := h.pm.CreateProfile(ctx, name, "1.20.1", launcher.LoaderNone); err != nil {
			t.Fatalf("CreateProfile(%q) error = %v", name, err)
		}
	}
	profiles, err := h.pm.ListProfiles(ctx)
	if err != nil {
		t.Fatalf("ListProfiles() error = %v", err)
	}
	var names []string
	for _, p := range profiles {
		names = append(names, p.Name)
	}
	if len(names) != 3 || names[0] != "a" || names[1] != "b" || names[2] != "c" {
		t.Errorf("ListProfiles() names = %v, want [a b c]", names)
	}
}

func TestProfileManager_Validate(t *testing.T) {
	ctx := context.Background()

	t.Run("reports missing entries and saves the manifest", func(t *testing.T) {
		h := newHarness(t)
		h.serveManifest("1.20.1", clientJar, libJar, assetFile)
		h.pm.CreateProfile(ctx, "p", "1.20.1", launcher.LoaderNone)

		report, err := h.pm.Validate(ctx, "p")
		if err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if report.Total != 3 || len(report.Missing) != 3 || report.Complete() {
			t.Errorf("report = %+v, want 3 of 3 missing", report)
		}

		p := h.profile(t, "p")
		if p.State != launcher.StateValidating {
			t.Errorf("State = %s, want validating", p.State)
		}
		if len(p.Manifest.Entries) != 3 || p.Manifest.MainClass == "" || p.LaunchVersion != "1.20.1" {
			t.Errorf("stored manifest = %+v", p.Manifest)
		}
	})

	t.Run("counts stored content as present", func(t *testing.T) {
		h := newHarness(t)
		h.serveManifest("1.20.1", clientJar, libJar)
		h.pm.CreateProfile(ctx, "p", "1.20.1", launcher.LoaderNone)
		if _, err := h.store.Put(ctx, bytesReader(libJar.data)); err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		report, err := h.pm.Validate(ctx, "p")
		if err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if len(report.Missing) != 1 || report.Missing[0].Path != clientJar.path {
			t.Errorf("Missing = %+v, want only %s", report.Missing, clientJar.path)
		}
		// Validation never changes reference counts.
		if got := h.refCount(t, libJar.data); got != 1 {
			t.Errorf("RefCount = %d, want 1", got)
		}
	})

	t.Run("unknown version leaves state unchanged", func(t *testing.T) {
		h := newHarness(t)
		h.pm.CreateProfile(ctx, "p", "0.0.0", launcher.LoaderNone)

		_, err := h.pm.Validate(ctx, "p")
		requireErrorIs(t, err, launcher.ErrNotFound)
		if p := h.profile(t, "p"); p.State != launcher.StateCreated {
			t.Errorf("State = %s, want created", p.State)
		}
	})

	t.Run("rejects manifests escaping the client dir", func(t *testing.T) {
		h := newHarness(t)
		evil := file{path: "../../etc/passwd", data: []byte("x"), kind: launcher.EntryAsset}
		h.serveManifest("1.20.1", evil)
		h.pm.CreateProfile(ctx, "p", "1.20.1", launcher.LoaderNone)

		_, err := h.pm.Validate(ctx, "p")
		requireErrorIs(t, err, launcher.ErrUnsafePath)
	})

	t.Run("uses the loader to pick the manifest", func(t *testing.T) {
		h := newHarness(t)
		h.serveManifest("1.20.1", clientJar)
		forge := launcher.Manifest{MainClass: "cpw.mods.bootstraplauncher.BootstrapLauncher",
			Entries: []launcher.ManifestEntry{clientJar.entry(), libJar.entry()}}
		h.source.Set("1.20.1", launcher.LoaderForge, forge)
		h.pm.CreateProfile(ctx, "modded", "1.20.1", launcher.LoaderForge)

		report, err := h.pm.Validate(ctx, "modded")
		if err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if report.Total != 2 {
			t.Errorf("Total = %d, want 2", report.Total)
		}
	})
}

func TestProfileManager_Remove(t *testing.T) {
	ctx := context.Background()

	t.Run("releases every reference", func(t *testing.T) {
		h := newHarness(t)
		h.readyProfile(t, "p", clientJar, libJar)

		if err := h.pm.Remove(ctx, "p"); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}
		_, err := h.pm.GetProfile(ctx, "p")
		requireErrorIs(t, err, launcher.ErrNotFound)

		for _, f := range []file{clientJar, libJar} {
			if got := h.refCount(t, f.data); got != 0 {
				t.Errorf("RefCount(%s) = %d, want 0", f.path, got)
			}
		}
	})

	t.Run("shared artifacts stay referenced by the other profile", func(t *testing.T) {
		h := newHarness(t)
		h.readyProfile(t, "a", clientJar, libJar)
		if _, err := h.pm.CreateProfile(ctx, "b", "1.20.1", launcher.LoaderNone); err != nil {
			t.Fatalf("CreateProfile() error = %v", err)
		}
		h.pm.Validate(ctx, "b")
		if _, err := h.pm.Download(ctx, "b"); err != nil {
			t.Fatalf("Download() error = %v", err)
		}
		if got := h.refCount(t, libJar.data); got != 2 {
			t.Fatalf("RefCount = %d, want 2", got)
		}

		if err := h.pm.Remove(ctx, "a"); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}
		if got := h.refCount(t, libJar.data); got != 1 {
			t.Errorf("RefCount after removing a = %d, want 1", got)
		}
	})

	t.Run("missing profile is a no-op", func(t *testing.T) {
		h := newHarness(t)
		if err := h.pm.Remove(ctx, "ghost"); err != nil {
			t.Errorf("Remove() error = %v", err)
		}
	})

	t.Run("name can be reused", func(t *testing.T) {
		h := newHarness(t)
		h.pm.CreateProfile(ctx, "p", "1.20.1", launcher.LoaderNone)
		h.pm.Remove(ctx, "p")
		if _, err := h.pm.CreateProfile(ctx, "p", "1.20.1", launcher.LoaderNone); err != nil {
			t.Errorf("CreateProfile() after Remove error = %v", err)
		}
	})
}

func TestProfileManager_Feed(t *testing.T) {
	h := newHarness(t)
	sub := h.pm.Subscribe(64)
	defer sub.Unsubscribe()

	h.readyProfile(t, "p", clientJar)

	var lines []string
	for len(sub.C()) > 0 {
		lines = append(lines, <-sub.C())
	}
	want := []string{
		"[p] created (1.20.1, vanilla)",
		"[p] created -> validating",
		"[p] validated: 1 of 1 entries missing",
		"[p] validating -> downloading",
		"[p] downloaded " + clientJar.path + " (1/1)",
		"[p] downloading -> ready",
	}
	if len(lines) != len(want) {
		t.Fatalf("feed lines = %q, want %q", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
	if sub.Dropped() != 0 {
		t.Errorf("Dropped() = %d", sub.Dropped())
	}
}
