package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"launcher-core/internal/config"
	"launcher-core/internal/launcher"
)

// newTestDB creates a new in-memory database with migrations applied.
func newTestDB(t *testing.T) *SQLiteDatabase {
	t.Helper()

	db, err := NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

var t0 = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func TestSQLiteDatabase_ArtifactReferences(t *testing.T) {
	ctx := context.Background()

	t.Run("returns nil when artifact not found", func(t *testing.T) {
		db := newTestDB(t)
		rec, err := db.FindArtifact(ctx, "missing")
		if err != nil {
			t.Fatalf("FindArtifact() error = %v", err)
		}
		if rec != nil {
			t.Errorf("FindArtifact() = %v, want nil", rec)
		}
	})

	t.Run("first reference creates the record", func(t *testing.T) {
		db := newTestDB(t)
		count, err := db.AddArtifactReference(ctx, launcher.ArtifactRecord{
			Hash: "aa", Size: 3, StoragePath: "content/aa/aa", CreatedAt: t0,
		})
		if err != nil {
			t.Fatalf("AddArtifactReference() error = %v", err)
		}
		if count != 1 {
			t.Errorf("count = %d, want 1", count)
		}

		rec, err := db.FindArtifact(ctx, "aa")
		if err != nil || rec == nil {
			t.Fatalf("FindArtifact() = %v, %v", rec, err)
		}
		if rec.Size != 3 || rec.StoragePath != "content/aa/aa" || rec.RefCount != 1 {
			t.Errorf("record = %+v", rec)
		}
		if !rec.CreatedAt.Equal(t0) {
			t.Errorf("CreatedAt = %v, want %v", rec.CreatedAt, t0)
		}
		if rec.ReleasedAt != nil {
			t.Errorf("ReleasedAt = %v, want nil", rec.ReleasedAt)
		}
	})

	t.Run("release to zero stamps released_at and re-add clears it", func(t *testing.T) {
		db := newTestDB(t)
		rec := launcher.ArtifactRecord{Hash: "bb", Size: 1, StoragePath: "p", CreatedAt: t0}
		if _, err := db.AddArtifactReference(ctx, rec); err != nil {
			t.Fatal(err)
		}
		if n, _ := db.AddArtifactReference(ctx, rec); n != 2 {
			t.Fatalf("second reference count = %d, want 2", n)
		}

		released := t0.Add(time.Hour)
		n, err := db.AdjustArtifactRefs(ctx, "bb", -2, released)
		if err != nil {
			t.Fatalf("AdjustArtifactRefs() error = %v", err)
		}
		if n != 0 {
			t.Errorf("count = %d, want 0", n)
		}
		got, _ := db.FindArtifact(ctx, "bb")
		if got.ReleasedAt == nil || !got.ReleasedAt.Equal(released) {
			t.Errorf("ReleasedAt = %v, want %v", got.ReleasedAt, released)
		}

		unref, err := db.ListUnreferencedArtifacts(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(unref) != 1 || unref[0].Hash != "bb" {
			t.Errorf("ListUnreferencedArtifacts() = %v", unref)
		}

		if n, _ := db.AddArtifactReference(ctx, rec); n != 1 {
			t.Errorf("count after re-add = %d, want 1", n)
		}
		got, _ = db.FindArtifact(ctx, "bb")
		if got.ReleasedAt != nil {
			t.Errorf("ReleasedAt = %v, want nil after re-add", got.ReleasedAt)
		}
	})

	t.Run("release below zero is rejected and keeps released_at", func(t *testing.T) {
		db := newTestDB(t)
		rec := launcher.ArtifactRecord{Hash: "dd", Size: 1, StoragePath: "p", CreatedAt: t0}
		if _, err := db.AddArtifactReference(ctx, rec); err != nil {
			t.Fatal(err)
		}
		if _, err := db.AdjustArtifactRefs(ctx, "dd", -1, t0); err != nil {
			t.Fatal(err)
		}

		_, err := db.AdjustArtifactRefs(ctx, "dd", -1, t0.Add(time.Hour))
		if !errors.Is(err, launcher.ErrRefUnderflow) {
			t.Fatalf("AdjustArtifactRefs() error = %v, want ErrRefUnderflow", err)
		}
		got, _ := db.FindArtifact(ctx, "dd")
		if got.RefCount != 0 {
			t.Errorf("RefCount = %d, want 0", got.RefCount)
		}
		if got.ReleasedAt == nil || !got.ReleasedAt.Equal(t0) {
			t.Errorf("ReleasedAt = %v, want %v", got.ReleasedAt, t0)
		}
	})

	t.Run("adjusting a missing record returns ErrNotFound", func(t *testing.T) {
		db := newTestDB(t)
		_, err := db.AdjustArtifactRefs(ctx, "nope", 1, t0)
		if !errors.Is(err, launcher.ErrNotFound) {
			t.Errorf("AdjustArtifactRefs() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("delete only removes unreferenced records", func(t *testing.T) {
		db := newTestDB(t)
		rec := launcher.ArtifactRecord{Hash: "cc", Size: 1, StoragePath: "p", CreatedAt: t0}
		if _, err := db.AddArtifactReference(ctx, rec); err != nil {
			t.Fatal(err)
		}
		deleted, err := db.DeleteArtifact(ctx, "cc")
		if err != nil {
			t.Fatal(err)
		}
		if deleted {
			t.Error("DeleteArtifact() deleted a referenced record")
		}

		if _, err := db.AdjustArtifactRefs(ctx, "cc", -1, t0); err != nil {
			t.Fatal(err)
		}
		deleted, err = db.DeleteArtifact(ctx, "cc")
		if err != nil {
			t.Fatal(err)
		}
		if !deleted {
			t.Error("DeleteArtifact() = false, want true")
		}
		if rec, _ := db.FindArtifact(ctx, "cc"); rec != nil {
			t.Errorf("record still present: %+v", rec)
		}
	})
}

func newProfile(name string) *launcher.Profile {
	return &launcher.Profile{
		Name:        name,
		GameVersion: "1.20.1",
		Loader:      launcher.LoaderFabric,
		ClientPath:  "/profiles/" + name,
		State:       launcher.StateCreated,
		CreatedAt:   t0,
		UpdatedAt:   t0,
	}
}

func TestSQLiteDatabase_Profiles(t *testing.T) {
	ctx := context.Background()

	t.Run("create and find", func(t *testing.T) {
		db := newTestDB(t)
		if err := db.CreateProfile(ctx, newProfile("main")); err != nil {
			t.Fatalf("CreateProfile() error = %v", err)
		}
		p, err := db.FindProfile(ctx, "main")
		if err != nil || p == nil {
			t.Fatalf("FindProfile() = %v, %v", p, err)
		}
		if p.Loader != launcher.LoaderFabric {
			t.Errorf("Loader = %v, want fabric", p.Loader)
		}
		if p.State != launcher.StateCreated {
			t.Errorf("State = %v, want created", p.State)
		}
		if len(p.Manifest.Entries) != 0 {
			t.Errorf("Entries = %v, want none", p.Manifest.Entries)
		}
	})

	t.Run("duplicate name returns ProfileExistsError", func(t *testing.T) {
		db := newTestDB(t)
		if err := db.CreateProfile(ctx, newProfile("main")); err != nil {
			t.Fatal(err)
		}
		err := db.CreateProfile(ctx, newProfile("main"))
		var exists *launcher.ProfileExistsError
		if !errors.As(err, &exists) {
			t.Fatalf("CreateProfile() error = %v, want ProfileExistsError", err)
		}
		if exists.Name != "main" {
			t.Errorf("Name = %q, want main", exists.Name)
		}
	})

	t.Run("missing profile returns nil", func(t *testing.T) {
		db := newTestDB(t)
		p, err := db.FindProfile(ctx, "ghost")
		if err != nil || p != nil {
			t.Errorf("FindProfile() = %v, %v; want nil, nil", p, err)
		}
	})

	t.Run("save manifest replaces entries in order", func(t *testing.T) {
		db := newTestDB(t)
		if err := db.CreateProfile(ctx, newProfile("main")); err != nil {
			t.Fatal(err)
		}
		first := launcher.Manifest{
			LaunchVersion: "1.20.1-fabric",
			MainClass:     "net.fabricmc.Main",
			Entries: []launcher.ManifestEntry{
				{Path: "client.jar", Hash: "h1", Size: 10, Kind: launcher.EntryClient, URL: "u1"},
				{Path: "libs/a.jar", Hash: "h2", Size: 20, Kind: launcher.EntryLibrary, URL: "u2"},
			},
		}
		if err := db.SaveManifest(ctx, "main", first, launcher.StateValidating, t0); err != nil {
			t.Fatalf("SaveManifest() error = %v", err)
		}
		second := first
		second.Entries = []launcher.ManifestEntry{
			{Path: "mods/x.jar", Hash: "h3", Size: 5, Kind: launcher.EntryMod, URL: "u3"},
		}
		if err := db.SaveManifest(ctx, "main", second, launcher.StateValidating, t0); err != nil {
			t.Fatal(err)
		}

		p, _ := db.FindProfile(ctx, "main")
		if p.LaunchVersion != "1.20.1-fabric" || p.Manifest.MainClass != "net.fabricmc.Main" {
			t.Errorf("manifest header = %q, %q", p.LaunchVersion, p.Manifest.MainClass)
		}
		if p.State != launcher.StateValidating {
			t.Errorf("State = %v, want validating", p.State)
		}
		if len(p.Manifest.Entries) != 1 || p.Manifest.Entries[0] != second.Entries[0] {
			t.Errorf("Entries = %+v, want %+v", p.Manifest.Entries, second.Entries)
		}
	})

	t.Run("save manifest of unknown profile returns ErrNotFound", func(t *testing.T) {
		db := newTestDB(t)
		err := db.SaveManifest(ctx, "ghost", launcher.Manifest{}, launcher.StateValidating, t0)
		if !errors.Is(err, launcher.ErrNotFound) {
			t.Errorf("SaveManifest() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("list orders by name with manifests", func(t *testing.T) {
		db := newTestDB(t)
		for _, name := range []string{"zeta", "alpha"} {
			if err := db.CreateProfile(ctx, newProfile(name)); err != nil {
				t.Fatal(err)
			}
		}
		m := launcher.Manifest{Entries: []launcher.ManifestEntry{{Path: "a", Hash: "h", Kind: launcher.EntryAsset}}}
		if err := db.SaveManifest(ctx, "zeta", m, launcher.StateValidating, t0); err != nil {
			t.Fatal(err)
		}

		profiles, err := db.ListProfiles(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(profiles) != 2 || profiles[0].Name != "alpha" || profiles[1].Name != "zeta" {
			t.Fatalf("ListProfiles() = %v", profiles)
		}
		if len(profiles[1].Manifest.Entries) != 1 {
			t.Errorf("zeta entries = %d, want 1", len(profiles[1].Manifest.Entries))
		}
	})

	t.Run("refs are unique per profile and cascade on delete", func(t *testing.T) {
		db := newTestDB(t)
		if err := db.CreateProfile(ctx, newProfile("main")); err != nil {
			t.Fatal(err)
		}
		added, err := db.AddProfileRef(ctx, "main", "h1")
		if err != nil || !added {
			t.Fatalf("AddProfileRef() = %v, %v", added, err)
		}
		added, _ = db.AddProfileRef(ctx, "main", "h1")
		if added {
			t.Error("AddProfileRef() added a duplicate reference")
		}
		if _, err := db.AddProfileRef(ctx, "main", "h0"); err != nil {
			t.Fatal(err)
		}

		refs, _ := db.ListProfileRefs(ctx, "main")
		if len(refs) != 2 || refs[0] != "h0" || refs[1] != "h1" {
			t.Errorf("ListProfileRefs() = %v", refs)
		}

		removed, _ := db.RemoveProfileRef(ctx, "main", "h0")
		if !removed {
			t.Error("RemoveProfileRef() = false, want true")
		}
		removed, _ = db.RemoveProfileRef(ctx, "main", "h0")
		if removed {
			t.Error("RemoveProfileRef() removed twice")
		}

		if err := db.DeleteProfile(ctx, "main"); err != nil {
			t.Fatal(err)
		}
		refs, _ = db.ListProfileRefs(ctx, "main")
		if len(refs) != 0 {
			t.Errorf("refs after delete = %v", refs)
		}
	})

	t.Run("update state of unknown profile returns ErrNotFound", func(t *testing.T) {
		db := newTestDB(t)
		err := db.UpdateProfileState(ctx, "ghost", launcher.StateReady, t0)
		if !errors.Is(err, launcher.ErrNotFound) {
			t.Errorf("UpdateProfileState() error = %v, want ErrNotFound", err)
		}
	})
}

func TestSQLiteDatabase_LauncherVersions(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	versions := []*launcher.LauncherVersion{
		{ID: "w1", OS: launcher.OSWindows, ArtifactHash: "a", Size: 1, CreatedAt: t0},
		{ID: "w2", OS: launcher.OSWindows, ArtifactHash: "b", Size: 2, CreatedAt: t0.Add(time.Minute)},
		{ID: "l1", OS: launcher.OSLinux, ArtifactHash: "c", Size: 3, CreatedAt: t0},
	}
	for _, v := range versions {
		if err := db.CreateLauncherVersion(ctx, v); err != nil {
			t.Fatalf("CreateLauncherVersion() error = %v", err)
		}
	}

	got, err := db.FindLauncherVersion(ctx, "w2")
	if err != nil || got == nil {
		t.Fatalf("FindLauncherVersion() = %v, %v", got, err)
	}
	if got.OS != launcher.OSWindows || got.ArtifactHash != "b" || got.Size != 2 {
		t.Errorf("version = %+v", got)
	}

	list, err := db.ListLauncherVersions(ctx, launcher.OSWindows)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "w2" || list[1].ID != "w1" {
		t.Errorf("ListLauncherVersions() = %v, want newest first", list)
	}

	if v, _ := db.FindLauncherVersion(ctx, "nope"); v != nil {
		t.Errorf("FindLauncherVersion(nope) = %v, want nil", v)
	}

	err = db.CreateLauncherVersion(ctx, &launcher.LauncherVersion{ID: "x", OS: launcher.OSType(42), CreatedAt: t0})
	if !errors.Is(err, launcher.ErrPlatformNotSupported) {
		t.Errorf("CreateLauncherVersion(bad os) error = %v", err)
	}
}

func newUser(uuid, name string) *launcher.User {
	return &launcher.User{
		UUID:              uuid,
		Name:              name,
		ExpiredDate:       t0,
		ServerExpiredDate: t0,
		CreatedAt:         t0,
		UpdatedAt:         t0,
	}
}

func TestSQLiteDatabase_Users(t *testing.T) {
	ctx := context.Background()

	t.Run("save and find round trips every column", func(t *testing.T) {
		db := newTestDB(t)
		u := newUser("u-1", "Steve")
		u.AccessToken = "tok"
		u.RefreshTokenHash = []byte{1, 2, 3}
		u.ServerUUID = "srv"
		u.ExpiredDate = t0.Add(24 * time.Hour)
		u.DeviceID = "dev"
		u.SourceAddress = "10.0.0.1"
		u.Protocol = "tcp"
		u.SlimSkin = true
		u.Fingerprint = launcher.HardwareFingerprint{CPU: "cpu", Motherboard: "mb", Disks: []string{"d1", "d2"}}
		if err := db.SaveUser(ctx, u); err != nil {
			t.Fatalf("SaveUser() error = %v", err)
		}

		got, err := db.FindUserByName(ctx, "Steve")
		if err != nil || got == nil {
			t.Fatalf("FindUserByName() = %v, %v", got, err)
		}
		if got.UUID != "u-1" || got.AccessToken != "tok" || got.ServerUUID != "srv" ||
			got.DeviceID != "dev" || got.SourceAddress != "10.0.0.1" || got.Protocol != "tcp" || !got.SlimSkin {
			t.Errorf("user = %+v", got)
		}
		if string(got.RefreshTokenHash) != string([]byte{1, 2, 3}) {
			t.Errorf("RefreshTokenHash = %v", got.RefreshTokenHash)
		}
		if !got.ExpiredDate.Equal(u.ExpiredDate) {
			t.Errorf("ExpiredDate = %v, want %v", got.ExpiredDate, u.ExpiredDate)
		}
		if len(got.Fingerprint.Disks) != 2 || got.Fingerprint.Disks[1] != "d2" || got.Fingerprint.CPU != "cpu" {
			t.Errorf("Fingerprint = %+v", got.Fingerprint)
		}
	})

	t.Run("empty access tokens do not collide", func(t *testing.T) {
		db := newTestDB(t)
		if err := db.SaveUser(ctx, newUser("u-1", "a")); err != nil {
			t.Fatal(err)
		}
		if err := db.SaveUser(ctx, newUser("u-2", "b")); err != nil {
			t.Fatalf("SaveUser() second user error = %v", err)
		}
		got, _ := db.FindUserByUUID(ctx, "u-2")
		if got == nil || got.AccessToken != "" {
			t.Errorf("FindUserByUUID() = %+v", got)
		}
	})

	t.Run("save updates an existing user", func(t *testing.T) {
		db := newTestDB(t)
		u := newUser("u-1", "a")
		if err := db.SaveUser(ctx, u); err != nil {
			t.Fatal(err)
		}
		u.AccessToken = "new"
		u.Fingerprint.Disks = nil
		if err := db.SaveUser(ctx, u); err != nil {
			t.Fatal(err)
		}
		got, _ := db.FindUserByUUID(ctx, "u-1")
		if got.AccessToken != "new" || len(got.Fingerprint.Disks) != 0 {
			t.Errorf("user = %+v", got)
		}
	})

	t.Run("sessions open and close", func(t *testing.T) {
		db := newTestDB(t)
		if err := db.SaveUser(ctx, newUser("u-1", "a")); err != nil {
			t.Fatal(err)
		}
		if err := db.SaveUser(ctx, newUser("u-2", "b")); err != nil {
			t.Fatal(err)
		}
		for i, s := range []*launcher.Session{
			{ID: "s1", UserUUID: "u-1", Start: t0},
			{ID: "s2", UserUUID: "u-1", Start: t0.Add(time.Minute)},
		} {
			if err := db.CreateSession(ctx, s); err != nil {
				t.Fatalf("CreateSession(%d) error = %v", i, err)
			}
		}

		open, err := db.ListUsersWithOpenSessions(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(open) != 1 || open[0].UUID != "u-1" {
			t.Errorf("ListUsersWithOpenSessions() = %v", open)
		}

		end := t0.Add(time.Hour)
		n, err := db.CloseOpenSessions(ctx, "u-1", end)
		if err != nil || n != 2 {
			t.Fatalf("CloseOpenSessions() = %d, %v; want 2", n, err)
		}

		sessions, err := db.ListSessions(ctx, "u-1")
		if err != nil {
			t.Fatal(err)
		}
		if len(sessions) != 2 || sessions[0].ID != "s1" {
			t.Fatalf("ListSessions() = %v", sessions)
		}
		for _, s := range sessions {
			if s.Open() || !s.End.Equal(end) {
				t.Errorf("session %s End = %v, want %v", s.ID, s.End, end)
			}
		}

		open, _ = db.ListUsersWithOpenSessions(ctx)
		if len(open) != 0 {
			t.Errorf("users with open sessions after close = %v", open)
		}
	})
}

func TestSQLiteDatabase_HardwareBans(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	bans := []launcher.HardwareBan{
		{Kind: launcher.BanCPU, Value: "c1"},
		{Kind: launcher.BanDisk, Value: "d1"},
	}
	if err := db.AddHardwareBans(ctx, bans, t0); err != nil {
		t.Fatalf("AddHardwareBans() error = %v", err)
	}
	if err := db.AddHardwareBans(ctx, bans[:1], t0); err != nil {
		t.Fatalf("AddHardwareBans() duplicate error = %v", err)
	}

	got, err := db.ListHardwareBans(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("ListHardwareBans() = %v", got)
	}

	if err := db.RemoveHardwareBans(ctx, bans[:1]); err != nil {
		t.Fatal(err)
	}
	got, _ = db.ListHardwareBans(ctx)
	if len(got) != 1 || got[0] != bans[1] {
		t.Errorf("ListHardwareBans() after remove = %v", got)
	}
}

func TestSQLiteDatabase_Settings(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	if _, err := db.GetSetting(ctx, "k"); !errors.Is(err, launcher.ErrNotFound) {
		t.Errorf("GetSetting() error = %v, want ErrNotFound", err)
	}
	if err := db.PutSetting(ctx, "k", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := db.PutSetting(ctx, "k", []byte("v2")); err != nil {
		t.Fatal(err)
	}
	v, err := db.GetSetting(ctx, "k")
	if err != nil || string(v) != "v2" {
		t.Errorf("GetSetting() = %q, %v; want v2", v, err)
	}
	if err := db.DeleteSetting(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.GetSetting(ctx, "k"); !errors.Is(err, launcher.ErrNotFound) {
		t.Errorf("GetSetting() after delete error = %v", err)
	}
}

func TestNewDatabaseFromConfig(t *testing.T) {
	t.Run("sqlite creates the file", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "db")
		db, err := NewDatabaseFromConfig(config.DatabaseConfig{Type: "sqlite", DataDir: dir})
		if err != nil {
			t.Fatalf("NewDatabaseFromConfig() error = %v", err)
		}
		defer db.Close()
		if want := filepath.Join(dir, DatabaseFile); db.path != want {
			t.Errorf("path = %q, want %q", db.path, want)
		}
	})

	t.Run("sqlite requires data dir", func(t *testing.T) {
		if _, err := NewDatabaseFromConfig(config.DatabaseConfig{Type: "sqlite"}); err == nil {
			t.Error("NewDatabaseFromConfig() error = nil")
		}
	})

	t.Run("memory", func(t *testing.T) {
		db, err := NewDatabaseFromConfig(config.DatabaseConfig{Type: "memory"})
		if err != nil {
			t.Fatal(err)
		}
		db.Close()
	})

	t.Run("unknown type", func(t *testing.T) {
		if _, err := NewDatabaseFromConfig(config.DatabaseConfig{Type: "postgres"}); err == nil {
			t.Error("NewDatabaseFromConfig() error = nil")
		}
	})
}
