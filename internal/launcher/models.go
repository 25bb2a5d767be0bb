package launcher

import (
	"fmt"
	"strings"
	"time"
)

// OSType identifies the operating system a launcher build targets.
type OSType int

const (
	OSWindows OSType = iota
	OSLinux
	OSOsX

	osTypeCount
)

// osTypeNames maps every OSType to its wire name. The array length is tied to
// osTypeCount, so adding a variant without a name leaves an empty slot that
// TestOSTypeNames catches.
var osTypeNames = [osTypeCount]string{
	OSWindows: "windows",
	OSLinux:   "linux",
	OSOsX:     "osx",
}

// ValidHash reports whether s is a lowercase hex SHA-256 digest.
func ValidHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// OSTypes returns every supported OSType in declaration order.
func OSTypes() []OSType {
	out := make([]OSType, 0, osTypeCount)
	for os := OSType(0); os < osTypeCount; os++ {
		out = append(out, os)
	}
	return out
}

// Valid reports whether os is a known variant.
func (os OSType) Valid() bool {
	return os >= 0 && os < osTypeCount
}

func (os OSType) String() string {
	if !os.Valid() {
		return fmt.Sprintf("OSType(%d)", int(os))
	}
	return osTypeNames[os]
}

// ParseOSType parses a case-insensitive OS name.
func ParseOSType(name string) (OSType, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	for os, n := range osTypeNames {
		if n == lower {
			return OSType(os), nil
		}
	}
	return 0, fmt.Errorf("%q: %w", name, ErrPlatformNotSupported)
}

// LoaderKind is the mod-loader variant a profile is built with.
type LoaderKind int

const (
	LoaderNone LoaderKind = iota
	LoaderForge
	LoaderFabric
	LoaderLiteLoader
	LoaderNeoForge
	LoaderQuilt

	loaderKindCount
)

// loaderIdentifiers is the textual identifier requested from the remote
// mod-loader metadata source for each loader.
var loaderIdentifiers = [loaderKindCount]string{
	LoaderNone:       "vanilla",
	LoaderForge:      "forge",
	LoaderFabric:     "fabric",
	LoaderLiteLoader: "liteloader",
	LoaderNeoForge:   "neoforge",
	LoaderQuilt:      "quilt",
}

// Identifier returns the metadata-source identifier for the loader.
// An out-of-range value is a programming error and yields ErrArgumentOutOfRange.
func (l LoaderKind) Identifier() (string, error) {
	if l < 0 || l >= loaderKindCount {
		return "", fmt.Errorf("loader kind %d: %w", int(l), ErrArgumentOutOfRange)
	}
	return loaderIdentifiers[l], nil
}

func (l LoaderKind) String() string {
	id, err := l.Identifier()
	if err != nil {
		return fmt.Sprintf("LoaderKind(%d)", int(l))
	}
	return id
}

// ParseLoaderKind parses a loader identifier. "none" is accepted as an alias
// for the vanilla loader.
func ParseLoaderKind(name string) (LoaderKind, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "none" || lower == "" {
		return LoaderNone, nil
	}
	for l, id := range loaderIdentifiers {
		if id == lower {
			return LoaderKind(l), nil
		}
	}
	return 0, fmt.Errorf("loader %q: %w", name, ErrArgumentOutOfRange)
}

// ProfileState is a node in the profile lifecycle.
type ProfileState string

const (
	StateCreated     ProfileState = "created"
	StateValidating  ProfileState = "validating"
	StateDownloading ProfileState = "downloading"
	StateReady       ProfileState = "ready"
	StateLaunching   ProfileState = "launching"
	StateRemoved     ProfileState = "removed"
)

// EntryKind classifies a manifest entry. Client and library entries form the
// launch classpath.
type EntryKind string

const (
	EntryClient  EntryKind = "client"
	EntryLibrary EntryKind = "library"
	EntryAsset   EntryKind = "asset"
	EntryMod     EntryKind = "mod"
	EntryNative  EntryKind = "native"
)

// ManifestEntry is one file a profile needs, addressed by its SHA-256 hash.
type ManifestEntry struct {
	Path string // relative to the profile's client directory
	Hash string // expected SHA-256, lowercase hex
	Size int64
	Kind EntryKind
	URL  string // remote location the bytes are fetched from
}

// Manifest is the ordered file list a profile requires to be complete.
type Manifest struct {
	LaunchVersion string
	MainClass     string
	Entries       []ManifestEntry
}

// Hashes returns the distinct entry hashes in manifest order.
func (m Manifest) Hashes() []string {
	seen := make(map[string]struct{}, len(m.Entries))
	out := make([]string, 0, len(m.Entries))
	for _, e := range m.Entries {
		if _, ok := seen[e.Hash]; ok {
			continue
		}
		seen[e.Hash] = struct{}{}
		out = append(out, e.Hash)
	}
	return out
}

// Profile is a named, versioned, moddable game installation.
type Profile struct {
	Name          string
	GameVersion   string
	LaunchVersion string
	Loader        LoaderKind
	ClientPath    string
	State         ProfileState
	Manifest      Manifest
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ArtifactRecord is the metadata row for one content-addressed blob.
type ArtifactRecord struct {
	Hash        string
	Size        int64
	StoragePath string
	RefCount    int64
	CreatedAt   time.Time
	ReleasedAt  *time.Time // set when RefCount last dropped to zero
}

// LauncherVersion is one published launcher build for an OS.
type LauncherVersion struct {
	ID           string    `json:"id"`
	OS           OSType    `json:"os"`
	ArtifactHash string    `json:"artifact_hash"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"created_at"`
}

// HardwareFingerprint identifies a machine for device-level bans.
type HardwareFingerprint struct {
	CPU         string
	Motherboard string
	Disks       []string
}

// BanKind names the fingerprint component a ban entry matches.
type BanKind string

const (
	BanCPU         BanKind = "cpu"
	BanMotherboard BanKind = "motherboard"
	BanDisk        BanKind = "disk"
)

// HardwareBan is one banned fingerprint component.
type HardwareBan struct {
	Kind  BanKind
	Value string
}

// Components flattens the non-empty fingerprint fields into ban entries.
func (f HardwareFingerprint) Components() []HardwareBan {
	var out []HardwareBan
	if f.CPU != "" {
		out = append(out, HardwareBan{Kind: BanCPU, Value: f.CPU})
	}
	if f.Motherboard != "" {
		out = append(out, HardwareBan{Kind: BanMotherboard, Value: f.Motherboard})
	}
	for _, d := range f.Disks {
		if d != "" {
			out = append(out, HardwareBan{Kind: BanDisk, Value: d})
		}
	}
	return out
}

// Session is one login-to-logout interval. End is nil while open.
type Session struct {
	ID       string
	UserUUID string
	Start    time.Time
	End      *time.Time
}

// Open reports whether the session has not been closed.
func (s Session) Open() bool {
	return s.End == nil
}

// User is an authenticated player.
type User struct {
	UUID              string
	Name              string
	AccessToken       string
	RefreshTokenHash  []byte
	ServerUUID        string
	ExpiredDate       time.Time
	ServerExpiredDate time.Time
	DeviceID          string
	SourceAddress     string
	Protocol          string
	SlimSkin          bool
	Fingerprint       HardwareFingerprint
	CreatedAt         time.Time
	UpdatedAt         time.Time

	// IsBanned is computed from the ban set when the user is loaded; it is
	// never persisted.
	IsBanned bool
	Sessions []Session
}

// TokenValid reports whether the access token is usable at now.
func (u *User) TokenValid(now time.Time) bool {
	return u.AccessToken != "" && now.Before(u.ExpiredDate)
}
