package launcher

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestOSTypeNames(t *testing.T) {
	seen := make(map[string]bool)
	for _, os := range OSTypes() {
		name := osTypeNames[os]
		if name == "" {
			t.Errorf("OSType(%d) has no name", int(os))
		}
		if seen[name] {
			t.Errorf("name %q used twice", name)
		}
		seen[name] = true

		parsed, err := ParseOSType(strings.ToUpper(name))
		if err != nil || parsed != os {
			t.Errorf("ParseOSType(%q) = %v, %v, want %v", name, parsed, err, os)
		}
	}
}

func TestParseOSType(t *testing.T) {
	tests := []struct {
		in   string
		want OSType
	}{
		{"windows", OSWindows},
		{" Linux ", OSLinux},
		{"OSX", OSOsX},
	}
	for _, tt := range tests {
		got, err := ParseOSType(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseOSType(%q) = %v, %v, want %v", tt.in, got, err, tt.want)
		}
	}

	for _, bad := range []string{"", "macos", "win32"} {
		if _, err := ParseOSType(bad); !errors.Is(err, ErrPlatformNotSupported) {
			t.Errorf("ParseOSType(%q) error = %v, want ErrPlatformNotSupported", bad, err)
		}
	}

	if OSType(-1).Valid() || OSType(osTypeCount).Valid() {
		t.Error("out-of-range OSType reported valid")
	}
	if got := OSType(9).String(); got != "OSType(9)" {
		t.Errorf("String() = %q", got)
	}
}

func TestLoaderKind(t *testing.T) {
	tests := []struct {
		kind LoaderKind
		id   string
	}{
		{LoaderNone, "vanilla"},
		{LoaderForge, "forge"},
		{LoaderFabric, "fabric"},
		{LoaderLiteLoader, "liteloader"},
		{LoaderNeoForge, "neoforge"},
		{LoaderQuilt, "quilt"},
	}
	for _, tt := range tests {
		id, err := tt.kind.Identifier()
		if err != nil || id != tt.id {
			t.Errorf("%d.Identifier() = %q, %v, want %q", int(tt.kind), id, err, tt.id)
		}
		parsed, err := ParseLoaderKind(tt.id)
		if err != nil || parsed != tt.kind {
			t.Errorf("ParseLoaderKind(%q) = %v, %v", tt.id, parsed, err)
		}
	}

	if got, _ := ParseLoaderKind("none"); got != LoaderNone {
		t.Errorf("ParseLoaderKind(none) = %v", got)
	}
	for _, bad := range []LoaderKind{-1, loaderKindCount} {
		if _, err := bad.Identifier(); !errors.Is(err, ErrArgumentOutOfRange) {
			t.Errorf("LoaderKind(%d).Identifier() error = %v", int(bad), err)
		}
	}
	if _, err := ParseLoaderKind("rift"); !errors.Is(err, ErrArgumentOutOfRange) {
		t.Errorf("ParseLoaderKind(rift) error = %v", err)
	}
}

func TestValidHash(t *testing.T) {
	good := strings.Repeat("ab01", 16)
	tests := []struct {
		in   string
		want bool
	}{
		{good, true},
		{strings.ToUpper(good), false},
		{good[:63], false},
		{good + "0", false},
		{strings.Repeat("g", 64), false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidHash(tt.in); got != tt.want {
			t.Errorf("ValidHash(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestManifest_Hashes(t *testing.T) {
	m := Manifest{Entries: []ManifestEntry{
		{Path: "a", Hash: "h1"},
		{Path: "b", Hash: "h2"},
		{Path: "c", Hash: "h1"},
	}}
	if got := m.Hashes(); !slices.Equal(got, []string{"h1", "h2"}) {
		t.Errorf("Hashes() = %v", got)
	}
}

func TestHardwareFingerprint_Components(t *testing.T) {
	fp := HardwareFingerprint{CPU: "c", Disks: []string{"d1", "", "d2"}}
	want := []HardwareBan{
		{Kind: BanCPU, Value: "c"},
		{Kind: BanDisk, Value: "d1"},
		{Kind: BanDisk, Value: "d2"},
	}
	if got := fp.Components(); !slices.Equal(got, want) {
		t.Errorf("Components() = %v, want %v", got, want)
	}
	if got := (HardwareFingerprint{}).Components(); len(got) != 0 {
		t.Errorf("empty fingerprint has components %v", got)
	}
}

func TestUser_TokenValid(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	tests := []struct {
		name string
		user User
		want bool
	}{
		{"valid", User{AccessToken: "t", ExpiredDate: now.Add(time.Second)}, true},
		{"expires now", User{AccessToken: "t", ExpiredDate: now}, false},
		{"no token", User{ExpiredDate: now.Add(time.Hour)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.TokenValid(now); got != tt.want {
				t.Errorf("TokenValid() = %v, want %v", got, tt.want)
			}
		})
	}
}
