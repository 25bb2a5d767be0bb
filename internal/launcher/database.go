package launcher

import (
	"context"
	"time"
)

// Lookups that find nothing return (nil, nil); callers decide whether absence
// is an error.

// ArtifactIndex stores ArtifactRecords.
type ArtifactIndex interface {
	// FindArtifact returns the record for hash, or nil if none exists.
	FindArtifact(ctx context.Context, hash string) (*ArtifactRecord, error)

	// AddArtifactReference creates the record with a reference count of 1, or
	// increments the count of an existing record and clears its releasedAt.
	// Returns the new reference count.
	AddArtifactReference(ctx context.Context, record ArtifactRecord) (int64, error)

	// AdjustArtifactRefs adds delta to the reference count. releasedAt is set
	// to now when the count reaches zero and cleared when it rises above zero.
	// Returns ErrNotFound if the record is missing and ErrRefUnderflow, leaving
	// the record untouched, if the count would go below zero.
	AdjustArtifactRefs(ctx context.Context, hash string, delta int64, now time.Time) (int64, error)

	// ListUnreferencedArtifacts returns every record with a zero reference count.
	ListUnreferencedArtifacts(ctx context.Context) ([]*ArtifactRecord, error)

	// DeleteArtifact deletes the record only if its reference count is still
	// zero. Reports whether a row was deleted.
	DeleteArtifact(ctx context.Context, hash string) (bool, error)
}

// ProfileStore stores profiles, their manifests and the artifact references
// each profile holds.
type ProfileStore interface {
	// CreateProfile inserts a new profile. Returns *ProfileExistsError if the
	// name is taken.
	CreateProfile(ctx context.Context, profile *Profile) error

	// FindProfile returns the profile with its manifest, or nil.
	FindProfile(ctx context.Context, name string) (*Profile, error)

	// ListProfiles returns all profiles ordered by name, manifests included.
	ListProfiles(ctx context.Context) ([]*Profile, error)

	// UpdateProfileState persists a state change.
	UpdateProfileState(ctx context.Context, name string, state ProfileState, now time.Time) error

	// SaveManifest replaces the profile's manifest and sets its state in one
	// transaction.
	SaveManifest(ctx context.Context, name string, manifest Manifest, state ProfileState, now time.Time) error

	// DeleteProfile deletes the profile, its manifest and its references.
	DeleteProfile(ctx context.Context, name string) error

	// AddProfileRef records that the profile holds a reference on hash.
	// Reports false if it already held one.
	AddProfileRef(ctx context.Context, name, hash string) (bool, error)

	// RemoveProfileRef drops the profile's reference on hash. Reports false
	// if it held none.
	RemoveProfileRef(ctx context.Context, name, hash string) (bool, error)

	// ListProfileRefs returns the hashes the profile holds references on.
	ListProfileRefs(ctx context.Context, name string) ([]string, error)
}

// VersionStore stores the launcher version history.
type VersionStore interface {
	CreateLauncherVersion(ctx context.Context, version *LauncherVersion) error

	// FindLauncherVersion returns the version with id, or nil.
	FindLauncherVersion(ctx context.Context, id string) (*LauncherVersion, error)

	// ListLauncherVersions returns every version for os, newest first.
	ListLauncherVersions(ctx context.Context, os OSType) ([]*LauncherVersion, error)
}

// UserStore stores users and their session history.
type UserStore interface {
	FindUserByUUID(ctx context.Context, uuid string) (*User, error)
	FindUserByName(ctx context.Context, name string) (*User, error)

	// SaveUser inserts or fully replaces the user row. Sessions are not touched.
	SaveUser(ctx context.Context, user *User) error

	// CreateSession appends a session.
	CreateSession(ctx context.Context, session *Session) error

	// CloseOpenSessions sets end on every open session of the user.
	// Returns the number of sessions closed.
	CloseOpenSessions(ctx context.Context, userUUID string, end time.Time) (int64, error)

	// ListSessions returns the user's sessions in start order.
	ListSessions(ctx context.Context, userUUID string) ([]Session, error)

	// ListUsersWithOpenSessions returns users that have at least one open session.
	ListUsersWithOpenSessions(ctx context.Context) ([]*User, error)
}

// BanStore persists the hardware ban set.
type BanStore interface {
	ListHardwareBans(ctx context.Context) ([]HardwareBan, error)
	AddHardwareBans(ctx context.Context, bans []HardwareBan, now time.Time) error
	RemoveHardwareBans(ctx context.Context, bans []HardwareBan) error
}

// Database is the full metadata store.
type Database interface {
	ArtifactIndex
	ProfileStore
	VersionStore
	UserStore
	BanStore

	// Close closes the database connection.
	Close() error
}
