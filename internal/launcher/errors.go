package launcher

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionNotLoaded is returned when no launcher version has been
	// published for an OS.
	ErrVersionNotLoaded = errors.New("launcher version not loaded")

	// ErrPlatformNotSupported is returned for an unknown OS name.
	ErrPlatformNotSupported = errors.New("platform not supported")

	// ErrAuthenticationFailed is the single reason reported to callers for any
	// rejected login, so credential probing learns nothing.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrHardwareBanned is returned when a login's fingerprint matches the ban set.
	ErrHardwareBanned = errors.New("hardware banned")

	// ErrArgumentOutOfRange is returned for an enum value outside its table.
	ErrArgumentOutOfRange = errors.New("argument out of range")

	// ErrNewsProviderNotFound is returned when no news provider is configured.
	ErrNewsProviderNotFound = errors.New("news provider not found")

	// ErrPermanentFetch marks fetch failures that retrying cannot fix
	// (4xx responses, malformed URLs).
	ErrPermanentFetch = errors.New("permanent fetch failure")

	// ErrTokenInvalid is returned when an access or refresh token does not
	// match, is malformed or has expired.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrUnsafePath is returned when a manifest path escapes the profile root.
	ErrUnsafePath = errors.New("unsafe path")

	// ErrRefUnderflow is returned when a release would take an artifact's
	// reference count below zero.
	ErrRefUnderflow = errors.New("reference count underflow")

	// ErrStagingFull is returned when staging a blob would exceed the staging
	// area's size limit.
	ErrStagingFull = errors.New("staging area full")

	// Sentinels matched by the typed errors below through their Is methods.
	ErrIntegrity           = errors.New("integrity check failed")
	ErrProfileExists       = errors.New("profile exists")
	ErrProfileNotReady     = errors.New("profile not ready")
	ErrOperationInProgress = errors.New("operation in progress")
	ErrInvalidTransition   = errors.New("invalid profile transition")
	ErrDownloadFailed      = errors.New("download failed")
)

// IntegrityError reports that stored bytes no longer hash to their key.
type IntegrityError struct {
	Hash   string
	Actual string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for %s: got %s", e.Hash, e.Actual)
}

func (e *IntegrityError) Is(target error) bool { return target == ErrIntegrity }

// ProfileExistsError is returned when creating a profile whose name is taken.
type ProfileExistsError struct {
	Name string
}

func (e *ProfileExistsError) Error() string {
	return fmt.Sprintf("profile %q already exists", e.Name)
}

func (e *ProfileExistsError) Is(target error) bool { return target == ErrProfileExists }

// ProfileNotReadyError is returned when launching a profile that is not Ready.
type ProfileNotReadyError struct {
	Name  string
	State ProfileState
}

func (e *ProfileNotReadyError) Error() string {
	return fmt.Sprintf("profile %q is not ready (state %s)", e.Name, e.State)
}

func (e *ProfileNotReadyError) Is(target error) bool { return target == ErrProfileNotReady }

// OperationInProgressError is returned when a profile already has an
// operation running.
type OperationInProgressError struct {
	Name string
}

func (e *OperationInProgressError) Error() string {
	return fmt.Sprintf("operation already in progress for profile %q", e.Name)
}

func (e *OperationInProgressError) Is(target error) bool { return target == ErrOperationInProgress }

// InvalidTransitionError is returned when a lifecycle transition is not allowed.
type InvalidTransitionError struct {
	From ProfileState
	To   ProfileState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid profile transition: %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// FailedEntry is one manifest entry that could not be downloaded.
type FailedEntry struct {
	Path string
	Hash string
	Err  error
}

// DownloadError lists every entry that failed during a download run.
type DownloadError struct {
	Profile string
	Failed  []FailedEntry
}

func (e *DownloadError) Error() string {
	paths := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		paths = append(paths, f.Path)
	}
	return fmt.Sprintf("download of profile %q failed for %d entries: %s",
		e.Profile, len(e.Failed), strings.Join(paths, ", "))
}

func (e *DownloadError) Is(target error) bool { return target == ErrDownloadFailed }

// Unwrap exposes the per-entry causes to errors.Is and errors.As.
func (e *DownloadError) Unwrap() []error {
	out := make([]error, 0, len(e.Failed))
	for _, f := range e.Failed {
		if f.Err != nil {
			out = append(out, f.Err)
		}
	}
	return out
}
