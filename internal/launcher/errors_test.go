package launcher

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	tests := []struct {
		err    error
		target error
	}{
		{&IntegrityError{Hash: "a", Actual: "b"}, ErrIntegrity},
		{&ProfileExistsError{Name: "p"}, ErrProfileExists},
		{&ProfileNotReadyError{Name: "p", State: StateCreated}, ErrProfileNotReady},
		{&OperationInProgressError{Name: "p"}, ErrOperationInProgress},
		{&InvalidTransitionError{From: StateCreated, To: StateReady}, ErrInvalidTransition},
		{&DownloadError{Profile: "p"}, ErrDownloadFailed},
	}
	for _, tt := range tests {
		wrapped := errors.Join(errors.New("context"), tt.err)
		if !errors.Is(wrapped, tt.target) {
			t.Errorf("%T does not match %v", tt.err, tt.target)
		}
		if errors.Is(tt.err, ErrNotFound) {
			t.Errorf("%T matches ErrNotFound", tt.err)
		}
	}
}

func TestDownloadError(t *testing.T) {
	err := &DownloadError{Profile: "p", Failed: []FailedEntry{
		{Path: "a.jar", Err: &IntegrityError{Hash: "x", Actual: "y"}},
		{Path: "b.jar", Err: context.DeadlineExceeded},
	}}

	msg := err.Error()
	if !strings.Contains(msg, "2 entries") || !strings.Contains(msg, "a.jar, b.jar") {
		t.Errorf("Error() = %q", msg)
	}
	if !errors.Is(err, ErrIntegrity) || !errors.Is(err, context.DeadlineExceeded) {
		t.Error("per-entry causes not reachable through errors.Is")
	}
	var ierr *IntegrityError
	if !errors.As(err, &ierr) || ierr.Hash != "x" {
		t.Errorf("errors.As(IntegrityError) = %v", ierr)
	}
}
