package launcher

import (
	"errors"
	"testing"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to ProfileState
		want     bool
	}{
		{StateCreated, StateValidating, true},
		{StateCreated, StateDownloading, false},
		{StateCreated, StateReady, false},
		{StateValidating, StateValidating, true},
		{StateValidating, StateDownloading, true},
		{StateValidating, StateReady, false},
		{StateDownloading, StateReady, true},
		{StateDownloading, StateValidating, true},
		{StateReady, StateLaunching, true},
		{StateReady, StateDownloading, false},
		{StateLaunching, StateReady, true},
		{StateLaunching, StateValidating, false},
		{StateLaunching, StateDownloading, false},
		{StateRemoved, StateCreated, false},
		{StateRemoved, StateValidating, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestEveryStateCanBeRemoved(t *testing.T) {
	for from := range profileTransitions {
		if from == StateRemoved {
			continue
		}
		if !CanTransition(from, StateRemoved) {
			t.Errorf("%s cannot move to removed", from)
		}
	}
}

func TestCheckTransition(t *testing.T) {
	if err := checkTransition(StateReady, StateLaunching); err != nil {
		t.Errorf("checkTransition(ready, launching) = %v", err)
	}
	err := checkTransition(StateCreated, StateReady)
	var terr *InvalidTransitionError
	if !errors.As(err, &terr) || terr.From != StateCreated || terr.To != StateReady {
		t.Fatalf("checkTransition(created, ready) = %v", err)
	}
	if !errors.Is(err, ErrInvalidTransition) {
		t.Error("InvalidTransitionError does not match ErrInvalidTransition")
	}
}
