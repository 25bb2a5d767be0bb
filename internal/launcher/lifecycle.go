package launcher

// profileTransitions lists the allowed target states for each state.
// Removed is terminal. Downloading falls back to Validating after a failed
// download. Launching only returns to Ready when the game exits, so nothing
// can revalidate or relaunch a profile whose game is still running.
var profileTransitions = map[ProfileState][]ProfileState{
	StateCreated:     {StateValidating, StateRemoved},
	StateValidating:  {StateValidating, StateDownloading, StateRemoved},
	StateDownloading: {StateReady, StateValidating, StateRemoved},
	StateReady:       {StateValidating, StateLaunching, StateRemoved},
	StateLaunching:   {StateReady, StateRemoved},
	StateRemoved:     {},
}

// CanTransition reports whether a profile may move from one state to another.
func CanTransition(from, to ProfileState) bool {
	for _, s := range profileTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// checkTransition returns *InvalidTransitionError when from -> to is not allowed.
func checkTransition(from, to ProfileState) error {
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}
