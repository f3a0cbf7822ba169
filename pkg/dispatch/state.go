package dispatch

import "fmt"

// State is the lifecycle position of one tool call.
type State int

const (
	// StateIdle means no work is in flight for the call.
	StateIdle State = iota
	// StateDispatched means the call was accepted and validated.
	StateDispatched
	// StateAwaitingExternalCalls means board or retrieval calls are running.
	StateAwaitingExternalCalls
	// StateResultSent means the result went back on the session.
	StateResultSent
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatched:
		return "dispatched"
	case StateAwaitingExternalCalls:
		return "awaiting_external_calls"
	case StateResultSent:
		return "result_sent"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name for JSON status payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name produced by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{StateIdle, StateDispatched, StateAwaitingExternalCalls, StateResultSent} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("dispatch: unknown state %q", text)
}
