package models

import dErrors "touristid/pkg/domain-errors"

// State is the lifecycle position of a credential.
//
// Transitions are one-way and only leave ACTIVE:
//
//	ACTIVE -> EXPIRED  (auto-expiration sweep)
//	ACTIVE -> REVOKED  (administrative)
//	ACTIVE -> LOST     (loss report; a successor is issued with Replaces set)
//
// A replacement is an ordinary ACTIVE credential whose Replaces field points at the
// lost one; there is no REPLACED state stored on either record.
type State string

const (
	StateActive  State = "ACTIVE"
	StateExpired State = "EXPIRED"
	StateRevoked State = "REVOKED"
	StateLost    State = "LOST"
)

// AllStates lists states in display order.
var AllStates = []State{StateActive, StateExpired, StateRevoked, StateLost}

var transitions = map[State]map[State]bool{
	StateActive: {
		StateExpired: true,
		StateRevoked: true,
		StateLost:    true,
	},
}

// CanTransitionTo is the single source of truth for allowed transitions.
func (s State) CanTransitionTo(next State) bool {
	return transitions[s][next]
}

// IsTerminal reports whether no transition leaves s.
func (s State) IsTerminal() bool {
	return len(transitions[s]) == 0
}

func (s State) IsValid() bool {
	switch s {
	case StateActive, StateExpired, StateRevoked, StateLost:
		return true
	}
	return false
}

func (s State) String() string {
	return string(s)
}

// ParseState validates a state read from storage or a query string.
func ParseState(v string) (State, error) {
	s := State(v)
	if !s.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown credential state: "+v)
	}
	return s, nil
}
