package orchestrator

import (
	ferrors "git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
)

// State is a task's position in the processing lifecycle.
type State string

const (
	StateReceived      State = "RECEIVED"
	StatePreparingRepo State = "PREPARING_REPO"
	StateGenerating    State = "GENERATING"
	StateCommitting    State = "COMMITTING"
	StatePublishing    State = "PUBLISHING"
	StateNotifying     State = "NOTIFYING"
	StateCompleted     State = "COMPLETED"
	StateFailed        State = "FAILED"
)

// transitions encodes the legal lifecycle. Every working state may jump to
// NOTIFYING so failures are reported from wherever they strike.
var transitions = map[State][]State{
	StateReceived:      {StatePreparingRepo, StateNotifying},
	StatePreparingRepo: {StateGenerating, StateNotifying},
	StateGenerating:    {StateCommitting, StateNotifying},
	StateCommitting:    {StatePublishing, StateNotifying},
	StatePublishing:    {StateNotifying},
	StateNotifying:     {StateCompleted, StateFailed},
	StateCompleted:     {},
	StateFailed:        {},
}

// Terminal reports whether the state ends the lifecycle.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CanTransition reports whether moving to the given state is legal.
func (s State) CanTransition(to State) bool {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// advance moves the state or reports the illegal transition as an internal
// error; reaching it means a sequencing bug, not an external failure.
func advance(s *State, to State) error {
	if !s.CanTransition(to) {
		return ferrors.InternalError("illegal state transition").
			WithContext("from", string(*s)).
			WithContext("to", string(to)).Build()
	}
	*s = to
	return nil
}
