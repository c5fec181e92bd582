package pipeline

import (
	"errors"
	"fmt"
	"slices"
)

// State is a run's position in the pipeline.
type State string

const (
	StateIdle       State = "Idle"
	StateFetching   State = "Fetching"
	StateDetecting  State = "Detecting"
	StatePublishing State = "Publishing"
	StateDone       State = "Done"
	StateFailed     State = "Failed"
)

// ErrIllegalTransition is returned for a transition the state machine does
// not allow. It always indicates a programming error.
var ErrIllegalTransition = errors.New("illegal state transition")

var transitions = map[State][]State{
	StateIdle:       {StateFetching, StateFailed},
	StateFetching:   {StateDetecting, StateFailed},
	StateDetecting:  {StatePublishing, StateDone, StateFailed},
	StatePublishing: {StateDone, StateFailed},
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// CanTransition reports whether s may move to next.
func (s State) CanTransition(next State) bool {
	return slices.Contains(transitions[s], next)
}

func checkTransition(from, to State) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}
