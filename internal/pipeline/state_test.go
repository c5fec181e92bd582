package pipeline

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestState_Transitions(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateIdle, StateFetching, true},
		{StateIdle, StateFailed, true},
		{StateIdle, StateDetecting, false},
		{StateFetching, StateDetecting, true},
		{StateFetching, StateFailed, true},
		{StateFetching, StatePublishing, false},
		{StateDetecting, StatePublishing, true},
		{StateDetecting, StateDone, true},
		{StateDetecting, StateFailed, true},
		{StatePublishing, StateDone, true},
		{StatePublishing, StateFailed, true},
		{StatePublishing, StateFetching, false},
		{StateDone, StateFailed, false},
		{StateFailed, StateIdle, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			require.Equal(t, tt.ok, tt.from.CanTransition(tt.to))
			err := checkTransition(tt.from, tt.to)
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrIllegalTransition)
			}
		})
	}
}

// TestState_WalksEndInTerminalStates drives random legal walks from Idle and
// checks every walk stops only at Done or Failed.
func TestState_WalksEndInTerminalStates(t *testing.T) {
	all := []State{StateIdle, StateFetching, StateDetecting, StatePublishing, StateDone, StateFailed}

	rapid.Check(t, func(r *rapid.T) {
		run := &Run{State: StateIdle}
		for steps := 0; !run.State.Terminal(); steps++ {
			if steps > len(all) {
				r.Fatalf("walk did not terminate, stuck at %s", run.State)
			}
			next := rapid.SampledFrom(all).Draw(r, "next")
			from := run.State
			err := run.transition(next)
			if from.CanTransition(next) != (err == nil) {
				r.Fatalf("%s -> %s: err=%v", from, next, err)
			}
			if err != nil && run.State != from {
				r.Fatalf("rejected transition changed state to %s", run.State)
			}
		}
		for _, s := range all {
			if run.State.CanTransition(s) {
				r.Fatalf("terminal %s allows -> %s", run.State, s)
			}
		}
	})
}

func TestStageError_MatchesKindAndCause(t *testing.T) {
	cause := errors.New("exit status 2")
	err := error(&StageError{Kind: ErrTransform, State: StateFetching, Err: cause})

	require.ErrorIs(t, err, ErrTransform)
	require.ErrorIs(t, err, cause)
	require.NotErrorIs(t, err, ErrPublish)
	require.Equal(t, "transform failed in Fetching: exit status 2", err.Error())
	require.Equal(t, "transform", KindName(fmt.Errorf("wrapped: %w", err)))
	require.Equal(t, "unknown", KindName(cause))

	var serr *StageError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, StateFetching, serr.State)
}

func TestParseTrigger(t *testing.T) {
	got, err := ParseTrigger("manual")
	require.NoError(t, err)
	require.Equal(t, TriggerManual, got)

	_, err = ParseTrigger("cron")
	require.ErrorContains(t, err, `unknown trigger "cron"`)
}
