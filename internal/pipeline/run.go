package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/georefresh/internal/store"
)

// Trigger says what started a run.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// ParseTrigger validates a trigger name.
func ParseTrigger(s string) (Trigger, error) {
	switch t := Trigger(s); t {
	case TriggerScheduled, TriggerManual:
		return t, nil
	default:
		return "", fmt.Errorf("unknown trigger %q (want scheduled or manual)", s)
	}
}

// Outcome is the final result of a run.
type Outcome string

const (
	OutcomeNoop      Outcome = "noop"
	OutcomeCommitted Outcome = "committed"
	OutcomeFailed    Outcome = "failed"
)

// Run is one end-to-end execution of the pipeline.
type Run struct {
	ID          string
	Trigger     Trigger
	Transformer string
	Repo        string
	Branch      string
	State       State
	Outcome     Outcome // empty until the run terminates

	// Base is HEAD when the run started; "" on an unborn branch.
	Base    string
	Commit  string
	Pushed  bool
	Summary string

	// CandidateHash identifies the generated artifact set, once loaded.
	CandidateHash string

	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

func newRun(trigger Trigger, branch string, now time.Time) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		Branch:    branch,
		State:     StateIdle,
		StartedAt: now,
	}
}

// transition moves the run to next, refusing illegal transitions.
func (r *Run) transition(next State) error {
	if err := checkTransition(r.State, next); err != nil {
		return err
	}
	r.State = next
	return nil
}

// Duration is how long the run took, or has taken so far.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *Run) record() *store.RunRecord {
	rec := &store.RunRecord{
		ID:            r.ID,
		Repo:          r.Repo,
		Branch:        r.Branch,
		Trigger:       string(r.Trigger),
		Transformer:   r.Transformer,
		State:         string(r.State),
		Outcome:       string(r.Outcome),
		BaseRevision:  r.Base,
		CommitHash:    r.Commit,
		CandidateHash: r.CandidateHash,
		Summary:       r.Summary,
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	return rec
}
