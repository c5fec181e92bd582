package pipeline

import (
	"errors"
	"fmt"
)

// Failure kinds. A failed run's error matches exactly one of them with errors.Is.
var (
	ErrTransform     = errors.New("transform failed")
	ErrDetection     = errors.New("change detection failed")
	ErrPublish       = errors.New("publish failed")
	ErrRunInProgress = errors.New("another run is in progress")
	ErrPrepare       = errors.New("run preparation failed")
)

// StageError is a run failure tagged with its kind and the state it
// happened in. errors.Is matches both Kind and the wrapped cause.
type StageError struct {
	Kind  error
	State State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s in %s: %v", e.Kind, e.State, e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// KindName returns a short label for a failure kind, used in traces and run records.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrTransform):
		return "transform"
	case errors.Is(err, ErrDetection):
		return "detection"
	case errors.Is(err, ErrPublish):
		return "publish"
	case errors.Is(err, ErrRunInProgress):
		return "in_progress"
	case errors.Is(err, ErrPrepare):
		return "prepare"
	default:
		return "unknown"
	}
}
