// Package source holds the transformers that regenerate candidate artifacts
// inside the work tree.
package source

import (
	"context"
	"fmt"
	"strings"
)

// Transformer produces the candidate artifact files for a run.
type Transformer interface {
	// Name identifies the transformer in logs and run records.
	Name() string
	// Prepare resolves dependencies. It runs before any fetching.
	Prepare(ctx context.Context) error
	// Transform fetches upstream data and writes candidate files under workDir.
	Transform(ctx context.Context, workDir string) error
}

// CommandError reports a failed external command.
type CommandError struct {
	Command  string
	ExitCode int
	// Stderr holds the last lines the command wrote to stderr.
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "command %q", e.Command)
	if e.ExitCode >= 0 {
		fmt.Fprintf(&b, " exited with status %d", e.ExitCode)
	} else {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Stderr != "" {
		b.WriteString(": ")
		b.WriteString(e.Stderr)
	}
	return b.String()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
