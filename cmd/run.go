package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zjrosen/georefresh/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once",
	Long: `Regenerate the artifacts, compare them with HEAD, and commit and push only
if they changed. Exits non-zero when the run fails; an unchanged data set is
a successful no-op.

Example:
  georefresh run
  georefresh run --trigger manual`,
	Args: cobra.NoArgs,
	RunE: runOnce,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("trigger", string(pipeline.TriggerManual), "what started this run: scheduled or manual")
}

func runOnce(cmd *cobra.Command, _ []string) error {
	name, _ := cmd.Flags().GetString("trigger")
	trigger, err := pipeline.ParseTrigger(name)
	if err != nil {
		return err
	}

	cleanup, err := prepare()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	run, err := a.runner.Run(ctx, trigger)
	printRun(cmd.OutOrStdout(), run)
	return err
}

// printRun writes a one-line outcome for scripts and CI logs.
func printRun(w io.Writer, run *pipeline.Run) {
	if run == nil {
		return
	}
	switch run.Outcome {
	case pipeline.OutcomeCommitted:
		pushed := "committed locally"
		if run.Pushed {
			pushed = "pushed"
		}
		_, _ = fmt.Fprintf(w, "%s %s (%s)\n", pushed, shortHash(run.Commit), run.Summary)
	case pipeline.OutcomeNoop:
		_, _ = fmt.Fprintln(w, "no changes")
	default:
		_, _ = fmt.Fprintf(w, "run %s failed in %s\n", run.ID, failedStage(run))
	}
}

func failedStage(run *pipeline.Run) pipeline.State {
	var serr *pipeline.StageError
	if errors.As(run.Err, &serr) {
		return serr.State
	}
	return run.State
}

func shortHash(h string) string {
	if len(h) > 7 {
		return h[:7]
	}
	return h
}
