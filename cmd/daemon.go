package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/zjrosen/georefresh/internal/log"
	"github.com/zjrosen/georefresh/internal/pipeline"
	"github.com/zjrosen/georefresh/internal/pubsub"
	"github.com/zjrosen/georefresh/internal/watcher"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the pipeline on a schedule and on demand",
	Long: `Run the pipeline every interval, and whenever the trigger file is touched.
Runs never overlap; a trigger that arrives during a run is coalesced into the
next one. Failed runs are logged and the daemon keeps going.

Example:
  georefresh daemon                  # daily, per config
  georefresh daemon --interval 6h    # every six hours
  touch .georefresh/trigger          # request a manual run`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().Duration("interval", 0, "time between scheduled runs (overrides config)")
	daemonCmd.Flags().String("trigger-file", "", "file whose modification triggers a manual run (overrides config)")
	daemonCmd.Flags().Bool("run-on-start", false, "run once immediately at startup")

	_ = viper.BindPFlag("schedule.interval", daemonCmd.Flags().Lookup("interval"))
	_ = viper.BindPFlag("schedule.trigger_file", daemonCmd.Flags().Lookup("trigger-file"))
	_ = viper.BindPFlag("schedule.run_on_start", daemonCmd.Flags().Lookup("run-on-start"))
}

func runDaemon(cmd *cobra.Command, _ []string) error {
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

	triggerFile := cfg.Schedule.TriggerFile
	if triggerFile != "" && !filepath.IsAbs(triggerFile) {
		triggerFile = filepath.Join(a.repoDir, triggerFile)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "georefresh daemon: every %s, trigger file %s\n", cfg.Schedule.Interval, triggerFile)
	_, _ = fmt.Fprintln(out, "Press Ctrl+C to stop")

	err = superviseRuns(ctx, a.runner, schedule{
		interval:    cfg.Schedule.Interval,
		triggerFile: triggerFile,
		debounce:    cfg.Schedule.Debounce,
		runOnStart:  cfg.Schedule.RunOnStart,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	_, _ = fmt.Fprintln(out, "Daemon stopped")
	return nil
}

type schedule struct {
	interval    time.Duration
	triggerFile string
	debounce    time.Duration
	runOnStart  bool
}

// runner is the part of *pipeline.Runner the daemon drives.
type runner interface {
	Run(ctx context.Context, trigger pipeline.Trigger) (*pipeline.Run, error)
	Subscribe(ctx context.Context) <-chan pubsub.Event[pipeline.Run]
}

// superviseRuns multiplexes the ticker and the trigger file into one channel
// consumed by a single goroutine. It returns when ctx is cancelled or a
// source fails.
func superviseRuns(ctx context.Context, r runner, s schedule) error {
	// The watcher is set up before any goroutine starts so a failure here
	// leaves nothing running.
	var changes <-chan struct{}
	if s.triggerFile != "" {
		if err := os.MkdirAll(filepath.Dir(s.triggerFile), 0o750); err != nil {
			return fmt.Errorf("creating trigger directory: %w", err)
		}
		w, err := watcher.New(watcher.Config{Path: s.triggerFile, Debounce: s.debounce})
		if err != nil {
			return err
		}
		defer func() { _ = w.Stop() }()
		if changes, err = w.Start(); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	// Buffer of one: triggers that arrive mid-run collapse into a single pending run.
	triggers := make(chan pipeline.Trigger, 1)
	request := func(t pipeline.Trigger) {
		select {
		case triggers <- t:
		default:
			log.Debug(log.CatSched, "Run already pending, trigger coalesced", "trigger", t)
		}
	}

	if s.runOnStart {
		request(pipeline.TriggerScheduled)
	}

	if s.interval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(s.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					request(pipeline.TriggerScheduled)
				}
			}
		})
	}

	if changes != nil {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-changes:
					log.Info(log.CatWatcher, "Trigger file touched", "path", s.triggerFile)
					request(pipeline.TriggerManual)
				}
			}
		})
	}

	events := r.Subscribe(ctx)
	g.Go(func() error {
		for ev := range events {
			if ev.Type == pubsub.StateChangedEvent {
				log.Debug(log.CatSched, "Run progressed", "run", ev.Payload.ID, "state", ev.Payload.State)
			}
		}
		return nil
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case t := <-triggers:
				run, err := r.Run(ctx, t)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					log.ErrorErr(log.CatSched, "Run failed, waiting for next trigger", err, "trigger", t)
					continue
				}
				log.Info(log.CatSched, "Run complete", "outcome", run.Outcome, "summary", run.Summary)
			}
		}
	})

	return g.Wait()
}
