package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/zjrosen/georefresh/internal/config"
	"github.com/zjrosen/georefresh/internal/git"
	"github.com/zjrosen/georefresh/internal/log"
	"github.com/zjrosen/georefresh/internal/pipeline"
	"github.com/zjrosen/georefresh/internal/source"
	"github.com/zjrosen/georefresh/internal/store"
	"github.com/zjrosen/georefresh/internal/tracing"
)

// app holds the long-lived pieces a command needs.
type app struct {
	repoDir string
	git     git.Executor
	db      *store.DB
	tracing *tracing.Provider
	runner  *pipeline.Runner
}

func repoDir(c config.Config) (string, error) {
	if c.RepoDir != "" {
		return c.RepoDir, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	return wd, nil
}

// newApp wires the store, tracing, git and the runner from c.
func newApp(ctx context.Context, c config.Config) (*app, error) {
	dir, err := repoDir(c)
	if err != nil {
		return nil, err
	}

	var gitOpts []git.Option
	if token := git.TokenFromEnv(c.Git.TokenEnv); token != "" {
		gitOpts = append(gitOpts, git.WithToken(token))
	}
	executor := git.NewRealExecutor(dir, gitOpts...)
	if !executor.IsGitRepo(ctx) {
		return nil, fmt.Errorf("%s: %w", dir, git.ErrNotGitRepo)
	}
	// Artifact paths, the transformer and the trigger file are all relative
	// to the top level, even when started from a subdirectory.
	root, err := executor.GetRepoRoot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", dir, err)
	}
	dir = root
	executor = git.NewRealExecutor(dir, gitOpts...)

	transformer, err := source.New(c.Transform, dir)
	if err != nil {
		return nil, fmt.Errorf("creating transformer: %w", err)
	}

	db, err := store.NewDB(c.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}

	provider, err := tracing.NewProvider(tracing.Config{
		Enabled:      c.Tracing.Enabled,
		Exporter:     c.Tracing.Exporter,
		FilePath:     c.Tracing.FilePath,
		OTLPEndpoint: c.Tracing.OTLPEndpoint,
		SampleRate:   c.Tracing.SampleRate,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating tracing provider: %w", err)
	}

	runner := pipeline.NewRunner(pipeline.ConfigFrom(c), executor, transformer,
		pipeline.WithStore(db),
		pipeline.WithTracer(provider.Tracer()),
	)

	log.Debug(log.CatConfig, "Pipeline ready", "repo", dir, "transformer", transformer.Name(),
		"branch", c.Git.Branch, "push", c.Git.Push, "tracing", provider.Enabled())
	return &app{repoDir: dir, git: executor, db: db, tracing: provider, runner: runner}, nil
}

// Close flushes traces and closes the database.
func (a *app) Close() {
	a.runner.Close()
	if err := a.tracing.Shutdown(context.Background()); err != nil {
		log.Warn(log.CatConfig, "Flushing traces failed", "error", err)
	}
	if err := a.db.Close(); err != nil {
		log.Warn(log.CatDB, "Closing database failed", "error", err)
	}
}
