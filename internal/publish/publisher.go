// Package publish records a changed artifact set as one commit and pushes it.
package publish

import (
	"context"
	"errors"
	"fmt"

	"github.com/zjrosen/georefresh/internal/config"
	"github.com/zjrosen/georefresh/internal/git"
	"github.com/zjrosen/georefresh/internal/log"
)

// ErrRemoteMoved is returned when the remote branch tip no longer matches the
// revision the run started from. The commit stays local.
var ErrRemoteMoved = errors.New("remote branch moved since run start")

// Status is the outcome of Publish.
type Status string

const (
	StatusSkipped   Status = "skipped"
	StatusCommitted Status = "committed"
)

// Config holds commit and push settings.
type Config struct {
	Remote      string
	Branch      string
	Subject     string
	AuthorName  string
	AuthorEmail string
	// Push sends the commit to Remote. When false the commit stays local.
	Push bool
	// AllowEmpty records a commit even when staging finds nothing new.
	AllowEmpty bool
}

// ConfigFrom extracts publisher settings from the application config.
func ConfigFrom(c config.Config) Config {
	return Config{
		Remote:      c.Git.Remote,
		Branch:      c.Git.Branch,
		Subject:     c.Subject,
		AuthorName:  c.Git.AuthorName,
		AuthorEmail: c.Git.AuthorEmail,
		Push:        c.Git.Push,
		AllowEmpty:  c.Git.AllowEmpty,
	}
}

// Request describes one publish decision.
type Request struct {
	// Changed is the detector's verdict. Publish does nothing when false.
	Changed bool
	// Paths are the artifact paths to stage, relative to the work tree.
	Paths []string
	// Base is the commit HEAD pointed at when the run started ("" if unborn).
	// The remote tip must still equal it for the push to proceed.
	Base string
}

// Result is what Publish did.
type Result struct {
	Status  Status
	Commit  string // set when a commit was recorded, even if the push then failed
	Message string
	Pushed  bool
}

// Publisher stages, commits and pushes through a git.Executor.
type Publisher struct {
	git git.Executor
	cfg Config
}

// New creates a Publisher.
func New(executor git.Executor, cfg Config) *Publisher {
	return &Publisher{git: executor, cfg: cfg}
}

// Message returns the commit message this publisher writes.
func (p *Publisher) Message() string {
	return config.CommitMessage(p.cfg.Subject)
}

// Publish records at most one commit for req and, if configured, pushes it
// without force. It never retries.
func (p *Publisher) Publish(ctx context.Context, req Request) (Result, error) {
	if !req.Changed {
		return Result{Status: StatusSkipped}, nil
	}
	if len(req.Paths) == 0 {
		return Result{}, fmt.Errorf("no artifact paths to publish")
	}

	if err := p.git.Add(ctx, req.Paths...); err != nil {
		return Result{}, fmt.Errorf("staging artifacts: %w", err)
	}
	staged, err := p.git.HasStagedChanges(ctx, req.Paths...)
	if err != nil {
		return Result{}, fmt.Errorf("checking staged changes: %w", err)
	}
	if !staged && !p.cfg.AllowEmpty {
		log.Info(log.CatPublish, "Nothing staged, skipping commit", "paths", req.Paths)
		return Result{Status: StatusSkipped}, nil
	}

	msg := p.Message()
	hash, err := p.git.Commit(ctx, git.CommitOptions{
		Message:     msg,
		AuthorName:  p.cfg.AuthorName,
		AuthorEmail: p.cfg.AuthorEmail,
		AllowEmpty:  !staged,
		Paths:       req.Paths,
	})
	if err != nil {
		return Result{}, fmt.Errorf("committing artifacts: %w", err)
	}
	res := Result{Status: StatusCommitted, Commit: hash, Message: msg}
	log.Info(log.CatPublish, "Committed artifacts", "commit", shortHash(hash), "empty", !staged)

	if !p.cfg.Push {
		return res, nil
	}

	tip, err := p.git.RemoteHead(ctx, p.cfg.Remote, p.cfg.Branch)
	if err != nil {
		return res, fmt.Errorf("reading %s/%s: %w", p.cfg.Remote, p.cfg.Branch, err)
	}
	if tip != "" && tip != req.Base {
		log.Warn(log.CatPublish, "Remote moved, not pushing",
			"expected", shortHash(req.Base), "actual", shortHash(tip))
		return res, fmt.Errorf("%w: %s/%s is at %s, expected %s",
			ErrRemoteMoved, p.cfg.Remote, p.cfg.Branch, shortHash(tip), baseName(req.Base))
	}

	if err := p.git.Push(ctx, p.cfg.Remote, p.cfg.Branch); err != nil {
		return res, fmt.Errorf("pushing to %s/%s: %w", p.cfg.Remote, p.cfg.Branch, err)
	}
	res.Pushed = true
	log.Info(log.CatPublish, "Pushed", "remote", p.cfg.Remote, "branch", p.cfg.Branch, "commit", shortHash(hash))
	return res, nil
}

func shortHash(h string) string {
	if len(h) > 7 {
		return h[:7]
	}
	return h
}

func baseName(h string) string {
	if h == "" {
		return "an empty branch"
	}
	return shortHash(h)
}
