package git

import (
	"context"
	"time"
)

// CommitInfo holds information about a git commit.
type CommitInfo struct {
	Hash      string    // Full 40-char SHA
	ShortHash string    // 7-char abbreviated hash
	Subject   string    // First line of commit message
	Author    string    // Author name
	Date      time.Time // Commit timestamp
}

// CommitOptions configures Commit.
type CommitOptions struct {
	Message     string
	AuthorName  string
	AuthorEmail string
	// AllowEmpty records a commit even when nothing is staged.
	AllowEmpty bool
	// Paths, when set, limits the commit to these repo-root-relative paths.
	// Other staged entries stay in the index.
	Paths []string
}

// Executor defines the git operations the pipeline needs.
// This abstraction allows for easy testing with mock implementations.
type Executor interface {
	IsGitRepo(ctx context.Context) bool
	GetRepoRoot(ctx context.Context) (string, error)
	GetCurrentBranch(ctx context.Context) (string, error)

	// Head returns the commit HEAD points to, or "" on an unborn branch.
	Head(ctx context.Context) (string, error)

	// ListFiles returns slash-separated, root-relative paths of files under
	// paths at rev.
	ListFiles(ctx context.Context, rev string, paths []string) ([]string, error)
	// ReadFile returns the raw content of path at rev.
	ReadFile(ctx context.Context, rev, path string) ([]byte, error)

	// Paths below are relative to the repository root, wherever the
	// executor runs.

	// Add stages additions, modifications and deletions under paths.
	// Paths that neither exist nor are tracked are ignored.
	Add(ctx context.Context, paths ...string) error
	// HasStagedChanges reports staged differences under paths, or in the
	// whole index when none are given.
	HasStagedChanges(ctx context.Context, paths ...string) (bool, error)
	// Commit records the index (or only opts.Paths) and returns the new commit hash.
	Commit(ctx context.Context, opts CommitOptions) (string, error)

	// RemoteHead returns the tip of branch on remote, or "" if the branch
	// does not exist there.
	RemoteHead(ctx context.Context, remote, branch string) (string, error)
	// Push sends HEAD to remote's branch. Never forces.
	Push(ctx context.Context, remote, branch string) error
	// PullFastForward updates the current branch from remote, refusing merges.
	PullFastForward(ctx context.Context, remote, branch string) error

	// GetCommitLog returns up to limit commits reachable from ref (HEAD if empty).
	// Returns an empty slice for empty repositories.
	GetCommitLog(ctx context.Context, ref string, limit int) ([]CommitInfo, error)
}
