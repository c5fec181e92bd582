package git

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/zjrosen/georefresh/internal/log"
)

// Git-specific errors.
var (
	// ErrNotGitRepo indicates the directory is not a git repository.
	ErrNotGitRepo = errors.New("not a git repository")

	// ErrPushRejected indicates the remote refused the push (it moved ahead).
	ErrPushRejected = errors.New("push rejected by remote")

	// ErrAuthFailed indicates the remote rejected our credentials.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrNotFastForward indicates a pull would need a merge.
	ErrNotFastForward = errors.New("not possible to fast-forward")

	// ErrNothingToCommit indicates commit was refused because the index is clean.
	ErrNothingToCommit = errors.New("nothing to commit")

	// ErrDetachedHead indicates HEAD is not on a branch.
	ErrDetachedHead = errors.New("HEAD is detached")
)

// Compile-time check that RealExecutor implements Executor.
var _ Executor = (*RealExecutor)(nil)

// RealExecutor implements Executor by executing actual git commands.
type RealExecutor struct {
	workDir string
	env     []string
}

// Option configures a RealExecutor.
type Option func(*RealExecutor)

// WithToken authenticates HTTPS remotes with a bearer-style token. The token
// travels only through the child process environment (GIT_CONFIG_*), so it
// is never written to .git/config.
func WithToken(token string) Option {
	return func(e *RealExecutor) {
		if token == "" {
			return
		}
		basic := base64.StdEncoding.EncodeToString([]byte("x-access-token:" + token))
		e.env = append(e.env,
			"GIT_CONFIG_COUNT=1",
			"GIT_CONFIG_KEY_0=http.extraheader",
			"GIT_CONFIG_VALUE_0=AUTHORIZATION: basic "+basic,
		)
	}
}

// WithEnv appends raw environment entries to every git invocation.
func WithEnv(env ...string) Option {
	return func(e *RealExecutor) {
		e.env = append(e.env, env...)
	}
}

// NewRealExecutor creates a new RealExecutor.
func NewRealExecutor(workDir string, opts ...Option) *RealExecutor {
	e := &RealExecutor{workDir: workDir}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TokenFromEnv returns the first non-empty value among the named variables.
func TokenFromEnv(names []string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

func (e *RealExecutor) command(ctx context.Context, args ...string) *exec.Cmd {
	//nolint:gosec // G204: args come from controlled sources
	cmd := exec.CommandContext(ctx, "git", args...)
	if e.workDir != "" {
		cmd.Dir = e.workDir
	}
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	cmd.Env = append(cmd.Env, e.env...)
	return cmd
}

// runGit executes a git command and returns an error if it fails.
func (e *RealExecutor) runGit(ctx context.Context, args ...string) error {
	_, err := e.runGitOutput(ctx, args...)
	return err
}

// runGitOutput executes a git command and returns trimmed stdout.
func (e *RealExecutor) runGitOutput(ctx context.Context, args ...string) (string, error) {
	out, err := e.runGitRaw(ctx, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// runGitRaw executes a git command and returns stdout untouched.
func (e *RealExecutor) runGitRaw(ctx context.Context, args ...string) ([]byte, error) {
	cmd := e.command(ctx, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	log.Debug(log.CatGit, "git", "args", strings.Join(redact(args), " "), "duration", time.Since(start), "ok", err == nil)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("git %s: %w", args[0], ctxErr)
		}
		stderrStr := strings.TrimSpace(stderr.String())
		if stderrStr != "" {
			return nil, parseGitError(stderrStr, err)
		}
		if out := strings.TrimSpace(stdout.String()); out != "" {
			return nil, parseGitError(out, err)
		}
		return nil, fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}

	return stdout.Bytes(), nil
}

// redact hides -c values, which may carry identities or headers.
func redact(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 0; i+1 < len(out); i++ {
		if out[i] == "-c" {
			if k, _, ok := strings.Cut(out[i+1], "="); ok {
				out[i+1] = k + "=***"
			}
		}
	}
	return out
}

// parseGitError converts git stderr messages to specific error types.
func parseGitError(stderr string, originalErr error) error {
	stderrLower := strings.ToLower(stderr)

	switch {
	case strings.Contains(stderrLower, "not a git repository"):
		return fmt.Errorf("%w: %s", ErrNotGitRepo, stderr)

	case strings.Contains(stderrLower, "authentication failed"),
		strings.Contains(stderrLower, "could not read username"),
		strings.Contains(stderrLower, "permission denied"),
		strings.Contains(stderrLower, "the requested url returned error: 403"),
		strings.Contains(stderrLower, "the requested url returned error: 401"):
		return fmt.Errorf("%w: %s", ErrAuthFailed, stderr)

	case strings.Contains(stderrLower, "[rejected]"),
		strings.Contains(stderrLower, "non-fast-forward"),
		strings.Contains(stderrLower, "fetch first"),
		strings.Contains(stderrLower, "failed to push some refs"):
		return fmt.Errorf("%w: %s", ErrPushRejected, stderr)

	case strings.Contains(stderrLower, "not possible to fast-forward"),
		strings.Contains(stderrLower, "diverging branches"):
		return fmt.Errorf("%w: %s", ErrNotFastForward, stderr)

	case strings.Contains(stderrLower, "nothing to commit"),
		strings.Contains(stderrLower, "no changes added to commit"):
		return fmt.Errorf("%w: %s", ErrNothingToCommit, stderr)
	}

	return fmt.Errorf("git error: %s: %w", stderr, originalErr)
}

// exitCode extracts the process exit code, or -1.
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// IsGitRepo checks if the work dir is inside a git repository.
func (e *RealExecutor) IsGitRepo(ctx context.Context) bool {
	return e.runGit(ctx, "rev-parse", "--git-dir") == nil
}

// GetRepoRoot returns the root directory of the git repository.
func (e *RealExecutor) GetRepoRoot(ctx context.Context) (string, error) {
	return e.runGitOutput(ctx, "rev-parse", "--show-toplevel")
}

// GetCurrentBranch returns the name of the current branch.
func (e *RealExecutor) GetCurrentBranch(ctx context.Context) (string, error) {
	// git branch --show-current (git 2.22+) prints nothing when detached
	output, err := e.runGitOutput(ctx, "branch", "--show-current")
	if err == nil && output != "" {
		return output, nil
	}

	output, err = e.runGitOutput(ctx, "symbolic-ref", "--short", "HEAD")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDetachedHead, err)
	}
	return output, nil
}

// Head returns the commit HEAD points to, or "" on an unborn branch.
func (e *RealExecutor) Head(ctx context.Context) (string, error) {
	cmd := e.command(ctx, "rev-parse", "--verify", "--quiet", "HEAD^{commit}")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return strings.TrimSpace(stdout.String()), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	// --verify --quiet exits 1 silently when HEAD has no commit yet.
	if exitCode(err) == 1 && strings.TrimSpace(stderr.String()) == "" {
		return "", nil
	}
	return "", parseGitError(strings.TrimSpace(stderr.String()), err)
}

// ListFiles returns the files under paths at rev.
func (e *RealExecutor) ListFiles(ctx context.Context, rev string, paths []string) ([]string, error) {
	// --full-tree makes paths and output relative to the top level wherever
	// the executor runs. ls-tree rejects the :(top) pathspec magic.
	args := append([]string{"ls-tree", "-r", "-z", "--full-tree", "--name-only", rev, "--"}, paths...)
	out, err := e.runGitRaw(ctx, args...)
	if err != nil {
		return nil, err
	}
	var files []string
	for f := range strings.SplitSeq(string(out), "\x00") {
		if f != "" {
			files = append(files, f)
		}
	}
	return files, nil
}

// ReadFile returns the raw content of path at rev.
func (e *RealExecutor) ReadFile(ctx context.Context, rev, path string) ([]byte, error) {
	return e.runGitRaw(ctx, "cat-file", "blob", rev+":"+path)
}

// topPathspecs anchors repo-root-relative paths at the top level, so they
// resolve the same when the executor runs in a subdirectory.
func topPathspecs(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = ":(top)" + p
	}
	return out
}

// Add stages everything under paths, including deletions.
func (e *RealExecutor) Add(ctx context.Context, paths ...string) error {
	root, err := e.GetRepoRoot(ctx)
	if err != nil {
		return err
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(p))); err == nil {
			existing = append(existing, p)
			continue
		}
		// Deleted on disk but still tracked: stage the deletion.
		tracked, err := e.runGitOutput(ctx, "ls-files", "--", ":(top)"+p)
		if err != nil {
			return err
		}
		if tracked != "" {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return e.runGit(ctx, append([]string{"add", "-A", "--"}, topPathspecs(existing)...)...)
}

// HasStagedChanges reports whether the index differs from HEAD under paths,
// or anywhere when no paths are given.
func (e *RealExecutor) HasStagedChanges(ctx context.Context, paths ...string) (bool, error) {
	args := []string{"diff", "--cached", "--quiet"}
	if len(paths) > 0 {
		args = append(append(args, "--"), topPathspecs(paths)...)
	}
	cmd := e.command(ctx, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return false, nil
	}
	if exitCode(err) == 1 {
		return true, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}
	return false, parseGitError(strings.TrimSpace(stderr.String()), err)
}

// Commit records the index, or only opts.Paths when set, and returns the
// new commit hash.
func (e *RealExecutor) Commit(ctx context.Context, opts CommitOptions) (string, error) {
	var args []string
	if opts.AuthorName != "" {
		args = append(args, "-c", "user.name="+opts.AuthorName)
	}
	if opts.AuthorEmail != "" {
		args = append(args, "-c", "user.email="+opts.AuthorEmail)
	}
	args = append(args, "commit", "--quiet", "-m", opts.Message)
	if opts.AuthorName != "" && opts.AuthorEmail != "" {
		// --author wins over GIT_AUTHOR_* inherited from the environment.
		args = append(args, "--author", fmt.Sprintf("%s <%s>", opts.AuthorName, opts.AuthorEmail))
	}
	if opts.AllowEmpty {
		args = append(args, "--allow-empty")
	}

	if len(opts.Paths) > 0 {
		// --only leaves anything else in the index staged and out of the commit.
		// Its pathspecs must match known files, so only changed paths are passed.
		var changed []string
		for _, p := range opts.Paths {
			staged, err := e.HasStagedChanges(ctx, p)
			if err != nil {
				return "", err
			}
			if staged {
				changed = append(changed, p)
			}
		}
		if len(changed) == 0 && !opts.AllowEmpty {
			return "", fmt.Errorf("%w: %s", ErrNothingToCommit, strings.Join(opts.Paths, ", "))
		}
		// With --allow-empty and no paths, --only makes an empty commit.
		args = append(args, "--only")
		if len(changed) > 0 {
			args = append(append(args, "--"), topPathspecs(changed)...)
		}
	}

	if err := e.runGit(ctx, args...); err != nil {
		return "", err
	}
	return e.runGitOutput(ctx, "rev-parse", "HEAD")
}

// RemoteHead returns the tip of branch on remote, or "" when absent.
func (e *RealExecutor) RemoteHead(ctx context.Context, remote, branch string) (string, error) {
	out, err := e.runGitOutput(ctx, "ls-remote", "--heads", remote, "refs/heads/"+branch)
	if err != nil {
		return "", err
	}
	for line := range strings.SplitSeq(out, "\n") {
		sha, ref, ok := strings.Cut(strings.TrimSpace(line), "\t")
		if ok && ref == "refs/heads/"+branch {
			return sha, nil
		}
	}
	return "", nil
}

// Push sends HEAD to remote's branch without forcing.
func (e *RealExecutor) Push(ctx context.Context, remote, branch string) error {
	return e.runGit(ctx, "push", "--porcelain", remote, "HEAD:refs/heads/"+branch)
}

// PullFastForward fast-forwards the current branch from remote.
func (e *RealExecutor) PullFastForward(ctx context.Context, remote, branch string) error {
	return e.runGit(ctx, "pull", "--ff-only", "--quiet", remote, branch)
}

// GetCommitLog returns commits reachable from ref.
func (e *RealExecutor) GetCommitLog(ctx context.Context, ref string, limit int) ([]CommitInfo, error) {
	head, err := e.Head(ctx)
	if err != nil {
		return nil, err
	}
	if head == "" {
		return []CommitInfo{}, nil
	}
	if ref == "" {
		ref = "HEAD"
	}
	if limit <= 0 {
		limit = 20
	}

	// Fields separated by \x1f, records by \x1e; subjects may contain anything else.
	output, err := e.runGitOutput(ctx, "log", "-n", strconv.Itoa(limit),
		"--format=%H%x1f%h%x1f%s%x1f%an%x1f%ct%x1e", ref, "--")
	if err != nil {
		return nil, err
	}
	return parseCommitLog(output), nil
}

func parseCommitLog(output string) []CommitInfo {
	commits := []CommitInfo{}
	for record := range strings.SplitSeq(output, "\x1e") {
		record = strings.TrimSpace(record)
		if record == "" {
			continue
		}
		fields := strings.Split(record, "\x1f")
		if len(fields) != 5 {
			continue
		}
		secs, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			continue
		}
		commits = append(commits, CommitInfo{
			Hash:      fields[0],
			ShortHash: fields[1],
			Subject:   fields[2],
			Author:    fields[3],
			Date:      time.Unix(secs, 0),
		})
	}
	return commits
}
