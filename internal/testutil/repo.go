// Package testutil provides git repository fixtures and GeoJSON test data.
package testutil

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// DefaultBranch is the branch every fixture repository starts on.
const DefaultBranch = "main"

// GitEnv isolates git from the developer's global and system config so
// fixtures behave the same everywhere (no signing hooks, no templates).
func GitEnv() []string {
	return []string{
		"GIT_CONFIG_GLOBAL=" + os.DevNull,
		"GIT_CONFIG_NOSYSTEM=1",
		"GIT_TERMINAL_PROMPT=0",
		"GIT_AUTHOR_NAME=fixture",
		"GIT_AUTHOR_EMAIL=fixture@example.com",
		"GIT_COMMITTER_NAME=fixture",
		"GIT_COMMITTER_EMAIL=fixture@example.com",
	}
}

// Git runs git in dir and returns trimmed stdout, failing the test on error.
func Git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), GitEnv()...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	require.NoError(t, err, "git %s: %s", strings.Join(args, " "), stderr.String())
	return strings.TrimSpace(stdout.String())
}

// NewRepo creates an empty non-bare repository on DefaultBranch.
func NewRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	Git(t, dir, "init", "--quiet")
	Git(t, dir, "symbolic-ref", "HEAD", "refs/heads/"+DefaultBranch)
	return dir
}

// Remote is a bare repository standing in for the hosted remote.
type Remote struct {
	t    *testing.T
	Bare string
}

// NewRemote creates an empty bare repository.
func NewRemote(t *testing.T) *Remote {
	t.Helper()
	bare := filepath.Join(t.TempDir(), "remote.git")
	require.NoError(t, os.MkdirAll(bare, 0o755))
	Git(t, bare, "init", "--bare", "--quiet")
	Git(t, bare, "symbolic-ref", "HEAD", "refs/heads/"+DefaultBranch)
	return &Remote{t: t, Bare: bare}
}

// Clone returns a fresh working clone of the remote with "origin" pointing
// at it. Cloning an empty remote yields an unborn DefaultBranch.
func (r *Remote) Clone() string {
	r.t.Helper()
	dir := filepath.Join(r.t.TempDir(), "work")
	Git(r.t, filepath.Dir(dir), "clone", "--quiet", r.Bare, dir)
	Git(r.t, dir, "symbolic-ref", "HEAD", "refs/heads/"+DefaultBranch)
	return dir
}

// Tip returns the remote's DefaultBranch commit, or "" if it has none.
func (r *Remote) Tip() string {
	r.t.Helper()
	return Git(r.t, r.Bare, "for-each-ref", "--format=%(objectname)", "refs/heads/"+DefaultBranch)
}

// Subject returns the subject line of the remote's tip commit.
func (r *Remote) Subject() string {
	r.t.Helper()
	return Git(r.t, r.Bare, "log", "-1", "--format=%s", DefaultBranch)
}

// CommitCount returns the number of commits on the remote's DefaultBranch.
func (r *Remote) CommitCount() int {
	r.t.Helper()
	if r.Tip() == "" {
		return 0
	}
	n, err := strconv.Atoi(Git(r.t, r.Bare, "rev-list", "--count", DefaultBranch))
	require.NoError(r.t, err)
	return n
}
