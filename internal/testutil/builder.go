package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// Builder accumulates working-tree edits and records them as one commit.
type Builder struct {
	t     *testing.T
	dir   string
	files []fileData
}

// NewBuilder creates a builder for the repository at dir.
func NewBuilder(t *testing.T, dir string) *Builder {
	t.Helper()
	return &Builder{t: t, dir: dir}
}

// WithFile writes content to path (slash-separated, relative to the repo).
func (b *Builder) WithFile(path, content string, opts ...FileOption) *Builder {
	f := fileData{path: path, content: content, mode: 0o644}
	for _, opt := range opts {
		opt(&f)
	}
	b.files = append(b.files, f)
	return b
}

// WithoutFile deletes path from the working tree.
func (b *Builder) WithoutFile(path string) *Builder {
	b.files = append(b.files, fileData{path: path, remove: true})
	return b
}

// Write applies the accumulated edits without committing them.
func (b *Builder) Write() {
	b.t.Helper()
	for _, f := range b.files {
		abs := filepath.Join(b.dir, filepath.FromSlash(f.path))
		if f.remove {
			require.NoError(b.t, os.RemoveAll(abs))
			continue
		}
		require.NoError(b.t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(b.t, os.WriteFile(abs, []byte(f.content), os.FileMode(f.mode)))
	}
	b.files = nil
}

// Build applies the edits, commits everything and returns the new HEAD.
func (b *Builder) Build(opts ...CommitOption) string {
	b.t.Helper()
	c := commitData{message: "fixture commit"}
	for _, opt := range opts {
		opt(&c)
	}

	b.Write()
	Git(b.t, b.dir, "add", "-A")
	args := []string{"commit", "--quiet", "-m", c.message}
	if c.empty {
		args = append(args, "--allow-empty")
	}
	Git(b.t, b.dir, args...)
	if c.push {
		Git(b.t, b.dir, "push", "--quiet", "origin", "HEAD:refs/heads/"+DefaultBranch)
	}
	return Git(b.t, b.dir, "rev-parse", "HEAD")
}
