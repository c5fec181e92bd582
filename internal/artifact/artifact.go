// Package artifact models the derived files a run produces: their canonical
// content, content hashes, and sets of artifacts loaded from the work tree or
// from a committed revision.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Artifact is one derived file.
type Artifact struct {
	// Path is slash-separated and relative to the work tree root.
	Path string

	// Content is the raw file content.
	Content []byte

	// Canonical is the normalized content the hash is computed over.
	Canonical []byte

	// Hash identifies the canonical content.
	Hash Hash
}

// New canonicalizes and hashes content.
func New(p string, content []byte, c Canonicalizer) (Artifact, error) {
	canonical, err := c.Canonicalize(p, content)
	if err != nil {
		return Artifact{}, fmt.Errorf("%s: %w", p, err)
	}
	return Artifact{
		Path:      p,
		Content:   content,
		Canonical: canonical,
		Hash:      HashContent(canonical),
	}, nil
}

// Set is a collection of artifacts kept sorted by Path.
type Set struct {
	artifacts []Artifact
	index     map[string]int
}

// NewSet builds a Set. Duplicate paths are rejected.
func NewSet(artifacts ...Artifact) (*Set, error) {
	sorted := make([]Artifact, len(artifacts))
	copy(sorted, artifacts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	index := make(map[string]int, len(sorted))
	for i, a := range sorted {
		if _, dup := index[a.Path]; dup {
			return nil, fmt.Errorf("duplicate artifact path %q", a.Path)
		}
		index[a.Path] = i
	}
	return &Set{artifacts: sorted, index: index}, nil
}

// Len returns the number of artifacts. A nil Set is empty.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.artifacts)
}

// All returns the artifacts sorted by path.
func (s *Set) All() []Artifact {
	if s == nil {
		return nil
	}
	return s.artifacts
}

// Get returns the artifact at p.
func (s *Set) Get(p string) (*Artifact, bool) {
	if s == nil {
		return nil, false
	}
	i, ok := s.index[p]
	if !ok {
		return nil, false
	}
	return &s.artifacts[i], true
}

// Paths returns the sorted artifact paths.
func (s *Set) Paths() []string {
	out := make([]string, 0, s.Len())
	for _, a := range s.All() {
		out = append(out, a.Path)
	}
	return out
}

// Hash identifies the whole set: equal iff every path and content hash match.
func (s *Set) Hash() Hash {
	return hashEntries(s.All())
}

// LoadWorkTree reads the artifacts under paths (files or directories,
// relative to root). Paths that do not exist contribute nothing. .git
// directories are never descended into.
func LoadWorkTree(root string, paths []string, c Canonicalizer) (*Set, error) {
	var artifacts []Artifact
	seen := make(map[string]bool)

	for _, rel := range paths {
		start := filepath.Join(root, filepath.FromSlash(rel))
		err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) && p == start {
					return fs.SkipAll
				}
				return err
			}
			if d.IsDir() {
				if d.Name() == ".git" {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}

			relPath, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			relPath = filepath.ToSlash(relPath)
			if seen[relPath] {
				return nil
			}
			seen[relPath] = true

			content, err := os.ReadFile(p) //nolint:gosec // G304: walking configured output paths
			if err != nil {
				return fmt.Errorf("reading %s: %w", relPath, err)
			}
			a, err := New(relPath, content, c)
			if err != nil {
				return err
			}
			artifacts = append(artifacts, a)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return NewSet(artifacts...)
}

// RevisionReader reads files as committed at a revision.
type RevisionReader interface {
	// ListFiles returns the slash-separated paths of files under paths at rev.
	ListFiles(ctx context.Context, rev string, paths []string) ([]string, error)
	// ReadFile returns the content of p at rev.
	ReadFile(ctx context.Context, rev, p string) ([]byte, error)
}

// Loader produces an artifact for a path at a revision. LoadRevision uses it
// so callers can put a cache in front of ReadFile + New.
type Loader func(ctx context.Context, rev, p string) (Artifact, error)

// RevisionLoader returns a Loader backed by r.
func RevisionLoader(r RevisionReader, c Canonicalizer) Loader {
	return func(ctx context.Context, rev, p string) (Artifact, error) {
		content, err := r.ReadFile(ctx, rev, p)
		if err != nil {
			return Artifact{}, err
		}
		return New(p, content, c)
	}
}

// LoadRevision loads the artifacts under paths as committed at rev. An empty
// rev (no commits yet) yields an empty set.
func LoadRevision(ctx context.Context, r RevisionReader, load Loader, rev string, paths []string) (*Set, error) {
	if rev == "" {
		return NewSet()
	}
	files, err := r.ListFiles(ctx, rev, paths)
	if err != nil {
		return nil, fmt.Errorf("listing files at %s: %w", rev, err)
	}

	artifacts := make([]Artifact, 0, len(files))
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		f = path.Clean(strings.TrimPrefix(f, "./"))
		if seen[f] {
			continue
		}
		seen[f] = true
		a, err := load(ctx, rev, f)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return NewSet(artifacts...)
}
