// Package detect decides whether a freshly generated artifact set differs
// from the last published one.
package detect

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/zjrosen/georefresh/internal/artifact"
)

// ErrInvalidArtifact is returned when an artifact was never canonicalized.
var ErrInvalidArtifact = errors.New("artifact has no canonical hash")

// HasChanged reports whether candidate differs from previous. A nil previous
// (nothing published yet) always counts as changed. Comparison is over
// canonical content hashes; the function has no side effects.
func HasChanged(candidate, previous *artifact.Artifact) (bool, error) {
	if candidate == nil || candidate.Hash.IsZero() {
		return false, ErrInvalidArtifact
	}
	if previous == nil {
		return true, nil
	}
	if previous.Hash.IsZero() {
		return false, fmt.Errorf("previous %s: %w", previous.Path, ErrInvalidArtifact)
	}
	return candidate.Hash != previous.Hash, nil
}

// FileChange describes one changed path.
type FileChange struct {
	Path       string
	Insertions int
	Deletions  int
}

// Report is the result of comparing two artifact sets.
type Report struct {
	Changed   bool
	Added     []FileChange
	Modified  []FileChange
	Removed   []FileChange
	Unchanged int

	CandidateHash artifact.Hash
	PreviousHash  artifact.Hash
}

// Summary renders the report as one line, e.g.
// "2 modified, 1 added (+120 -98 lines)" or "no changes".
func (r Report) Summary() string {
	if !r.Changed {
		return "no changes"
	}
	var parts []string
	if n := len(r.Modified); n > 0 {
		parts = append(parts, fmt.Sprintf("%d modified", n))
	}
	if n := len(r.Added); n > 0 {
		parts = append(parts, fmt.Sprintf("%d added", n))
	}
	if n := len(r.Removed); n > 0 {
		parts = append(parts, fmt.Sprintf("%d removed", n))
	}
	ins, del := r.LineTotals()
	return fmt.Sprintf("%s (+%d -%d lines)", strings.Join(parts, ", "), ins, del)
}

// LineTotals sums insertions and deletions across all changes.
func (r Report) LineTotals() (insertions, deletions int) {
	for _, group := range [][]FileChange{r.Added, r.Modified, r.Removed} {
		for _, c := range group {
			insertions += c.Insertions
			deletions += c.Deletions
		}
	}
	return insertions, deletions
}

// Detector compares artifact sets.
type Detector struct {
	// DiffStats enables line counts in the report. Hash comparison alone
	// decides Changed; line counting only feeds the summary.
	DiffStats bool
}

// New creates a Detector that computes line statistics.
func New() *Detector {
	return &Detector{DiffStats: true}
}

// Compare diffs candidate against previous, path by path. A nil previous set
// is treated as empty, so every candidate file is added.
func (d *Detector) Compare(candidate, previous *artifact.Set) (Report, error) {
	report := Report{
		CandidateHash: candidate.Hash(),
		PreviousHash:  previous.Hash(),
	}

	for _, c := range candidate.All() {
		prev, ok := previous.Get(c.Path)
		changed, err := HasChanged(&c, prev)
		if err != nil {
			return Report{}, err
		}
		switch {
		case !ok:
			report.Added = append(report.Added, d.change(c.Path, "", artifact.Pretty(c.Path, c.Canonical)))
		case changed:
			report.Modified = append(report.Modified, d.change(c.Path,
				artifact.Pretty(prev.Path, prev.Canonical), artifact.Pretty(c.Path, c.Canonical)))
		default:
			report.Unchanged++
		}
	}

	for _, p := range previous.All() {
		if _, ok := candidate.Get(p.Path); !ok {
			report.Removed = append(report.Removed, d.change(p.Path, artifact.Pretty(p.Path, p.Canonical), ""))
		}
	}

	report.Changed = len(report.Added)+len(report.Modified)+len(report.Removed) > 0
	return report, nil
}

func (d *Detector) change(p, before, after string) FileChange {
	fc := FileChange{Path: p}
	if d.DiffStats {
		fc.Insertions, fc.Deletions = lineStats(before, after)
	}
	return fc
}

// lineStats counts inserted and deleted lines between two texts.
func lineStats(before, after string) (insertions, deletions int) {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	for _, diff := range diffs {
		n := countLines(diff.Text)
		switch diff.Type {
		case diffmatchpatch.DiffInsert:
			insertions += n
		case diffmatchpatch.DiffDelete:
			deletions += n
		}
	}
	return insertions, deletions
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
