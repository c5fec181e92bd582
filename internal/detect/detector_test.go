package detect

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/georefresh/internal/artifact"
)

func newArtifact(t require.TestingT, p, content string) artifact.Artifact {
	a, err := artifact.New(p, []byte(content), artifact.NewCanonicalizer(0))
	require.NoError(t, err)
	return a
}

func newSet(t *testing.T, artifacts ...artifact.Artifact) *artifact.Set {
	t.Helper()
	s, err := artifact.NewSet(artifacts...)
	require.NoError(t, err)
	return s
}

func TestHasChanged_Reflexive(t *testing.T) {
	rapid.Check(t, func(r *rapid.T) {
		content := rapid.String().Draw(r, "content")
		a := newArtifact(r, "data/x.csv", content)
		changed, err := HasChanged(&a, &a)
		if err != nil {
			r.Fatal(err)
		}
		if changed {
			r.Fatalf("HasChanged(A, A) = true for %q", content)
		}
	})
}

func TestHasChanged_DistinctContent(t *testing.T) {
	rapid.Check(t, func(r *rapid.T) {
		x := rapid.StringMatching(`[a-z0-9]{1,16}`).Draw(r, "x")
		y := rapid.StringMatching(`[a-z0-9]{1,16}`).Draw(r, "y")
		if x == y {
			return
		}
		a := newArtifact(r, "data/x.csv", x)
		b := newArtifact(r, "data/x.csv", y)
		changed, err := HasChanged(&a, &b)
		if err != nil {
			r.Fatal(err)
		}
		if !changed {
			r.Fatalf("HasChanged(%q, %q) = false", x, y)
		}
	})
}

func TestHasChanged_PreciseGeoJSONValues(t *testing.T) {
	tests := []struct{ before, after string }{
		{`{"id":12345678901234567890}`, `{"id":12345678901234567891}`},
		{`{"area":0.10000000000000000001}`, `{"area":0.1}`},
		{`{"name":"\u00ff"}`, `{"name":"\u00fe"}`},
	}
	for _, tt := range tests {
		a := newArtifact(t, "data/x.geojson", tt.before)
		b := newArtifact(t, "data/x.geojson", tt.after)
		changed, err := HasChanged(&a, &b)
		require.NoError(t, err)
		require.True(t, changed, "%s vs %s", tt.before, tt.after)
	}
}

func TestHasChanged_FirstRun(t *testing.T) {
	a := newArtifact(t, "data/x.geojson", `{"type":"FeatureCollection","features":[]}`)

	changed, err := HasChanged(&a, nil)
	require.NoError(t, err)
	require.True(t, changed)
}

func TestHasChanged_IgnoresFormatting(t *testing.T) {
	a := newArtifact(t, "x.geojson", `{"type":"FeatureCollection","features":[{"a":1},{"b":2}]}`)
	b := newArtifact(t, "x.geojson", "{\r\n \"features\": [{\"b\": 2.0}, {\"a\": 1}],\r\n \"type\": \"FeatureCollection\"\r\n}")

	changed, err := HasChanged(&a, &b)
	require.NoError(t, err)
	require.False(t, changed)
}

func TestHasChanged_InvalidArtifacts(t *testing.T) {
	_, err := HasChanged(nil, nil)
	require.ErrorIs(t, err, ErrInvalidArtifact)

	good := newArtifact(t, "a.csv", "1")
	_, err = HasChanged(&good, &artifact.Artifact{Path: "a.csv"})
	require.ErrorIs(t, err, ErrInvalidArtifact)
}

func TestCompare_FirstRunAllAdded(t *testing.T) {
	d := New()
	candidate := newSet(t, newArtifact(t, "data/a.csv", "x\ny\n"))

	report, err := d.Compare(candidate, nil)
	require.NoError(t, err)
	require.True(t, report.Changed)
	require.Len(t, report.Added, 1)
	require.Equal(t, 2, report.Added[0].Insertions)
	require.Equal(t, "1 added (+2 -0 lines)", report.Summary())
}

func TestCompare_Identical(t *testing.T) {
	d := New()
	a := newSet(t, newArtifact(t, "data/a.csv", "x\n"), newArtifact(t, "data/b.csv", "y\n"))
	b := newSet(t, newArtifact(t, "data/b.csv", "y\r\n"), newArtifact(t, "data/a.csv", "x"))

	report, err := d.Compare(a, b)
	require.NoError(t, err)
	require.False(t, report.Changed)
	require.Equal(t, 2, report.Unchanged)
	require.Equal(t, report.CandidateHash, report.PreviousHash)
	require.Equal(t, "no changes", report.Summary())
}

func TestCompare_ModifiedAddedRemoved(t *testing.T) {
	d := New()
	previous := newSet(t,
		newArtifact(t, "data/keep.csv", "same\n"),
		newArtifact(t, "data/mod.csv", "a\nb\nc\n"),
		newArtifact(t, "data/gone.csv", "old\n"),
	)
	candidate := newSet(t,
		newArtifact(t, "data/keep.csv", "same\n"),
		newArtifact(t, "data/mod.csv", "a\nB\nc\nd\n"),
		newArtifact(t, "data/new.csv", "n\n"),
	)

	report, err := d.Compare(candidate, previous)
	require.NoError(t, err)
	require.True(t, report.Changed)
	require.Equal(t, 1, report.Unchanged)

	require.Len(t, report.Modified, 1)
	require.Equal(t, FileChange{Path: "data/mod.csv", Insertions: 2, Deletions: 1}, report.Modified[0])
	require.Equal(t, []FileChange{{Path: "data/new.csv", Insertions: 1}}, report.Added)
	require.Equal(t, []FileChange{{Path: "data/gone.csv", Deletions: 1}}, report.Removed)
	require.Equal(t, "1 modified, 1 added, 1 removed (+3 -2 lines)", report.Summary())
}

func TestCompare_WithoutDiffStats(t *testing.T) {
	d := &Detector{}
	report, err := d.Compare(newSet(t, newArtifact(t, "a.csv", "1\n")), newSet(t, newArtifact(t, "a.csv", "2\n")))
	require.NoError(t, err)
	require.True(t, report.Changed)
	require.Equal(t, FileChange{Path: "a.csv"}, report.Modified[0])
}
