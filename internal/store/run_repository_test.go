package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newRun(started time.Time) *RunRecord {
	return &RunRecord{
		ID:        uuid.NewString(),
		Repo:      "/repo",
		Branch:    "main",
		Trigger:   "scheduled",
		State:     "Fetching",
		StartedAt: started,
	}
}

func TestRunRepository_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	repo := newTestDB(t).RunRepository()
	started := time.Unix(1_700_000_000, 0)

	run := newRun(started)
	require.NoError(t, repo.Save(ctx, run))

	got, err := repo.Get(ctx, run.ID)
	require.NoError(t, err)
	require.True(t, got.FinishedAt.IsZero())
	if diff := cmp.Diff(run, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}

	run.State = "Done"
	run.Outcome = "committed"
	run.CommitHash = "abc123"
	run.Summary = "1 modified (+2 -1 lines)"
	run.FinishedAt = started.Add(time.Minute)
	require.NoError(t, repo.Save(ctx, run))

	got, err = repo.Get(ctx, run.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(run, got); diff != "" {
		t.Fatalf("update mismatch (-want +got):\n%s", diff)
	}
}

func TestRunRepository_GetMissing(t *testing.T) {
	_, err := newTestDB(t).RunRepository().Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestRunRepository_SaveRequiresID(t *testing.T) {
	err := newTestDB(t).RunRepository().Save(context.Background(), &RunRecord{})
	require.Error(t, err)
}

func TestRunRepository_List(t *testing.T) {
	ctx := context.Background()
	repo := newTestDB(t).RunRepository()
	base := time.Unix(1_700_000_000, 0)

	var ids []string
	for i := range 5 {
		run := newRun(base.Add(time.Duration(i) * time.Hour))
		if i%2 == 0 {
			run.Outcome = "noop"
		} else {
			run.Outcome = "committed"
		}
		require.NoError(t, repo.Save(ctx, run))
		ids = append(ids, run.ID)
	}
	other := newRun(base)
	other.Branch = "dev"
	require.NoError(t, repo.Save(ctx, other))

	runs, err := repo.List(ctx, ListFilter{Repo: "/repo", Branch: "main", Limit: 3})
	require.NoError(t, err)
	require.Len(t, runs, 3)
	require.Equal(t, []string{ids[4], ids[3], ids[2]}, []string{runs[0].ID, runs[1].ID, runs[2].ID})

	committed, err := repo.List(ctx, ListFilter{Outcome: "committed"})
	require.NoError(t, err)
	require.Len(t, committed, 2)

	all, err := repo.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 6)
}
