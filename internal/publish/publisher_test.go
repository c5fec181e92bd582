package publish

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/georefresh/internal/config"
	"github.com/zjrosen/georefresh/internal/git"
	"github.com/zjrosen/georefresh/internal/testutil"
)

func testConfig() Config {
	cfg := ConfigFrom(config.Defaults())
	cfg.Branch = testutil.DefaultBranch
	return cfg
}

func newPublisher(dir string, cfg Config) *Publisher {
	return New(git.NewRealExecutor(dir, git.WithEnv(testutil.GitEnv()...)), cfg)
}

func head(t *testing.T, dir string) string {
	t.Helper()
	h, err := git.NewRealExecutor(dir, git.WithEnv(testutil.GitEnv()...)).Head(context.Background())
	require.NoError(t, err)
	return h
}

func TestPublish_UnchangedHasNoSideEffects(t *testing.T) {
	remote := testutil.NewRemote(t)
	work := remote.Clone()
	base := testutil.NewBuilder(t, work).WithFile("data/a.geojson", "{}").Build(testutil.Pushed())
	testutil.NewBuilder(t, work).WithFile("data/a.geojson", `{"x":1}`).Write()

	res, err := newPublisher(work, testConfig()).Publish(context.Background(), Request{
		Changed: false, Paths: []string{"data"}, Base: base,
	})
	require.NoError(t, err)
	require.Equal(t, StatusSkipped, res.Status)
	require.Equal(t, base, head(t, work))
	require.Equal(t, 1, remote.CommitCount())
	require.Contains(t, testutil.Git(t, work, "status", "--porcelain"), "data/a.geojson", "nothing was staged")
}

func TestPublish_FirstRunToEmptyRemote(t *testing.T) {
	remote := testutil.NewRemote(t)
	work := remote.Clone()
	testutil.NewBuilder(t, work).WithFile("data/a.geojson", `{"type":"FeatureCollection","features":[]}`).Write()

	res, err := newPublisher(work, testConfig()).Publish(context.Background(), Request{
		Changed: true, Paths: []string{"data"}, Base: "",
	})
	require.NoError(t, err)
	require.Equal(t, StatusCommitted, res.Status)
	require.True(t, res.Pushed)
	require.Equal(t, res.Commit, remote.Tip())
	require.Equal(t, 1, remote.CommitCount())
	require.Equal(t, "[update] Update GeoJSON data", remote.Subject())
}

func TestPublish_CommitsExactlyOnce(t *testing.T) {
	remote := testutil.NewRemote(t)
	work := remote.Clone()
	base := testutil.NewBuilder(t, work).WithFile("data/a.geojson", "{}").Build(testutil.Pushed())

	testutil.NewBuilder(t, work).
		WithFile("data/a.geojson", `{"a":2}`).
		WithFile("data/new.csv", "x\n").
		WithFile("notes.txt", "not an artifact").
		Write()

	res, err := newPublisher(work, testConfig()).Publish(context.Background(), Request{
		Changed: true, Paths: []string{"data"}, Base: base,
	})
	require.NoError(t, err)
	require.Equal(t, StatusCommitted, res.Status)
	require.Equal(t, "[update] Update GeoJSON data", res.Message)
	require.Equal(t, 2, remote.CommitCount())
	require.Equal(t, res.Commit, remote.Tip())

	files := testutil.Git(t, work, "show", "--name-only", "--format=", "HEAD")
	require.Equal(t, "data/a.geojson\ndata/new.csv", files)
	require.Contains(t, testutil.Git(t, work, "status", "--porcelain"), "notes.txt")
}

func TestPublish_LeavesUnrelatedStagedFiles(t *testing.T) {
	remote := testutil.NewRemote(t)
	work := remote.Clone()
	base := testutil.NewBuilder(t, work).WithFile("data/a.geojson", "{}").Build(testutil.Pushed())
	testutil.NewBuilder(t, work).
		WithFile("data/a.geojson", `{"a":2}`).
		WithFile("secret.txt", "token").
		Write()
	testutil.Git(t, work, "add", "secret.txt")

	res, err := newPublisher(work, testConfig()).Publish(context.Background(), Request{
		Changed: true, Paths: []string{"data"}, Base: base,
	})
	require.NoError(t, err)
	require.True(t, res.Pushed)
	require.Equal(t, "data/a.geojson", testutil.Git(t, remote.Bare, "show", "--name-only", "--format=", testutil.DefaultBranch))
	require.Equal(t, "A  secret.txt", testutil.Git(t, work, "status", "--porcelain"))
}

func TestPublish_UnrelatedStagedFileIsNotAChange(t *testing.T) {
	remote := testutil.NewRemote(t)
	work := remote.Clone()
	base := testutil.NewBuilder(t, work).WithFile("data/a.csv", "a\n").Build(testutil.Pushed())
	testutil.NewBuilder(t, work).WithFile("secret.txt", "token").Write()
	testutil.Git(t, work, "add", "secret.txt")

	cfg := testConfig()
	cfg.AllowEmpty = false
	res, err := newPublisher(work, cfg).Publish(context.Background(), Request{
		Changed: true, Paths: []string{"data"}, Base: base,
	})
	require.NoError(t, err)
	require.Equal(t, StatusSkipped, res.Status)
	require.Equal(t, base, head(t, work))
}

func TestPublish_StagesDeletions(t *testing.T) {
	remote := testutil.NewRemote(t)
	work := remote.Clone()
	base := testutil.NewBuilder(t, work).
		WithFile("data/a.csv", "a\n").
		WithFile("data/b.csv", "b\n").
		Build(testutil.Pushed())
	testutil.NewBuilder(t, work).WithoutFile("data/b.csv").Write()

	_, err := newPublisher(work, testConfig()).Publish(context.Background(), Request{
		Changed: true, Paths: []string{"data"}, Base: base,
	})
	require.NoError(t, err)
	require.Equal(t, "data/a.csv", testutil.Git(t, remote.Bare, "ls-tree", "-r", "--name-only", testutil.DefaultBranch))
}

func TestPublish_RemoteMoved(t *testing.T) {
	remote := testutil.NewRemote(t)
	work := remote.Clone()
	base := testutil.NewBuilder(t, work).WithFile("data/a.geojson", "{}").Build(testutil.Pushed())

	other := remote.Clone()
	moved := testutil.NewBuilder(t, other).WithFile("data/a.geojson", `{"other":1}`).Build(testutil.Pushed())

	testutil.NewBuilder(t, work).WithFile("data/a.geojson", `{"mine":1}`).Write()
	res, err := newPublisher(work, testConfig()).Publish(context.Background(), Request{
		Changed: true, Paths: []string{"data"}, Base: base,
	})
	require.ErrorIs(t, err, ErrRemoteMoved)
	require.False(t, res.Pushed)
	require.NotEmpty(t, res.Commit, "the commit stays local")
	require.Equal(t, res.Commit, head(t, work))
	require.Equal(t, moved, remote.Tip(), "remote untouched")
}

func TestPublish_RemoteCreatedSinceUnbornStart(t *testing.T) {
	remote := testutil.NewRemote(t)
	work := remote.Clone()

	other := remote.Clone()
	testutil.NewBuilder(t, other).WithFile("data/a.geojson", "{}").Build(testutil.Pushed())

	testutil.NewBuilder(t, work).WithFile("data/a.geojson", `{"mine":1}`).Write()
	_, err := newPublisher(work, testConfig()).Publish(context.Background(), Request{
		Changed: true, Paths: []string{"data"}, Base: "",
	})
	require.ErrorIs(t, err, ErrRemoteMoved)
	require.Equal(t, 1, remote.CommitCount())
}

func TestPublish_NothingStaged(t *testing.T) {
	tests := []struct {
		name       string
		allowEmpty bool
		want       Status
		commits    int
	}{
		{name: "allow empty", allowEmpty: true, want: StatusCommitted, commits: 2},
		{name: "skip", allowEmpty: false, want: StatusSkipped, commits: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := testutil.NewRemote(t)
			work := remote.Clone()
			base := testutil.NewBuilder(t, work).WithFile("data/a.csv", "a\n").Build(testutil.Pushed())

			cfg := testConfig()
			cfg.AllowEmpty = tt.allowEmpty
			res, err := newPublisher(work, cfg).Publish(context.Background(), Request{
				Changed: true, Paths: []string{"data"}, Base: base,
			})
			require.NoError(t, err)
			require.Equal(t, tt.want, res.Status)
			require.Equal(t, tt.commits, remote.CommitCount())
		})
	}
}

func TestPublish_LocalOnly(t *testing.T) {
	remote := testutil.NewRemote(t)
	work := remote.Clone()
	base := testutil.NewBuilder(t, work).WithFile("data/a.csv", "a\n").Build(testutil.Pushed())
	testutil.NewBuilder(t, work).WithFile("data/a.csv", "b\n").Write()

	cfg := testConfig()
	cfg.Push = false
	res, err := newPublisher(work, cfg).Publish(context.Background(), Request{
		Changed: true, Paths: []string{"data"}, Base: base,
	})
	require.NoError(t, err)
	require.Equal(t, StatusCommitted, res.Status)
	require.False(t, res.Pushed)
	require.Equal(t, res.Commit, head(t, work))
	require.Equal(t, base, remote.Tip())
}

func TestPublish_CustomSubject(t *testing.T) {
	remote := testutil.NewRemote(t)
	work := remote.Clone()
	testutil.NewBuilder(t, work).WithFile("data/a.csv", "a\n").Write()

	cfg := testConfig()
	cfg.Subject = "DeepState"
	_, err := newPublisher(work, cfg).Publish(context.Background(), Request{Changed: true, Paths: []string{"data"}})
	require.NoError(t, err)
	require.Equal(t, "[update] Update DeepState data", remote.Subject())
}

func TestPublish_PushRejected(t *testing.T) {
	remote := testutil.NewRemote(t)
	work := remote.Clone()
	testutil.NewBuilder(t, work).WithFile("data/a.csv", "a\n").Write()
	// A hook that refuses every update stands in for branch protection.
	testutil.NewBuilder(t, remote.Bare).WithFile("hooks/pre-receive", "#!/bin/sh\nexit 1\n", testutil.Mode(0o755)).Write()

	res, err := newPublisher(work, testConfig()).Publish(context.Background(), Request{Changed: true, Paths: []string{"data"}})
	require.Error(t, err)
	require.True(t, errors.Is(err, git.ErrPushRejected), "got %v", err)
	require.False(t, res.Pushed)
	require.Empty(t, remote.Tip())
}

func TestPublish_NoPaths(t *testing.T) {
	_, err := newPublisher(t.TempDir(), testConfig()).Publish(context.Background(), Request{Changed: true})
	require.ErrorContains(t, err, "no artifact paths")
}
