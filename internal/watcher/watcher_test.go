package watcher_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/georefresh/internal/watcher"
)

func start(t *testing.T, path string) <-chan struct{} {
	t.Helper()
	w, err := watcher.New(watcher.Config{Path: path, Debounce: 50 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })

	ch, err := w.Start()
	require.NoError(t, err)
	return ch
}

func TestWatcher_DebounceMultipleWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refresh")
	require.NoError(t, os.WriteFile(path, []byte("0"), 0o644))
	onChange := start(t, path)

	for i := range 10 {
		require.NoError(t, os.WriteFile(path, []byte(fmt.Sprint(i)), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-onChange:
	case <-time.After(time.Second):
		t.Fatal("expected notification but got timeout")
	}

	select {
	case <-onChange:
		t.Fatal("unexpected second notification")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestWatcher_TriggerFileCreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refresh")
	onChange := start(t, path)

	require.NoError(t, os.WriteFile(path, nil, 0o644))

	select {
	case <-onChange:
	case <-time.After(time.Second):
		t.Fatal("creating the trigger file should signal")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	other := filepath.Join(dir, "other.txt")
	require.NoError(t, os.WriteFile(other, []byte("initial"), 0o644))
	onChange := start(t, filepath.Join(dir, "refresh"))

	require.NoError(t, os.WriteFile(other, []byte("changed"), 0o644))

	select {
	case <-onChange:
		t.Fatal("unexpected notification for unrelated file")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := watcher.New(watcher.Config{Path: filepath.Join(t.TempDir(), "refresh")})
	require.NoError(t, err)
	_, err = w.Start()
	require.NoError(t, err)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}

func TestWatcher_Errors(t *testing.T) {
	_, err := watcher.New(watcher.Config{})
	require.Error(t, err)

	w, err := watcher.New(watcher.Config{Path: filepath.Join(t.TempDir(), "missing", "refresh")})
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()
	_, err = w.Start()
	require.ErrorContains(t, err, "watching directory")
}
