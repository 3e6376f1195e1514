package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForCalls(t *testing.T, calls *atomic.Int32, want int32) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if calls.Load() >= want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("callback fired %d times, want at least %d", calls.Load(), want)
}

func TestWatcherFiresOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ratings.csv")
	require.NoError(t, os.WriteFile(path, []byte("stim1,stim2,subj01\n"), 0o600))

	var calls atomic.Int32
	w, err := New(path, func(context.Context) { calls.Add(1) })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.NoError(t, os.WriteFile(path, []byte("stim1,stim2,subj01\na,b,1\n"), 0o600))
	waitForCalls(t, &calls, 1)
}

func TestWatcherFiresOnRenameIntoPlace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ratings.csv")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o600))

	var calls atomic.Int32
	w, err := New(path, func(context.Context) { calls.Add(1) })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	// Atomic save: write a temp file and rename it over the target.
	tmp := filepath.Join(dir, "ratings.csv.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("new\n"), 0o600))
	require.NoError(t, os.Rename(tmp, path))

	waitForCalls(t, &calls, 1)
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ratings.csv")
	require.NoError(t, os.WriteFile(path, []byte("data\n"), 0o600))

	var calls atomic.Int32
	w, err := New(path, func(context.Context) { calls.Add(1) })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x\n"), 0o600))

	// Longer than the debounce window; the callback must stay quiet.
	time.Sleep(2 * debounceDuration)
	assert.Zero(t, calls.Load())
}

func TestWatcherDebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ratings.csv")
	require.NoError(t, os.WriteFile(path, []byte("v0\n"), 0o600))

	var calls atomic.Int32
	w, err := New(path, func(context.Context) { calls.Add(1) })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	// A burst of writes inside one debounce window collapses into one call.
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("burst\n"), 0o600))
		time.Sleep(10 * time.Millisecond)
	}

	waitForCalls(t, &calls, 1)
	time.Sleep(2 * debounceDuration)
	assert.LessOrEqual(t, calls.Load(), int32(2))
}

func TestWatcherMissingDir(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope", "ratings.csv"), func(context.Context) {})
	assert.Error(t, err)
}

func TestWatcherClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ratings.csv")
	require.NoError(t, os.WriteFile(path, []byte("data\n"), 0o600))

	w, err := New(path, func(context.Context) {})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	cancel()
	assert.NoError(t, w.Close())
}
