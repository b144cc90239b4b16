package watch_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/configur8/internal/watch"
)

func TestWatcher_CoalescesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o644))

	w, err := watch.New(50*time.Millisecond, path)
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	onChange, _ := w.Start()

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("a: %d\n", i)), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-onChange:
	case <-time.After(time.Second):
		t.Fatal("expected notification")
	}

	select {
	case <-onChange:
		t.Fatal("unexpected second notification")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	other := filepath.Join(dir, "other.txt")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o644))
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))

	w, err := watch.New(50*time.Millisecond, path)
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	onChange, _ := w.Start()
	require.NoError(t, os.WriteFile(other, []byte("y"), 0o644))

	select {
	case <-onChange:
		t.Fatal("unexpected notification for unwatched file")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestNew_NoFiles(t *testing.T) {
	_, err := watch.New(0)
	require.Error(t, err)
}
