package watch_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/statestack/internal/adapters/watch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReportsWatchedFileOnly(t *testing.T) {
	dir := t.TempDir()
	catalog := filepath.Join(dir, "catalog.yaml")
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(catalog, []byte("states: []\n"), 0644))

	w, err := watch.New([]string{catalog}, watch.WithDebounce(time.Millisecond))
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(other, []byte("ignored"), 0644))
	require.NoError(t, os.WriteFile(catalog, []byte("states: [{id: idle}]\n"), 0644))

	select {
	case name := <-w.Events:
		abs, _ := filepath.Abs(catalog)
		assert.Equal(t, abs, name)
	case err := <-w.Errors:
		t.Fatalf("unexpected watcher error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change event")
	}
}

func TestWatcher_CloseIsIdempotent(t *testing.T) {
	catalog := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(catalog, nil, 0644))

	w, err := watch.New([]string{catalog})
	require.NoError(t, err)

	require.NoError(t, w.Close())
	assert.NoError(t, w.Close())

	_, open := <-w.Events
	assert.False(t, open)
}

func TestWatcher_MissingDirectory(t *testing.T) {
	_, err := watch.New([]string{filepath.Join(t.TempDir(), "missing", "catalog.yaml")})
	assert.Error(t, err)
}
