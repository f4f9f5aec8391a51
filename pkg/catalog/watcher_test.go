package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func writeCatalogFile(t *testing.T, path, backendModel string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(
		`[{"id": "a", "provider": "gemini", "backend_model": "`+backendModel+`", "active": true}]`), 0644))
}

func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "models.json")
	writeCatalogFile(t, path, "gemini-v1")

	snap, err := LoadFile(path)
	require.NoError(t, err)
	cat := New(snap)

	w, err := NewWatcher(cat, path, zerolog.Nop())
	require.NoError(t, err)
	defer w.Stop()

	writeCatalogFile(t, path, "gemini-v2")

	require.Eventually(t, func() bool {
		desc, err := cat.Snapshot().Resolve("a")
		return err == nil && desc.BackendModel == "gemini-v2"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestWatcherKeepsSnapshotOnBadReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "models.json")
	writeCatalogFile(t, path, "gemini-v1")

	snap, err := LoadFile(path)
	require.NoError(t, err)
	cat := New(snap)

	w, err := NewWatcher(cat, path, zerolog.Nop())
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte(`{broken`), 0644))

	// Wait out the debounce window; the previous snapshot must survive
	time.Sleep(1200 * time.Millisecond)

	desc, err := cat.Snapshot().Resolve("a")
	require.NoError(t, err)
	require.Equal(t, "gemini-v1", desc.BackendModel)
}
