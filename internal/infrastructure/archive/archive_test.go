package archive

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMover(t *testing.T, root string) *Mover {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	m := NewMover(root, logger)
	m.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return m
}

func touch(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))
	return path
}

func TestArchiveMovesIntoDatedFolder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	root := filepath.Join(dir, "processed")
	src := touch(t, filepath.Join(dir, "batch.csv"))

	m := newTestMover(t, root)
	require.NoError(t, m.Archive(context.Background(), []string{src}))

	_, err := os.Stat(filepath.Join(root, "2024-05-01", "batch.csv"))
	assert.NoError(t, err)
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}

func TestArchiveResolvesNameCollisions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	root := filepath.Join(dir, "processed")
	dated := filepath.Join(root, "2024-05-01")
	require.NoError(t, os.MkdirAll(dated, 0o755))
	touch(t, filepath.Join(dated, "batch.csv"))
	touch(t, filepath.Join(dated, "batch_1.csv"))

	src := touch(t, filepath.Join(dir, "batch.csv"))

	m := newTestMover(t, root)
	require.NoError(t, m.Archive(context.Background(), []string{src}))

	_, err := os.Stat(filepath.Join(dated, "batch_2.csv"))
	assert.NoError(t, err)
}

func TestArchiveSkipsVanishedFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := newTestMover(t, filepath.Join(dir, "processed"))

	err := m.Archive(context.Background(), []string{filepath.Join(dir, "never-existed.csv")})
	assert.NoError(t, err)
}

func TestArchiveNoFilesIsNoOp(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	root := filepath.Join(dir, "processed")
	m := newTestMover(t, root)

	require.NoError(t, m.Archive(context.Background(), nil))

	_, err := os.Stat(root)
	assert.True(t, os.IsNotExist(err), "no dated folder is created for an empty run")
}
