package shaderwatch_test

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hellotriangle/internal/shaderwatch"
)

func TestRelevant(t *testing.T) {
	assert.True(t, shaderwatch.Relevant(fsnotify.Event{Name: "shaders/vert.spv", Op: fsnotify.Write}))
	assert.True(t, shaderwatch.Relevant(fsnotify.Event{Name: "frag.spv", Op: fsnotify.Create}))
	assert.False(t, shaderwatch.Relevant(fsnotify.Event{Name: "shaders/shader.vert", Op: fsnotify.Write}))
	assert.False(t, shaderwatch.Relevant(fsnotify.Event{Name: "vert.spv", Op: fsnotify.Chmod}))
}

func TestWatcher(t *testing.T) {
	dir := t.TempDir()
	w, err := shaderwatch.New(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer w.Close()

	assert.False(t, w.Changed())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vert.spv"), []byte{0x03, 0x02, 0x23, 0x07}, 0o644))

	assert.Eventually(t, w.Changed, 2*time.Second, 10*time.Millisecond)

	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}

func TestWatchMissingDir(t *testing.T) {
	_, err := shaderwatch.New(filepath.Join(t.TempDir(), "nope"), slog.Default())
	assert.Error(t, err)
}
