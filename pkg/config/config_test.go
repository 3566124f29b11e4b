package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "default", cfg.Workspace)
	assert.Equal(t, "TaskMirror", cfg.ContainerPrefix)
	assert.Equal(t, 1000, cfg.Retry.BaseDelayMS)
	assert.Equal(t, 30000, cfg.Retry.MaxDelayMS)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, 2.0, cfg.Retry.Multiplier)
	assert.Equal(t, 3, cfg.Bulk.ChunkSize)
	assert.Equal(t, 500, cfg.Bulk.ChunkPauseMS)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.Workspace = "eng"
	cfg.Bulk.ChunkSize = 5
	cfg.Credentials.UserID = "user-1"
	cfg.Credentials.AccessToken = "tok"

	require.NoError(t, SaveTo(cfg, path))

	// Tokens in the file: owner-only.
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "eng", loaded.Workspace)
	assert.Equal(t, 5, loaded.Bulk.ChunkSize)
	assert.Equal(t, "user-1", loaded.Credentials.UserID)
	assert.Equal(t, "tok", loaded.Credentials.AccessToken)
}

func TestPartialFileBackfillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workspace: ops\n"), 0600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "ops", cfg.Workspace)
	assert.Equal(t, 3, cfg.Retry.MaxRetries, "unset fields keep defaults")
	assert.Equal(t, 500, cfg.Bulk.ChunkPauseMS)
}

func TestSaveDefaultIfMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	written, err := SaveDefaultIfMissing(path)
	require.NoError(t, err)
	assert.True(t, written, "first run writes the defaults")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.Workspace)

	// A hand-edited file must never be clobbered.
	require.NoError(t, os.WriteFile(path, []byte("workspace: ops\n"), 0600))
	written, err = SaveDefaultIfMissing(path)
	require.NoError(t, err)
	assert.False(t, written)

	cfg, err = LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "ops", cfg.Workspace)
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "1s", cfg.BaseDelay().String())
	assert.Equal(t, "30s", cfg.MaxDelay().String())
	assert.Equal(t, "500ms", cfg.ChunkPause().String())
}
