package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Memory.HotCapacity)
	assert.Equal(t, "./data/brain.db", cfg.Store.Path)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brain.yaml")
	writeFile(t, path, "data_dir: /srv/brain\nmemory:\n  hot_capacity: 50\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/brain", cfg.DataDir)
	assert.Equal(t, 50, cfg.Memory.HotCapacity)
	assert.Equal(t, "/srv/brain/brain.db", cfg.Store.Path, "store path derives from data_dir when unset")
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Run("BRAIN_DATA_DIR", func(t *testing.T) {
		t.Setenv("BRAIN_DATA_DIR", "/tmp/brain-data")
		cfg := DefaultConfig()
		applyEnvOverrides(cfg)
		assert.Equal(t, "/tmp/brain-data", cfg.DataDir)
	})

	t.Run("BRAIN_WORKER_CONCURRENCY", func(t *testing.T) {
		t.Setenv("BRAIN_WORKER_CONCURRENCY", "8")
		cfg := DefaultConfig()
		applyEnvOverrides(cfg)
		assert.Equal(t, 8, cfg.Worker.MaxConcurrency)
	})

	t.Run("invalid concurrency value is ignored", func(t *testing.T) {
		t.Setenv("BRAIN_WORKER_CONCURRENCY", "not-a-number")
		cfg := DefaultConfig()
		applyEnvOverrides(cfg)
		assert.Equal(t, 4, cfg.Worker.MaxConcurrency)
	})

	t.Run("BRAIN_SESSION_TIMEOUT", func(t *testing.T) {
		t.Setenv("BRAIN_SESSION_TIMEOUT", "1h")
		cfg := DefaultConfig()
		applyEnvOverrides(cfg)
		assert.Equal(t, "1h0m0s", cfg.Session.Timeout.String())
	})
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}
