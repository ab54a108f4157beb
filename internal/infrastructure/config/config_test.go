package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unset clears an env var for the test while keeping t.Setenv's restore.
func unset(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	unset(t, "CONFIG_FILE", "PORT", "STORAGE_ROOT", "UPLOAD_MAX_CONCURRENT")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "/srv/storage", cfg.Storage.Root)
	assert.Equal(t, 1, cfg.Upload.MaxConcurrent)
	assert.Equal(t, 24*time.Hour, cfg.Tasks.TTL)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestLoadFromEnvironment(t *testing.T) {
	unset(t, "CONFIG_FILE")
	t.Setenv("PORT", "9001")
	t.Setenv("STORAGE_ROOT", "/mnt/pool")
	t.Setenv("UPLOAD_MAX_CONCURRENT", "4")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9001", cfg.Server.Port)
	assert.Equal(t, "/mnt/pool", cfg.Storage.Root)
	assert.Equal(t, 4, cfg.Upload.MaxConcurrent)
}

// TestLoadFileOverridesEnvironment pins the precedence order: the YAML file
// is an overlay, so its values win over both env values and tag defaults.
func TestLoadFileOverridesEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"7777\"\nstorage:\n  root: /data/files\n"), 0o644))

	unset(t, "UPLOAD_MAX_CONCURRENT")
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "9001")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "7777", cfg.Server.Port)
	assert.Equal(t, "/data/files", cfg.Storage.Root)
	// Sections absent from the file keep their env/default values.
	assert.Equal(t, 1, cfg.Upload.MaxConcurrent)
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := Load()
	assert.Error(t, err)
}
