package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_MatchesSpecDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 15.0, cfg.DefaultLimits.WallTimeoutSeconds)
	assert.Equal(t, 10.0, cfg.DefaultLimits.CPUSeconds)
	assert.Equal(t, 100, cfg.DefaultLimits.AddressSpaceMB)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().DefaultLimits, cfg.DefaultLimits)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sandboxd.yaml")

	cfg := DefaultConfig()
	cfg.Interpreter = "/usr/bin/python3.11"
	cfg.DefaultLimits.CPUSeconds = 5

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/python3.11", loaded.Interpreter)
	assert.Equal(t, 5.0, loaded.DefaultLimits.CPUSeconds)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SANDBOXD_INTERPRETER", "/opt/python/bin/python3")
	t.Setenv("SANDBOXD_TEMP_DIR", "/tmp/sandboxd-scripts")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/opt/python/bin/python3", cfg.Interpreter)
	assert.Equal(t, "/tmp/sandboxd-scripts", cfg.TempDir)
}
