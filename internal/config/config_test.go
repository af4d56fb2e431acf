package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("JASKSCHED_CONFIG", "")

	c, err := Load()
	require.NoError(t, err)
	require.Contains(t, c.Database.Path, "jasksched.db")
	require.Equal(t, "info", c.Log.Level)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[database]\npath = \"/tmp/custom.db\"\n\n[log]\nlevel = \"debug\"\n"), 0o644))
	t.Setenv("JASKSCHED_CONFIG", path)

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, "/tmp/custom.db", c.Database.Path)
	require.Equal(t, "debug", c.Log.Level)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("JASKSCHED_CONFIG", "")
	t.Setenv("JASKSCHED_LOG_LEVEL", "warn")

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, "warn", c.Log.Level)
}
