package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "patchpipe.db", cfg.Database.Path)
	require.Equal(t, "fs", cfg.RawData.Driver)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, 1, cfg.Jobs.Parallelism)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	payload := []byte(`
database:
  driver: postgres
  dsn: postgres://db.internal/patchpipe
rawdata:
  driver: s3
logging:
  level: debug
  json: true
jobs:
  parallelism: 4
`)
	require.NoError(t, os.WriteFile(path, payload, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "postgres://db.internal/patchpipe", cfg.Database.DSN)
	require.Equal(t, "s3", cfg.RawData.Driver)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.True(t, cfg.Logging.JSON)
	require.Equal(t, 4, cfg.Jobs.Parallelism)
	// Unset fields keep their defaults.
	require.Equal(t, "notes.db", cfg.Notes.Path)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  driver: sqlite\n"), 0o600))

	t.Setenv("PATCHPIPE_DB_DRIVER", "memory")
	t.Setenv("PATCHPIPE_LOG_LEVEL", "warn")
	t.Setenv("PATCHPIPE_JOB_PARALLELISM", "8")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "memory", cfg.Database.Driver)
	require.Equal(t, "warn", cfg.Logging.Level)
	require.Equal(t, 8, cfg.Jobs.Parallelism)
}

func TestLoadRejectsUnknownDrivers(t *testing.T) {
	t.Setenv("PATCHPIPE_DB_DRIVER", "mongodb")
	_, err := Load("")
	require.ErrorContains(t, err, "unsupported database driver")

	t.Setenv("PATCHPIPE_DB_DRIVER", "sqlite")
	t.Setenv("PATCHPIPE_RAWDATA_DRIVER", "ftp")
	_, err = Load("")
	require.ErrorContains(t, err, "unsupported rawdata driver")
}

func TestParallelismFloor(t *testing.T) {
	t.Setenv("PATCHPIPE_JOB_PARALLELISM", "0")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 1, cfg.Jobs.Parallelism)
}
