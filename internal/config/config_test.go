package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
storage:
  file: data.db
  page_size: 4096
buffer_pool:
  pool_size: 128
  replacer_k: 2
index:
  leaf_max_size: 32
  internal_max_size: 32
lock_manager:
  cycle_detection_interval: 50ms
transaction:
  default_isolation_level: repeatable_read
server:
  debug: false
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_ParsesFullSchema(t *testing.T) {
	path := writeConfig(t, sampleYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "data.db", cfg.Storage.File)
	require.Equal(t, 4096, cfg.Storage.PageSize)
	require.Equal(t, 128, cfg.BufferPool.PoolSize)
	require.Equal(t, 2, cfg.BufferPool.ReplacerK)
	require.Equal(t, uint16(32), cfg.Index.LeafMaxSize)
	require.Equal(t, uint16(32), cfg.Index.InternalMaxSize)
	require.Equal(t, 50*time.Millisecond, cfg.LockManager.CycleDetectionInterval)
	require.Equal(t, "repeatable_read", cfg.Transaction.DefaultIsolationLevel)
	require.False(t, cfg.Server.Debug)

	level, err := cfg.IsolationLevel()
	require.NoError(t, err)
	require.Equal(t, "repeatable_read", level)
}

func TestLoad_AppliesDefaultsForOmittedFields(t *testing.T) {
	path := writeConfig(t, "storage:\n  file: data.db\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 4096, cfg.Storage.PageSize)
	require.Equal(t, 128, cfg.BufferPool.PoolSize)
	require.Equal(t, 50*time.Millisecond, cfg.LockManager.CycleDetectionInterval)
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestConfig_IsolationLevelRejectsUnknown(t *testing.T) {
	cfg := &Config{}
	cfg.Transaction.DefaultIsolationLevel = "bogus"
	_, err := cfg.IsolationLevel()
	require.Error(t, err)
}
