package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/N3z3d/prioris-sync/internal/conflict"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, conflict.StrategySmartMerge, cfg.ConflictStrategy)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Breaker.RecoveryTimeout)
	assert.Equal(t, 15*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 1000, cfg.Cache.Capacity)
	assert.Equal(t, 50, cfg.Queue.MaxPending)
	assert.Equal(t, 100*time.Millisecond, cfg.Queue.FlushDelay)
}

func TestNormalizeFillsZeroValuesOnly(t *testing.T) {
	cfg := Config{BatchSize: 25, WorkerCount: 2}.Normalize()
	assert.Equal(t, 25, cfg.BatchSize)
	assert.Equal(t, 2, cfg.WorkerCount)
	assert.Equal(t, conflict.StrategySmartMerge, cfg.ConflictStrategy)
	assert.Equal(t, 3, cfg.MaxRetries)
}

func TestValidateRejectsUnknownStrategy(t *testing.T) {
	cfg := Default()
	cfg.ConflictStrategy = "newestWins"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newestWins")
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	cfg := Default()
	cfg.WorkerCount = 500
	assert.Error(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
conflict_strategy: keepLocal
batch_size: 40
worker_count: 8
delete_local_after_migration: true
queue:
  max_pending: 20
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, conflict.StrategyKeepLocal, cfg.ConflictStrategy)
	assert.Equal(t, 40, cfg.BatchSize)
	assert.Equal(t, 8, cfg.WorkerCount)
	assert.True(t, cfg.DeleteLocalAfterMigration)
	assert.Equal(t, 20, cfg.Queue.MaxPending)
	// Unset keys still default.
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.Queue.FlushDelay)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch_size: 40\n"), 0o644))
	t.Setenv(envBatchSize, "7")
	t.Setenv(envConflictStrategy, "duplicate")
	t.Setenv(envTimeout, "90s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.BatchSize)
	assert.Equal(t, conflict.StrategyDuplicate, cfg.ConflictStrategy)
	assert.Equal(t, 90*time.Second, cfg.Timeout)
}

func TestLoadRejectsMalformedEnv(t *testing.T) {
	t.Setenv(envWorkerCount, "many")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch_size: [nope\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestWatcherPublishesReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch_size: 10\n"), 0o644))

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	defer w.Close()
	assert.Equal(t, 10, w.Current().BatchSize)

	reloaded := make(chan Config, 1)
	w.Subscribe(func(cfg Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})

	require.NoError(t, os.WriteFile(path, []byte("batch_size: 33\n"), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 33, cfg.BatchSize)
		assert.Equal(t, 33, w.Current().BatchSize)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}

func TestWatcherKeepsLastGoodConfigOnParseError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch_size: 10\n"), 0o644))

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("batch_size: [broken\n"), 0o644))

	// Give the debounce window time to fire, then confirm nothing changed.
	time.Sleep(time.Second)
	assert.Equal(t, 10, w.Current().BatchSize)
}
