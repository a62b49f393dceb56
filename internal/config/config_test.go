package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
bidding:
  lock_timeout: 500ms
  anti_snipe_window: 30s
  extension_period: 1m
  max_extensions: 5
  increment_tiers:
    - from: 0
      increment: 100
    - from: 10000
      increment: 500
scheduler:
  interval: 2s
currency:
  code: USD
  exponent: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 8082, cfg.Analytics.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 500*time.Millisecond, cfg.Bidding.LockTimeout)
	assert.Equal(t, 30*time.Second, cfg.Bidding.AntiSnipeWindow)
	assert.Equal(t, time.Minute, cfg.Bidding.ExtensionPeriod)
	assert.Equal(t, 5, cfg.Bidding.MaxExtensions)
	require.Len(t, cfg.Bidding.IncrementTiers, 2)
	assert.Equal(t, int64(10000), cfg.Bidding.IncrementTiers[1].From)
	assert.Equal(t, int64(500), cfg.Bidding.IncrementTiers[1].Increment)
	assert.Equal(t, 2*time.Second, cfg.Scheduler.Interval)
	assert.Equal(t, int32(2), cfg.Currency.Exponent)
	assert.Equal(t, int64(1000), cfg.Bidding.DefaultIncrement)
	assert.Equal(t, "mysql", cfg.Store.Driver)
	assert.Equal(t, time.Hour, cfg.Redis.SnapshotTTL)
}

func TestLoadFromFileRejectsUnknownStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: postgres\n"), 0o600))

	_, err := LoadFromFile(path)
	assert.ErrorContains(t, err, "store.driver")
}

func TestLoadFromFileRejectsInvalidBidding(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bidding:\n  max_extensions: -1\n"), 0o600))

	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestLoadUsesEnvironment(t *testing.T) {
	t.Setenv("BIDDING_LOCK_TIMEOUT", "750ms")
	t.Setenv("INSTANCE_ID", "node-7")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, cfg.Bidding.LockTimeout)
	assert.Equal(t, "node-7", cfg.Instance.ID)
	assert.Equal(t, "KRW", cfg.Currency.Code)
}
