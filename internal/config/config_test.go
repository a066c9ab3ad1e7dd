package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 2500*time.Millisecond, cfg.RPC.GetPlainTimeout())
	assert.Equal(t, 8*time.Second, cfg.RPC.GetTraceTimeout())
	assert.Equal(t, 5, cfg.RPC.GetMaxCandidates())
	assert.Equal(t, 60*time.Second, cfg.Price.GetTTL())
	assert.Equal(t, []int{3000, 500, 10000, 100}, cfg.Price.FeeTiers)
	assert.Equal(t, 7, cfg.Domain.MinAgeDays)
	assert.InDelta(t, 4.5, cfg.Domain.EntropyThreshold, 1e-9)
	assert.Equal(t, "file", cfg.Storage.Driver)
	assert.NotEmpty(t, cfg.Blocklist.Feeds)
	assert.Contains(t, cfg.Domain.Protected, "metamask.io")
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	body := []byte(`
server:
  port: "9000"
rpc:
  plain_timeout: 1s
  max_candidates: 3
storage:
  driver: redis
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), body, 0o600))
	t.Setenv("TXRISK_LOGGER_LEVEL", "debug")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, time.Second, cfg.RPC.GetPlainTimeout())
	assert.Equal(t, 3, cfg.RPC.GetMaxCandidates())
	assert.Equal(t, "redis", cfg.Storage.Driver)
	assert.Equal(t, "debug", cfg.Logger.Level)
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [unterminated"), 0o600))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestGetters_FallBackWhenUnset(t *testing.T) {
	var rpc RPCConfig
	assert.Equal(t, 2500*time.Millisecond, rpc.GetPlainTimeout())
	assert.Equal(t, 8*time.Second, rpc.GetTraceTimeout())
	assert.Equal(t, 5, rpc.GetMaxCandidates())

	var price PriceConfig
	assert.Equal(t, 60*time.Second, price.GetTTL())
}
