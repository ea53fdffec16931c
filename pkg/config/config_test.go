package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7600", cfg.ListenAddr)
	assert.Equal(t, "/quiver", cfg.Etcd.BasePath)
	assert.Equal(t, 500, cfg.Resharding.BatchSize)
	assert.Equal(t, 3, cfg.Health.FailureThreshold)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quiver.yaml")
	data := `
listenAddr: ":9000"
etcd:
  endpoints: ["etcd-1:2379", "etcd-2:2379"]
  basePath: /prod/quiver
shard:
  requestTimeout: 3s
resharding:
  batchSize: 1000
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, []string{"etcd-1:2379", "etcd-2:2379"}, cfg.Etcd.Endpoints)
	assert.Equal(t, "/prod/quiver", cfg.Etcd.BasePath)
	assert.Equal(t, 3*time.Second, cfg.Shard.RequestTimeout.Std())
	assert.Equal(t, 1000, cfg.Resharding.BatchSize)
	// Untouched sections keep defaults
	assert.Equal(t, 8, cfg.Replication.Workers)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("QUIVER_LISTEN_ADDR", ":8111")
	t.Setenv("QUIVER_ETCD_ENDPOINTS", "a:2379,b:2379")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8111", cfg.ListenAddr)
	assert.Equal(t, []string{"a:2379", "b:2379"}, cfg.Etcd.Endpoints)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no etcd endpoints", func(c *Config) { c.Etcd.Endpoints = nil }},
		{"relative base path", func(c *Config) { c.Etcd.BasePath = "quiver" }},
		{"zero replication workers", func(c *Config) { c.Replication.Workers = 0 }},
		{"negative batch size", func(c *Config) { c.Resharding.BatchSize = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
