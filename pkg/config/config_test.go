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
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "bolt://localhost:7687", cfg.Neo4j.URI)
	assert.Equal(t, "neo4j", cfg.Neo4j.Database)
	assert.Equal(t, time.Minute, cfg.Neo4j.QueryTimeout())
	assert.Equal(t, "./detectors", cfg.Detectors.Path)
	assert.Equal(t, "@every 1h", cfg.Detectors.Schedule)
	assert.Equal(t, 4, cfg.Detectors.Concurrency)
	assert.True(t, cfg.SQLite.Enabled)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Redis.TTL())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "production", cfg.Server.Environment)
	assert.False(t, cfg.Server.IsDevelopment())
}

func TestLoadEnvOverridesEveryKey(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DRIFTDETECT_REDIS_PASSWORD", "s3cret")
	t.Setenv("DRIFTDETECT_NEO4J_PASSWORD", "neo")
	t.Setenv("DRIFTDETECT_SERVER_ENVIRONMENT", "Development")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Redis.Password)
	assert.Equal(t, "neo", cfg.Neo4j.Password)
	assert.True(t, cfg.Server.IsDevelopment())
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "drift.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
neo4j:
  uri: bolt://graph:7687
  database: assets
detectors:
  path: /srv/detectors
  concurrency: 2
logging:
  level: debug
`), 0o600))

	t.Setenv("DRIFTDETECT_NEO4J_PASSWORD", "s3cret")
	t.Setenv("DRIFTDETECT_DETECTORS_SCHEDULE", "*/5 * * * *")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "bolt://graph:7687", cfg.Neo4j.URI)
	assert.Equal(t, "assets", cfg.Neo4j.Database)
	assert.Equal(t, "s3cret", cfg.Neo4j.Password)
	assert.Equal(t, "/srv/detectors", cfg.Detectors.Path)
	assert.Equal(t, "*/5 * * * *", cfg.Detectors.Schedule)
	assert.Equal(t, 2, cfg.Detectors.Concurrency)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadRejectsZeroConcurrency(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drift.yaml")
	require.NoError(t, os.WriteFile(path, []byte("detectors:\n  concurrency: 0\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "concurrency")
}
