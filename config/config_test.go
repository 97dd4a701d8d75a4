package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.K = 3
	cfg.Input = "in/"
	cfg.Output = "out"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "pruned", cfg.Policy)
	assert.Equal(t, "cosine", cfg.Metric)
	assert.Equal(t, StoreLocal, cfg.Store.Type)
	assert.Equal(t, CentroidsBlob, cfg.Centroids.Backend)
	assert.Equal(t, 4, cfg.Centroids.CacheSize)

	require.NoError(t, validConfig().Validate())
}

func TestParse(t *testing.T) {
	data := []byte(`
k: 5
input: corpus/
output: result
rounds: 7
policy: plain
metric: euclidean
workers: 2
store:
  type: minio
  bucket: docs
  endpoint: localhost:9000
  access_key: admin
centroids:
  backend: badger
  cache_size: 0
log:
  level: debug
  format: json
`)

	cfg, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.K)
	assert.Equal(t, 7, cfg.Rounds)
	assert.Equal(t, "plain", cfg.Policy)
	assert.Equal(t, "euclidean", cfg.Metric)
	assert.Equal(t, StoreMinIO, cfg.Store.Type)
	assert.Equal(t, "admin", cfg.Store.AccessKey)
	assert.Equal(t, CentroidsBadger, cfg.Centroids.Backend)
	assert.Equal(t, 0, cfg.Centroids.CacheSize)
	// Unset keys keep their defaults.
	assert.Equal(t, "lz4", cfg.Compression)
	assert.Equal(t, "zstd", cfg.Centroids.Compression)
	require.NoError(t, cfg.Validate())

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_UnknownKey(t *testing.T) {
	_, err := Parse([]byte("k: 2\nclusters: 3\n"))
	require.Error(t, err)
}

func TestParse_RejectsSecretKey(t *testing.T) {
	_, err := Parse([]byte("store:\n  secret_key: hunter2\n"))
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kmeans.yaml")
	require.NoError(t, os.WriteFile(path, []byte("k: 4\ninput: a/\noutput: b\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.K)
	require.NoError(t, cfg.Validate())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"k", func(c *Config) { c.K = 0 }, "k must be positive"},
		{"input", func(c *Config) { c.Input = "" }, "input is required"},
		{"output", func(c *Config) { c.Output = "" }, "output is required"},
		{"rounds", func(c *Config) { c.Rounds = -1 }, "rounds must not be negative"},
		{"policy", func(c *Config) { c.Policy = "median" }, "aggregation policy"},
		{"metric", func(c *Config) { c.Metric = "manhattan" }, "manhattan"},
		{"compression", func(c *Config) { c.Compression = "gzip" }, "gzip"},
		{"centroid compression", func(c *Config) { c.Centroids.Compression = "snappy" }, "centroids:"},
		{"store type", func(c *Config) { c.Store.Type = "gcs" }, "store: unknown type"},
		{"local root", func(c *Config) { c.Store.Root = "" }, "root is required"},
		{"bucket", func(c *Config) { c.Store.Type = StoreS3 }, "bucket is required"},
		{"endpoint", func(c *Config) {
			c.Store.Type = StoreMinIO
			c.Store.Bucket = "docs"
		}, "endpoint is required"},
		{"backend", func(c *Config) { c.Centroids.Backend = "redis" }, "unknown backend"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log:"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "unknown format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_CollectsAll(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "k must be positive")
	assert.Contains(t, err.Error(), "input is required")
	assert.Contains(t, err.Error(), "output is required")
}

func TestOptions(t *testing.T) {
	cfg := validConfig()
	cfg.Log.Format = "json"
	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Len(t, opts, 12)

	cfg.Metric = "hamming"
	_, err = cfg.Options()
	require.Error(t, err)
}
