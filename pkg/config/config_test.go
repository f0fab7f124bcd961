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
	assert.Equal(t, 16383, cfg.Index.BlockSize)
	assert.Equal(t, 500, cfg.Index.SkipDistance)
	assert.Equal(t, 20, cfg.Index.SkipResetDistance)
	assert.Equal(t, 1000, cfg.Retrieval.Requested)
	assert.True(t, cfg.Retrieval.ShareNodes)
	assert.False(t, cfg.Retrieval.CacheScores)
}

func TestLoadYAMLWithOperators(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retrieval.yaml")
	data := `
index:
  dataDir: /var/lib/retrieval
  shards: 3
retrieval:
  requested: 50
  timeoutPerShard: 2s
  operators:
    phrase:
      operator: ordered
      params:
        default: "1"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/retrieval", cfg.Index.DataDir)
	assert.Equal(t, 3, cfg.Index.Shards)
	assert.Equal(t, 50, cfg.Retrieval.Requested)
	assert.Equal(t, 2*time.Second, cfg.Retrieval.TimeoutPerShard)
	require.Contains(t, cfg.Retrieval.Operators, "phrase")
	assert.Equal(t, "ordered", cfg.Retrieval.Operators["phrase"].Operator)
	assert.Equal(t, "1", cfg.Retrieval.Operators["phrase"].Params["default"])
	// untouched sections keep their defaults
	assert.Equal(t, 16383, cfg.Index.BlockSize)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SP_INDEX_SHARDS", "4")
	t.Setenv("SP_RETRIEVAL_CACHE_SCORES", "true")
	t.Setenv("SP_KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Index.Shards)
	assert.True(t, cfg.Retrieval.CacheScores)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"tiny block", func(c *Config) { c.Index.BlockSize = 10 }},
		{"zero skip distance", func(c *Config) { c.Index.SkipDistance = 0 }},
		{"zero requested", func(c *Config) { c.Retrieval.Requested = 0 }},
		{"no shards", func(c *Config) { c.Index.Shards = 0 }},
		{"operator without target", func(c *Config) {
			c.Retrieval.Operators = map[string]OperatorConfig{"x": {}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
