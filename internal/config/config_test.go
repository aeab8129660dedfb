package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "http://127.0.0.1:7860", cfg.Engine.URL)
	assert.Equal(t, 2048, cfg.Engine.MaxOutputTokens)
	assert.Equal(t, 10*time.Minute, cfg.Engine.RequestTimeout)

	assert.True(t, cfg.Batching.Enabled)
	assert.Equal(t, 4, cfg.Batching.MinGroupSize)
	assert.Equal(t, 5.0, cfg.Batching.MaxRatio)
	assert.Equal(t, 3000, cfg.Batching.MaxCumulativeLength)
	assert.Equal(t, 0, cfg.Batching.MaxItems)
	assert.False(t, cfg.Batching.GroupByContext)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	content := `
engine:
  url: http://10.0.0.5:7860
  max_output_tokens: 1024
batching:
  max_items: 8
  group_by_context: true
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "http://10.0.0.5:7860", cfg.Engine.URL)
	assert.Equal(t, 1024, cfg.Engine.MaxOutputTokens)
	assert.Equal(t, 8, cfg.Batching.MaxItems)
	assert.True(t, cfg.Batching.GroupByContext)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// 未覆盖的字段保留默认值
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 5.0, cfg.Batching.MaxRatio)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFromFile("/nonexistent/engine.yaml")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TE_ENGINE_URL", "http://gpu-box:7860")
	t.Setenv("TE_BATCH_MAX_RATIO", "3.5")
	t.Setenv("TE_BATCH_ENABLED", "false")
	t.Setenv("TE_ENGINE_REQUEST_TIMEOUT", "5m")
	t.Setenv("TE_BATCH_MAX_ITEMS", "16")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "http://gpu-box:7860", cfg.Engine.URL)
	assert.Equal(t, 3.5, cfg.Batching.MaxRatio)
	assert.False(t, cfg.Batching.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Engine.RequestTimeout)
	assert.Equal(t, 16, cfg.Batching.MaxItems)
}

func TestEnvOverridesBeatYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  max_output_tokens: 512\n"), 0o644))

	t.Setenv("TE_ENGINE_MAX_OUTPUT_TOKENS", "4096")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 4096, cfg.Engine.MaxOutputTokens)
}

func TestEnvInvalidValue(t *testing.T) {
	t.Setenv("TE_BATCH_MAX_ITEMS", "not-a-number")

	_, err := NewLoader().Load()
	assert.Error(t, err)
}

func TestValidateRejectsContractViolations(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty address", func(c *Config) { c.Server.Address = "" }, "server.address"},
		{"empty engine url", func(c *Config) { c.Engine.URL = "" }, "engine.url"},
		{"zero output tokens", func(c *Config) { c.Engine.MaxOutputTokens = 0 }, "engine.max_output_tokens"},
		{"min group size zero", func(c *Config) { c.Batching.MinGroupSize = 0 }, "batching.min_group_size"},
		{"ratio below one", func(c *Config) { c.Batching.MaxRatio = 0.5 }, "batching.max_ratio"},
		{"negative cumulative", func(c *Config) { c.Batching.MaxCumulativeLength = -1 }, "batching.max_cumulative_length"},
		{"negative max items", func(c *Config) { c.Batching.MaxItems = -2 }, "batching.max_items"},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.field)
		})
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.URL = "http://example:7860"
	cfg.Batching.MaxItems = 4

	data, err := cfg.Serialize()
	require.NoError(t, err)

	parsed, err := ParseConfig(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, parsed)
}
