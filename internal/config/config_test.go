package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Pipeline, cfg.Pipeline)
	assert.Equal(t, 5, cfg.Search.MaxResults)
	assert.Len(t, cfg.Pipeline.Perspectives, 7)
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
ai:
  provider: anthropic
  model: claude-sonnet-4-5
search:
  provider: wikipedia
  max_results: 8
pipeline:
  perspectives: [economic_impact, security_concerns]
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("AUTORESEARCH_AI_MODEL", "claude-opus-4-1")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.AI.Provider)
	assert.Equal(t, "claude-opus-4-1", cfg.AI.Model)
	assert.Equal(t, "sk-test", cfg.AI.AnthropicAPIKey)
	assert.Equal(t, "wikipedia", cfg.Search.Provider)
	assert.Equal(t, 8, cfg.Search.MaxResults)
	assert.Equal(t, []string{"economic_impact", "security_concerns"}, cfg.Pipeline.Perspectives)
	// untouched sections keep their defaults
	assert.Equal(t, 3, cfg.Pipeline.MaxChunksPerSource)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"unknown ai provider", func(c *Config) { c.AI.Provider = "hal9000" }, false},
		{"unknown search provider", func(c *Config) { c.Search.Provider = "altavista" }, false},
		{"zero max results", func(c *Config) { c.Search.MaxResults = 0 }, false},
		{"no perspectives", func(c *Config) { c.Pipeline.Perspectives = nil }, false},
		{"duplicate perspective", func(c *Config) {
			c.Pipeline.Perspectives = []string{"economic_impact", "economic_impact"}
		}, false},
		{"threshold too high", func(c *Config) { c.Similarity.Threshold = 1.5 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSettingsListsEveryManagedKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AI.OpenAIAPIKey = "sk-openai"

	s := cfg.Settings()
	assert.Equal(t, "openai", s["ai_provider"])
	assert.Equal(t, "sk-openai", s["openai_api_key"])
	v, ok := s["anthropic_api_key"]
	assert.True(t, ok, "unset keys are present so stale values get cleared")
	assert.Empty(t, v)
	assert.Contains(t, s, "ai_model")
	assert.Contains(t, s, "ai_base_url")
}
