package ai

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	assert.Equal(t, cfg.EmbeddingHost, cfg.CompletionHost)
	assert.Equal(t, 30*time.Second, cfg.CompletionTimeout)
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig(
		WithHost("http://ai.internal:9100"),
		WithEmbeddingModel("text-embedding-3-small"),
		WithCompletionModel("gpt-4o-mini"),
		WithCompletionTimeout(5*time.Second),
		WithMaxTokens(256),
		WithTemperature(0.0),
	)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "http://ai.internal:9100/v1", cfg.EmbeddingHost)
	assert.Equal(t, "http://ai.internal:9100/v1", cfg.CompletionHost)
	assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
	assert.Equal(t, "gpt-4o-mini", cfg.CompletionModel)
	assert.Equal(t, 256, cfg.MaxTokens)
}

func TestConfigNormalize(t *testing.T) {
	t.Run("adds v1 suffix", func(t *testing.T) {
		cfg := NewConfig(WithHost("http://localhost:11434"))
		cfg.Normalize()
		assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	})

	t.Run("strips trailing slash first", func(t *testing.T) {
		cfg := NewConfig(WithHost("http://localhost:11434/"))
		cfg.Normalize()
		assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	})

	t.Run("idempotent", func(t *testing.T) {
		cfg := NewConfig(WithHost("http://localhost:11434/v1"))
		cfg.Normalize()
		cfg.Normalize()
		assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	})
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty embedding model", func(c *Config) { c.EmbeddingModel = "" }},
		{"empty completion model", func(c *Config) { c.CompletionModel = "" }},
		{"zero timeout", func(c *Config) { c.CompletionTimeout = 0 }},
		{"zero max tokens", func(c *Config) { c.MaxTokens = 0 }},
		{"temperature out of range", func(c *Config) { c.Temperature = 3.5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
