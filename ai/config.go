// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ai

import (
	"errors"
	"strings"
	"time"
)

// Config holds configuration for AI service providers.
type Config struct {
	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string

	// CompletionHost is the base URL for the completion service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	CompletionHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "embeddinggemma", "text-embedding-3-small"
	EmbeddingModel string

	// CompletionModel is the model identifier to use for completions.
	// Example: "qwen2.5:3b", "gpt-4o-mini"
	CompletionModel string

	// CompletionTimeout bounds each completion call. A call that exceeds
	// its timeout is treated as failed; the overall answer never waits on
	// a straggler beyond this.
	// Default: 30s
	CompletionTimeout time.Duration

	// MaxTokens caps the completion length.
	// Default: 1024
	MaxTokens int

	// Temperature is the sampling temperature for completions.
	// Default: 0.2
	Temperature float64
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithCompletionHost sets the completion service host URL.
func WithCompletionHost(host string) ConfigOption {
	return func(c *Config) {
		c.CompletionHost = host
	}
}

// WithHost sets both embedding and completion hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.CompletionHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithCompletionModel sets the completion model identifier.
func WithCompletionModel(model string) ConfigOption {
	return func(c *Config) {
		c.CompletionModel = model
	}
}

// WithCompletionTimeout sets the per-call completion timeout.
func WithCompletionTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.CompletionTimeout = d
	}
}

// WithMaxTokens sets the completion token cap.
func WithMaxTokens(n int) ConfigOption {
	return func(c *Config) {
		c.MaxTokens = n
	}
}

// WithTemperature sets the completion sampling temperature.
func WithTemperature(t float64) ConfigOption {
	return func(c *Config) {
		c.Temperature = t
	}
}

// DefaultConfig returns a Config with sensible defaults for local
// OpenAI-compatible services. By default, both embedding and completion use
// the same host.
func DefaultConfig() *Config {
	defaultHost := "http://localhost:11434/v1"
	return &Config{
		EmbeddingHost:     defaultHost,
		CompletionHost:    defaultHost,
		EmbeddingModel:    "embeddinggemma",
		CompletionModel:   "qwen2.5:3b",
		CompletionTimeout: 30 * time.Second,
		MaxTokens:         1024,
		Temperature:       0.2,
	}
}

// NewConfig creates a Config with the default values and applies the
// provided options. This is the recommended way to create a Config with
// custom settings.
//
// Example:
//
//	cfg := NewConfig(
//	    WithHost("http://localhost:11434/v1"),
//	    WithEmbeddingModel("text-embedding-3-small"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form. It
// automatically adds the /v1 suffix to hosts if missing, which is required
// by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc).
func (c *Config) Normalize() {
	if c.EmbeddingHost != "" && !strings.HasSuffix(c.EmbeddingHost, "/v1") {
		c.EmbeddingHost = strings.TrimSuffix(c.EmbeddingHost, "/")
		c.EmbeddingHost = c.EmbeddingHost + "/v1"
	}
	if c.CompletionHost != "" && !strings.HasSuffix(c.CompletionHost, "/v1") {
		c.CompletionHost = strings.TrimSuffix(c.CompletionHost, "/")
		c.CompletionHost = c.CompletionHost + "/v1"
	}
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.CompletionHost == "" {
		return errors.New("ai config: CompletionHost is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.CompletionModel == "" {
		return errors.New("ai config: CompletionModel is required")
	}
	if c.CompletionTimeout <= 0 {
		return errors.New("ai config: CompletionTimeout must be positive")
	}
	if c.MaxTokens <= 0 {
		return errors.New("ai config: MaxTokens must be positive")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return errors.New("ai config: Temperature must be between 0 and 2")
	}
	return nil
}
