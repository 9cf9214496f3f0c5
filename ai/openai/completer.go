package openai

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/healthrag/ai"
	"github.com/poiesic/healthrag/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Completer implements ai.Completer using OpenAI-compatible chat APIs.
type Completer struct {
	client      llms.Model
	model       string
	maxTokens   int
	temperature float64
	logger      *slog.Logger
}

// newCompleter is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newCompleter(config *ai.Config) (*Completer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Use "none" as token for local OpenAI-compatible services that don't
	// require authentication
	client, err := openai.New(
		openai.WithBaseURL(config.CompletionHost),
		openai.WithToken("none"),
		openai.WithModel(config.CompletionModel),
	)
	if err != nil {
		return nil, err
	}

	return &Completer{
		client:      client,
		model:       config.CompletionModel,
		maxTokens:   config.MaxTokens,
		temperature: config.Temperature,
		logger:      slog.Default().With("component", "openai-completer"),
	}, nil
}

// NewCompleter creates a new completer using the provided configuration.
//
// Returns ai.Completer interface to enforce abstraction.
func NewCompleter(config *ai.Config) (ai.Completer, error) {
	return newCompleter(config)
}

// ModelName identifies the backend model.
func (c *Completer) ModelName() string {
	return c.model
}

// Complete generates a completion for the prompt. Retrieved context is
// prepended as a system message when present. The confidence estimate is a
// length heuristic capped at 0.9; a structurally empty response scores 0.
func (c *Completer) Complete(ctx context.Context, prompt, contextText string) (*core.ModelResponse, error) {
	start := time.Now()

	content := make([]llms.MessageContent, 0, 2)
	if contextText != "" {
		content = append(content, llms.MessageContent{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(contextText)},
		})
	}
	content = append(content, llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(prompt)},
	})

	response, err := c.client.GenerateContent(ctx, content,
		llms.WithTemperature(c.temperature),
		llms.WithMaxTokens(c.maxTokens),
	)
	if err != nil {
		c.logger.Error("completion failed", "model", c.model, "err", err)
		return nil, err
	}
	if len(response.Choices) == 0 {
		c.logger.Warn("completion returned no choices", "model", c.model)
		return &core.ModelResponse{
			ModelName:      c.model,
			ProcessingTime: time.Since(start),
		}, nil
	}

	text := response.Choices[0].Content
	return &core.ModelResponse{
		Content:        text,
		Confidence:     confidenceEstimate(text),
		ModelName:      c.model,
		ProcessingTime: time.Since(start),
		TokenCount:     len(strings.Fields(text)),
	}, nil
}

// confidenceEstimate maps response length onto a confidence score. Longer
// answers score higher up to a 0.9 ceiling; empty answers score 0.
func confidenceEstimate(text string) float64 {
	if text == "" {
		return 0
	}
	score := float64(len(text))/800.0 + 0.4
	if score > 0.9 {
		score = 0.9
	}
	return score
}
