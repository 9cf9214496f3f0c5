package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/healthrag/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder implements ai.Embedder against an OpenAI-compatible
// embedding endpoint.
type Embedder struct {
	embedder embeddings.Embedder
	model    string
	logger   *slog.Logger
}

// newEmbedder returns the concrete type for use by Provider.
func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Local OpenAI-compatible services (Ollama, vLLM) accept any token.
	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken("none"),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	return &Embedder{
		embedder: embedder,
		model:    config.EmbeddingModel,
		logger:   slog.Default().With("component", "openai-embedder", "model", config.EmbeddingModel),
	}, nil
}

// NewEmbedder creates an embedder from the provided configuration.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// EmbedText embeds a single text.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts embeds a batch of texts in one request, preserving order.
// Document chunks are embedded this way at index time, so a partial
// response is treated as a failure rather than padded out.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	e.logger.Debug("embedding batch", "count", len(texts))

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("embedding request failed", "count", len(texts), "err", err)
		return nil, err
	}
	if len(vectors) != len(texts) {
		e.logger.Error("embedding count mismatch", "want", len(texts), "got", len(vectors))
		return nil, fmt.Errorf("embedding service returned %d vectors for %d texts",
			len(vectors), len(texts))
	}
	return vectors, nil
}
