package ai

import (
	"context"

	"github.com/poiesic/healthrag/core"
)

// Embedder generates vector embeddings from text for semantic similarity
// search. Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// The returned vector represents the semantic meaning of the text.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a
	// batch. The returned slice contains embeddings in the same order as the
	// input texts. Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Completer is the narrow completion collaborator: one backend model that
// answers a prompt. Implementations must be thread-safe for concurrent use.
type Completer interface {
	// Complete generates a completion for the prompt. The context string
	// carries retrieved passages and is prepended to the prompt; pass ""
	// for a bare completion. The returned response records the model name,
	// a confidence estimate and timing.
	Complete(ctx context.Context, prompt, contextText string) (*core.ModelResponse, error)

	// ModelName identifies the backend model, used for per-model fusion
	// weights and reporting.
	ModelName() string
}

// Provider aggregates AI services for convenient initialization and
// lifecycle management. A provider creates and manages Embedder and
// Completer instances, ensuring they share configuration appropriately.
type Provider interface {
	// Embedder returns the text embedding service.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// Completer returns the completion service.
	// The returned Completer is safe for concurrent use.
	Completer() Completer

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
