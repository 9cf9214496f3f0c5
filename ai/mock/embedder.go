package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
)

// DefaultDimension is the embedding dimension used by the mock embedder,
// matching the production default.
const DefaultDimension = 384

// Embedder is a test double for ai.Embedder.
// It allows custom behavior injection via function fields.
type Embedder struct {
	// EmbedTextFunc is called by EmbedText if set.
	// If nil, uses default deterministic behavior.
	EmbedTextFunc func(ctx context.Context, text string) ([]float32, error)

	// EmbedTextsFunc is called by EmbedTexts if set.
	// If nil, uses default deterministic behavior.
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension overrides the default vector dimension when > 0.
	Dimension int

	mu        sync.Mutex
	callCount int
}

// NewEmbedder creates a mock embedder with default deterministic behavior.
// Note: Returns concrete type to allow test assertions via function fields
// and CallCount().
func NewEmbedder() *Embedder {
	return &Embedder{}
}

// EmbedText generates a deterministic embedding for the text. The default
// behavior is a normalized bag-of-words vector: each lowercased token
// contributes a hash-seeded direction, so texts sharing vocabulary land
// close together in the vector space. Same text always produces the same
// vector.
func (m *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()

	if m.EmbedTextFunc != nil {
		return m.EmbedTextFunc(ctx, text)
	}

	return DeterministicVector(text, m.dim()), nil
}

// EmbedTexts generates deterministic embeddings for multiple texts.
func (m *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()

	if m.EmbedTextsFunc != nil {
		return m.EmbedTextsFunc(ctx, texts)
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = DeterministicVector(text, m.dim())
	}
	return vectors, nil
}

// CallCount returns the number of times any method was called.
func (m *Embedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Reset clears the call count and injected behavior.
func (m *Embedder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.EmbedTextFunc = nil
	m.EmbedTextsFunc = nil
}

func (m *Embedder) dim() int {
	if m.Dimension > 0 {
		return m.Dimension
	}
	return DefaultDimension
}

// DeterministicVector creates a normalized bag-of-words embedding from text.
// Each token adds a direction seeded from its FNV hash via an LCG, so the
// same text always produces the same unit vector and overlapping vocabulary
// produces nearby vectors.
func DeterministicVector(text string, dim int) []float32 {
	vector := make([]float32, dim)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		token = strings.Trim(token, ".,!?;:'\"-()[]{}")
		if token == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(token))
		seed := h.Sum32()
		for i := 0; i < dim; i++ {
			seed = seed*1664525 + 1013904223 // LCG constants
			vector[i] += float32(seed%1000)/500.0 - 1.0
		}
	}

	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		// Empty input still yields a valid unit vector for tests that
		// bypass input validation.
		vector[0] = 1
		return vector
	}
	norm = math.Sqrt(norm)
	for i := range vector {
		vector[i] = float32(float64(vector[i]) / norm)
	}
	return vector
}
