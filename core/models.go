package core

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is the insertion-order identifier assigned to a chunk by the vector
// index. IDs are sequential starting at 0 and never reused.
type ID uint64

// Fingerprint is a content-derived identity for a chunk, independent of
// its position in the index.
type Fingerprint uint64

// FingerprintFromContent derives a deterministic fingerprint from text using
// BLAKE2b hashing. Identical content always produces the same fingerprint.
func FingerprintFromContent(text string) Fingerprint {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return Fingerprint(binary.LittleEndian.Uint64(sum))
}

// DocumentChunk is a passage of source text with its embedding. Chunks are
// produced by an upstream ingestion step and become immutable once added to
// the index; changing a chunk means re-adding it, not mutating in place.
type DocumentChunk struct {
	Id         ID
	Text       string
	Source     string
	ChunkIndex int
	Metadata   map[string]string
	Embedding  []float32
}

// Fingerprint returns the content fingerprint for the chunk. It covers the
// source, position and text so the same passage appearing in two documents
// stays distinct.
func (c *DocumentChunk) Fingerprint() Fingerprint {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(c.ChunkIndex))
	return FingerprintFromContent(c.Source + "\x00" + string(buf) + "\x00" + c.Text)
}

// Expansion is the result of query expansion. It is built per call and
// never persisted.
type Expansion struct {
	OriginalQuery   string
	ExpandedTerms   []string
	MedicalSynonyms []string
	ContextualTerms []string
	FinalQuery      string
}

// SearchResult is a ranked retrieval result with its scoring breakdown.
// All scores are in [0,1].
type SearchResult struct {
	DocumentId       ID
	Content          string
	SimilarityScore  float64
	MLRelevanceScore float64
	CombinedScore    float64
	Metadata         map[string]string
	Explanation      map[string]any
	SemanticMatches  []string
}

// ModelResponse is a single completion from one backend model.
type ModelResponse struct {
	Content        string
	Confidence     float64
	ModelName      string
	ProcessingTime time.Duration
	TokenCount     int
}

// FusionResult is the outcome of combining several model responses into a
// single answer.
type FusionResult struct {
	FinalResponse   string
	ConfidenceScore float64
	ModelResponses  []ModelResponse
	Strategy        string
	Details         map[string]any
}
