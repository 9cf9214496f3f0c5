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


package index

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/poiesic/healthrag/core"
	"github.com/poiesic/healthrag/embedding"
)

// Variant identifies the index structure in persisted manifests.
const Variant = "flat"

// DefaultDimension is the embedding dimension used when none is configured.
const DefaultDimension = 384

// Hit is one similarity match from the index.
type Hit struct {
	Chunk core.DocumentChunk
	Score float64
}

// Flat is an exact nearest-neighbor index over normalized vectors using
// inner-product similarity (equivalent to cosine similarity after
// normalization).
//
// Documents and vectors are kept as two aligned slices; insertion order is
// id order, and len(docs) == len(vectors) at all observable times. Mutation
// is serialized behind a write lock while searches run concurrently under
// read locks.
type Flat struct {
	mu           sync.RWMutex
	dim          int
	docs         []core.DocumentChunk
	vectors      [][]float32
	fingerprints map[core.Fingerprint]core.ID
	logger       *slog.Logger
}

// Option configures a Flat index.
type Option func(*Flat)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(f *Flat) {
		if logger == nil {
			logger = slog.Default()
		}
		f.logger = logger
	}
}

// NewFlat creates an empty flat index for vectors of the given dimension.
func NewFlat(dim int, opts ...Option) (*Flat, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", core.ErrInvalidConfig, dim)
	}
	f := &Flat{
		dim:          dim,
		fingerprints: make(map[core.Fingerprint]core.ID),
		logger:       slog.Default().With("component", "flat-index"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Restore builds an index from a persisted snapshot. The documents and
// vectors must be aligned and already normalized; ids must match positions.
func Restore(dim int, docs []core.DocumentChunk, vectors [][]float32, opts ...Option) (*Flat, error) {
	f, err := NewFlat(dim, opts...)
	if err != nil {
		return nil, err
	}
	if len(docs) != len(vectors) {
		return nil, &core.LoadError{
			Artifact: "vectors",
			Err:      fmt.Errorf("%d documents but %d vectors", len(docs), len(vectors)),
		}
	}
	for i := range docs {
		if docs[i].Id != core.ID(i) {
			return nil, &core.LoadError{
				Artifact: "documents",
				Err:      fmt.Errorf("document at position %d has id %d", i, docs[i].Id),
			}
		}
		if len(vectors[i]) != dim {
			return nil, &core.LoadError{
				Artifact: "vectors",
				Err:      fmt.Errorf("vector %d has dimension %d, manifest says %d", i, len(vectors[i]), dim),
			}
		}
		f.fingerprints[docs[i].Fingerprint()] = docs[i].Id
	}
	f.docs = docs
	f.vectors = vectors
	return f, nil
}

// Add appends chunks to the index, assigning sequential ids in input order.
// Chunks whose content fingerprint is already indexed are skipped, so
// concurrent callers carrying the same chunk cannot insert it twice; only
// the ids of newly added chunks are returned. Embeddings are normalized on
// the way in; the caller's chunks are not mutated. Supports repeated
// incremental calls.
func (f *Flat) Add(chunks []core.DocumentChunk) ([]core.ID, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	// Validate outside the lock; reject the whole batch before mutating
	// anything so the docs/vectors alignment invariant cannot break.
	for i := range chunks {
		if err := core.ValidateChunk(&chunks[i]); err != nil {
			return nil, err
		}
		if len(chunks[i].Embedding) != f.dim {
			return nil, &core.DimensionError{Want: f.dim, Got: len(chunks[i].Embedding)}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]core.ID, 0, len(chunks))
	for i := range chunks {
		chunk := chunks[i]
		fp := chunk.Fingerprint()
		// Checked under the write lock so check and insert are one step.
		if _, ok := f.fingerprints[fp]; ok {
			continue
		}

		chunk.Id = core.ID(len(f.docs))
		vector := embedding.Normalize(chunk.Embedding)
		chunk.Embedding = vector

		f.docs = append(f.docs, chunk)
		f.vectors = append(f.vectors, vector)
		f.fingerprints[fp] = chunk.Id
		ids = append(ids, chunk.Id)
	}

	f.logger.Debug("added chunks to index", "added", len(ids), "total", len(f.docs))
	return ids, nil
}

// Search returns up to k hits with similarity at or above threshold, in
// strictly non-increasing score order with ties broken by lower id.
// Searching an empty index returns an empty result, not an error.
func (f *Flat) Search(query []float32, k int, threshold float64) ([]Hit, error) {
	if len(query) != f.dim {
		return nil, &core.DimensionError{Want: f.dim, Got: len(query)}
	}
	if k <= 0 {
		return nil, nil
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	hits := make([]Hit, 0, k)
	for i, vector := range f.vectors {
		score := clip(float64(embedding.Dot(query, vector)))
		if score < threshold {
			continue
		}
		hits = append(hits, Hit{Chunk: f.docs[i], Score: score})
	}

	slices.SortFunc(hits, func(a, b Hit) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		// Equal scores: lower insertion-order id wins for determinism.
		if a.Chunk.Id < b.Chunk.Id {
			return -1
		}
		if a.Chunk.Id > b.Chunk.Id {
			return 1
		}
		return 0
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Size returns the number of indexed documents.
func (f *Flat) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.docs)
}

// Dimension returns the vector dimension the index accepts.
func (f *Flat) Dimension() int {
	return f.dim
}

// HasFingerprint reports whether a chunk with the given content fingerprint
// is already indexed.
func (f *Flat) HasFingerprint(fp core.Fingerprint) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.fingerprints[fp]
	return ok
}

// Snapshot returns copies of the document table and vector matrix, aligned
// by position, for persistence. Vectors are the post-normalization values
// the index searches against.
func (f *Flat) Snapshot() ([]core.DocumentChunk, [][]float32) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	docs := make([]core.DocumentChunk, len(f.docs))
	copy(docs, f.docs)
	vectors := make([][]float32, len(f.vectors))
	for i, v := range f.vectors {
		vectors[i] = slices.Clone(v)
	}
	return docs, vectors
}

// Stats reports index shape for diagnostics.
func (f *Flat) Stats() map[string]any {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return map[string]any{
		"total_documents": len(f.docs),
		"dimension":       f.dim,
		"variant":         Variant,
	}
}

// clip bounds a similarity score to [0,1]. Inner products of unit vectors
// land in [-1,1]; negative similarity carries no ranking information here.
func clip(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
