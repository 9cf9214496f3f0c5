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


// Package healthrag is a retrieval and fusion engine for medical
// question answering. It indexes document chunks under a fusion
// embedding ensemble, retrieves and re-ranks them for a query, and
// answers questions by fanning the query out to several completion
// models and fusing their responses.
package healthrag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/poiesic/healthrag/ai"
	"github.com/poiesic/healthrag/core"
	"github.com/poiesic/healthrag/expand"
	"github.com/poiesic/healthrag/fusion"
	"github.com/poiesic/healthrag/index"
	"github.com/poiesic/healthrag/rank"
	"github.com/poiesic/healthrag/search"
	"github.com/poiesic/healthrag/storage"
	badgerstore "github.com/poiesic/healthrag/storage/badger"
)

// indexRef is a swappable handle to the current index so the search
// engine always sees the latest loaded snapshot. Readers search against
// a stable index while Load swaps in a new one.
type indexRef struct {
	mu   sync.RWMutex
	flat *index.Flat
}

var _ search.Retriever = (*indexRef)(nil)

func (r *indexRef) Search(query []float32, k int, threshold float64) ([]index.Hit, error) {
	r.mu.RLock()
	flat := r.flat
	r.mu.RUnlock()
	return flat.Search(query, k, threshold)
}

func (r *indexRef) get() *index.Flat {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.flat
}

func (r *indexRef) swap(flat *index.Flat) {
	r.mu.Lock()
	r.flat = flat
	r.mu.Unlock()
}

// Service wires the retrieval and fusion components behind one facade.
// All dependencies are injected at construction; there is no global
// state.
type Service struct {
	embedder ai.Embedder
	ref      *indexRef
	expander *expand.Expander
	ranker   *rank.Ranker
	engine   *search.Engine
	fuser    *fusion.Fuser
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*serviceConfig) error

type serviceConfig struct {
	dimension     int
	threshold     float64
	strategy      fusion.Strategy
	timeout       time.Duration
	baseWeights   map[string]float64
	maxExpansions int
	logger        *slog.Logger
}

// WithDimension sets the embedding dimension of the index.
func WithDimension(dim int) Option {
	return func(c *serviceConfig) error {
		if dim <= 0 {
			return fmt.Errorf("%w: dimension must be positive, got %d", core.ErrInvalidConfig, dim)
		}
		c.dimension = dim
		return nil
	}
}

// WithThreshold sets the retrieval similarity threshold.
func WithThreshold(threshold float64) Option {
	return func(c *serviceConfig) error {
		c.threshold = threshold
		return nil
	}
}

// WithFusionStrategy sets the response fusion strategy.
func WithFusionStrategy(strategy fusion.Strategy) Option {
	return func(c *serviceConfig) error {
		c.strategy = strategy
		return nil
	}
}

// WithModelTimeout bounds each per-model completion call.
func WithModelTimeout(d time.Duration) Option {
	return func(c *serviceConfig) error {
		c.timeout = d
		return nil
	}
}

// WithBaseWeight sets a model's base weight for weighted_average fusion.
func WithBaseWeight(modelName string, weight float64) Option {
	return func(c *serviceConfig) error {
		c.baseWeights[modelName] = weight
		return nil
	}
}

// WithMaxExpansions caps query expansion terms.
func WithMaxExpansions(n int) Option {
	return func(c *serviceConfig) error {
		c.maxExpansions = n
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *serviceConfig) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// New creates a Service over an embedder and a set of completion models.
// The completer list may be empty if Answer is never used.
func New(embedder ai.Embedder, completers []ai.Completer, opts ...Option) (*Service, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", core.ErrInvalidConfig)
	}

	cfg := &serviceConfig{
		dimension:     index.DefaultDimension,
		threshold:     search.DefaultThreshold,
		strategy:      fusion.StrategyWeightedAverage,
		timeout:       fusion.DefaultTimeout,
		baseWeights:   make(map[string]float64),
		maxExpansions: expand.DefaultMaxExpansions,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	flat, err := index.NewFlat(cfg.dimension)
	if err != nil {
		return nil, err
	}
	ref := &indexRef{flat: flat}

	expander, err := expand.NewExpander(
		expand.WithMaxExpansions(cfg.maxExpansions),
		expand.WithLogger(cfg.logger),
	)
	if err != nil {
		return nil, err
	}

	ranker, err := rank.NewRanker(rank.WithLogger(cfg.logger))
	if err != nil {
		return nil, err
	}

	engine, err := search.NewEngine(embedder, ref,
		search.WithExpander(expander),
		search.WithScorer(ranker),
		search.WithThreshold(cfg.threshold),
		search.WithLogger(cfg.logger),
	)
	if err != nil {
		return nil, err
	}

	fuserOpts := []fusion.Option{
		fusion.WithStrategy(cfg.strategy),
		fusion.WithTimeout(cfg.timeout),
		fusion.WithLogger(cfg.logger),
	}
	for model, weight := range cfg.baseWeights {
		fuserOpts = append(fuserOpts, fusion.WithBaseWeight(model, weight))
	}
	fuser, err := fusion.NewFuser(completers, fuserOpts...)
	if err != nil {
		return nil, err
	}

	return &Service{
		embedder: embedder,
		ref:      ref,
		expander: expander,
		ranker:   ranker,
		engine:   engine,
		fuser:    fuser,
		logger:   cfg.logger.With("component", "healthrag"),
	}, nil
}

// Close releases worker pools and other resources.
func (s *Service) Close() {
	s.fuser.Release()
	if r, ok := s.embedder.(interface{ Release() }); ok {
		r.Release()
	}
}

// Index embeds and adds document chunks, skipping chunks whose content
// fingerprint is already indexed. It returns the ids assigned to newly
// added chunks and retrains the ranker on the grown corpus.
func (s *Service) Index(ctx context.Context, chunks []core.DocumentChunk) ([]core.ID, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	flat := s.ref.get()

	// Pre-filter known fingerprints to skip their embedding cost. The
	// authoritative dedup happens inside Add under the index write lock,
	// so a chunk indexed concurrently between here and Add is still
	// inserted only once.
	fresh := make([]core.DocumentChunk, 0, len(chunks))
	seen := make(map[core.Fingerprint]bool, len(chunks))
	for _, chunk := range chunks {
		if err := core.ValidateChunk(&chunk); err != nil {
			return nil, err
		}
		fp := chunk.Fingerprint()
		if seen[fp] || flat.HasFingerprint(fp) {
			s.logger.Debug("skipping already indexed chunk", "source", chunk.Source, "chunk_index", chunk.ChunkIndex)
			continue
		}
		seen[fp] = true
		fresh = append(fresh, chunk)
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	// Embed whatever arrived without a vector.
	missing := make([]int, 0, len(fresh))
	texts := make([]string, 0, len(fresh))
	for i, chunk := range fresh {
		if len(chunk.Embedding) == 0 {
			missing = append(missing, i)
			texts = append(texts, chunk.Text)
		}
	}
	if len(texts) > 0 {
		vectors, err := s.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return nil, err
		}
		for j, i := range missing {
			fresh[i].Embedding = vectors[j]
		}
	}

	ids, err := flat.Add(fresh)
	if err != nil {
		return nil, err
	}

	docs, _ := flat.Snapshot()
	s.ranker.Train(docs)

	s.logger.Info("indexed chunks", "added", len(ids), "total", flat.Size())
	return ids, nil
}

// Search retrieves up to k ranked results for the query.
func (s *Service) Search(ctx context.Context, query string, k int) ([]core.SearchResult, error) {
	return s.engine.Search(ctx, query, k)
}

// Expand returns the query expansion without running a search.
func (s *Service) Expand(query string, uctx *expand.Context) core.Expansion {
	return s.expander.Expand(query, uctx)
}

// Fuse combines already-gathered model responses with the strategy.
func (s *Service) Fuse(responses []core.ModelResponse, strategy fusion.Strategy) (*core.FusionResult, error) {
	return s.fuser.Fuse(responses, strategy)
}

// Answer retrieves context for the query and fans it out to every
// completion model, fusing their responses into one answer. The ranked
// retrieval results are returned alongside the fused response.
func (s *Service) Answer(ctx context.Context, query string, k int) (*core.FusionResult, []core.SearchResult, error) {
	results, err := s.engine.Search(ctx, query, k)
	if err != nil {
		return nil, nil, err
	}

	contextText := buildContext(results)
	fused, err := s.fuser.Generate(ctx, query, contextText)
	if err != nil {
		return nil, results, err
	}
	return fused, results, nil
}

// buildContext assembles retrieved passages into the completion context.
func buildContext(results []core.SearchResult) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Relevant medical context:\n")
	for i, result := range results {
		fmt.Fprintf(&b, "%d. %s\n", i+1, result.Content)
	}
	return b.String()
}

// Save persists the current index as a snapshot at the given directory.
func (s *Service) Save(ctx context.Context, path string) error {
	store, err := badgerstore.OpenStore(path)
	if err != nil {
		return err
	}
	defer store.Close()
	return s.SaveTo(ctx, store)
}

// SaveTo persists the current index into an open store.
func (s *Service) SaveTo(ctx context.Context, store storage.IndexStore) error {
	flat := s.ref.get()
	docs, vectors := flat.Snapshot()

	snapshot := &storage.Snapshot{
		Manifest: storage.Manifest{
			Dimension: flat.Dimension(),
			Count:     len(docs),
			Variant:   index.Variant,
			CreatedAt: time.Now().UnixMicro(),
		},
		Documents: docs,
		Vectors:   vectors,
	}
	return store.Save(ctx, snapshot)
}

// Load replaces the current index with a previously saved snapshot.
func (s *Service) Load(ctx context.Context, path string) error {
	store, err := badgerstore.OpenStore(path)
	if err != nil {
		return err
	}
	defer store.Close()
	return s.LoadFrom(ctx, store)
}

// LoadFrom replaces the current index with the snapshot in an open
// store. Searches in flight keep the previous index until the swap.
func (s *Service) LoadFrom(ctx context.Context, store storage.IndexStore) error {
	snapshot, err := store.Load(ctx)
	if err != nil {
		return err
	}
	if snapshot.Manifest.Variant != index.Variant {
		return &core.LoadError{
			Artifact: "manifest",
			Err:      fmt.Errorf("unsupported index variant %q", snapshot.Manifest.Variant),
		}
	}

	flat, err := index.Restore(snapshot.Manifest.Dimension, snapshot.Documents, snapshot.Vectors)
	if err != nil {
		return err
	}

	s.ref.swap(flat)
	s.ranker.Train(snapshot.Documents)

	s.logger.Info("index loaded", "documents", flat.Size(), "dimension", flat.Dimension())
	return nil
}

// Stats reports index and component state for operational visibility.
func (s *Service) Stats() map[string]any {
	flat := s.ref.get()
	stats := flat.Stats()
	stats["ranker_trained"] = s.ranker.Trained()
	return stats
}
