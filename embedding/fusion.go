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


package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/healthrag/ai"
	"github.com/poiesic/healthrag/core"
)

// Fusion combines several embedding providers into one weighted ensemble.
// Each provider is queried for every request; a single provider failure
// drops only that provider's contribution, with its weight redistributed
// over the survivors. Only total provider exhaustion is an error.
//
// Fusion itself implements ai.Embedder, so it can stand in anywhere a
// single provider would.
type Fusion struct {
	providers []ai.Embedder
	weights   []float64
	pool      *ants.Pool
	logger    *slog.Logger
}

var _ ai.Embedder = (*Fusion)(nil)

// Option configures a Fusion.
type Option func(*Fusion) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fusion) error {
		if logger == nil {
			logger = slog.Default()
		}
		f.logger = logger
		return nil
	}
}

// WithPoolSize sets the worker pool size for batch embedding.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(f *Fusion) error {
		if size < 1 {
			size = 1
		}
		if f.pool != nil {
			f.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		f.pool = pool
		return nil
	}
}

// NewFusion creates a weighted embedding ensemble. Weights must be
// non-negative and sum to 1; pass nil for equal weights. The number of
// weights must match the number of providers.
func NewFusion(providers []ai.Embedder, weights []float64, opts ...Option) (*Fusion, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("%w: at least one embedding provider required", core.ErrInvalidConfig)
	}

	if weights == nil {
		weights = make([]float64, len(providers))
		for i := range weights {
			weights[i] = 1.0 / float64(len(providers))
		}
	}
	if len(weights) != len(providers) {
		return nil, fmt.Errorf("%w: %d weights for %d providers",
			core.ErrInvalidConfig, len(weights), len(providers))
	}
	if err := core.ValidateWeights(weights); err != nil {
		return nil, err
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	f := &Fusion{
		providers: providers,
		weights:   weights,
		pool:      pool,
		logger:    slog.Default().With("component", "fusion-embedding"),
	}

	for _, opt := range opts {
		if err := opt(f); err != nil {
			f.Release()
			return nil, err
		}
	}

	return f, nil
}

// Release frees the worker pool. The Fusion must not be used afterwards.
func (f *Fusion) Release() {
	if f.pool != nil {
		f.pool.Release()
	}
}

// EmbedText embeds text through every provider and combines the surviving
// outputs into one unit vector. Empty input is rejected rather than
// embedded as a zero vector.
func (f *Fusion) EmbedText(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, core.ErrEmptyText
	}

	type outcome struct {
		vector []float32
		err    error
	}

	// Fan out to all providers; indexes keep the gather order-independent.
	// The fan-out is already bounded by len(providers), so it runs on plain
	// goroutines. The worker pool is reserved for the per-text level in
	// EmbedTexts: EmbedText runs inside pool workers there, and submitting
	// back into the same saturated pool would starve it.
	outcomes := make([]outcome, len(f.providers))
	var wg sync.WaitGroup
	for i, provider := range f.providers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vector, err := provider.EmbedText(ctx, text)
			outcomes[i] = outcome{vector: vector, err: err}
		}()
	}
	wg.Wait()

	// Collect survivors in provider order for deterministic combination.
	survivors := make([][]float32, 0, len(f.providers))
	survivorWeights := make([]float64, 0, len(f.providers))
	var lastErr error
	for i, out := range outcomes {
		if out.err != nil {
			f.logger.Warn("embedding provider failed, dropping its contribution",
				"provider", i, "err", out.err)
			lastErr = out.err
			continue
		}
		if len(out.vector) == 0 {
			f.logger.Warn("embedding provider returned empty vector, dropping", "provider", i)
			continue
		}
		survivors = append(survivors, out.vector)
		survivorWeights = append(survivorWeights, f.weights[i])
	}

	if len(survivors) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrAllProvidersFailed, lastErr)
		}
		return nil, core.ErrAllProvidersFailed
	}

	return combine(survivors, survivorWeights), nil
}

// EmbedTexts embeds a batch, fanning texts out over the worker pool.
// Results preserve input order. Unlike a single provider failing inside
// EmbedText, a failed text fails the whole batch: the caller cannot use a
// batch with holes in it.
func (f *Fusion) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, core.ErrEmptyText
	}

	vectors := make([][]float32, len(texts))
	errs := make([]error, len(texts))
	var wg sync.WaitGroup
	for i, text := range texts {
		wg.Add(1)
		submitErr := f.pool.Submit(func() {
			defer wg.Done()
			vectors[i], errs[i] = f.EmbedText(ctx, text)
		})
		if submitErr != nil {
			errs[i] = submitErr
			wg.Done()
		}
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
	}
	return vectors, nil
}

// combine truncates the vectors to the minimum surviving dimension, takes
// their weighted average with the weights renormalized over survivors, and
// L2-normalizes the result. Renormalization keeps a degraded ensemble from
// shrinking toward zero when a provider drops out.
func combine(vectors [][]float32, weights []float64) []float32 {
	minDim := len(vectors[0])
	for _, v := range vectors[1:] {
		if len(v) < minDim {
			minDim = len(v)
		}
	}

	var totalWeight float64
	for _, w := range weights {
		totalWeight += w
	}

	combined := make([]float32, minDim)
	for i, v := range vectors {
		w := weights[i]
		if totalWeight > 0 {
			w /= totalWeight
		} else {
			// All surviving weights are zero; fall back to equal shares.
			w = 1.0 / float64(len(vectors))
		}
		for j := 0; j < minDim; j++ {
			combined[j] += float32(w * float64(v[j]))
		}
	}

	return Normalize(combined)
}
