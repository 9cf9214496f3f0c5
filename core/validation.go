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


package core

import (
	"fmt"
	"math"
)

// ValidateChunk validates a DocumentChunk before it enters the index.
//
// Validation rules:
//   - Text must not be empty
//   - ChunkIndex must not be negative
//
// NOT validated (populated later in the pipeline):
//   - Embedding (set by the embedding step)
//   - Id (assigned by the index on add)
func ValidateChunk(chunk *DocumentChunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}
	if chunk.Text == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyText)
	}
	if chunk.ChunkIndex < 0 {
		return fmt.Errorf("%w: negative chunk index %d", ErrInvalidChunk, chunk.ChunkIndex)
	}
	return nil
}

// ValidateWeights checks that an ensemble weight vector is usable:
// non-negative entries summing to 1 within tolerance.
func ValidateWeights(weights []float64) error {
	if len(weights) == 0 {
		return fmt.Errorf("%w: no weights provided", ErrInvalidConfig)
	}
	var sum float64
	for i, w := range weights {
		if w < 0 {
			return fmt.Errorf("%w: weight %d is negative (%f)", ErrInvalidConfig, i, w)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("%w: weights sum to %f, must sum to 1.0", ErrInvalidConfig, sum)
	}
	return nil
}
