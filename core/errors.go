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
	"errors"
	"fmt"
)

// Hard failures. Only these propagate to callers; single-signal failures
// are logged and excluded instead (see the degradation policy in each
// component's docs).
var (
	// ErrInvalidConfig indicates construction-time configuration that cannot
	// be used (bad weights, thresholds, missing dependencies).
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyText indicates an embedding request for empty input.
	// Embedding never returns a zero vector for empty text.
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrAllProvidersFailed indicates every embedding provider in the
	// ensemble failed for a request.
	ErrAllProvidersFailed = errors.New("all embedding providers failed")

	// ErrAllModelsFailed indicates no completion backend produced a usable
	// response.
	ErrAllModelsFailed = errors.New("all models failed to generate responses")

	// ErrInvalidChunk indicates a DocumentChunk failed validation.
	ErrInvalidChunk = errors.New("invalid document chunk")
)

// DimensionError reports a vector whose length does not match the index
// dimension.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("dimension mismatch: index expects %d, got %d", e.Want, e.Got)
}

// LoadError reports a corrupted or incomplete persisted index. Artifact
// names which part of the persisted unit was missing or inconsistent
// ("manifest", "documents", "vectors").
type LoadError struct {
	Artifact string
	Err      error
}

func (e *LoadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("load failed: artifact %q missing or corrupt", e.Artifact)
	}
	return fmt.Sprintf("load failed: artifact %q: %v", e.Artifact, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
