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


// Package ai provides abstractions for the AI services used in healthrag.
//
// This package defines interfaces for text embeddings and completions so the
// retrieval and fusion logic depends on abstractions rather than concrete
// backends. There are no package-level clients: every service object is
// constructed explicitly and passed by reference.
//
// # Design
//
// The package is built around three interfaces:
//
//   - Embedder: generates vector embeddings from text
//   - Completer: answers a prompt with one backend model
//   - Provider: aggregates both for convenient initialization
//
// # Implementation Packages
//
//   - ai/openai: production implementation over OpenAI-compatible APIs
//   - ai/mock: deterministic test doubles, no external services needed
//
// Public constructors in ai/openai return interface types to enforce
// abstraction; mock constructors return concrete types so tests can inject
// behavior and make assertions.
//
// # Usage
//
//	cfg := ai.DefaultConfig()
//	provider, err := openai.NewProvider(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vec, err := provider.Embedder().EmbedText(ctx, "metformin dosing")
//	resp, err := provider.Completer().Complete(ctx, "What is metformin?", "")
package ai
