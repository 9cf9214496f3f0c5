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


package mock

import "github.com/poiesic/healthrag/ai"

// Provider is a test double aggregating mock AI services.
type Provider struct {
	embedder  *Embedder
	completer *Completer
}

var _ ai.Provider = (*Provider)(nil)

// NewProvider creates a provider backed by default mock services.
func NewProvider() *Provider {
	return &Provider{
		embedder:  NewEmbedder(),
		completer: NewCompleter(),
	}
}

// Embedder returns the mock embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Completer returns the mock completion service.
func (p *Provider) Completer() ai.Completer {
	return p.completer
}

// Close is a no-op.
func (p *Provider) Close() error {
	return nil
}

// GetMockEmbedder returns the concrete mock for behavior injection and
// assertions.
func (p *Provider) GetMockEmbedder() *Embedder {
	return p.embedder
}

// GetMockCompleter returns the concrete mock for behavior injection and
// assertions.
func (p *Provider) GetMockCompleter() *Completer {
	return p.completer
}
