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


// Package embedding provides the multi-provider embedding ensemble and the
// vector math shared by the retrieval engine.
//
// Fusion queries every configured provider for each request and combines
// the surviving outputs into a single unit vector by weighted average. The
// degradation contract: a single provider failure is logged and its weight
// redistributed over the survivors; only the loss of every provider
// surfaces as core.ErrAllProvidersFailed. Every vector the package produces
// has unit L2 norm, which makes inner product equivalent to cosine
// similarity downstream.
package embedding
