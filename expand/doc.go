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


// Package expand augments medical queries before retrieval.
//
// Expansion draws from three sources: a static synonym table keyed on
// recognized medical entities, contextual terms derived from the query's
// classified intent and domain vocabulary, and age-group terms from the
// optional user context. Results are deduplicated in first-seen order and
// capped, then appended to the original query. Expansion is best-effort
// and never returns an error: a query with nothing to expand passes
// through unchanged.
package expand
