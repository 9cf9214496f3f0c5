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


// Package fusion combines concurrent completion-model responses into a
// single answer.
//
// Generate fans a prompt out to every registered model with independent
// per-call timeouts and gathers all outcomes before fusing. Fusion is
// selection rather than blending: weighted_average picks the response
// with the highest base-weight × confidence product, majority_vote picks
// the most confident response, and best_confidence picks the strict
// confidence maximum. Failed or timed-out calls carry zero confidence
// and are excluded; only total exhaustion surfaces as an error.
package fusion
