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


// Package rank scores retrieval candidates with lexical and metadata
// features that complement embedding similarity.
//
// The relevance score blends five features: term overlap (tf-idf cosine
// once the ranker is trained on a corpus), content quality, freshness,
// medical domain specificity and raw query alignment. Every score comes
// with an explanation map reporting each feature and its weight. Combine
// folds the relevance score into the similarity score at a fixed 60/40
// ratio favoring the embedding signal.
package rank
