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


// Package search orchestrates the retrieval pipeline.
//
// A query flows through up to four stages: expansion (optional),
// embedding plus vector retrieval with over-fetch, re-ranking
// (optional), and final ordering by combined score. Disabled stages pass
// their input forward unchanged. Retrieval that finds nothing above the
// threshold returns an empty result rather than an error, and a failure
// scoring a single candidate drops only that candidate.
package search
