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


package expand

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/healthrag/core"
)

const (
	// DefaultMaxExpansions caps how many terms are appended to a query.
	DefaultMaxExpansions = 5

	// synonymsPerEntity caps synonyms contributed by one recognized entity.
	synonymsPerEntity = 2

	// termsPerDomain caps contextual terms contributed by one domain.
	termsPerDomain = 2
)

// Context carries optional user attributes that steer expansion.
type Context struct {
	AgeGroup string
}

// Expander augments medical queries with synonyms, intent-derived terms
// and age-specific vocabulary. Expansion never fails: queries with no
// recognizable content pass through unchanged.
type Expander struct {
	maxExpansions int
	logger        *slog.Logger
}

// Option configures an Expander.
type Option func(*Expander) error

// WithMaxExpansions overrides the expansion term cap.
func WithMaxExpansions(n int) Option {
	return func(e *Expander) error {
		if n <= 0 {
			return fmt.Errorf("%w: max expansions must be positive, got %d", core.ErrInvalidConfig, n)
		}
		e.maxExpansions = n
		return nil
	}
}

// WithLogger sets the logger used by the expander.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Expander) error {
		if logger == nil {
			return fmt.Errorf("%w: logger cannot be nil", core.ErrInvalidConfig)
		}
		e.logger = logger
		return nil
	}
}

// NewExpander creates a query expander.
func NewExpander(opts ...Option) (*Expander, error) {
	e := &Expander{
		maxExpansions: DefaultMaxExpansions,
		logger:        slog.Default().With("component", "query_expander"),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Expand augments the query with up to maxExpansions related terms.
// Blank queries and queries with no recognized entities or intent pass
// through with FinalQuery equal to the original.
func (e *Expander) Expand(query string, uctx *Context) core.Expansion {
	expansion := core.Expansion{
		OriginalQuery: query,
		FinalQuery:    query,
	}

	lower := strings.ToLower(strings.TrimSpace(query))
	if lower == "" {
		return expansion
	}

	var synonyms, contextual []string

	// Synonyms for recognized entities.
	for _, entity := range synonymEntities {
		if !strings.Contains(lower, entity) {
			continue
		}
		candidates := synonymTable[entity]
		if len(candidates) > synonymsPerEntity {
			candidates = candidates[:synonymsPerEntity]
		}
		synonyms = append(synonyms, candidates...)
	}

	// Contextual terms from the classified intent.
	intent := ClassifyIntent(lower)
	if terms, ok := intentTerms[intent]; ok {
		contextual = append(contextual, terms...)
	}

	// Domain vocabulary hinted at by the query wording.
	for _, rule := range domainRules {
		if !containsAny(lower, rule.keywords) {
			continue
		}
		terms := domainTerms[rule.domain]
		if len(terms) > termsPerDomain {
			terms = terms[:termsPerDomain]
		}
		contextual = append(contextual, terms...)
	}

	// Age-specific vocabulary from the user context.
	if uctx != nil && uctx.AgeGroup != "" {
		contextual = append(contextual, ageTerms[strings.ToLower(uctx.AgeGroup)]...)
	}

	terms := dedupe(append(append([]string{}, synonyms...), contextual...))
	if len(terms) > e.maxExpansions {
		terms = terms[:e.maxExpansions]
	}

	expansion.ExpandedTerms = terms
	expansion.MedicalSynonyms = capTerms(dedupe(synonyms), e.maxExpansions/2)
	expansion.ContextualTerms = capTerms(dedupe(contextual), e.maxExpansions/2)
	if len(terms) > 0 {
		expansion.FinalQuery = query + " " + strings.Join(terms, " ")
	}

	e.logger.Debug("query expanded",
		"intent", intent,
		"terms", len(terms))
	return expansion
}

// ClassifyIntent labels the query with one of the intent constants.
// Rules are checked in a fixed order; unmatched queries are IntentGeneral.
func ClassifyIntent(query string) string {
	lower := strings.ToLower(query)
	for _, rule := range intentRules {
		if containsAny(lower, rule.patterns) {
			return rule.intent
		}
	}
	return IntentGeneral
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// dedupe removes duplicates preserving first-seen order.
func dedupe(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		if seen[term] {
			continue
		}
		seen[term] = true
		out = append(out, term)
	}
	return out
}

func capTerms(terms []string, n int) []string {
	if len(terms) > n {
		return terms[:n]
	}
	return terms
}
