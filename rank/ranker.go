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


package rank

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/poiesic/healthrag/core"
)

// Feature weights for the relevance score. They sum to 1 so the score
// stays in [0,1].
const (
	weightTermOverlap    = 0.4
	weightContentQuality = 0.2
	weightFreshness      = 0.1
	weightSpecificity    = 0.2
	weightAlignment      = 0.1
)

// Combined-score ensemble ratio: embedding similarity remains the
// primary signal.
const (
	similarityShare = 0.6
	relevanceShare  = 0.4
)

const (
	// contentQualityScale is the text length treated as full quality.
	contentQualityScale = 1000

	// freshnessWindow is the age at which a dated document decays to
	// the freshness floor.
	freshnessWindow = 365 * 24 * time.Hour

	freshnessFloor   = 0.1
	freshnessDefault = 0.5

	// specificityScale is the keyword-hit count treated as fully
	// domain-specific.
	specificityScale = 10
)

// medicalKeywords drives the domain-specificity feature.
var medicalKeywords = []string{
	"diagnosis", "treatment", "symptoms", "medication", "therapy",
	"disease", "condition", "patient", "clinical", "medical",
}

// Ranker scores query/document pairs with a set of lexical and metadata
// features. An optionally trained document-frequency model sharpens the
// term-overlap feature; untrained rankers fall back to plain overlap.
type Ranker struct {
	mu       sync.RWMutex
	docFreq  map[string]int
	docCount int
	trained  bool

	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Ranker.
type Option func(*Ranker) error

// WithLogger sets the logger used by the ranker.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Ranker) error {
		if logger == nil {
			return fmt.Errorf("%w: logger cannot be nil", core.ErrInvalidConfig)
		}
		r.logger = logger
		return nil
	}
}

// WithClock overrides the time source used for freshness scoring.
func WithClock(now func() time.Time) Option {
	return func(r *Ranker) error {
		if now == nil {
			return fmt.Errorf("%w: clock cannot be nil", core.ErrInvalidConfig)
		}
		r.now = now
		return nil
	}
}

// NewRanker creates an untrained ranker.
func NewRanker(opts ...Option) (*Ranker, error) {
	r := &Ranker{
		now:    time.Now,
		logger: slog.Default().With("component", "ml_ranker"),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Train builds the document-frequency model from a corpus. Corpora of
// fewer than two documents are skipped without failing, leaving any
// previous model in place.
func (r *Ranker) Train(docs []core.DocumentChunk) {
	if len(docs) < 2 {
		r.logger.Warn("insufficient documents for training", "count", len(docs))
		return
	}

	docFreq := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]bool)
		for _, term := range tokenizeAndFilter(doc.Text) {
			if seen[term] {
				continue
			}
			seen[term] = true
			docFreq[term]++
		}
	}

	r.mu.Lock()
	r.docFreq = docFreq
	r.docCount = len(docs)
	r.trained = true
	r.mu.Unlock()

	r.logger.Info("trained ranking model",
		"documents", len(docs),
		"vocabulary", len(docFreq))
}

// Trained reports whether a document-frequency model is loaded.
func (r *Ranker) Trained() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.trained
}

// Score computes the relevance score for a query/document pair along
// with an explanation reporting every feature and its weight. The error
// return satisfies scorer interfaces whose implementations can fail;
// this lexical ranker never does.
func (r *Ranker) Score(query string, doc core.DocumentChunk) (float64, map[string]any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	termOverlap, method := r.termOverlap(query, doc.Text)
	quality := contentQuality(doc.Text)
	fresh := r.freshness(doc.Metadata)
	specificity := domainSpecificity(doc.Text)
	alignment := queryAlignment(query, doc.Text)

	score := termOverlap*weightTermOverlap +
		quality*weightContentQuality +
		fresh*weightFreshness +
		specificity*weightSpecificity +
		alignment*weightAlignment
	score = clamp01(score)

	explanation := map[string]any{
		"method":              method,
		"term_overlap":        termOverlap,
		"content_quality":     quality,
		"freshness":           fresh,
		"medical_specificity": specificity,
		"query_alignment":     alignment,
		"weights": map[string]float64{
			"term_overlap":        weightTermOverlap,
			"content_quality":     weightContentQuality,
			"freshness":           weightFreshness,
			"medical_specificity": weightSpecificity,
			"query_alignment":     weightAlignment,
		},
		"ml_score": score,
	}
	return score, explanation, nil
}

// Combine folds the relevance score into the embedding similarity with
// the fixed ensemble ratio.
func Combine(similarity, relevance float64) float64 {
	return clamp01(similarity*similarityShare + relevance*relevanceShare)
}

// termOverlap is tf-idf cosine similarity when trained, plain term
// overlap otherwise. Caller holds at least a read lock.
func (r *Ranker) termOverlap(query, content string) (float64, string) {
	queryTerms := tokenizeAndFilter(query)
	docTerms := tokenizeAndFilter(content)
	if len(queryTerms) == 0 || len(docTerms) == 0 {
		return 0, "term_overlap"
	}

	if !r.trained {
		docSet := make(map[string]bool, len(docTerms))
		for _, term := range docTerms {
			docSet[term] = true
		}
		hits := 0
		seen := make(map[string]bool, len(queryTerms))
		for _, term := range queryTerms {
			if seen[term] {
				continue
			}
			seen[term] = true
			if docSet[term] {
				hits++
			}
		}
		return float64(hits) / float64(len(seen)), "term_overlap"
	}

	return r.tfidfCosine(termCounts(queryTerms), termCounts(docTerms)), "tfidf_cosine"
}

func (r *Ranker) tfidfCosine(queryTF, docTF map[string]int) float64 {
	idf := func(term string) float64 {
		return math.Log(1 + float64(r.docCount)/float64(1+r.docFreq[term]))
	}

	var dot, queryNorm, docNorm float64
	for term, count := range queryTF {
		w := float64(count) * idf(term)
		queryNorm += w * w
		if docCount, ok := docTF[term]; ok {
			dot += w * float64(docCount) * idf(term)
		}
	}
	for term, count := range docTF {
		w := float64(count) * idf(term)
		docNorm += w * w
	}

	if queryNorm == 0 || docNorm == 0 {
		return 0
	}
	return dot / math.Sqrt(queryNorm*docNorm)
}

func contentQuality(content string) float64 {
	return math.Min(1, float64(len(content))/contentQualityScale)
}

// freshness decays over a year from the document's "date" metadata.
// Missing or unparseable dates score the neutral default.
func (r *Ranker) freshness(metadata map[string]string) float64 {
	raw, ok := metadata["date"]
	if !ok || raw == "" {
		return freshnessDefault
	}

	date, err := parseDate(raw)
	if err != nil {
		return freshnessDefault
	}

	age := r.now().Sub(date)
	if age < 0 {
		age = 0
	}
	return math.Max(freshnessFloor, 1-age.Hours()/freshnessWindow.Hours())
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

func domainSpecificity(content string) float64 {
	lower := strings.ToLower(content)
	hits := 0
	for _, keyword := range medicalKeywords {
		if strings.Contains(lower, keyword) {
			hits++
		}
	}
	return math.Min(1, float64(hits)/specificityScale)
}

// queryAlignment is the share of raw query words found in the content.
func queryAlignment(query, content string) float64 {
	queryWords := strings.Fields(strings.ToLower(query))
	if len(queryWords) == 0 {
		return 0
	}

	contentWords := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(content)) {
		contentWords[word] = true
	}

	seen := make(map[string]bool, len(queryWords))
	hits := 0
	for _, word := range queryWords {
		if seen[word] {
			continue
		}
		seen[word] = true
		if contentWords[word] {
			hits++
		}
	}
	return math.Min(1, float64(hits)/float64(len(seen)))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
