package search

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/poiesic/healthrag/ai"
	"github.com/poiesic/healthrag/core"
	"github.com/poiesic/healthrag/expand"
	"github.com/poiesic/healthrag/index"
	"github.com/poiesic/healthrag/rank"
)

const (
	// DefaultThreshold is the minimum similarity for retrieval candidates.
	DefaultThreshold = 0.1

	// minOverFetch is the retrieval floor when re-ranking is enabled,
	// so small k values still get re-ranking headroom.
	minOverFetch = 10

	// maxSemanticMatches caps the reported match terms per result.
	maxSemanticMatches = 5
)

// Retriever finds the nearest indexed documents for a query vector.
type Retriever interface {
	Search(query []float32, k int, threshold float64) ([]index.Hit, error)
}

// Expander augments a query before retrieval.
type Expander interface {
	Expand(query string, uctx *expand.Context) core.Expansion
}

// Scorer computes a secondary relevance score for a candidate.
type Scorer interface {
	Score(query string, doc core.DocumentChunk) (float64, map[string]any, error)
}

// Engine orchestrates the retrieval pipeline: optional query expansion,
// vector retrieval with over-fetch, optional re-ranking, and final
// ordering by combined score.
type Engine struct {
	embedder  ai.Embedder
	retriever Retriever
	expander  Expander
	scorer    Scorer
	threshold float64
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithExpander enables the query expansion stage.
func WithExpander(expander Expander) Option {
	return func(e *Engine) error {
		e.expander = expander
		return nil
	}
}

// WithScorer enables the re-ranking stage.
func WithScorer(scorer Scorer) Option {
	return func(e *Engine) error {
		e.scorer = scorer
		return nil
	}
}

// WithThreshold overrides the retrieval similarity threshold.
func WithThreshold(threshold float64) Option {
	return func(e *Engine) error {
		if threshold < 0 || threshold >= 1 {
			return fmt.Errorf("%w: threshold must be in [0,1), got %v", core.ErrInvalidConfig, threshold)
		}
		e.threshold = threshold
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// NewEngine creates a search engine over an embedder and a retriever.
// Expansion and re-ranking run only when the corresponding option is set.
func NewEngine(embedder ai.Embedder, retriever Retriever, opts ...Option) (*Engine, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if retriever == nil {
		return nil, ErrRetrieverRequired
	}

	e := &Engine{
		embedder:  embedder,
		retriever: retriever,
		threshold: DefaultThreshold,
		logger:    slog.Default().With("component", "search_engine"),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Params tunes a single search call.
type Params struct {
	// UserContext personalizes query expansion.
	UserContext *expand.Context

	// SkipExpansion and SkipRanking disable the optional stages for
	// this call even when the engine has them configured.
	SkipExpansion bool
	SkipRanking   bool

	// Monitor receives stage callbacks. Nil means no monitoring.
	Monitor Monitor
}

// Search runs the full pipeline with default parameters.
// Returns up to k results ordered by combined score.
func (e *Engine) Search(ctx context.Context, query string, k int) ([]core.SearchResult, error) {
	return e.SearchWithParams(ctx, query, k, Params{})
}

// SearchWithParams runs the pipeline with per-call parameters. An empty
// index or no candidate above the threshold yields an empty result, not
// an error. A failure scoring one candidate drops only that candidate.
func (e *Engine) SearchWithParams(ctx context.Context, query string, k int, params Params) ([]core.SearchResult, error) {
	monitor := params.Monitor
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(query)

	if k <= 0 {
		monitor.Finish(nil)
		return nil, nil
	}

	// Expansion stage. When disabled the original query flows forward
	// unchanged.
	expansion := core.Expansion{OriginalQuery: query, FinalQuery: query}
	expanding := e.expander != nil && !params.SkipExpansion
	if expanding {
		expansion = e.expander.Expand(query, params.UserContext)
		e.logger.Debug("query expanded", "final_query", expansion.FinalQuery)
	}
	monitor.AfterExpansion(expansion)

	vector, err := e.embedder.EmbedText(ctx, expansion.FinalQuery)
	if err != nil {
		e.logger.Error("error embedding query", "query", query, "err", err)
		return nil, err
	}

	// Retrieval stage, over-fetching for re-ranking headroom.
	ranking := e.scorer != nil && !params.SkipRanking
	fetchK := k
	if ranking {
		fetchK = max(minOverFetch, 2*k)
	}
	hits, err := e.retriever.Search(vector, fetchK, e.threshold)
	if err != nil {
		e.logger.Error("error searching index", "err", err)
		return nil, err
	}
	monitor.AfterRetrieval(hits)

	if len(hits) == 0 {
		e.logger.Info("no candidates above threshold", "query", query)
		empty := []core.SearchResult{}
		monitor.Finish(empty)
		return empty, nil
	}

	// Ranking stage. Scoring uses the original query so expansion terms
	// boost recall without skewing relevance.
	results := make([]core.SearchResult, 0, len(hits))
	for _, hit := range hits {
		similarity := hit.Score
		relevance := similarity
		explanation := map[string]any{"method": "vector_only"}

		if ranking {
			var err error
			relevance, explanation, err = e.scorer.Score(query, hit.Chunk)
			if err != nil {
				e.logger.Warn("dropping candidate after scoring failure",
					"document_id", hit.Chunk.Id, "err", err)
				monitor.CandidateDropped(hit.Chunk.Id, err)
				continue
			}
		}

		results = append(results, core.SearchResult{
			DocumentId:       hit.Chunk.Id,
			Content:          hit.Chunk.Text,
			SimilarityScore:  similarity,
			MLRelevanceScore: relevance,
			CombinedScore:    rank.Combine(similarity, relevance),
			Metadata:         hit.Chunk.Metadata,
			Explanation:      explanation,
			SemanticMatches:  extractSemanticMatches(query, hit.Chunk.Text, expansion),
		})
	}

	slices.SortFunc(results, func(a, b core.SearchResult) int {
		if a.CombinedScore != b.CombinedScore {
			if a.CombinedScore > b.CombinedScore {
				return -1
			}
			return 1
		}
		// Ties broken by lower insertion-order id for determinism.
		if a.DocumentId < b.DocumentId {
			return -1
		}
		if a.DocumentId > b.DocumentId {
			return 1
		}
		return 0
	})
	if len(results) > k {
		results = results[:k]
	}

	monitor.Finish(results)
	e.logger.Debug("search finished", "query", query, "results", len(results))
	return results, nil
}

// extractSemanticMatches reports which query words and expansion terms
// appear in the content, capped at maxSemanticMatches.
func extractSemanticMatches(query, content string, expansion core.Expansion) []string {
	contentLower := strings.ToLower(content)
	matches := make([]string, 0, maxSemanticMatches)

	seen := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(query)) {
		if seen[word] || !strings.Contains(contentLower, word) {
			continue
		}
		seen[word] = true
		matches = append(matches, "Direct: "+word)
		if len(matches) == maxSemanticMatches {
			return matches
		}
	}

	for _, term := range expansion.ExpandedTerms {
		lower := strings.ToLower(term)
		if seen[lower] || !strings.Contains(contentLower, lower) {
			continue
		}
		seen[lower] = true
		matches = append(matches, "Expanded: "+term)
		if len(matches) == maxSemanticMatches {
			return matches
		}
	}
	return matches
}
