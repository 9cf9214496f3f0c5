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


package fusion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/healthrag/ai"
	"github.com/poiesic/healthrag/core"
)

// Strategy selects how concurrent model responses are combined.
type Strategy string

const (
	// StrategyWeightedAverage weighs each response by its model's base
	// weight times its confidence and selects the heaviest.
	StrategyWeightedAverage Strategy = "weighted_average"

	// StrategyMajorityVote selects the most confident response and
	// reports the mean confidence of all voters.
	StrategyMajorityVote Strategy = "majority_vote"

	// StrategyBestConfidence selects the response with the strictly
	// highest confidence.
	StrategyBestConfidence Strategy = "best_confidence"
)

// DefaultBaseWeight applies to models without a configured base weight.
const DefaultBaseWeight = 0.5

// DefaultTimeout bounds each per-model completion call.
const DefaultTimeout = 30 * time.Second

// Fuser fans a prompt out to several completion models concurrently and
// fuses their responses into a single answer. Fusion is selection, not
// text blending: one response's content wins, the rest inform the
// confidence score.
type Fuser struct {
	completers  []ai.Completer
	baseWeights map[string]float64
	strategy    Strategy
	timeout     time.Duration
	pool        *ants.Pool
	logger      *slog.Logger
}

// Option configures a Fuser.
type Option func(*Fuser) error

// WithStrategy sets the default fusion strategy.
func WithStrategy(strategy Strategy) Option {
	return func(f *Fuser) error {
		switch strategy {
		case StrategyWeightedAverage, StrategyMajorityVote, StrategyBestConfidence:
			f.strategy = strategy
			return nil
		default:
			return fmt.Errorf("%w: unknown fusion strategy %q", core.ErrInvalidConfig, strategy)
		}
	}
}

// WithBaseWeight sets a model's base weight for weighted_average fusion.
func WithBaseWeight(modelName string, weight float64) Option {
	return func(f *Fuser) error {
		if weight < 0 {
			return fmt.Errorf("%w: base weight must be non-negative, got %v", core.ErrInvalidConfig, weight)
		}
		f.baseWeights[modelName] = weight
		return nil
	}
}

// WithTimeout bounds each per-model completion call. A model that blows
// its timeout is treated as failed; the overall call never waits on a
// straggler beyond this.
func WithTimeout(d time.Duration) Option {
	return func(f *Fuser) error {
		if d <= 0 {
			return fmt.Errorf("%w: timeout must be positive, got %v", core.ErrInvalidConfig, d)
		}
		f.timeout = d
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fuser) error {
		if logger == nil {
			logger = slog.Default()
		}
		f.logger = logger
		return nil
	}
}

// NewFuser creates a response fuser over the given completion models.
func NewFuser(completers []ai.Completer, opts ...Option) (*Fuser, error) {
	poolSize := len(completers)
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	f := &Fuser{
		completers:  completers,
		baseWeights: make(map[string]float64),
		strategy:    StrategyWeightedAverage,
		timeout:     DefaultTimeout,
		pool:        pool,
		logger:      slog.Default().With("component", "response_fusion"),
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			f.Release()
			return nil, err
		}
	}
	return f, nil
}

// Release frees the worker pool. The Fuser must not be used afterwards.
func (f *Fuser) Release() {
	if f.pool != nil {
		f.pool.Release()
	}
}

// Generate fans the prompt out to every registered model, waits for all
// calls to resolve (success, failure or timeout), then fuses the
// surviving responses with the configured strategy. A failed or timed
// out call yields a zero-confidence response, which fusion excludes.
func (f *Fuser) Generate(ctx context.Context, prompt, contextText string) (*core.FusionResult, error) {
	if len(f.completers) == 0 {
		return nil, fmt.Errorf("%w: no completion models registered", core.ErrInvalidConfig)
	}

	responses := make([]core.ModelResponse, len(f.completers))
	var wg sync.WaitGroup
	for i, completer := range f.completers {
		wg.Add(1)
		submitErr := f.pool.Submit(func() {
			defer wg.Done()
			responses[i] = f.callModel(ctx, completer, prompt, contextText)
		})
		if submitErr != nil {
			responses[i] = core.ModelResponse{ModelName: completer.ModelName()}
			wg.Done()
		}
	}
	// Fusion only runs once every call has resolved; partial responses
	// are never blended.
	wg.Wait()

	return f.Fuse(responses, f.strategy)
}

// callModel runs one completion under its own timeout and converts any
// failure into a zero-confidence response.
func (f *Fuser) callModel(ctx context.Context, completer ai.Completer, prompt, contextText string) core.ModelResponse {
	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	response, err := completer.Complete(callCtx, prompt, contextText)
	if err != nil {
		f.logger.Warn("model call failed, excluding from fusion",
			"model", completer.ModelName(), "err", err)
		return core.ModelResponse{
			ModelName:      completer.ModelName(),
			ProcessingTime: time.Since(start),
		}
	}
	return *response
}

// Fuse combines already-gathered responses with the given strategy.
// Responses with confidence <= 0 are treated as failed calls and
// excluded; if none survive, ErrAllModelsFailed is returned. Given the
// same surviving set the result is deterministic, with ties broken by
// input order. Unknown strategies fall back to weighted_average.
func (f *Fuser) Fuse(responses []core.ModelResponse, strategy Strategy) (*core.FusionResult, error) {
	valid := make([]core.ModelResponse, 0, len(responses))
	for _, response := range responses {
		if response.Confidence > 0 {
			valid = append(valid, response)
		}
	}
	if len(valid) == 0 {
		return nil, core.ErrAllModelsFailed
	}

	switch strategy {
	case StrategyWeightedAverage, StrategyMajorityVote, StrategyBestConfidence:
	default:
		f.logger.Warn("unknown fusion strategy, using weighted_average", "strategy", strategy)
		strategy = StrategyWeightedAverage
	}

	details := map[string]any{
		"total_models":  len(valid),
		"strategy_used": string(strategy),
	}
	lengths := make([]int, len(valid))
	confidences := make([]float64, len(valid))
	times := make([]time.Duration, len(valid))
	for i, response := range valid {
		lengths[i] = len(response.Content)
		confidences[i] = response.Confidence
		times[i] = response.ProcessingTime
	}
	details["response_lengths"] = lengths
	details["confidences"] = confidences
	details["processing_times"] = times

	switch strategy {
	case StrategyMajorityVote:
		return f.majorityVote(valid, details), nil
	case StrategyBestConfidence:
		return f.bestConfidence(valid, details), nil
	default:
		return f.weightedAverage(valid, details), nil
	}
}

func (f *Fuser) baseWeight(modelName string) float64 {
	if w, ok := f.baseWeights[modelName]; ok {
		return w
	}
	return DefaultBaseWeight
}

// weightedAverage selects the response with the highest base-weight ×
// confidence product; overall confidence is the mean of all weights.
func (f *Fuser) weightedAverage(responses []core.ModelResponse, details map[string]any) *core.FusionResult {
	weights := make([]float64, len(responses))
	best := 0
	var sum float64
	for i, response := range responses {
		weights[i] = f.baseWeight(response.ModelName) * response.Confidence
		sum += weights[i]
		if weights[i] > weights[best] {
			best = i
		}
	}

	details["weights_applied"] = weights
	details["selected_model"] = responses[best].ModelName

	return &core.FusionResult{
		FinalResponse:   responses[best].Content,
		ConfidenceScore: sum / float64(len(weights)),
		ModelResponses:  responses,
		Strategy:        string(StrategyWeightedAverage),
		Details:         details,
	}
}

// majorityVote is an approximation: true semantic-cluster voting is out
// of scope, so the most confident response wins and the mean confidence
// of all voters is reported.
func (f *Fuser) majorityVote(responses []core.ModelResponse, details map[string]any) *core.FusionResult {
	best := 0
	var sum float64
	for i, response := range responses {
		sum += response.Confidence
		if response.Confidence > responses[best].Confidence {
			best = i
		}
	}

	details["voting_winner"] = responses[best].ModelName

	return &core.FusionResult{
		FinalResponse:   responses[best].Content,
		ConfidenceScore: sum / float64(len(responses)),
		ModelResponses:  responses,
		Strategy:        string(StrategyMajorityVote),
		Details:         details,
	}
}

// bestConfidence returns the response with the strict maximum confidence.
func (f *Fuser) bestConfidence(responses []core.ModelResponse, details map[string]any) *core.FusionResult {
	best := 0
	scores := make(map[string]float64, len(responses))
	for i, response := range responses {
		scores[response.ModelName] = response.Confidence
		if response.Confidence > responses[best].Confidence {
			best = i
		}
	}

	details["selected_model"] = responses[best].ModelName
	details["confidence_scores"] = scores

	return &core.FusionResult{
		FinalResponse:   responses[best].Content,
		ConfidenceScore: responses[best].Confidence,
		ModelResponses:  responses,
		Strategy:        string(StrategyBestConfidence),
		Details:         details,
	}
}
