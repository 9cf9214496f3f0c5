package fusion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/healthrag/ai"
	"github.com/poiesic/healthrag/ai/mock"
	"github.com/poiesic/healthrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFuser(t *testing.T, completers []ai.Completer, opts ...Option) *Fuser {
	t.Helper()
	f, err := NewFuser(completers, opts...)
	require.NoError(t, err)
	t.Cleanup(f.Release)
	return f
}

func response(model string, confidence float64, content string) core.ModelResponse {
	return core.ModelResponse{
		Content:    content,
		Confidence: confidence,
		ModelName:  model,
	}
}

func TestFuseBestConfidence(t *testing.T) {
	f := newTestFuser(t, nil)

	result, err := f.Fuse([]core.ModelResponse{
		response("model-a", 0.9, "answer from a"),
		response("model-b", 0.3, "answer from b"),
	}, StrategyBestConfidence)
	require.NoError(t, err)

	assert.Equal(t, "answer from a", result.FinalResponse)
	assert.InDelta(t, 0.9, result.ConfidenceScore, 1e-9)
	assert.Equal(t, string(StrategyBestConfidence), result.Strategy)
	assert.Equal(t, "model-a", result.Details["selected_model"])
}

func TestFuseAllZeroConfidence(t *testing.T) {
	f := newTestFuser(t, nil)

	_, err := f.Fuse([]core.ModelResponse{
		response("model-a", 0, "failed"),
		response("model-b", -1, "also failed"),
	}, StrategyBestConfidence)
	assert.ErrorIs(t, err, core.ErrAllModelsFailed)
}

func TestFuseExcludesFailedResponses(t *testing.T) {
	f := newTestFuser(t, nil)

	result, err := f.Fuse([]core.ModelResponse{
		response("failed", 0, "noise"),
		response("model-b", 0.5, "survivor"),
	}, StrategyBestConfidence)
	require.NoError(t, err)

	assert.Equal(t, "survivor", result.FinalResponse)
	assert.Len(t, result.ModelResponses, 1)
	assert.Equal(t, 1, result.Details["total_models"])
}

func TestFuseWeightedAverage(t *testing.T) {
	f := newTestFuser(t, nil,
		WithBaseWeight("model-a", 0.6),
		WithBaseWeight("model-b", 0.4),
	)

	// model-a: 0.6*0.5 = 0.30; model-b: 0.4*0.9 = 0.36 — b wins even
	// though a has the larger base weight.
	result, err := f.Fuse([]core.ModelResponse{
		response("model-a", 0.5, "answer a"),
		response("model-b", 0.9, "answer b"),
	}, StrategyWeightedAverage)
	require.NoError(t, err)

	assert.Equal(t, "answer b", result.FinalResponse)
	assert.Equal(t, "model-b", result.Details["selected_model"])
	assert.InDelta(t, (0.3+0.36)/2, result.ConfidenceScore, 1e-9)

	weights, ok := result.Details["weights_applied"].([]float64)
	require.True(t, ok)
	assert.InDelta(t, 0.3, weights[0], 1e-9)
	assert.InDelta(t, 0.36, weights[1], 1e-9)
}

func TestFuseWeightedAverageDefaultWeight(t *testing.T) {
	f := newTestFuser(t, nil)

	result, err := f.Fuse([]core.ModelResponse{
		response("unconfigured", 0.8, "answer"),
	}, StrategyWeightedAverage)
	require.NoError(t, err)
	assert.InDelta(t, DefaultBaseWeight*0.8, result.ConfidenceScore, 1e-9)
}

func TestFuseMajorityVote(t *testing.T) {
	f := newTestFuser(t, nil)

	result, err := f.Fuse([]core.ModelResponse{
		response("model-a", 0.4, "answer a"),
		response("model-b", 0.8, "answer b"),
		response("model-c", 0.6, "answer c"),
	}, StrategyMajorityVote)
	require.NoError(t, err)

	assert.Equal(t, "answer b", result.FinalResponse)
	assert.Equal(t, "model-b", result.Details["voting_winner"])
	assert.InDelta(t, (0.4+0.8+0.6)/3, result.ConfidenceScore, 1e-9)
}

func TestFuseTiesBrokenByInputOrder(t *testing.T) {
	f := newTestFuser(t, nil)

	for _, strategy := range []Strategy{StrategyWeightedAverage, StrategyMajorityVote, StrategyBestConfidence} {
		t.Run(string(strategy), func(t *testing.T) {
			result, err := f.Fuse([]core.ModelResponse{
				response("first", 0.7, "first answer"),
				response("second", 0.7, "second answer"),
			}, strategy)
			require.NoError(t, err)
			assert.Equal(t, "first answer", result.FinalResponse)
		})
	}
}

func TestFuseUnknownStrategyFallsBack(t *testing.T) {
	f := newTestFuser(t, nil)

	result, err := f.Fuse([]core.ModelResponse{
		response("model-a", 0.9, "answer"),
	}, Strategy("consensus"))
	require.NoError(t, err)
	assert.Equal(t, string(StrategyWeightedAverage), result.Strategy)
}

func TestFuseDeterministicGivenSurvivorSet(t *testing.T) {
	f := newTestFuser(t, nil)

	responses := []core.ModelResponse{
		response("model-a", 0.5, "answer a"),
		response("model-b", 0.9, "answer b"),
	}
	first, err := f.Fuse(responses, StrategyWeightedAverage)
	require.NoError(t, err)
	for range 5 {
		again, err := f.Fuse(responses, StrategyWeightedAverage)
		require.NoError(t, err)
		assert.Equal(t, first.FinalResponse, again.FinalResponse)
		assert.Equal(t, first.ConfidenceScore, again.ConfidenceScore)
	}
}

func TestGenerateFansOutToAllModels(t *testing.T) {
	alpha := &mock.Completer{Name: "alpha", Confidence: 0.9}
	beta := &mock.Completer{Name: "beta", Confidence: 0.5}
	f := newTestFuser(t, []ai.Completer{alpha, beta}, WithStrategy(StrategyBestConfidence))

	result, err := f.Generate(context.Background(), "what is diabetes", "")
	require.NoError(t, err)

	assert.Equal(t, 1, alpha.CallCount())
	assert.Equal(t, 1, beta.CallCount())
	assert.Equal(t, "alpha answer: what is diabetes", result.FinalResponse)
	assert.Len(t, result.ModelResponses, 2)
}

func TestGenerateExcludesFailingModel(t *testing.T) {
	healthy := &mock.Completer{Name: "healthy", Confidence: 0.7}
	broken := &mock.Completer{
		Name: "broken",
		CompleteFunc: func(ctx context.Context, prompt, contextText string) (*core.ModelResponse, error) {
			return nil, errors.New("backend down")
		},
	}
	f := newTestFuser(t, []ai.Completer{broken, healthy}, WithStrategy(StrategyBestConfidence))

	result, err := f.Generate(context.Background(), "prompt", "")
	require.NoError(t, err)
	assert.Equal(t, "healthy answer: prompt", result.FinalResponse)
	assert.Len(t, result.ModelResponses, 1, "failed model excluded from fusion")
}

func TestGenerateAllModelsFail(t *testing.T) {
	fail := func(ctx context.Context, prompt, contextText string) (*core.ModelResponse, error) {
		return nil, errors.New("backend down")
	}
	f := newTestFuser(t, []ai.Completer{
		&mock.Completer{Name: "a", CompleteFunc: fail},
		&mock.Completer{Name: "b", CompleteFunc: fail},
	})

	_, err := f.Generate(context.Background(), "prompt", "")
	assert.ErrorIs(t, err, core.ErrAllModelsFailed)
}

func TestGenerateTimeoutExcludesStraggler(t *testing.T) {
	fast := &mock.Completer{Name: "fast", Confidence: 0.6}
	slow := &mock.Completer{Name: "slow", Confidence: 0.9, Delay: time.Second}
	f := newTestFuser(t, []ai.Completer{slow, fast},
		WithStrategy(StrategyBestConfidence),
		WithTimeout(50*time.Millisecond),
	)

	start := time.Now()
	result, err := f.Generate(context.Background(), "prompt", "")
	require.NoError(t, err)

	assert.Equal(t, "fast answer: prompt", result.FinalResponse)
	assert.Less(t, time.Since(start), 500*time.Millisecond,
		"the overall call must not wait for the straggler")
}

func TestGenerateNoModels(t *testing.T) {
	f := newTestFuser(t, nil)

	_, err := f.Generate(context.Background(), "prompt", "")
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestNewFuserInvalidOptions(t *testing.T) {
	_, err := NewFuser(nil, WithStrategy("nonsense"))
	assert.ErrorIs(t, err, core.ErrInvalidConfig)

	_, err = NewFuser(nil, WithBaseWeight("m", -0.1))
	assert.ErrorIs(t, err, core.ErrInvalidConfig)

	_, err = NewFuser(nil, WithTimeout(0))
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}
