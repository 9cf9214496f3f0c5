package healthrag

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/poiesic/healthrag/ai"
	"github.com/poiesic/healthrag/ai/mock"
	"github.com/poiesic/healthrag/core"
	"github.com/poiesic/healthrag/expand"
	"github.com/poiesic/healthrag/fusion"
	badgerstore "github.com/poiesic/healthrag/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func topicChunks() []core.DocumentChunk {
	return []core.DocumentChunk{
		{
			Text:     "Diabetes treatment relies on metformin, insulin therapy and blood sugar monitoring for diabetes patients.",
			Source:   "diabetes.md",
			Metadata: map[string]string{"topic": "diabetes"},
		},
		{
			Text:     "Hypertension management uses ACE inhibitors and lifestyle changes to lower blood pressure.",
			Source:   "hypertension.md",
			Metadata: map[string]string{"topic": "hypertension"},
		},
		{
			Text:     "Cardiology covers heart rhythm disorders, echocardiograms and coronary artery disease.",
			Source:   "cardiology.md",
			Metadata: map[string]string{"topic": "cardiology"},
		},
	}
}

func newTestService(t *testing.T, completers []ai.Completer, opts ...Option) *Service {
	t.Helper()
	svc, err := New(mock.NewEmbedder(), completers, opts...)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

func TestNewRequiresEmbedder(t *testing.T) {
	_, err := New(nil, nil)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestIndexAssignsSequentialIds(t *testing.T) {
	svc := newTestService(t, nil)

	ids, err := svc.Index(context.Background(), topicChunks())
	require.NoError(t, err)
	assert.Equal(t, []core.ID{0, 1, 2}, ids)
}

func TestIndexSkipsDuplicates(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.Index(ctx, topicChunks())
	require.NoError(t, err)

	again, err := svc.Index(ctx, topicChunks())
	require.NoError(t, err)
	assert.Empty(t, again, "re-indexing identical content adds nothing")

	stats := svc.Stats()
	assert.Equal(t, 3, stats["total_documents"])
}

func TestConcurrentIndexSameChunks(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	var added atomic.Int64
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids, err := svc.Index(ctx, topicChunks())
			assert.NoError(t, err)
			added.Add(int64(len(ids)))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(3), added.Load(), "each chunk indexed exactly once")
	stats := svc.Stats()
	assert.Equal(t, 3, stats["total_documents"])
}

func TestEndToEndTopicRanking(t *testing.T) {
	svc := newTestService(t, nil, WithThreshold(0.0))
	ctx := context.Background()

	_, err := svc.Index(ctx, topicChunks())
	require.NoError(t, err)

	results, err := svc.Search(ctx, "diabetes insulin treatment", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Equal(t, "diabetes", results[0].Metadata["topic"])
	for _, other := range results[1:] {
		assert.Greater(t, results[0].CombinedScore, other.CombinedScore,
			"the matching topic must outrank %q strictly", other.Metadata["topic"])
	}
}

func TestSearchEmptyService(t *testing.T) {
	svc := newTestService(t, nil)

	results, err := svc.Search(context.Background(), "diabetes", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestExpandFacade(t *testing.T) {
	svc := newTestService(t, nil)

	exp := svc.Expand("symptoms of diabetes", &expand.Context{AgeGroup: "geriatric"})
	assert.Equal(t, "symptoms of diabetes", exp.OriginalQuery)
	assert.NotEqual(t, exp.OriginalQuery, exp.FinalQuery)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	query := "diabetes insulin treatment"

	source := newTestService(t, nil, WithThreshold(0.0))
	_, err := source.Index(ctx, topicChunks())
	require.NoError(t, err)

	want, err := source.Search(ctx, query, 3)
	require.NoError(t, err)
	require.NotEmpty(t, want)

	store, err := badgerstore.NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, source.SaveTo(ctx, store))

	restored := newTestService(t, nil, WithThreshold(0.0))
	require.NoError(t, restored.LoadFrom(ctx, store))

	got, err := restored.Search(ctx, query, 3)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].DocumentId, got[i].DocumentId)
		assert.InDelta(t, want[i].CombinedScore, got[i].CombinedScore, 1e-6)
		assert.InDelta(t, want[i].SimilarityScore, got[i].SimilarityScore, 1e-6)
	}
}

func TestLoadEmptyStore(t *testing.T) {
	svc := newTestService(t, nil)

	store, err := badgerstore.NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()

	err = svc.LoadFrom(context.Background(), store)
	var loadErr *core.LoadError
	assert.ErrorAs(t, err, &loadErr)
}

func TestAnswerFusesModelResponses(t *testing.T) {
	strong := &mock.Completer{Name: "strong", Confidence: 0.9}
	weak := &mock.Completer{Name: "weak", Confidence: 0.4}
	svc := newTestService(t, []ai.Completer{weak, strong},
		WithThreshold(0.0),
		WithFusionStrategy(fusion.StrategyBestConfidence),
	)
	ctx := context.Background()

	_, err := svc.Index(ctx, topicChunks())
	require.NoError(t, err)

	fused, results, err := svc.Answer(ctx, "diabetes insulin treatment", 2)
	require.NoError(t, err)
	require.NotNil(t, fused)

	assert.Equal(t, "strong answer: diabetes insulin treatment", fused.FinalResponse)
	assert.NotEmpty(t, results, "retrieval context accompanies the answer")
	assert.Equal(t, 1, strong.CallCount())
	assert.Equal(t, 1, weak.CallCount())
}

func TestAnswerWithoutModels(t *testing.T) {
	svc := newTestService(t, nil)

	_, _, err := svc.Answer(context.Background(), "diabetes", 2)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestFuseFacade(t *testing.T) {
	svc := newTestService(t, nil)

	result, err := svc.Fuse([]core.ModelResponse{
		{Content: "high", Confidence: 0.9, ModelName: "a"},
		{Content: "low", Confidence: 0.3, ModelName: "b"},
	}, fusion.StrategyBestConfidence)
	require.NoError(t, err)
	assert.Equal(t, "high", result.FinalResponse)
}

func TestStats(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	stats := svc.Stats()
	assert.Equal(t, 0, stats["total_documents"])
	assert.Equal(t, false, stats["ranker_trained"])

	_, err := svc.Index(ctx, topicChunks())
	require.NoError(t, err)

	stats = svc.Stats()
	assert.Equal(t, 3, stats["total_documents"])
	assert.Equal(t, true, stats["ranker_trained"])
}
