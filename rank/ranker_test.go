package rank

import (
	"sync"
	"testing"
	"time"

	"github.com/poiesic/healthrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testClock = func() time.Time {
	return time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
}

func newTestRanker(t *testing.T, opts ...Option) *Ranker {
	t.Helper()
	opts = append([]Option{WithClock(testClock)}, opts...)
	r, err := NewRanker(opts...)
	require.NoError(t, err)
	return r
}

func trainingCorpus() []core.DocumentChunk {
	return []core.DocumentChunk{
		{Id: 0, Text: "Type 2 diabetes treatment starts with metformin and lifestyle changes for the patient."},
		{Id: 1, Text: "Hypertension diagnosis requires repeated blood pressure measurements in a clinical setting."},
		{Id: 2, Text: "Cardiology consultations evaluate chest pain, palpitations and other cardiac symptoms."},
	}
}

func TestTrainSkipsSmallCorpus(t *testing.T) {
	r := newTestRanker(t)

	r.Train(nil)
	assert.False(t, r.Trained())

	r.Train(trainingCorpus()[:1])
	assert.False(t, r.Trained())

	r.Train(trainingCorpus())
	assert.True(t, r.Trained())
}

func TestScoreRange(t *testing.T) {
	r := newTestRanker(t)

	docs := trainingCorpus()
	for _, query := range []string{"diabetes treatment", "blood pressure", "", "unrelated finance topic"} {
		for _, doc := range docs {
			score, _, err := r.Score(query, doc)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 1.0)
		}
	}
}

func TestScoreFavorsMatchingDocument(t *testing.T) {
	r := newTestRanker(t)
	r.Train(trainingCorpus())

	docs := trainingCorpus()
	matching, _, _ := r.Score("diabetes treatment metformin", docs[0])
	other, _, _ := r.Score("diabetes treatment metformin", docs[2])
	assert.Greater(t, matching, other)
}

func TestScoreExplanationReportsAllFeatures(t *testing.T) {
	r := newTestRanker(t)

	_, explanation, err := r.Score("diabetes", trainingCorpus()[0])
	require.NoError(t, err)
	for _, key := range []string{
		"method", "term_overlap", "content_quality", "freshness",
		"medical_specificity", "query_alignment", "weights", "ml_score",
	} {
		assert.Contains(t, explanation, key)
	}

	weights, ok := explanation["weights"].(map[string]float64)
	require.True(t, ok)
	var sum float64
	for _, w := range weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestTermOverlapMethodSwitchesWithTraining(t *testing.T) {
	r := newTestRanker(t)
	doc := trainingCorpus()[0]

	_, explanation, _ := r.Score("diabetes", doc)
	assert.Equal(t, "term_overlap", explanation["method"])

	r.Train(trainingCorpus())
	_, explanation, _ = r.Score("diabetes", doc)
	assert.Equal(t, "tfidf_cosine", explanation["method"])
}

func TestFreshness(t *testing.T) {
	r := newTestRanker(t)

	score := func(metadata map[string]string) float64 {
		_, explanation, _ := r.Score("q", core.DocumentChunk{Text: "text", Metadata: metadata})
		return explanation["freshness"].(float64)
	}

	t.Run("no date defaults to neutral", func(t *testing.T) {
		assert.InDelta(t, 0.5, score(nil), 1e-9)
	})

	t.Run("unparseable date defaults to neutral", func(t *testing.T) {
		assert.InDelta(t, 0.5, score(map[string]string{"date": "last tuesday"}), 1e-9)
	})

	t.Run("recent date scores high", func(t *testing.T) {
		assert.Greater(t, score(map[string]string{"date": "2025-06-01"}), 0.9)
	})

	t.Run("old date hits the floor", func(t *testing.T) {
		assert.InDelta(t, 0.1, score(map[string]string{"date": "2020-01-01"}), 1e-9)
	})

	t.Run("future date does not exceed one", func(t *testing.T) {
		assert.InDelta(t, 1.0, score(map[string]string{"date": "2026-01-01"}), 1e-9)
	})
}

func TestDomainSpecificity(t *testing.T) {
	clinical := "The patient received a diagnosis and treatment plan; medication and therapy were discussed in a clinical setting for the disease."
	generic := "The weather was pleasant and the garden flourished."

	assert.Greater(t, domainSpecificity(clinical), domainSpecificity(generic))
	assert.Equal(t, 0.0, domainSpecificity(generic))
}

func TestCombine(t *testing.T) {
	assert.InDelta(t, 0.6, Combine(1, 0), 1e-9)
	assert.InDelta(t, 0.4, Combine(0, 1), 1e-9)
	assert.InDelta(t, 1.0, Combine(1, 1), 1e-9)
	assert.InDelta(t, 0.6*0.8+0.4*0.5, Combine(0.8, 0.5), 1e-9)
}

func TestScoreDuringConcurrentTrain(t *testing.T) {
	r := newTestRanker(t)
	docs := trainingCorpus()

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				score, _, _ := r.Score("diabetes treatment", docs[0])
				assert.GreaterOrEqual(t, score, 0.0)
				assert.LessOrEqual(t, score, 1.0)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 20 {
			r.Train(docs)
		}
	}()
	wg.Wait()
	assert.True(t, r.Trained())
}
