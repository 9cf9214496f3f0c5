package embedding

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	t.Run("unit norm", func(t *testing.T) {
		v := Normalize([]float32{3, 4})
		assert.InDelta(t, 0.6, v[0], 1e-6)
		assert.InDelta(t, 0.8, v[1], 1e-6)
		assert.InDelta(t, 1.0, Norm(v), 1e-6)
	})

	t.Run("zero vector stays zero", func(t *testing.T) {
		v := Normalize([]float32{0, 0, 0})
		assert.Equal(t, []float32{0, 0, 0}, v)
	})

	t.Run("empty vector", func(t *testing.T) {
		assert.Empty(t, Normalize(nil))
	})

	t.Run("does not mutate input", func(t *testing.T) {
		in := []float32{3, 4}
		Normalize(in)
		assert.Equal(t, []float32{3, 4}, in)
	})
}

func TestDot(t *testing.T) {
	t.Run("basic", func(t *testing.T) {
		assert.InDelta(t, 11.0, Dot([]float32{1, 2}, []float32{3, 4}), 1e-6)
	})

	t.Run("mismatched lengths use shorter", func(t *testing.T) {
		assert.InDelta(t, 3.0, Dot([]float32{1, 2, 100}, []float32{3}), 1e-6)
	})

	t.Run("orthogonal", func(t *testing.T) {
		assert.InDelta(t, 0.0, Dot([]float32{1, 0}, []float32{0, 1}), 1e-6)
	})
}

func TestNorm(t *testing.T) {
	assert.InDelta(t, 5.0, Norm([]float32{3, 4}), 1e-9)
	assert.InDelta(t, 0.0, Norm(nil), 1e-9)
	assert.InDelta(t, math.Sqrt(3), Norm([]float32{1, 1, 1}), 1e-6)
}
