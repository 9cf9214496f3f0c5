package storage

import (
	"testing"

	"github.com/poiesic/healthrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentChunkSerialization(t *testing.T) {
	tests := []struct {
		name  string
		chunk core.DocumentChunk
	}{
		{
			name: "full chunk",
			chunk: core.DocumentChunk{
				Id:         42,
				Text:       "Metformin is a first-line treatment for type 2 diabetes.",
				Source:     "guidelines/diabetes.md",
				ChunkIndex: 3,
				Metadata:   map[string]string{"date": "2025-04-01", "section": "treatment"},
			},
		},
		{
			name: "no metadata",
			chunk: core.DocumentChunk{
				Id:     0,
				Text:   "Hypertension is often asymptomatic.",
				Source: "notes.txt",
			},
		},
		{
			name: "unicode text",
			chunk: core.DocumentChunk{
				Id:         7,
				Text:       "BP ≥ 140/90 mmHg — stage 2",
				Source:     "vitals",
				ChunkIndex: 1,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := MarshalDocumentChunk(tt.chunk)
			decoded, err := UnmarshalDocumentChunk(data)
			require.NoError(t, err)

			assert.Equal(t, tt.chunk.Id, decoded.Id)
			assert.Equal(t, tt.chunk.Text, decoded.Text)
			assert.Equal(t, tt.chunk.Source, decoded.Source)
			assert.Equal(t, tt.chunk.ChunkIndex, decoded.ChunkIndex)
			if len(tt.chunk.Metadata) == 0 {
				assert.Empty(t, decoded.Metadata)
			} else {
				assert.Equal(t, tt.chunk.Metadata, decoded.Metadata)
			}
		})
	}
}

func TestDocumentChunkExcludesEmbedding(t *testing.T) {
	chunk := core.DocumentChunk{
		Id:        1,
		Text:      "text",
		Source:    "src",
		Embedding: []float32{0.1, 0.2, 0.3},
	}

	data := MarshalDocumentChunk(chunk)
	decoded, err := UnmarshalDocumentChunk(data)
	require.NoError(t, err)
	assert.Nil(t, decoded.Embedding, "embedding travels in its own artifact")
}

func TestManifestSerialization(t *testing.T) {
	manifest := Manifest{
		Dimension: 384,
		Count:     1024,
		Variant:   "flat",
		CreatedAt: 1756166400000000,
	}

	data := MarshalManifest(manifest)
	decoded, err := UnmarshalManifest(data)
	require.NoError(t, err)
	assert.Equal(t, manifest, decoded)
}

func TestVectorSerialization(t *testing.T) {
	t.Run("round trip preserves exact values", func(t *testing.T) {
		vector := []float32{0.5, -0.25, 0.0, 1.0, -1.0}
		data := MarshalVector(vector)
		decoded, err := UnmarshalVector(data)
		require.NoError(t, err)
		assert.Equal(t, vector, decoded)
	})

	t.Run("empty vector", func(t *testing.T) {
		data := MarshalVector(nil)
		decoded, err := UnmarshalVector(data)
		require.NoError(t, err)
		assert.Empty(t, decoded)
	})
}

func TestUnmarshalTruncatedData(t *testing.T) {
	chunk := core.DocumentChunk{Id: 9, Text: "some text long enough to truncate", Source: "src"}
	data := MarshalDocumentChunk(chunk)

	_, err := UnmarshalDocumentChunk(data[:len(data)/2])
	assert.Error(t, err)

	vec := MarshalVector([]float32{1, 2, 3, 4})
	_, err = UnmarshalVector(vec[:3])
	assert.Error(t, err)
}
