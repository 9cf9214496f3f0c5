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


package storage

import (
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/healthrag/core"
)

var (
	metadataMUS = ord.NewMapSer[string, string](ord.String, ord.String)

	// VectorMUS serializes a single embedding row. Vectors are stored as
	// raw float32 so the on-disk size is predictable.
	VectorMUS = ord.NewSliceSer[float32](raw.Float32)

	// DocumentChunkMUS serializes chunk metadata. The embedding is
	// deliberately excluded: vectors live in their own artifact.
	DocumentChunkMUS = documentChunkSer{}

	// ManifestMUS serializes the snapshot manifest.
	ManifestMUS = manifestSer{}
)

type documentChunkSer struct{}

func (documentChunkSer) Marshal(c core.DocumentChunk, buf []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(c.Id), buf)
	n += ord.String.Marshal(c.Text, buf[n:])
	n += ord.String.Marshal(c.Source, buf[n:])
	n += varint.Int.Marshal(c.ChunkIndex, buf[n:])
	n += metadataMUS.Marshal(c.Metadata, buf[n:])
	return n
}

func (documentChunkSer) Unmarshal(data []byte) (c core.DocumentChunk, n int, err error) {
	var (
		id uint64
		n1 int
	)
	id, n, err = varint.Uint64.Unmarshal(data)
	if err != nil {
		return
	}
	c.Id = core.ID(id)
	c.Text, n1, err = ord.String.Unmarshal(data[n:])
	n += n1
	if err != nil {
		return
	}
	c.Source, n1, err = ord.String.Unmarshal(data[n:])
	n += n1
	if err != nil {
		return
	}
	c.ChunkIndex, n1, err = varint.Int.Unmarshal(data[n:])
	n += n1
	if err != nil {
		return
	}
	c.Metadata, n1, err = metadataMUS.Unmarshal(data[n:])
	n += n1
	return
}

func (documentChunkSer) Size(c core.DocumentChunk) (size int) {
	size = varint.Uint64.Size(uint64(c.Id))
	size += ord.String.Size(c.Text)
	size += ord.String.Size(c.Source)
	size += varint.Int.Size(c.ChunkIndex)
	size += metadataMUS.Size(c.Metadata)
	return size
}

type manifestSer struct{}

func (manifestSer) Marshal(m Manifest, buf []byte) (n int) {
	n = varint.Int.Marshal(m.Dimension, buf)
	n += varint.Int.Marshal(m.Count, buf[n:])
	n += ord.String.Marshal(m.Variant, buf[n:])
	n += varint.Int64.Marshal(m.CreatedAt, buf[n:])
	return n
}

func (manifestSer) Unmarshal(data []byte) (m Manifest, n int, err error) {
	var n1 int
	m.Dimension, n, err = varint.Int.Unmarshal(data)
	if err != nil {
		return
	}
	m.Count, n1, err = varint.Int.Unmarshal(data[n:])
	n += n1
	if err != nil {
		return
	}
	m.Variant, n1, err = ord.String.Unmarshal(data[n:])
	n += n1
	if err != nil {
		return
	}
	m.CreatedAt, n1, err = varint.Int64.Unmarshal(data[n:])
	n += n1
	return
}

func (manifestSer) Size(m Manifest) (size int) {
	size = varint.Int.Size(m.Dimension)
	size += varint.Int.Size(m.Count)
	size += ord.String.Size(m.Variant)
	size += varint.Int64.Size(m.CreatedAt)
	return size
}

// MarshalDocumentChunk serializes chunk metadata into a fresh buffer.
func MarshalDocumentChunk(c core.DocumentChunk) []byte {
	buf := make([]byte, DocumentChunkMUS.Size(c))
	DocumentChunkMUS.Marshal(c, buf)
	return buf
}

// UnmarshalDocumentChunk deserializes chunk metadata.
func UnmarshalDocumentChunk(data []byte) (core.DocumentChunk, error) {
	c, _, err := DocumentChunkMUS.Unmarshal(data)
	return c, err
}

// MarshalManifest serializes a manifest into a fresh buffer.
func MarshalManifest(m Manifest) []byte {
	buf := make([]byte, ManifestMUS.Size(m))
	ManifestMUS.Marshal(m, buf)
	return buf
}

// UnmarshalManifest deserializes a manifest.
func UnmarshalManifest(data []byte) (Manifest, error) {
	m, _, err := ManifestMUS.Unmarshal(data)
	return m, err
}

// MarshalVector serializes a single embedding row into a fresh buffer.
func MarshalVector(v []float32) []byte {
	buf := make([]byte, VectorMUS.Size(v))
	VectorMUS.Marshal(v, buf)
	return buf
}

// UnmarshalVector deserializes a single embedding row.
func UnmarshalVector(data []byte) ([]float32, error) {
	v, _, err := VectorMUS.Unmarshal(data)
	return v, err
}
