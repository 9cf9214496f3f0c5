package badger

import (
	"encoding/binary"

	"github.com/poiesic/healthrag/core"
)

// Key prefixes for the snapshot artifacts
const (
	manifestKey    = "manifest"
	documentPrefix = "doc:"
	vectorPrefix   = "vec:"
)

// makeDocumentKey generates a key for a document chunk by ID.
// IDs are written in BigEndian order so prefix iteration yields
// documents in ascending ID order.
func makeDocumentKey(id core.ID) []byte {
	buf := make([]byte, len(documentPrefix)+8)
	offset := copy(buf, documentPrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeVectorKey generates a key for an embedding row by document ID.
func makeVectorKey(id core.ID) []byte {
	buf := make([]byte, len(vectorPrefix)+8)
	offset := copy(buf, vectorPrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}
