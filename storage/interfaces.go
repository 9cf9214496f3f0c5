package storage

import (
	"context"

	"github.com/poiesic/healthrag/core"
)

// Manifest describes a persisted index so a loader can validate the
// artifacts against what the saver wrote.
type Manifest struct {
	Dimension int
	Count     int
	Variant   string
	CreatedAt int64 // unix microseconds
}

// Snapshot is the full persisted unit: the manifest, the ordered document
// metadata table and the raw vector matrix, aligned by position.
type Snapshot struct {
	Manifest  Manifest
	Documents []core.DocumentChunk
	Vectors   [][]float32
}

// IndexStore persists and restores index snapshots. Implementations must
// validate the manifest against the stored artifacts on Load and report
// inconsistencies as *core.LoadError naming the offending artifact.
type IndexStore interface {
	// Save persists a snapshot, replacing any previously stored one.
	// The write is durable when Save returns.
	Save(ctx context.Context, snapshot *Snapshot) error

	// Load restores the most recently saved snapshot.
	Load(ctx context.Context) (*Snapshot, error)

	// Close releases the underlying storage.
	Close() error
}
