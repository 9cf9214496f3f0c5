package badger

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/healthrag/core"
	"github.com/poiesic/healthrag/storage"
)

func testSnapshot() *storage.Snapshot {
	return &storage.Snapshot{
		Manifest: storage.Manifest{
			Dimension: 4,
			Count:     3,
			Variant:   "flat",
			CreatedAt: 1756166400000000,
		},
		Documents: []core.DocumentChunk{
			{Id: 0, Text: "Type 2 diabetes is managed with metformin.", Source: "diabetes.md", ChunkIndex: 0, Metadata: map[string]string{"date": "2025-03-10"}},
			{Id: 1, Text: "Hypertension raises cardiovascular risk.", Source: "hypertension.md", ChunkIndex: 0},
			{Id: 2, Text: "Chest pain warrants urgent evaluation.", Source: "cardiology.md", ChunkIndex: 1, Metadata: map[string]string{"section": "emergency"}},
		},
		Vectors: [][]float32{
			{0.5, 0.5, 0.5, 0.5},
			{1, 0, 0, 0},
			{0, 0.70710678, 0.70710678, 0},
		},
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	store, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	snap := testSnapshot()

	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("Failed to save snapshot: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Failed to load snapshot: %v", err)
	}

	if loaded.Manifest != snap.Manifest {
		t.Fatalf("Manifest mismatch: got %+v, want %+v", loaded.Manifest, snap.Manifest)
	}
	if len(loaded.Documents) != len(snap.Documents) {
		t.Fatalf("Expected %d documents, got %d", len(snap.Documents), len(loaded.Documents))
	}
	for i, doc := range snap.Documents {
		got := loaded.Documents[i]
		if got.Id != doc.Id || got.Text != doc.Text || got.Source != doc.Source || got.ChunkIndex != doc.ChunkIndex {
			t.Fatalf("Document %d mismatch: got %+v, want %+v", i, got, doc)
		}
	}
	for i, vec := range snap.Vectors {
		for j, v := range vec {
			if math.Abs(float64(loaded.Vectors[i][j]-v)) > 1e-6 {
				t.Fatalf("Vector[%d][%d] = %v, want %v", i, j, loaded.Vectors[i][j], v)
			}
		}
	}
}

func TestStoreSaveReplacesPreviousSnapshot(t *testing.T) {
	store, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Save(ctx, testSnapshot()); err != nil {
		t.Fatalf("Failed to save first snapshot: %v", err)
	}

	smaller := &storage.Snapshot{
		Manifest:  storage.Manifest{Dimension: 2, Count: 1, Variant: "flat", CreatedAt: 1},
		Documents: []core.DocumentChunk{{Id: 0, Text: "replacement", Source: "new"}},
		Vectors:   [][]float32{{1, 0}},
	}
	if err := store.Save(ctx, smaller); err != nil {
		t.Fatalf("Failed to save second snapshot: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Failed to load snapshot: %v", err)
	}
	if len(loaded.Documents) != 1 {
		t.Fatalf("Expected 1 document after replacement, got %d", len(loaded.Documents))
	}
	if loaded.Documents[0].Text != "replacement" {
		t.Fatalf("Expected replacement document, got %q", loaded.Documents[0].Text)
	}
}

func TestStoreLoadEmpty(t *testing.T) {
	store, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	_, err = store.Load(context.Background())
	var loadErr *core.LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("Expected *core.LoadError, got %v", err)
	}
	if loadErr.Artifact != "manifest" {
		t.Fatalf("Expected manifest artifact, got %q", loadErr.Artifact)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestStoreSaveMisalignedSnapshot(t *testing.T) {
	store, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	snap := testSnapshot()
	snap.Vectors = snap.Vectors[:2]
	if err := store.Save(context.Background(), snap); err == nil {
		t.Fatal("Expected error for misaligned snapshot")
	}
}

func TestStoreLoadDetectsMissingDocument(t *testing.T) {
	backend, err := OpenBackend("", true)
	if err != nil {
		t.Fatalf("Failed to open backend: %v", err)
	}
	store := NewIndexStore(backend)
	defer store.Close()

	ctx := context.Background()
	if err := store.Save(ctx, testSnapshot()); err != nil {
		t.Fatalf("Failed to save snapshot: %v", err)
	}

	// Simulate a damaged store by removing one document key.
	err = backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeDocumentKey(1)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		t.Fatalf("Failed to delete document key: %v", err)
	}

	_, err = store.Load(ctx)
	var loadErr *core.LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("Expected *core.LoadError, got %v", err)
	}
	if loadErr.Artifact != "documents" {
		t.Fatalf("Expected documents artifact, got %q", loadErr.Artifact)
	}
}

func TestStoreLoadDetectsCorruptVector(t *testing.T) {
	backend, err := OpenBackend("", true)
	if err != nil {
		t.Fatalf("Failed to open backend: %v", err)
	}
	store := NewIndexStore(backend)
	defer store.Close()

	ctx := context.Background()
	if err := store.Save(ctx, testSnapshot()); err != nil {
		t.Fatalf("Failed to save snapshot: %v", err)
	}

	// Overwrite one vector with a row of the wrong dimension.
	err = backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeVectorKey(2), storage.MarshalVector([]float32{1})); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		t.Fatalf("Failed to overwrite vector key: %v", err)
	}

	_, err = store.Load(ctx)
	var loadErr *core.LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("Expected *core.LoadError, got %v", err)
	}
	if loadErr.Artifact != "vectors" {
		t.Fatalf("Expected vectors artifact, got %q", loadErr.Artifact)
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	if err := store.Save(ctx, testSnapshot()); err != nil {
		store.Close()
		t.Fatalf("Failed to save snapshot: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Failed to close store: %v", err)
	}

	reopened, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer reopened.Close()

	loaded, err := reopened.Load(ctx)
	if err != nil {
		t.Fatalf("Failed to load snapshot after reopen: %v", err)
	}
	if len(loaded.Documents) != 3 {
		t.Fatalf("Expected 3 documents after reopen, got %d", len(loaded.Documents))
	}
}
