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


package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/healthrag/core"
	"github.com/poiesic/healthrag/storage"
)

// Store persists index snapshots in a self-contained BadgerDB directory.
type Store struct {
	backend *Backend
	logger  *slog.Logger
}

var _ storage.IndexStore = (*Store)(nil)

// NewIndexStore creates a snapshot store over an existing backend.
// Closing the store closes the backend.
func NewIndexStore(backend *Backend) storage.IndexStore {
	return &Store{
		backend: backend,
		logger:  slog.Default().With("component", "index_store"),
	}
}

// OpenStore opens (or creates) a snapshot store at the given directory.
func OpenStore(path string) (storage.IndexStore, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, err
	}
	return NewIndexStore(backend), nil
}

// Close closes the underlying backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Save replaces any previously stored snapshot with the given one.
// The manifest is written last so a partial write never looks complete.
func (s *Store) Save(ctx context.Context, snapshot *storage.Snapshot) error {
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	if snapshot == nil {
		return fmt.Errorf("nil snapshot")
	}
	if len(snapshot.Documents) != len(snapshot.Vectors) {
		return fmt.Errorf("snapshot has %d documents but %d vectors",
			len(snapshot.Documents), len(snapshot.Vectors))
	}

	// Clear the previous snapshot, manifest first so an interrupted save
	// leaves the store looking empty rather than half-written.
	if err := s.backend.DropPrefixes(
		[]byte(manifestKey), []byte(documentPrefix), []byte(vectorPrefix),
	); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.setAll(s.snapshotEntries(snapshot)); err != nil {
		return err
	}

	manifest := snapshot.Manifest
	manifest.Count = len(snapshot.Documents)
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set([]byte(manifestKey), storage.MarshalManifest(manifest)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return err
	}

	if err := s.backend.Sync(); err != nil {
		return err
	}

	s.logger.Info("snapshot saved",
		"documents", manifest.Count,
		"dimension", manifest.Dimension,
		"variant", manifest.Variant)
	return nil
}

type entry struct {
	key   []byte
	value []byte
}

func (s *Store) snapshotEntries(snapshot *storage.Snapshot) []entry {
	entries := make([]entry, 0, 2*len(snapshot.Documents))
	for i := range snapshot.Documents {
		doc := snapshot.Documents[i]
		entries = append(entries, entry{
			key:   makeDocumentKey(doc.Id),
			value: storage.MarshalDocumentChunk(doc),
		})
		entries = append(entries, entry{
			key:   makeVectorKey(doc.Id),
			value: storage.MarshalVector(snapshot.Vectors[i]),
		})
	}
	return entries
}

// setAll writes entries across as many transactions as BadgerDB needs,
// committing and renewing whenever a transaction fills up.
func (s *Store) setAll(entries []entry) error {
	tx := s.backend.db.NewTransaction(true)
	defer tx.Discard()

	for _, e := range entries {
		err := tx.Set(e.key, e.value)
		if errors.Is(err, badger.ErrTxnTooBig) {
			if err := tx.Commit(); err != nil {
				return err
			}
			tx = s.backend.db.NewTransaction(true)
			err = tx.Set(e.key, e.value)
		}
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Load restores the most recently saved snapshot, validating every
// artifact against the manifest.
func (s *Store) Load(ctx context.Context) (*storage.Snapshot, error) {
	if s.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var snapshot storage.Snapshot
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(manifestKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return &core.LoadError{Artifact: "manifest", Err: storage.ErrNotFound}
		}
		if err != nil {
			return &core.LoadError{Artifact: "manifest", Err: err}
		}
		err = item.Value(func(val []byte) error {
			var err error
			snapshot.Manifest, err = storage.UnmarshalManifest(val)
			return err
		})
		if err != nil {
			return &core.LoadError{
				Artifact: "manifest",
				Err:      fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err),
			}
		}

		snapshot.Documents, err = loadDocuments(tx, snapshot.Manifest.Count)
		if err != nil {
			return err
		}
		snapshot.Vectors, err = loadVectors(tx, snapshot.Manifest.Count)
		return err
	}, false)
	if err != nil {
		return nil, err
	}

	if got := len(snapshot.Documents); got != snapshot.Manifest.Count {
		return nil, &core.LoadError{
			Artifact: "documents",
			Err:      fmt.Errorf("manifest declares %d documents, found %d", snapshot.Manifest.Count, got),
		}
	}
	if got := len(snapshot.Vectors); got != snapshot.Manifest.Count {
		return nil, &core.LoadError{
			Artifact: "vectors",
			Err:      fmt.Errorf("manifest declares %d vectors, found %d", snapshot.Manifest.Count, got),
		}
	}
	for i, vec := range snapshot.Vectors {
		if len(vec) != snapshot.Manifest.Dimension {
			return nil, &core.LoadError{
				Artifact: "vectors",
				Err:      fmt.Errorf("vector %d has dimension %d, manifest declares %d", i, len(vec), snapshot.Manifest.Dimension),
			}
		}
	}

	s.logger.Debug("snapshot loaded",
		"documents", snapshot.Manifest.Count,
		"dimension", snapshot.Manifest.Dimension)
	return &snapshot, nil
}

// loadDocuments reads the document table in ascending ID order.
func loadDocuments(tx *badger.Txn, count int) ([]core.DocumentChunk, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(documentPrefix)

	docs := make([]core.DocumentChunk, 0, count)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		var doc core.DocumentChunk
		err := iter.Item().Value(func(val []byte) error {
			var err error
			doc, err = storage.UnmarshalDocumentChunk(val)
			return err
		})
		if err != nil {
			return nil, &core.LoadError{
				Artifact: "documents",
				Err:      fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err),
			}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// loadVectors reads the vector matrix in ascending ID order.
func loadVectors(tx *badger.Txn, count int) ([][]float32, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(vectorPrefix)

	vectors := make([][]float32, 0, count)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		var vec []float32
		err := iter.Item().Value(func(val []byte) error {
			var err error
			vec, err = storage.UnmarshalVector(val)
			return err
		})
		if err != nil {
			return nil, &core.LoadError{
				Artifact: "vectors",
				Err:      fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err),
			}
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}
