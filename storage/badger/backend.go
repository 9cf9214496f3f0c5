package badger

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// Backend owns the BadgerDB handle that index snapshots are written to.
// It exposes only the operations the store needs.
type Backend struct {
	db     *badger.DB
	logger *slog.Logger
}

// dbLogger routes badger's internal logging through slog so index
// persistence shares one log stream with the rest of the engine.
type dbLogger struct {
	logger *slog.Logger
}

var _ badger.Logger = (*dbLogger)(nil)

func (l *dbLogger) Errorf(msg string, items ...any)   { l.logger.Error(fmt.Sprintf(msg, items...)) }
func (l *dbLogger) Warningf(msg string, items ...any) { l.logger.Warn(fmt.Sprintf(msg, items...)) }
func (l *dbLogger) Infof(msg string, items ...any)    { l.logger.Debug(fmt.Sprintf(msg, items...)) }
func (l *dbLogger) Debugf(msg string, items ...any)   { l.logger.Debug(fmt.Sprintf(msg, items...)) }

// OpenBackend opens (or creates) a BadgerDB database for index storage.
// An empty path with inMemory=true yields a throwaway in-memory database.
// Vectors are already dense float data, so compression is disabled.
func OpenBackend(path string, inMemory bool) (*Backend, error) {
	logger := slog.Default().With("component", "index_backend")

	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create index directory %s: %w", path, err)
		}
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = &dbLogger{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Backend{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// IsClosed reports whether the database has been closed.
func (b *Backend) IsClosed() bool {
	return b.db.IsClosed()
}

// WithTx runs fn inside a transaction. The transaction is discarded
// unless fn commits it; isWrite selects a read-write transaction.
func (b *Backend) WithTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	tx := b.db.NewTransaction(isWrite)
	defer tx.Discard()
	return fn(tx)
}

// DropPrefixes removes every key carrying one of the given prefixes.
func (b *Backend) DropPrefixes(prefixes ...[]byte) error {
	return b.db.DropPrefix(prefixes...)
}

// Sync flushes pending writes to disk. A no-op for in-memory databases.
func (b *Backend) Sync() error {
	return b.db.Sync()
}
