// Copyright 2025 Chatvault Authors
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
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/chatvault/chatvault/storage"
)

// Backend wraps a BadgerDB instance and provides transaction helpers shared
// by the repositories. A single Backend is safe for concurrent use.
type Backend struct {
	db     *badger.DB
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// BackendOption configures a Backend.
type BackendOption func(*Backend)

// WithLogger sets the logger used by the backend and BadgerDB itself.
func WithLogger(logger *slog.Logger) BackendOption {
	return func(b *Backend) {
		b.logger = logger
	}
}

// OpenBackend opens a BadgerDB database at the given path. When inMemory is
// true the path is ignored and all data is kept in memory, which is mainly
// useful for tests.
func OpenBackend(path string, inMemory bool, opts ...BackendOption) (*Backend, error) {
	b := &Backend{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "storage")

	badgerOpts := badger.DefaultOptions(path).
		WithInMemory(inMemory).
		WithLogger(&badgerLoggerAdapter{logger: b.logger})

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrTransactionFailed, err)
	}
	b.db = db
	return b, nil
}

// Close closes the underlying database. Further operations return
// ErrStorageClosed.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

// IsClosed reports whether Close has been called.
func (b *Backend) IsClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

// WithTx runs fn inside a BadgerDB transaction. Write transactions must be
// committed by fn itself via tx.Commit; this lets callers observe conflict
// errors directly.
func (b *Backend) WithTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return storage.ErrStorageClosed
	}
	b.mu.RUnlock()

	tx := b.db.NewTransaction(isWrite)
	defer tx.Discard()
	return fn(tx)
}

// WithTransaction implements the storage.Repository contract on top of a
// single write transaction.
func (b *Backend) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrTransactionFailed, err)
	}
	return nil
}

// commitTx commits tx, mapping BadgerDB's conflict error onto the storage
// sentinel so callers retry without knowing the driver.
func commitTx(tx *badger.Txn) error {
	err := tx.Commit()
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %w", storage.ErrConflict, err)
	}
	return err
}

// Ping verifies the database is open and readable.
func (b *Backend) Ping() error {
	return b.WithTx(func(tx *badger.Txn) error {
		it := tx.NewIterator(badger.IteratorOptions{PrefetchValues: false})
		it.Close()
		return nil
	}, false)
}

// badgerLoggerAdapter routes BadgerDB's internal logging through slog.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

func (a *badgerLoggerAdapter) Errorf(format string, args ...interface{}) {
	a.logger.Error(fmt.Sprintf(format, args...))
}

func (a *badgerLoggerAdapter) Warningf(format string, args ...interface{}) {
	a.logger.Warn(fmt.Sprintf(format, args...))
}

func (a *badgerLoggerAdapter) Infof(format string, args ...interface{}) {
	a.logger.Debug(fmt.Sprintf(format, args...))
}

func (a *badgerLoggerAdapter) Debugf(format string, args ...interface{}) {
	a.logger.Debug(fmt.Sprintf(format, args...))
}
