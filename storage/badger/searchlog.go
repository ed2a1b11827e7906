package badger

import (
	"context"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/chatvault/chatvault/core"
	"github.com/chatvault/chatvault/storage"
)

// SearchLogRepository implements storage.SearchLogRepository backed by
// BadgerDB. Entries are keyed by timestamp so scans come back in time order.
type SearchLogRepository struct {
	backend *Backend
}

// NewSearchLogRepository creates a search log repository over the given
// backend.
func NewSearchLogRepository(backend *Backend) *SearchLogRepository {
	return &SearchLogRepository{backend: backend}
}

// WithTransaction delegates to the shared backend.
func (r *SearchLogRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// Close is a no-op; the backend owns the database lifecycle.
func (r *SearchLogRepository) Close() error {
	return nil
}

// AppendSearchLog persists one search invocation record. A zero ID gets a
// fresh UUID.
func (r *SearchLogRepository) AppendSearchLog(ctx context.Context, log *core.SearchLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if log.UserId == "" {
		return core.ErrEmptyUserId
	}

	stored := *log
	if stored.Id == uuid.Nil {
		stored.Id = uuid.New()
	}
	if stored.InsertedAt.IsZero() {
		stored.InsertedAt = time.Now().UTC()
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeSearchLogKey(stored.InsertedAt, stored.Id)
		if err := tx.Set(key, storage.MarshalSearchLog(&stored)); err != nil {
			return fmt.Errorf("failed to store search log: %w", err)
		}
		return commitTx(tx)
	}, true)
}

// RecentSearchLogs returns a user's most recent search logs, newest first.
// Limit <= 0 means no limit.
func (r *SearchLogRepository) RecentSearchLogs(ctx context.Context, userID string, limit int) ([]*core.SearchLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var results []*core.SearchLog
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(searchLogPrefix + ":")
		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var log *core.SearchLog
			err := it.Item().Value(func(val []byte) error {
				var err error
				log, err = storage.UnmarshalSearchLog(val)
				return err
			})
			if err != nil {
				return err
			}
			if userID == "" || log.UserId == userID {
				results = append(results, log)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	// Keys are time-ordered ascending; flip for newest first.
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results, nil
}
