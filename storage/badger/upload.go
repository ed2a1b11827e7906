package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/chatvault/chatvault/core"
	"github.com/chatvault/chatvault/storage"
)

// UploadRepository implements storage.UploadRepository backed by BadgerDB.
type UploadRepository struct {
	backend *Backend
}

// NewUploadRepository creates an upload repository over the given backend.
func NewUploadRepository(backend *Backend) *UploadRepository {
	return &UploadRepository{backend: backend}
}

// WithTransaction delegates to the shared backend.
func (r *UploadRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// Close is a no-op; the backend owns the database lifecycle.
func (r *UploadRepository) Close() error {
	return nil
}

// CreateUpload persists a new upload record. A zero ID gets a fresh UUID;
// Status defaults to processing.
func (r *UploadRepository) CreateUpload(ctx context.Context, upload *core.FileUpload) (*core.FileUpload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if upload.UserId == "" {
		return nil, core.ErrEmptyUserId
	}

	stored := *upload
	if stored.Id == uuid.Nil {
		stored.Id = uuid.New()
	}
	if stored.Status == 0 {
		stored.Status = core.UploadProcessing
	}
	if stored.InsertedAt.IsZero() {
		stored.InsertedAt = time.Now().UTC()
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeUploadKey(stored.Id), storage.MarshalFileUpload(&stored)); err != nil {
			return fmt.Errorf("failed to store upload: %w", err)
		}
		return commitTx(tx)
	}, true)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// GetUpload retrieves an upload record by ID. Returns storage.ErrNotFound
// when no record exists.
func (r *UploadRepository) GetUpload(ctx context.Context, id uuid.UUID) (*core.FileUpload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var upload *core.FileUpload
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeUploadKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: upload %s", storage.ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to read upload: %w", err)
		}
		return item.Value(func(val []byte) error {
			upload, err = storage.UnmarshalFileUpload(val)
			return err
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return upload, nil
}

// UpdateUpload overwrites an existing upload record. Returns
// storage.ErrNotFound when no record exists.
func (r *UploadRepository) UpdateUpload(ctx context.Context, upload *core.FileUpload) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeUploadKey(upload.Id)
		if _, err := tx.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: upload %s", storage.ErrNotFound, upload.Id)
			}
			return fmt.Errorf("failed to read upload: %w", err)
		}
		if err := tx.Set(key, storage.MarshalFileUpload(upload)); err != nil {
			return fmt.Errorf("failed to store upload: %w", err)
		}
		return commitTx(tx)
	}, true)
}

// ListUploads returns a user's upload records, newest first. Limit <= 0
// means no limit.
func (r *UploadRepository) ListUploads(ctx context.Context, userID string, limit int) ([]*core.FileUpload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var results []*core.FileUpload
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(uploadPrefix + ":")
		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var upload *core.FileUpload
			err := it.Item().Value(func(val []byte) error {
				var err error
				upload, err = storage.UnmarshalFileUpload(val)
				return err
			})
			if err != nil {
				return err
			}
			if userID == "" || upload.UserId == userID {
				results = append(results, upload)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		if !results[i].InsertedAt.Equal(results[j].InsertedAt) {
			return results[i].InsertedAt.After(results[j].InsertedAt)
		}
		return results[i].Id.String() < results[j].Id.String()
	})
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results, nil
}
