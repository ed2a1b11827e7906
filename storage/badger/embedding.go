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
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/chatvault/chatvault/core"
	"github.com/chatvault/chatvault/storage"
)

// EmbeddingRepository implements storage.EmbeddingRepository backed by
// BadgerDB. Embeddings are keyed per (model, message) pair.
type EmbeddingRepository struct {
	backend *Backend
}

// NewEmbeddingRepository creates an embedding repository over the given
// backend.
func NewEmbeddingRepository(backend *Backend) *EmbeddingRepository {
	return &EmbeddingRepository{backend: backend}
}

// WithTransaction delegates to the shared backend.
func (r *EmbeddingRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// Close is a no-op; the backend owns the database lifecycle.
func (r *EmbeddingRepository) Close() error {
	return nil
}

// PutEmbedding stores an embedding for a (message, model) pair. If the pair
// already has an embedding the call is a no-op and created is false, so
// duplicate generation attempts converge without overwrites.
func (r *EmbeddingRepository) PutEmbedding(ctx context.Context, emb *core.Embedding) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := core.ValidateEmbedding(emb); err != nil {
		return false, err
	}

	created := false
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeEmbeddingKey(emb.Model, emb.MessageId)
		_, err := tx.Get(key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("failed to read embedding: %w", err)
		}

		stored := *emb
		if stored.InsertedAt.IsZero() {
			stored.InsertedAt = time.Now().UTC()
		}
		if err := tx.Set(key, storage.MarshalEmbedding(&stored)); err != nil {
			return fmt.Errorf("failed to store embedding: %w", err)
		}
		created = true
		return commitTx(tx)
	}, true)
	if err != nil {
		return false, err
	}
	return created, nil
}

// GetEmbedding retrieves the embedding for a (message, model) pair. Returns
// storage.ErrNotFound when no record exists.
func (r *EmbeddingRepository) GetEmbedding(ctx context.Context, messageID core.ID, model string) (*core.Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var emb *core.Embedding
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeEmbeddingKey(model, messageID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: embedding for message %d model %q", storage.ErrNotFound, messageID, model)
		}
		if err != nil {
			return fmt.Errorf("failed to read embedding: %w", err)
		}
		return item.Value(func(val []byte) error {
			emb, err = storage.UnmarshalEmbedding(val)
			return err
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return emb, nil
}

// MissingEmbeddings returns the subset of the given message IDs that have no
// embedding under the model, preserving input order.
func (r *EmbeddingRepository) MissingEmbeddings(ctx context.Context, model string, ids ...core.ID) ([]core.ID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var missing []core.ID
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			_, err := tx.Get(makeEmbeddingKey(model, id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				missing = append(missing, id)
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to read embedding: %w", err)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return missing, nil
}

// FindSimilar scans all embeddings of the model and ranks messages by dot
// product against the query vector. Both sides are expected to be
// unit-normalized, making the dot product the cosine similarity. Results
// below minSimilarity are dropped; ties are broken by message ID so the
// ordering is deterministic.
func (r *EmbeddingRepository) FindSimilar(ctx context.Context, model string, vector []float32, minSimilarity float32, limit int) ([]core.SimilarityMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, core.ErrInvalidEmbedding
	}

	var matches []core.SimilarityMatch
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := makePartialEmbeddingKey(model)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var emb *core.Embedding
			err := it.Item().Value(func(val []byte) error {
				var err error
				emb, err = storage.UnmarshalEmbedding(val)
				return err
			})
			if err != nil {
				return err
			}
			if len(emb.Vector) != len(vector) {
				continue
			}
			score := dotProduct(vector, emb.Vector)
			if score < minSimilarity {
				continue
			}
			matches = append(matches, core.SimilarityMatch{
				MessageId: emb.MessageId,
				Score:     score,
			})
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].MessageId < matches[j].MessageId
	})
	if limit > 0 && limit < len(matches) {
		matches = matches[:limit]
	}
	return matches, nil
}

// deleteMessageEmbeddings removes every embedding stored for the message,
// across all models. The full embedding keyspace is scanned because the
// model tag sits between the prefix and the message ID.
func deleteMessageEmbeddings(tx *badger.Txn, messageID core.ID) error {
	prefix := []byte(embeddingPrefix + ":")
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := tx.NewIterator(opts)

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		key := it.Item().Key()
		if !bytes.HasPrefix(key, prefix) {
			break
		}
		if keyMessageIDSuffix(key) == messageID {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
	}
	it.Close()

	for _, key := range keys {
		if err := tx.Delete(key); err != nil {
			return fmt.Errorf("failed to delete embedding: %w", err)
		}
	}
	return nil
}

// dotProduct computes the inner product of two equal-length vectors.
func dotProduct(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
