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
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/chatvault/chatvault/core"
	"github.com/chatvault/chatvault/storage"
)

// statsMaxRetries bounds the number of attempts to recompute conversation
// statistics when concurrent writers keep producing transaction conflicts.
const statsMaxRetries = 5

// ConversationRepository implements storage.ConversationRepository backed by
// BadgerDB.
type ConversationRepository struct {
	backend *Backend
}

// NewConversationRepository creates a conversation repository over the given
// backend.
func NewConversationRepository(backend *Backend) *ConversationRepository {
	return &ConversationRepository{backend: backend}
}

// WithTransaction delegates to the shared backend.
func (r *ConversationRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// Close is a no-op; the backend owns the database lifecycle.
func (r *ConversationRepository) Close() error {
	return nil
}

// PutConversation inserts or replaces a conversation record. InsertedAt is
// preserved across updates; UpdatedAt is always refreshed.
func (r *ConversationRepository) PutConversation(ctx context.Context, conv *core.Conversation) (*core.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := core.ValidateConversation(conv); err != nil {
		return nil, err
	}

	stored := *conv
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		now := time.Now().UTC()
		existing, err := getConversation(tx, stored.Id)
		if err != nil {
			return err
		}
		if existing != nil {
			stored.InsertedAt = existing.InsertedAt
		} else if stored.InsertedAt.IsZero() {
			stored.InsertedAt = now
		}
		stored.UpdatedAt = now

		if err := tx.Set(makeConversationKey(stored.Id), storage.MarshalConversation(&stored)); err != nil {
			return fmt.Errorf("failed to store conversation: %w", err)
		}
		return commitTx(tx)
	}, true)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// GetConversation retrieves a conversation by ID. Returns
// storage.ErrNotFound when no record exists.
func (r *ConversationRepository) GetConversation(ctx context.Context, id core.ID) (*core.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var conv *core.Conversation
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		conv, err = getConversation(tx, id)
		if err != nil {
			return err
		}
		if conv == nil {
			return fmt.Errorf("%w: conversation %d", storage.ErrNotFound, id)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// FindConversation looks up a conversation by its provider identity. Returns
// (nil, nil) when the external ID is empty or no record exists; absence is
// not an error here because ingestion probes before inserting.
func (r *ConversationRepository) FindConversation(ctx context.Context, userID string, provider core.Provider, externalID string) (*core.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if externalID == "" {
		return nil, nil
	}

	id := core.ConversationDedupID(userID, provider, externalID)
	var conv *core.Conversation
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		conv, err = getConversation(tx, id)
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// ListConversations returns conversations matching the filter, ordered by
// last message date descending with ID as tie-breaker. Offset and limit
// apply after ordering; limit <= 0 means no limit.
func (r *ConversationRepository) ListConversations(ctx context.Context, filter storage.ConversationFilter, limit, offset int) ([]*core.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var results []*core.Conversation
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(conversationPrefix + ":")
		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var conv *core.Conversation
			err := it.Item().Value(func(val []byte) error {
				var err error
				conv, err = storage.UnmarshalConversation(val)
				return err
			})
			if err != nil {
				return err
			}
			if matchConversationFilter(conv, filter) {
				results = append(results, conv)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		if !results[i].LastMessageAt.Equal(results[j].LastMessageAt) {
			return results[i].LastMessageAt.After(results[j].LastMessageAt)
		}
		return results[i].Id < results[j].Id
	})
	return paginate(results, limit, offset), nil
}

// DeleteConversation removes a conversation along with its messages and
// their embeddings. Returns storage.ErrNotFound when no record exists.
func (r *ConversationRepository) DeleteConversation(ctx context.Context, id core.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		conv, err := getConversation(tx, id)
		if err != nil {
			return err
		}
		if conv == nil {
			return fmt.Errorf("%w: conversation %d", storage.ErrNotFound, id)
		}

		messageIDs, err := conversationMessageIDs(tx, id)
		if err != nil {
			return err
		}
		for _, msgID := range messageIDs {
			msg, err := getMessage(tx, msgID)
			if err != nil {
				return err
			}
			if msg != nil {
				if err := deleteMessageRecord(tx, msg); err != nil {
					return err
				}
			}
		}
		if err := tx.Delete(makeConversationKey(id)); err != nil {
			return fmt.Errorf("failed to delete conversation: %w", err)
		}
		return commitTx(tx)
	}, true)
}

// RecomputeStats recalculates the denormalized statistics of a conversation
// from its authoritative message set. Conflicting writers are retried; after
// statsMaxRetries failed attempts ErrConflictRetryExhausted is returned.
func (r *ConversationRepository) RecomputeStats(ctx context.Context, id core.ID) (*core.Conversation, error) {
	var lastErr error
	for attempt := 0; attempt < statsMaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		conv, err := r.recomputeStatsOnce(id)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return nil, err
		}
		lastErr = err
		r.backend.logger.Debug("stats recompute conflict, retrying",
			"conversation_id", uint64(id), "attempt", attempt+1)
	}
	return nil, fmt.Errorf("%w: %w", storage.ErrConflictRetryExhausted, lastErr)
}

func (r *ConversationRepository) recomputeStatsOnce(id core.ID) (*core.Conversation, error) {
	var conv *core.Conversation
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		conv, err = getConversation(tx, id)
		if err != nil {
			return err
		}
		if conv == nil {
			return fmt.Errorf("%w: conversation %d", storage.ErrNotFound, id)
		}

		messageIDs, err := conversationMessageIDs(tx, id)
		if err != nil {
			return err
		}

		var (
			count, words int
			first, last  time.Time
		)
		for _, msgID := range messageIDs {
			msg, err := getMessage(tx, msgID)
			if err != nil {
				return err
			}
			if msg == nil {
				continue
			}
			count++
			words += msg.WordCount
			if !msg.Timestamp.IsZero() {
				if first.IsZero() || msg.Timestamp.Before(first) {
					first = msg.Timestamp
				}
				if last.IsZero() || msg.Timestamp.After(last) {
					last = msg.Timestamp
				}
			}
		}

		conv.MessageCount = count
		conv.WordCount = words
		conv.FirstMessageAt = first
		conv.LastMessageAt = last
		conv.UpdatedAt = time.Now().UTC()

		if err := tx.Set(makeConversationKey(id), storage.MarshalConversation(conv)); err != nil {
			return fmt.Errorf("failed to store conversation: %w", err)
		}
		return commitTx(tx)
	}, true)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// getConversation reads a conversation inside an existing transaction.
// Returns (nil, nil) when the key is absent.
func getConversation(tx *badger.Txn, id core.ID) (*core.Conversation, error) {
	item, err := tx.Get(makeConversationKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation: %w", err)
	}
	var conv *core.Conversation
	err = item.Value(func(val []byte) error {
		var err error
		conv, err = storage.UnmarshalConversation(val)
		return err
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func matchConversationFilter(conv *core.Conversation, filter storage.ConversationFilter) bool {
	if filter.UserId != "" && conv.UserId != filter.UserId {
		return false
	}
	if filter.Provider != 0 && conv.Provider != filter.Provider {
		return false
	}
	if filter.ProjectId != "" && conv.ProjectId != filter.ProjectId {
		return false
	}
	if filter.Archived != nil && conv.Archived != *filter.Archived {
		return false
	}
	return true
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
