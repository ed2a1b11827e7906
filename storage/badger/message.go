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

// MessageRepository implements storage.MessageRepository backed by BadgerDB.
type MessageRepository struct {
	backend *Backend
}

// NewMessageRepository creates a message repository over the given backend.
func NewMessageRepository(backend *Backend) *MessageRepository {
	return &MessageRepository{backend: backend}
}

// WithTransaction delegates to the shared backend.
func (r *MessageRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// Close is a no-op; the backend owns the database lifecycle.
func (r *MessageRepository) Close() error {
	return nil
}

// AddMessages inserts messages keyed by their IDs. Messages whose ID already
// exists are skipped; only newly inserted messages are returned.
func (r *MessageRepository) AddMessages(ctx context.Context, messages ...*core.Message) ([]*core.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, msg := range messages {
		if err := core.ValidateMessage(msg); err != nil {
			return nil, err
		}
	}

	var added []*core.Message
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		added = added[:0]
		now := time.Now().UTC()
		for _, msg := range messages {
			_, err := tx.Get(makeMessageKey(msg.Id))
			if err == nil {
				continue
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("failed to read message: %w", err)
			}

			stored := *msg
			if stored.InsertedAt.IsZero() {
				stored.InsertedAt = now
			}
			if err := tx.Set(makeMessageKey(stored.Id), storage.MarshalMessage(&stored)); err != nil {
				return fmt.Errorf("failed to store message: %w", err)
			}
			if err := tx.Set(makeMessageConvKey(stored.ConversationId, stored.Id), storage.MarshalID(stored.Id)); err != nil {
				return fmt.Errorf("failed to index message: %w", err)
			}
			if !stored.Timestamp.IsZero() {
				if err := tx.Set(makeMessageDateKey(stored.Timestamp, stored.Id), storage.MarshalID(stored.Id)); err != nil {
					return fmt.Errorf("failed to index message date: %w", err)
				}
			}
			s := stored
			added = append(added, &s)
		}
		return commitTx(tx)
	}, true)
	if err != nil {
		return nil, err
	}
	return added, nil
}

// GetMessage retrieves a single message by ID. Returns storage.ErrNotFound
// when no record exists.
func (r *MessageRepository) GetMessage(ctx context.Context, id core.ID) (*core.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var msg *core.Message
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		msg, err = getMessage(tx, id)
		if err != nil {
			return err
		}
		if msg == nil {
			return fmt.Errorf("%w: message %d", storage.ErrNotFound, id)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// GetMessages retrieves multiple messages by ID. Missing IDs are skipped.
func (r *MessageRepository) GetMessages(ctx context.Context, ids ...core.ID) ([]*core.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var results []*core.Message
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			msg, err := getMessage(tx, id)
			if err != nil {
				return err
			}
			if msg != nil {
				results = append(results, msg)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// GetConversationMessages returns all messages of a conversation in timeline
// order: undated messages first, then by timestamp ascending, ties by ID.
func (r *MessageRepository) GetConversationMessages(ctx context.Context, conversationID core.ID) ([]*core.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var results []*core.Message
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		ids, err := conversationMessageIDs(tx, conversationID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			msg, err := getMessage(tx, id)
			if err != nil {
				return err
			}
			if msg != nil {
				results = append(results, msg)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		ti, tj := results[i].Timestamp, results[j].Timestamp
		if ti.IsZero() != tj.IsZero() {
			return ti.IsZero()
		}
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return results[i].Id < results[j].Id
	})
	return results, nil
}

// ListMessages returns messages matching the filter. Date bounds are hard
// predicates: when From or To is set, undated messages are excluded.
func (r *MessageRepository) ListMessages(ctx context.Context, filter storage.MessageFilter) ([]*core.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	convSet := make(map[core.ID]struct{}, len(filter.ConversationIds))
	for _, id := range filter.ConversationIds {
		convSet[id] = struct{}{}
	}

	var results []*core.Message
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(messagePrefix + ":")
		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var msg *core.Message
			err := it.Item().Value(func(val []byte) error {
				var err error
				msg, err = storage.UnmarshalMessage(val)
				return err
			})
			if err != nil {
				return err
			}
			if matchMessageFilter(msg, filter, convSet) {
				results = append(results, msg)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// DeleteMessages removes messages by ID together with their index entries
// and embeddings. Returns storage.ErrNotFound if any ID is absent.
func (r *MessageRepository) DeleteMessages(ctx context.Context, ids ...core.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			msg, err := getMessage(tx, id)
			if err != nil {
				return err
			}
			if msg == nil {
				return fmt.Errorf("%w: message %d", storage.ErrNotFound, id)
			}
			if err := deleteMessageRecord(tx, msg); err != nil {
				return err
			}
		}
		return commitTx(tx)
	}, true)
}

// getMessage reads a message inside an existing transaction. Returns
// (nil, nil) when the key is absent.
func getMessage(tx *badger.Txn, id core.ID) (*core.Message, error) {
	item, err := tx.Get(makeMessageKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	var msg *core.Message
	err = item.Value(func(val []byte) error {
		var err error
		msg, err = storage.UnmarshalMessage(val)
		return err
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// conversationMessageIDs scans the conversation index and returns the IDs of
// all messages in the conversation.
func conversationMessageIDs(tx *badger.Txn, conversationID core.ID) ([]core.ID, error) {
	prefix := makePartialMessageConvKey(conversationID)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := tx.NewIterator(opts)
	defer it.Close()

	var ids []core.ID
	for it.Rewind(); it.Valid(); it.Next() {
		key := it.Item().Key()
		if !bytes.HasPrefix(key, prefix) {
			break
		}
		ids = append(ids, keyMessageIDSuffix(key))
	}
	return ids, nil
}

// deleteMessageRecord removes a message, its index entries, and any
// embeddings stored for it under any model.
func deleteMessageRecord(tx *badger.Txn, msg *core.Message) error {
	if err := tx.Delete(makeMessageKey(msg.Id)); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if err := tx.Delete(makeMessageConvKey(msg.ConversationId, msg.Id)); err != nil {
		return fmt.Errorf("failed to delete message index: %w", err)
	}
	if !msg.Timestamp.IsZero() {
		if err := tx.Delete(makeMessageDateKey(msg.Timestamp, msg.Id)); err != nil {
			return fmt.Errorf("failed to delete message date index: %w", err)
		}
	}
	return deleteMessageEmbeddings(tx, msg.Id)
}

func matchMessageFilter(msg *core.Message, filter storage.MessageFilter, convSet map[core.ID]struct{}) bool {
	if filter.UserId != "" && msg.UserId != filter.UserId {
		return false
	}
	if len(convSet) > 0 {
		if _, ok := convSet[msg.ConversationId]; !ok {
			return false
		}
	}
	if filter.Role != 0 && msg.Role != filter.Role {
		return false
	}
	if !filter.From.IsZero() || !filter.To.IsZero() {
		if msg.Timestamp.IsZero() {
			return false
		}
		if !filter.From.IsZero() && msg.Timestamp.Before(filter.From) {
			return false
		}
		if !filter.To.IsZero() && msg.Timestamp.After(filter.To) {
			return false
		}
	}
	return true
}
