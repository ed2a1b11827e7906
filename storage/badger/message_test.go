package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chatvault/chatvault/core"
	"github.com/chatvault/chatvault/storage"
)

func addTestConversation(t *testing.T, store *Store, user, extID string) core.ID {
	t.Helper()
	id := core.ConversationDedupID(user, core.ProviderChatGPT, extID)
	_, err := store.Conversations.PutConversation(context.Background(), &core.Conversation{
		Id:         id,
		UserId:     user,
		Provider:   core.ProviderChatGPT,
		ExternalId: extID,
	})
	if err != nil {
		t.Fatalf("Failed to put conversation: %v", err)
	}
	return id
}

func TestAddMessagesSkipsExisting(t *testing.T) {
	store, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	convID := addTestConversation(t, store, "alice", "dedup")

	msg := &core.Message{
		Id:             core.MessageDedupID(convID, "m1"),
		UserId:         "alice",
		ConversationId: convID,
		ExternalId:     "m1",
		Role:           core.RoleUser,
		Contents:       "hello world",
		WordCount:      2,
	}

	added, err := store.Messages.AddMessages(ctx, msg)
	if err != nil {
		t.Fatalf("Failed to add message: %v", err)
	}
	if len(added) != 1 {
		t.Fatalf("Expected 1 added message, got %d", len(added))
	}

	// Same ID again: skipped, nothing returned.
	added, err = store.Messages.AddMessages(ctx, msg)
	if err != nil {
		t.Fatalf("Failed to re-add message: %v", err)
	}
	if len(added) != 0 {
		t.Fatalf("Expected 0 added messages on re-ingest, got %d", len(added))
	}

	all, err := store.Messages.GetConversationMessages(ctx, convID)
	if err != nil {
		t.Fatalf("Failed to get conversation messages: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(all))
	}
}

func TestGetConversationMessagesOrder(t *testing.T) {
	store, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	convID := addTestConversation(t, store, "alice", "ordered")
	now := time.Now().UTC().Truncate(time.Microsecond)

	messages := []*core.Message{
		{
			Id:             core.MessageDedupID(convID, "late"),
			UserId:         "alice",
			ConversationId: convID,
			ExternalId:     "late",
			Role:           core.RoleAssistant,
			Contents:       "third",
			Timestamp:      now,
		},
		{
			Id:             core.MessageDedupID(convID, "early"),
			UserId:         "alice",
			ConversationId: convID,
			ExternalId:     "early",
			Role:           core.RoleUser,
			Contents:       "second",
			Timestamp:      now.Add(-time.Hour),
		},
		{
			Id:             core.MessageDedupID(convID, "undated"),
			UserId:         "alice",
			ConversationId: convID,
			ExternalId:     "undated",
			Role:           core.RoleSystem,
			Contents:       "first",
		},
	}
	if _, err := store.Messages.AddMessages(ctx, messages...); err != nil {
		t.Fatalf("Failed to add messages: %v", err)
	}

	ordered, err := store.Messages.GetConversationMessages(ctx, convID)
	if err != nil {
		t.Fatalf("Failed to get conversation messages: %v", err)
	}
	if len(ordered) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(ordered))
	}
	if ordered[0].Contents != "first" || ordered[1].Contents != "second" || ordered[2].Contents != "third" {
		t.Fatalf("Unexpected order: %q, %q, %q", ordered[0].Contents, ordered[1].Contents, ordered[2].Contents)
	}
}

func TestListMessagesFilters(t *testing.T) {
	store, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	convA := addTestConversation(t, store, "alice", "conv-a")
	convB := addTestConversation(t, store, "alice", "conv-b")
	now := time.Now().UTC().Truncate(time.Microsecond)

	messages := []*core.Message{
		{
			Id:             core.MessageDedupID(convA, "a1"),
			UserId:         "alice",
			ConversationId: convA,
			ExternalId:     "a1",
			Role:           core.RoleUser,
			Contents:       "question",
			Timestamp:      now.Add(-2 * time.Hour),
		},
		{
			Id:             core.MessageDedupID(convA, "a2"),
			UserId:         "alice",
			ConversationId: convA,
			ExternalId:     "a2",
			Role:           core.RoleAssistant,
			Contents:       "answer",
			Timestamp:      now,
		},
		{
			Id:             core.MessageDedupID(convB, "b1"),
			UserId:         "alice",
			ConversationId: convB,
			ExternalId:     "b1",
			Role:           core.RoleUser,
			Contents:       "undated in conv-b",
		},
	}
	if _, err := store.Messages.AddMessages(ctx, messages...); err != nil {
		t.Fatalf("Failed to add messages: %v", err)
	}

	byConv, err := store.Messages.ListMessages(ctx, storage.MessageFilter{ConversationIds: []core.ID{convA}})
	if err != nil {
		t.Fatalf("Failed to list messages: %v", err)
	}
	if len(byConv) != 2 {
		t.Fatalf("Expected 2 messages in conv-a, got %d", len(byConv))
	}

	byRole, err := store.Messages.ListMessages(ctx, storage.MessageFilter{Role: core.RoleUser})
	if err != nil {
		t.Fatalf("Failed to list messages: %v", err)
	}
	if len(byRole) != 2 {
		t.Fatalf("Expected 2 user messages, got %d", len(byRole))
	}

	// Date bounds exclude undated messages entirely.
	byDate, err := store.Messages.ListMessages(ctx, storage.MessageFilter{
		From: now.Add(-3 * time.Hour),
		To:   now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Failed to list messages: %v", err)
	}
	if len(byDate) != 2 {
		t.Fatalf("Expected 2 dated messages in range, got %d", len(byDate))
	}
	for _, msg := range byDate {
		if msg.Timestamp.IsZero() {
			t.Fatal("Undated message leaked through date filter")
		}
	}
}

func TestDeleteMessages(t *testing.T) {
	store, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	convID := addTestConversation(t, store, "alice", "del")
	msg := &core.Message{
		Id:             core.MessageDedupID(convID, "m1"),
		UserId:         "alice",
		ConversationId: convID,
		ExternalId:     "m1",
		Role:           core.RoleUser,
		Contents:       "bye",
	}
	if _, err := store.Messages.AddMessages(ctx, msg); err != nil {
		t.Fatalf("Failed to add message: %v", err)
	}

	if err := store.Messages.DeleteMessages(ctx, msg.Id); err != nil {
		t.Fatalf("Failed to delete message: %v", err)
	}
	if _, err := store.Messages.GetMessage(ctx, msg.Id); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	if err := store.Messages.DeleteMessages(ctx, msg.Id); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound on double delete, got %v", err)
	}
}
