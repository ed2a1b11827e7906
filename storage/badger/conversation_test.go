package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chatvault/chatvault/core"
	"github.com/chatvault/chatvault/storage"
)

func TestConversationPutGet(t *testing.T) {
	store, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	conv := &core.Conversation{
		Id:         core.ConversationDedupID("alice", core.ProviderChatGPT, "ext-1"),
		UserId:     "alice",
		Provider:   core.ProviderChatGPT,
		ExternalId: "ext-1",
		Title:      "Trip planning",
	}

	stored, err := store.Conversations.PutConversation(ctx, conv)
	if err != nil {
		t.Fatalf("Failed to put conversation: %v", err)
	}
	if stored.InsertedAt.IsZero() || stored.UpdatedAt.IsZero() {
		t.Fatal("Expected timestamps to be set")
	}

	retrieved, err := store.Conversations.GetConversation(ctx, conv.Id)
	if err != nil {
		t.Fatalf("Failed to get conversation: %v", err)
	}
	if retrieved.Title != "Trip planning" {
		t.Fatalf("Expected 'Trip planning', got '%s'", retrieved.Title)
	}

	// Updating keeps the original InsertedAt.
	stored.Title = "Trip planning v2"
	updated, err := store.Conversations.PutConversation(ctx, stored)
	if err != nil {
		t.Fatalf("Failed to update conversation: %v", err)
	}
	if !updated.InsertedAt.Equal(stored.InsertedAt) {
		t.Fatal("Expected InsertedAt to survive updates")
	}
	if updated.Title != "Trip planning v2" {
		t.Fatalf("Expected updated title, got '%s'", updated.Title)
	}
}

func TestConversationGetMissing(t *testing.T) {
	store, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	_, err = store.Conversations.GetConversation(context.Background(), core.ID(12345))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestFindConversation(t *testing.T) {
	store, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	conv := &core.Conversation{
		Id:         core.ConversationDedupID("alice", core.ProviderClaude, "conv-uuid"),
		UserId:     "alice",
		Provider:   core.ProviderClaude,
		ExternalId: "conv-uuid",
	}
	if _, err := store.Conversations.PutConversation(ctx, conv); err != nil {
		t.Fatalf("Failed to put conversation: %v", err)
	}

	found, err := store.Conversations.FindConversation(ctx, "alice", core.ProviderClaude, "conv-uuid")
	if err != nil {
		t.Fatalf("Failed to find conversation: %v", err)
	}
	if found == nil || found.Id != conv.Id {
		t.Fatal("Expected to find the stored conversation")
	}

	// Different user, same external id: distinct identity.
	found, err = store.Conversations.FindConversation(ctx, "bob", core.ProviderClaude, "conv-uuid")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if found != nil {
		t.Fatal("Expected no match for another user")
	}

	// Empty external id never matches anything.
	found, err = store.Conversations.FindConversation(ctx, "alice", core.ProviderClaude, "")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if found != nil {
		t.Fatal("Expected no match for empty external id")
	}
}

func TestListConversationsOrderAndFilter(t *testing.T) {
	store, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	for i, spec := range []struct {
		user     string
		provider core.Provider
		extID    string
		lastAt   time.Time
	}{
		{"alice", core.ProviderChatGPT, "a", now.Add(-2 * time.Hour)},
		{"alice", core.ProviderClaude, "b", now},
		{"bob", core.ProviderChatGPT, "c", now.Add(-1 * time.Hour)},
	} {
		conv := &core.Conversation{
			Id:            core.ConversationDedupID(spec.user, spec.provider, spec.extID),
			UserId:        spec.user,
			Provider:      spec.provider,
			ExternalId:    spec.extID,
			LastMessageAt: spec.lastAt,
		}
		if _, err := store.Conversations.PutConversation(ctx, conv); err != nil {
			t.Fatalf("Failed to put conversation %d: %v", i, err)
		}
	}

	all, err := store.Conversations.ListConversations(ctx, storage.ConversationFilter{}, 0, 0)
	if err != nil {
		t.Fatalf("Failed to list conversations: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 conversations, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].LastMessageAt.After(all[i-1].LastMessageAt) {
			t.Fatal("Expected descending last message order")
		}
	}

	alice, err := store.Conversations.ListConversations(ctx, storage.ConversationFilter{UserId: "alice"}, 0, 0)
	if err != nil {
		t.Fatalf("Failed to list conversations: %v", err)
	}
	if len(alice) != 2 {
		t.Fatalf("Expected 2 conversations for alice, got %d", len(alice))
	}

	paged, err := store.Conversations.ListConversations(ctx, storage.ConversationFilter{}, 1, 1)
	if err != nil {
		t.Fatalf("Failed to list conversations: %v", err)
	}
	if len(paged) != 1 {
		t.Fatalf("Expected 1 conversation on page, got %d", len(paged))
	}
	if paged[0].ExternalId != "c" {
		t.Fatalf("Expected second-newest conversation, got external id %q", paged[0].ExternalId)
	}
}

func TestDeleteConversationCascades(t *testing.T) {
	store, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	convID := core.ConversationDedupID("alice", core.ProviderChatGPT, "doomed")
	conv := &core.Conversation{
		Id:         convID,
		UserId:     "alice",
		Provider:   core.ProviderChatGPT,
		ExternalId: "doomed",
	}
	if _, err := store.Conversations.PutConversation(ctx, conv); err != nil {
		t.Fatalf("Failed to put conversation: %v", err)
	}

	msg := &core.Message{
		Id:             core.MessageDedupID(convID, "m1"),
		UserId:         "alice",
		ConversationId: convID,
		ExternalId:     "m1",
		Role:           core.RoleUser,
		Contents:       "delete me",
	}
	if _, err := store.Messages.AddMessages(ctx, msg); err != nil {
		t.Fatalf("Failed to add message: %v", err)
	}
	created, err := store.Embeddings.PutEmbedding(ctx, &core.Embedding{
		MessageId: msg.Id,
		Model:     "test-model",
		Vector:    []float32{1, 0, 0},
	})
	if err != nil || !created {
		t.Fatalf("Failed to put embedding: created=%v err=%v", created, err)
	}

	if err := store.Conversations.DeleteConversation(ctx, convID); err != nil {
		t.Fatalf("Failed to delete conversation: %v", err)
	}

	if _, err := store.Conversations.GetConversation(ctx, convID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected conversation gone, got %v", err)
	}
	if _, err := store.Messages.GetMessage(ctx, msg.Id); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected message gone, got %v", err)
	}
	if _, err := store.Embeddings.GetEmbedding(ctx, msg.Id, "test-model"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected embedding gone, got %v", err)
	}
}

func TestRecomputeStats(t *testing.T) {
	store, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	convID := core.ConversationDedupID("alice", core.ProviderChatGPT, "stats")
	conv := &core.Conversation{
		Id:         convID,
		UserId:     "alice",
		Provider:   core.ProviderChatGPT,
		ExternalId: "stats",
	}
	if _, err := store.Conversations.PutConversation(ctx, conv); err != nil {
		t.Fatalf("Failed to put conversation: %v", err)
	}

	messages := []*core.Message{
		{
			Id:             core.MessageDedupID(convID, "m1"),
			UserId:         "alice",
			ConversationId: convID,
			ExternalId:     "m1",
			Role:           core.RoleUser,
			Contents:       "hello world",
			WordCount:      2,
			Timestamp:      now.Add(-time.Hour),
		},
		{
			Id:             core.MessageDedupID(convID, "m2"),
			UserId:         "alice",
			ConversationId: convID,
			ExternalId:     "m2",
			Role:           core.RoleAssistant,
			Contents:       "goodbye world",
			WordCount:      2,
			Timestamp:      now,
		},
		{
			// Undated messages count but don't move the date range.
			Id:             core.MessageDedupID(convID, "m3"),
			UserId:         "alice",
			ConversationId: convID,
			ExternalId:     "m3",
			Role:           core.RoleSystem,
			Contents:       "no timestamp here",
			WordCount:      3,
		},
	}
	if _, err := store.Messages.AddMessages(ctx, messages...); err != nil {
		t.Fatalf("Failed to add messages: %v", err)
	}

	updated, err := store.Conversations.RecomputeStats(ctx, convID)
	if err != nil {
		t.Fatalf("Failed to recompute stats: %v", err)
	}
	if updated.MessageCount != 3 {
		t.Fatalf("Expected message count 3, got %d", updated.MessageCount)
	}
	if updated.WordCount != 7 {
		t.Fatalf("Expected word count 7, got %d", updated.WordCount)
	}
	if !updated.FirstMessageAt.Equal(now.Add(-time.Hour)) {
		t.Fatalf("Expected first message at %v, got %v", now.Add(-time.Hour), updated.FirstMessageAt)
	}
	if !updated.LastMessageAt.Equal(now) {
		t.Fatalf("Expected last message at %v, got %v", now, updated.LastMessageAt)
	}
}
