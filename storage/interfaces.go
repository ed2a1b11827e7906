package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/chatvault/chatvault/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// MessageFilter restricts message listings. Zero values mean "any".
// All predicates are hard filters, never soft ranking signals.
type MessageFilter struct {
	UserId          string
	ConversationIds []core.ID // nil means any conversation
	Role            core.Role
	From            time.Time
	To              time.Time
}

// ConversationFilter restricts conversation listings. Zero values mean "any".
type ConversationFilter struct {
	UserId    string
	Provider  core.Provider
	ProjectId string
	Archived  *bool
}

// ConversationRepository provides operations for managing conversations.
type ConversationRepository interface {
	Repository

	// PutConversation writes a conversation keyed by its ID.
	// Sets InsertedAt on first write and UpdatedAt on every write.
	PutConversation(ctx context.Context, conv *core.Conversation) (*core.Conversation, error)

	// GetConversation retrieves a conversation by ID.
	// Returns ErrNotFound if it doesn't exist.
	GetConversation(ctx context.Context, id core.ID) (*core.Conversation, error)

	// FindConversation looks a conversation up by its dedup key.
	// Returns nil, nil when no conversation matches.
	FindConversation(ctx context.Context, userID string, provider core.Provider, externalID string) (*core.Conversation, error)

	// ListConversations returns conversations matching the filter, ordered by
	// last message date descending.
	ListConversations(ctx context.Context, filter ConversationFilter, limit, offset int) ([]*core.Conversation, error)

	// DeleteConversation removes a conversation together with its messages and
	// their embeddings. Returns ErrNotFound if it doesn't exist.
	DeleteConversation(ctx context.Context, id core.ID) error

	// RecomputeStats recalculates the conversation's derived counters from its
	// current message set and persists them. The recomputation runs in its own
	// transaction and retries on write conflicts, so overlapping writers
	// converge on the true aggregate.
	RecomputeStats(ctx context.Context, id core.ID) (*core.Conversation, error)
}

// MessageRepository provides operations for managing messages.
type MessageRepository interface {
	Repository

	// AddMessages inserts messages keyed by their dedup-derived IDs.
	// A message whose ID already exists is skipped, not overwritten; only the
	// newly inserted messages are returned.
	AddMessages(ctx context.Context, messages ...*core.Message) ([]*core.Message, error)

	// GetMessage retrieves a single message by ID.
	// Returns ErrNotFound if it doesn't exist.
	GetMessage(ctx context.Context, id core.ID) (*core.Message, error)

	// GetMessages retrieves multiple messages by their IDs.
	// Returns only the messages that exist (no error for missing ones).
	GetMessages(ctx context.Context, ids ...core.ID) ([]*core.Message, error)

	// GetConversationMessages returns all messages of a conversation, ordered
	// by timestamp ascending, undated messages first, ties by ID.
	GetConversationMessages(ctx context.Context, conversationID core.ID) ([]*core.Message, error)

	// ListMessages returns messages matching the filter.
	ListMessages(ctx context.Context, filter MessageFilter) ([]*core.Message, error)

	// DeleteMessages removes messages by their IDs together with their
	// embeddings. Returns ErrNotFound if any message doesn't exist.
	DeleteMessages(ctx context.Context, ids ...core.ID) error
}

// EmbeddingRepository provides operations for managing message embeddings.
type EmbeddingRepository interface {
	Repository

	// PutEmbedding stores an embedding for a (message, model) pair.
	// Idempotent: if the pair already has an embedding the call is a no-op and
	// created is false.
	PutEmbedding(ctx context.Context, emb *core.Embedding) (created bool, err error)

	// GetEmbedding retrieves the embedding for a (message, model) pair.
	// Returns ErrNotFound if it doesn't exist.
	GetEmbedding(ctx context.Context, messageID core.ID, model string) (*core.Embedding, error)

	// MissingEmbeddings returns the subset of the given message IDs that have
	// no embedding under the model, preserving input order.
	MissingEmbeddings(ctx context.Context, model string, ids ...core.ID) ([]core.ID, error)

	// FindSimilar scans the model's embeddings and returns messages whose
	// cosine similarity to the query vector is >= minSimilarity, best first,
	// up to limit. Vectors are expected to be unit-normalized.
	FindSimilar(ctx context.Context, model string, vector []float32, minSimilarity float32, limit int) ([]core.SimilarityMatch, error)
}

// UploadRepository provides operations for tracking ingestion jobs.
type UploadRepository interface {
	Repository

	// CreateUpload persists a new upload record.
	// Sets InsertedAt and defaults Status to processing.
	CreateUpload(ctx context.Context, upload *core.FileUpload) (*core.FileUpload, error)

	// GetUpload retrieves an upload record by ID.
	// Returns ErrNotFound if it doesn't exist.
	GetUpload(ctx context.Context, id uuid.UUID) (*core.FileUpload, error)

	// UpdateUpload overwrites an existing upload record.
	// Returns ErrNotFound if it doesn't exist.
	UpdateUpload(ctx context.Context, upload *core.FileUpload) error

	// ListUploads returns a user's upload records, newest first.
	ListUploads(ctx context.Context, userID string, limit int) ([]*core.FileUpload, error)
}

// SearchLogRepository provides append-only storage for search audit records.
type SearchLogRepository interface {
	Repository

	// AppendSearchLog persists one search invocation record.
	// Search logs are never mutated after the append.
	AppendSearchLog(ctx context.Context, log *core.SearchLog) error

	// RecentSearchLogs returns a user's most recent search logs, newest first.
	RecentSearchLogs(ctx context.Context, userID string, limit int) ([]*core.SearchLog, error)
}
