package core

import (
	"encoding/binary"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// ID is a unique identifier for conversations and messages.
// It is generated using content-based hashing of the entity's dedup key.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Provider identifies the AI chat service a conversation was exported from.
type Provider int

const (
	// ProviderChatGPT represents OpenAI ChatGPT exports.
	ProviderChatGPT Provider = iota + 1
	// ProviderClaude represents Anthropic Claude exports.
	ProviderClaude
)

// String returns the wire name of the provider.
func (p Provider) String() string {
	switch p {
	case ProviderChatGPT:
		return "chatgpt"
	case ProviderClaude:
		return "claude"
	default:
		return "unknown"
	}
}

// ParseProvider maps a wire name to a Provider.
// Returns ErrInvalidProvider for unrecognized names.
func ParseProvider(s string) (Provider, error) {
	switch s {
	case "chatgpt":
		return ProviderChatGPT, nil
	case "claude":
		return ProviderClaude, nil
	default:
		return 0, ErrInvalidProvider
	}
}

// Role identifies the author of a message within a conversation.
type Role int

const (
	// RoleUser represents the human user.
	RoleUser Role = iota + 1
	// RoleAssistant represents the AI assistant.
	RoleAssistant
	// RoleSystem represents system or tool messages.
	RoleSystem
)

// String returns the wire name of the role.
func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	case RoleSystem:
		return "system"
	default:
		return "unknown"
	}
}

// ParseRole maps a wire name to a Role.
// Returns ErrInvalidRole for unrecognized names.
func ParseRole(s string) (Role, error) {
	switch s {
	case "user", "human":
		return RoleUser, nil
	case "assistant", "ai":
		return RoleAssistant, nil
	case "system", "tool":
		return RoleSystem, nil
	default:
		return 0, ErrInvalidRole
	}
}

// UploadStatus tracks the lifecycle of a FileUpload job.
// A job is terminal once its status leaves UploadProcessing.
type UploadStatus int

const (
	// UploadProcessing means the job is still consuming its export payload.
	UploadProcessing UploadStatus = iota + 1
	// UploadCompleted means the payload was exhausted, possibly with per-record errors.
	UploadCompleted
	// UploadFailed means the payload could not be opened or parsed at all.
	UploadFailed
)

// String returns the wire name of the status.
func (s UploadStatus) String() string {
	switch s {
	case UploadProcessing:
		return "processing"
	case UploadCompleted:
		return "completed"
	case UploadFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SearchMode selects the ranking signal combination for a query.
type SearchMode int

const (
	// SearchModeLexical ranks by term-frequency/coverage only ("fts" on the wire).
	SearchModeLexical SearchMode = iota + 1
	// SearchModeSemantic ranks by embedding cosine similarity only ("vector" on the wire).
	SearchModeSemantic
	// SearchModeHybrid blends both signals with a weighting factor alpha.
	SearchModeHybrid
)

// String returns the wire name of the mode.
func (m SearchMode) String() string {
	switch m {
	case SearchModeLexical:
		return "fts"
	case SearchModeSemantic:
		return "vector"
	case SearchModeHybrid:
		return "hybrid"
	default:
		return "unknown"
	}
}

// ParseSearchMode maps a wire name to a SearchMode.
// Returns ErrInvalidSearchMode for unrecognized names.
func ParseSearchMode(s string) (SearchMode, error) {
	switch s {
	case "fts", "lexical":
		return SearchModeLexical, nil
	case "vector", "semantic":
		return SearchModeSemantic, nil
	case "hybrid":
		return SearchModeHybrid, nil
	default:
		return 0, ErrInvalidSearchMode
	}
}

// Conversation is the provider-independent record of one exported conversation.
// The counter fields are derived aggregates over the current message set and
// are never independently authoritative.
type Conversation struct {
	Id             ID
	UserId         string
	ProjectId      string // Optional project grouping; empty means none
	Provider       Provider
	ExternalId     string // Provider-native conversation id; empty means absent
	Title          string
	SourceFile     string // Export file the conversation was first seen in
	Metadata       map[string]string
	MessageCount   int
	WordCount      int
	FirstMessageAt time.Time // Zero when the conversation has no dated messages
	LastMessageAt  time.Time
	Archived       bool
	InsertedAt     time.Time
	UpdatedAt      time.Time
}

// Message is a single normalized message owned by exactly one conversation.
type Message struct {
	Id             ID
	UserId         string
	ConversationId ID
	ExternalId     string // Provider-native message id; empty means absent
	Role           Role
	Contents       string
	WordCount      int       // Computed once at ingestion with CountWords
	Timestamp      time.Time // Zero when the provider omitted it
	Metadata       map[string]string
	InsertedAt     time.Time
}

// Embedding is the vector representation of one message under one model.
// At most one embedding exists per (message, model) pair.
type Embedding struct {
	MessageId  ID
	Model      string
	Vector     []float32 // Unit-normalized at write time
	InsertedAt time.Time
}

// FileUpload tracks one ingestion job. It is created when the job starts and
// mutated only by the ingestion coordinator.
type FileUpload struct {
	Id                     uuid.UUID
	UserId                 string
	Filename               string
	SizeBytes              int64
	FileType               string // e.g. "chatgpt_export", "claude_export"
	Provider               Provider
	Status                 UploadStatus
	ProcessedConversations int
	ProcessedMessages      int
	ErrorSummary           string
	InsertedAt             time.Time
	CompletedAt            time.Time // Zero until the job is terminal
}

// SearchLog is an immutable audit record of one search invocation.
type SearchLog struct {
	Id            uuid.UUID
	UserId        string
	Query         string
	Mode          SearchMode
	Filters       map[string]string
	ResultCount   int
	ExecutionTime time.Duration
	InsertedAt    time.Time
}

// SimilarityMatch is one hit from a vector similarity scan.
type SimilarityMatch struct {
	MessageId ID
	Score     float32
}

// ConversationDedupID derives the ID of a conversation from its dedup key.
// Re-ingesting an export with the same (user, provider, external id) therefore
// resolves to the same conversation.
func ConversationDedupID(userID string, provider Provider, externalID string) ID {
	return IDFromContent(userID + "\x00" + provider.String() + "\x00" + externalID)
}

// MessageDedupID derives the ID of a message carrying a provider-native id.
func MessageDedupID(conversationID ID, externalID string) ID {
	return IDFromContent(strconv.FormatUint(uint64(conversationID), 10) + "\x00" + externalID)
}

// MessageContentDedupID derives the ID of a message the provider exported
// without an id. Role, timestamp and content identify the message, so
// identical payloads stay idempotent on re-ingest.
func MessageContentDedupID(conversationID ID, role Role, timestamp time.Time, contents string) ID {
	return IDFromContent(strconv.FormatUint(uint64(conversationID), 10) +
		"\x00" + role.String() +
		"\x00" + strconv.FormatInt(timestamp.UnixMicro(), 10) +
		"\x00" + contents)
}
