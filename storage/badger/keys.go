package badger

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"

	"github.com/chatvault/chatvault/core"
)

// Key prefixes for different data types
const (
	conversationPrefix = "convrec"
	messagePrefix      = "msgrec"
	messageConvPrefix  = "msgconv"
	messageDatePrefix  = "msgdate"
	embeddingPrefix    = "embrec"
	uploadPrefix       = "uplrec"
	searchLogPrefix    = "slogrec"
)

// makeConversationKey generates a key for a conversation by ID.
func makeConversationKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", conversationPrefix, id))
}

// makeMessageKey generates a key for a message by ID.
func makeMessageKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", messagePrefix, id))
}

// makeMessageConvKey generates a composite key for the conversation index.
// Format: prefix:conversationID:messageID
func makeMessageConvKey(conversationID, messageID core.ID) []byte {
	prefix := []byte(messageConvPrefix + ":")
	buf := make([]byte, len(prefix)+16)
	offset := copy(buf, prefix)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(conversationID))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(messageID))
	return buf
}

// makePartialMessageConvKey generates a partial key for per-conversation scans.
func makePartialMessageConvKey(conversationID core.ID) []byte {
	prefix := []byte(messageConvPrefix + ":")
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(conversationID))
	return buf
}

// makeMessageDateKey generates a composite key for the date index.
// Only dated messages are indexed here; undated ones have no position on the
// timeline.
// Format: prefix:timestamp:messageID
func makeMessageDateKey(timestamp time.Time, id core.ID) []byte {
	prefix := []byte(messageDatePrefix + ":")
	buf := make([]byte, len(prefix)+16)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(timestamp.UnixMicro()))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// modelTag derives a fixed-width tag for an embedding model identifier so
// model names of any length nest cleanly inside composite keys.
func modelTag(model string) []byte {
	h, _ := blake2b.New(8, nil)
	h.Write([]byte(model))
	return h.Sum(nil)
}

// makeEmbeddingKey generates a composite key for an embedding record.
// Format: prefix:modelTag:messageID
func makeEmbeddingKey(model string, messageID core.ID) []byte {
	prefix := []byte(embeddingPrefix + ":")
	tag := modelTag(model)
	buf := make([]byte, len(prefix)+len(tag)+8)
	offset := copy(buf, prefix)
	offset += copy(buf[offset:], tag)
	binary.BigEndian.PutUint64(buf[offset:], uint64(messageID))
	return buf
}

// makePartialEmbeddingKey generates a partial key for per-model scans.
func makePartialEmbeddingKey(model string) []byte {
	prefix := []byte(embeddingPrefix + ":")
	tag := modelTag(model)
	buf := make([]byte, len(prefix)+len(tag))
	offset := copy(buf, prefix)
	copy(buf[offset:], tag)
	return buf
}

// keyMessageIDSuffix extracts the trailing message ID from a composite
// index or embedding key.
func keyMessageIDSuffix(key []byte) core.ID {
	if len(key) < 8 {
		return 0
	}
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:]))
}

// makeUploadKey generates a key for an upload record by ID.
func makeUploadKey(id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("%s:%s", uploadPrefix, id.String()))
}

// makeSearchLogKey generates a composite key for a search log entry.
// Format: prefix:timestamp:uuid — timestamp first so scans are time-ordered.
func makeSearchLogKey(ts time.Time, id uuid.UUID) []byte {
	prefix := []byte(searchLogPrefix + ":")
	buf := make([]byte, len(prefix)+8+16)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(ts.UnixMicro()))
	offset += 8
	copy(buf[offset:], id[:])
	return buf
}
