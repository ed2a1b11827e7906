package core

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// Hand-maintained MUS serializers for the stored entities. Field order is the
// wire format; append new fields at the end only.

// IDMUS serializes ID values.
var IDMUS = idMUS{}

type idMUS struct{}

func (idMUS) Marshal(v ID, bs []byte) int {
	return varint.Uint64.Marshal(uint64(v), bs)
}

func (idMUS) Unmarshal(bs []byte) (ID, int, error) {
	raw, n, err := varint.Uint64.Unmarshal(bs)
	return ID(raw), n, err
}

func (idMUS) Size(v ID) int {
	return varint.Uint64.Size(uint64(v))
}

// ConversationMUS serializes Conversation values.
var ConversationMUS = conversationMUS{}

type conversationMUS struct{}

func (conversationMUS) Marshal(v Conversation, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(v.Id), bs)
	n += ord.String.Marshal(v.UserId, bs[n:])
	n += ord.String.Marshal(v.ProjectId, bs[n:])
	n += varint.Int.Marshal(int(v.Provider), bs[n:])
	n += ord.String.Marshal(v.ExternalId, bs[n:])
	n += ord.String.Marshal(v.Title, bs[n:])
	n += ord.String.Marshal(v.SourceFile, bs[n:])
	n += marshalStringMap(v.Metadata, bs[n:])
	n += varint.Int.Marshal(v.MessageCount, bs[n:])
	n += varint.Int.Marshal(v.WordCount, bs[n:])
	n += marshalTime(v.FirstMessageAt, bs[n:])
	n += marshalTime(v.LastMessageAt, bs[n:])
	n += ord.Bool.Marshal(v.Archived, bs[n:])
	n += marshalTime(v.InsertedAt, bs[n:])
	n += marshalTime(v.UpdatedAt, bs[n:])
	return n
}

func (conversationMUS) Unmarshal(bs []byte) (v Conversation, n int, err error) {
	var n1 int
	var raw uint64
	var p int
	if raw, n, err = varint.Uint64.Unmarshal(bs); err != nil {
		return
	}
	v.Id = ID(raw)
	v.UserId, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ProjectId, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	p, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Provider = Provider(p)
	v.ExternalId, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Title, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.SourceFile, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Metadata, n1, err = unmarshalStringMap(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.MessageCount, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.WordCount, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.FirstMessageAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.LastMessageAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Archived, n1, err = ord.Bool.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.InsertedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.UpdatedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	if err != nil {
		return
	}
	return
}

func (conversationMUS) Size(v Conversation) (size int) {
	size = varint.Uint64.Size(uint64(v.Id))
	size += ord.String.Size(v.UserId)
	size += ord.String.Size(v.ProjectId)
	size += varint.Int.Size(int(v.Provider))
	size += ord.String.Size(v.ExternalId)
	size += ord.String.Size(v.Title)
	size += ord.String.Size(v.SourceFile)
	size += sizeStringMap(v.Metadata)
	size += varint.Int.Size(v.MessageCount)
	size += varint.Int.Size(v.WordCount)
	size += sizeTime(v.FirstMessageAt)
	size += sizeTime(v.LastMessageAt)
	size += ord.Bool.Size(v.Archived)
	size += sizeTime(v.InsertedAt)
	size += sizeTime(v.UpdatedAt)
	return size
}

// MessageMUS serializes Message values.
var MessageMUS = messageMUS{}

type messageMUS struct{}

func (messageMUS) Marshal(v Message, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(v.Id), bs)
	n += ord.String.Marshal(v.UserId, bs[n:])
	n += varint.Uint64.Marshal(uint64(v.ConversationId), bs[n:])
	n += ord.String.Marshal(v.ExternalId, bs[n:])
	n += varint.Int.Marshal(int(v.Role), bs[n:])
	n += ord.String.Marshal(v.Contents, bs[n:])
	n += varint.Int.Marshal(v.WordCount, bs[n:])
	n += marshalTime(v.Timestamp, bs[n:])
	n += marshalStringMap(v.Metadata, bs[n:])
	n += marshalTime(v.InsertedAt, bs[n:])
	return n
}

func (messageMUS) Unmarshal(bs []byte) (v Message, n int, err error) {
	var n1 int
	var raw uint64
	var r int
	if raw, n, err = varint.Uint64.Unmarshal(bs); err != nil {
		return
	}
	v.Id = ID(raw)
	v.UserId, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	raw, n1, err = varint.Uint64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ConversationId = ID(raw)
	v.ExternalId, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	r, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Role = Role(r)
	v.Contents, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.WordCount, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Timestamp, n1, err = unmarshalTime(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Metadata, n1, err = unmarshalStringMap(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.InsertedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	if err != nil {
		return
	}
	return
}

func (messageMUS) Size(v Message) (size int) {
	size = varint.Uint64.Size(uint64(v.Id))
	size += ord.String.Size(v.UserId)
	size += varint.Uint64.Size(uint64(v.ConversationId))
	size += ord.String.Size(v.ExternalId)
	size += varint.Int.Size(int(v.Role))
	size += ord.String.Size(v.Contents)
	size += varint.Int.Size(v.WordCount)
	size += sizeTime(v.Timestamp)
	size += sizeStringMap(v.Metadata)
	size += sizeTime(v.InsertedAt)
	return size
}

// EmbeddingMUS serializes Embedding values.
var EmbeddingMUS = embeddingMUS{}

type embeddingMUS struct{}

func (embeddingMUS) Marshal(v Embedding, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(v.MessageId), bs)
	n += ord.String.Marshal(v.Model, bs[n:])
	n += marshalVector(v.Vector, bs[n:])
	n += marshalTime(v.InsertedAt, bs[n:])
	return n
}

func (embeddingMUS) Unmarshal(bs []byte) (v Embedding, n int, err error) {
	var n1 int
	var raw uint64
	if raw, n, err = varint.Uint64.Unmarshal(bs); err != nil {
		return
	}
	v.MessageId = ID(raw)
	v.Model, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Vector, n1, err = unmarshalVector(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.InsertedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	if err != nil {
		return
	}
	return
}

func (embeddingMUS) Size(v Embedding) (size int) {
	size = varint.Uint64.Size(uint64(v.MessageId))
	size += ord.String.Size(v.Model)
	size += sizeVector(v.Vector)
	size += sizeTime(v.InsertedAt)
	return size
}

// FileUploadMUS serializes FileUpload values.
var FileUploadMUS = fileUploadMUS{}

type fileUploadMUS struct{}

func (fileUploadMUS) Marshal(v FileUpload, bs []byte) (n int) {
	n = marshalUUID(v.Id, bs)
	n += ord.String.Marshal(v.UserId, bs[n:])
	n += ord.String.Marshal(v.Filename, bs[n:])
	n += varint.Int64.Marshal(v.SizeBytes, bs[n:])
	n += ord.String.Marshal(v.FileType, bs[n:])
	n += varint.Int.Marshal(int(v.Provider), bs[n:])
	n += varint.Int.Marshal(int(v.Status), bs[n:])
	n += varint.Int.Marshal(v.ProcessedConversations, bs[n:])
	n += varint.Int.Marshal(v.ProcessedMessages, bs[n:])
	n += ord.String.Marshal(v.ErrorSummary, bs[n:])
	n += marshalTime(v.InsertedAt, bs[n:])
	n += marshalTime(v.CompletedAt, bs[n:])
	return n
}

func (fileUploadMUS) Unmarshal(bs []byte) (v FileUpload, n int, err error) {
	var n1, e int
	if v.Id, n, err = unmarshalUUID(bs); err != nil {
		return
	}
	v.UserId, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Filename, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.SizeBytes, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.FileType, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	e, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Provider = Provider(e)
	e, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Status = UploadStatus(e)
	v.ProcessedConversations, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ProcessedMessages, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ErrorSummary, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.InsertedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.CompletedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	if err != nil {
		return
	}
	return
}

func (fileUploadMUS) Size(v FileUpload) (size int) {
	size = len(v.Id)
	size += ord.String.Size(v.UserId)
	size += ord.String.Size(v.Filename)
	size += varint.Int64.Size(v.SizeBytes)
	size += ord.String.Size(v.FileType)
	size += varint.Int.Size(int(v.Provider))
	size += varint.Int.Size(int(v.Status))
	size += varint.Int.Size(v.ProcessedConversations)
	size += varint.Int.Size(v.ProcessedMessages)
	size += ord.String.Size(v.ErrorSummary)
	size += sizeTime(v.InsertedAt)
	size += sizeTime(v.CompletedAt)
	return size
}

// SearchLogMUS serializes SearchLog values.
var SearchLogMUS = searchLogMUS{}

type searchLogMUS struct{}

func (searchLogMUS) Marshal(v SearchLog, bs []byte) (n int) {
	n = marshalUUID(v.Id, bs)
	n += ord.String.Marshal(v.UserId, bs[n:])
	n += ord.String.Marshal(v.Query, bs[n:])
	n += varint.Int.Marshal(int(v.Mode), bs[n:])
	n += marshalStringMap(v.Filters, bs[n:])
	n += varint.Int.Marshal(v.ResultCount, bs[n:])
	n += varint.Int64.Marshal(int64(v.ExecutionTime), bs[n:])
	n += marshalTime(v.InsertedAt, bs[n:])
	return n
}

func (searchLogMUS) Unmarshal(bs []byte) (v SearchLog, n int, err error) {
	var n1, m int
	var d int64
	if v.Id, n, err = unmarshalUUID(bs); err != nil {
		return
	}
	v.UserId, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Query, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	m, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Mode = SearchMode(m)
	v.Filters, n1, err = unmarshalStringMap(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ResultCount, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	d, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ExecutionTime = time.Duration(d)
	v.InsertedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	if err != nil {
		return
	}
	return
}

func (searchLogMUS) Size(v SearchLog) (size int) {
	size = len(v.Id)
	size += ord.String.Size(v.UserId)
	size += ord.String.Size(v.Query)
	size += varint.Int.Size(int(v.Mode))
	size += sizeStringMap(v.Filters)
	size += varint.Int.Size(v.ResultCount)
	size += varint.Int64.Size(int64(v.ExecutionTime))
	size += sizeTime(v.InsertedAt)
	return size
}

// Shared field helpers.

// Timestamps travel as a presence flag plus UnixMicro; zero means absent.
// Storage therefore truncates to microsecond precision.
func marshalTime(v time.Time, bs []byte) (n int) {
	if v.IsZero() {
		return ord.Bool.Marshal(false, bs)
	}
	n = ord.Bool.Marshal(true, bs)
	n += varint.Int64.Marshal(v.UnixMicro(), bs[n:])
	return n
}

func unmarshalTime(bs []byte) (time.Time, int, error) {
	present, n, err := ord.Bool.Unmarshal(bs)
	if err != nil || !present {
		return time.Time{}, n, err
	}
	us, n1, err := varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return time.Time{}, n, err
	}
	return time.UnixMicro(us).UTC(), n, nil
}

func sizeTime(v time.Time) int {
	if v.IsZero() {
		return ord.Bool.Size(false)
	}
	return ord.Bool.Size(true) + varint.Int64.Size(v.UnixMicro())
}

func marshalStringMap(m map[string]string, bs []byte) (n int) {
	n = varint.PositiveInt.Marshal(len(m), bs)
	for k, v := range m {
		n += ord.String.Marshal(k, bs[n:])
		n += ord.String.Marshal(v, bs[n:])
	}
	return n
}

func unmarshalStringMap(bs []byte) (map[string]string, int, error) {
	count, n, err := varint.PositiveInt.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if count == 0 {
		return nil, n, nil
	}
	m := make(map[string]string, count)
	for i := 0; i < count; i++ {
		k, n1, err := ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
		v, n1, err := ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
		m[k] = v
	}
	return m, n, nil
}

func sizeStringMap(m map[string]string) (size int) {
	size = varint.PositiveInt.Size(len(m))
	for k, v := range m {
		size += ord.String.Size(k)
		size += ord.String.Size(v)
	}
	return size
}

func marshalVector(v []float32, bs []byte) (n int) {
	n = varint.PositiveInt.Marshal(len(v), bs)
	for _, f := range v {
		n += varint.Uint32.Marshal(math.Float32bits(f), bs[n:])
	}
	return n
}

func unmarshalVector(bs []byte) ([]float32, int, error) {
	count, n, err := varint.PositiveInt.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if count == 0 {
		return nil, n, nil
	}
	v := make([]float32, count)
	for i := 0; i < count; i++ {
		bits, n1, err := varint.Uint32.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
		v[i] = math.Float32frombits(bits)
	}
	return v, n, nil
}

func sizeVector(v []float32) (size int) {
	size = varint.PositiveInt.Size(len(v))
	for _, f := range v {
		size += varint.Uint32.Size(math.Float32bits(f))
	}
	return size
}

func marshalUUID(v uuid.UUID, bs []byte) int {
	return copy(bs, v[:])
}

func unmarshalUUID(bs []byte) (uuid.UUID, int, error) {
	var id uuid.UUID
	if len(bs) < len(id) {
		return id, len(bs), fmt.Errorf("uuid: need %d bytes, have %d", len(id), len(bs))
	}
	copy(id[:], bs[:len(id)])
	return id, len(id), nil
}
