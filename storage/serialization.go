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


package storage

import (
	"github.com/chatvault/chatvault/core"
)

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, core.IDMUS.Size(id))
	core.IDMUS.Marshal(id, buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	id, _, err := core.IDMUS.Unmarshal(data)
	return id, err
}

// MarshalConversation serializes a Conversation to bytes.
func MarshalConversation(conv *core.Conversation) []byte {
	buf := make([]byte, core.ConversationMUS.Size(*conv))
	core.ConversationMUS.Marshal(*conv, buf)
	return buf
}

// UnmarshalConversation deserializes a Conversation from bytes.
func UnmarshalConversation(data []byte) (*core.Conversation, error) {
	conv, _, err := core.ConversationMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// MarshalMessage serializes a Message to bytes.
func MarshalMessage(msg *core.Message) []byte {
	buf := make([]byte, core.MessageMUS.Size(*msg))
	core.MessageMUS.Marshal(*msg, buf)
	return buf
}

// UnmarshalMessage deserializes a Message from bytes.
func UnmarshalMessage(data []byte) (*core.Message, error) {
	msg, _, err := core.MessageMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarshalEmbedding serializes an Embedding to bytes.
func MarshalEmbedding(emb *core.Embedding) []byte {
	buf := make([]byte, core.EmbeddingMUS.Size(*emb))
	core.EmbeddingMUS.Marshal(*emb, buf)
	return buf
}

// UnmarshalEmbedding deserializes an Embedding from bytes.
func UnmarshalEmbedding(data []byte) (*core.Embedding, error) {
	emb, _, err := core.EmbeddingMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &emb, nil
}

// MarshalFileUpload serializes a FileUpload to bytes.
func MarshalFileUpload(upload *core.FileUpload) []byte {
	buf := make([]byte, core.FileUploadMUS.Size(*upload))
	core.FileUploadMUS.Marshal(*upload, buf)
	return buf
}

// UnmarshalFileUpload deserializes a FileUpload from bytes.
func UnmarshalFileUpload(data []byte) (*core.FileUpload, error) {
	upload, _, err := core.FileUploadMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &upload, nil
}

// MarshalSearchLog serializes a SearchLog to bytes.
func MarshalSearchLog(log *core.SearchLog) []byte {
	buf := make([]byte, core.SearchLogMUS.Size(*log))
	core.SearchLogMUS.Marshal(*log, buf)
	return buf
}

// UnmarshalSearchLog deserializes a SearchLog from bytes.
func UnmarshalSearchLog(data []byte) (*core.SearchLog, error) {
	log, _, err := core.SearchLogMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &log, nil
}
