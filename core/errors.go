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


package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidConversation indicates a Conversation failed validation.
	ErrInvalidConversation = errors.New("invalid conversation")

	// ErrInvalidMessage indicates a Message failed validation.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrInvalidEmbedding indicates an Embedding failed validation.
	ErrInvalidEmbedding = errors.New("invalid embedding")

	// ErrInvalidTimestamp indicates a timestamp is in the future.
	ErrInvalidTimestamp = errors.New("timestamp cannot be in the future")

	// ErrEmptyContent indicates the Contents field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrEmptyUserId indicates the owning user is missing.
	ErrEmptyUserId = errors.New("user id cannot be empty")

	// ErrInvalidProvider indicates an unrecognized Provider value.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidRole indicates an unrecognized Role value.
	ErrInvalidRole = errors.New("invalid role")

	// ErrInvalidSearchMode indicates an unrecognized SearchMode value.
	ErrInvalidSearchMode = errors.New("invalid search mode")

	// ErrEmptyModel indicates the embedding model identifier is missing.
	ErrEmptyModel = errors.New("embedding model cannot be empty")
)
