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

package search

import "errors"

var (
	// ErrConversationRepositoryRequired is returned when a conversation repository is not provided.
	ErrConversationRepositoryRequired = errors.New("conversation repository required")

	// ErrMessageRepositoryRequired is returned when a message repository is not provided.
	ErrMessageRepositoryRequired = errors.New("message repository required")

	// ErrEmbeddingRepositoryRequired is returned when an embedding repository is not provided.
	ErrEmbeddingRepositoryRequired = errors.New("embedding repository required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrEmptyQuery is returned when the query text is empty or whitespace.
	ErrEmptyQuery = errors.New("query text required")

	// ErrInvalidAlpha is returned when the hybrid weighting factor is outside [0,1].
	ErrInvalidAlpha = errors.New("alpha must be between 0 and 1")

	// ErrInvalidThreshold is returned when the score cutoff is outside [0,1].
	ErrInvalidThreshold = errors.New("threshold must be between 0 and 1")

	// ErrInvalidOffset is returned when the pagination offset is negative.
	ErrInvalidOffset = errors.New("offset must not be negative")
)
