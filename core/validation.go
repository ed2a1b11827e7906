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

import (
	"fmt"
	"time"
)

// ValidateConversation validates a Conversation according to domain rules.
//
// Validation rules:
//   - UserId must not be empty
//   - Provider must be a known provider
//
// NOT validated (derived or optional):
//   - Counter fields (maintained by the stats recomputation)
//   - ExternalId, ProjectId, Title (provider may omit them)
func ValidateConversation(conv *Conversation) error {
	if conv == nil {
		return fmt.Errorf("%w: conversation is nil", ErrInvalidConversation)
	}

	if conv.UserId == "" {
		return fmt.Errorf("%w: %w", ErrInvalidConversation, ErrEmptyUserId)
	}

	if err := ValidateProvider(conv.Provider); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConversation, err)
	}

	return nil
}

// ValidateMessage validates a Message according to domain rules.
//
// Validation rules:
//   - Contents must not be empty
//   - Role must be valid
//   - Timestamp, when present, must not be in the future
//
// NOT validated:
//   - ExternalId (provider may omit it)
//   - WordCount (derived at ingestion)
func ValidateMessage(msg *Message) error {
	if msg == nil {
		return fmt.Errorf("%w: message is nil", ErrInvalidMessage)
	}

	if msg.Contents == "" {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, ErrEmptyContent)
	}

	if msg.UserId == "" {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, ErrEmptyUserId)
	}

	if err := ValidateRole(msg.Role); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	if !IsValidTimestamp(msg.Timestamp) {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, ErrInvalidTimestamp)
	}

	return nil
}

// ValidateEmbedding validates an Embedding according to domain rules.
func ValidateEmbedding(emb *Embedding) error {
	if emb == nil {
		return fmt.Errorf("%w: embedding is nil", ErrInvalidEmbedding)
	}

	if emb.Model == "" {
		return fmt.Errorf("%w: %w", ErrInvalidEmbedding, ErrEmptyModel)
	}

	if len(emb.Vector) == 0 {
		return fmt.Errorf("%w: vector is empty", ErrInvalidEmbedding)
	}

	return nil
}

// ValidateProvider validates that a Provider has a known value.
func ValidateProvider(p Provider) error {
	if p != ProviderChatGPT && p != ProviderClaude {
		return fmt.Errorf("%w: value %d", ErrInvalidProvider, p)
	}
	return nil
}

// ValidateRole validates that a Role has a known value.
func ValidateRole(r Role) error {
	if r != RoleUser && r != RoleAssistant && r != RoleSystem {
		return fmt.Errorf("%w: value %d", ErrInvalidRole, r)
	}
	return nil
}

// IsValidTimestamp checks that a timestamp is either absent (zero) or not in
// the future. A small skew allowance covers provider clock drift.
func IsValidTimestamp(ts time.Time) bool {
	if ts.IsZero() {
		return true
	}
	return !ts.After(time.Now().Add(time.Hour))
}
