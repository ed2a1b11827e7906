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


// Package storage provides the storage abstraction layer for chatvault.
//
// This package defines repository interfaces that decouple storage
// implementation from business logic. It allows for different storage
// backends (BadgerDB, in-memory, etc.) to be used interchangeably.
//
// # Constructor Return Type Pattern
//
// Public constructors in implementation packages return interface types to
// enforce abstraction and enable multiple storage backend implementations:
//
//	store, err := badger.NewStore(path)
//
// Internal package constructors may return concrete types since they're only
// used within the implementation package.
//
// # Architecture
//
// The storage layer follows the Repository pattern:
//
//   - ConversationRepository: conversations, dedup-key lookup, stats recompute
//   - MessageRepository: messages and the per-conversation index
//   - EmbeddingRepository: per-(message, model) vectors and similarity scans
//   - UploadRepository: ingestion job records with live progress
//   - SearchLogRepository: append-only search audit records
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support concurrent
// access from multiple goroutines. Concurrent writers that touch the same
// conversation are serialized by transaction conflict detection rather than
// locks.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation and timeout
// support.
package storage
