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

// Package search ranks stored messages against a query string.
//
// Three modes are supported:
//   - lexical: normalized term-frequency/coverage over stop-word-filtered tokens
//   - semantic: cosine similarity against stored message embeddings
//   - hybrid: alpha-weighted blend of both signals
//
// Structured filters (provider, role, project, date range) apply as hard
// predicates before scoring. Semantic unavailability degrades a query to
// lexical ranking and flags the response instead of failing it, and every
// invocation is recorded in an append-only search log.
package search
