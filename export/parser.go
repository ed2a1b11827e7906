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

package export

import (
	"fmt"
	"iter"
	"time"

	"github.com/chatvault/chatvault/core"
)

// Conversation is one normalized conversation group produced by a Parser.
// No provider-specific field names survive past this type.
type Conversation struct {
	ExternalId string // Provider-native conversation id; empty means absent
	Title      string
	Metadata   map[string]string
	Messages   []Message
}

// Message is one normalized message inside a Conversation group.
type Message struct {
	ExternalId string
	Role       core.Role
	Contents   string
	WordCount  int       // Computed with core.CountWords during parsing
	Timestamp  time.Time // Zero when the provider omitted it
	Metadata   map[string]string
}

// Warning records one skipped section during parsing. Malformed
// conversations are isolated into warnings instead of failing the file.
type Warning struct {
	Section string
	Reason  string
}

// Report accumulates parse warnings while a sequence is consumed.
type Report struct {
	Warnings []Warning
}

// Warn appends one warning to the report.
func (r *Report) Warn(section, format string, args ...any) {
	r.Warnings = append(r.Warnings, Warning{
		Section: section,
		Reason:  fmt.Sprintf(format, args...),
	})
}

// Parser converts one provider's export payload into normalized conversation
// groups.
type Parser interface {
	// Provider returns the provider this parser handles.
	Provider() core.Provider

	// Parse validates the payload's top-level structure and returns a lazy
	// sequence of normalized conversations. A FormatError is returned only
	// when the file as a whole is unreadable; per-conversation failures are
	// recorded on the report as the sequence is consumed.
	Parse(payload []byte, report *Report) (iter.Seq[*Conversation], error)
}

// ParserFor returns the parser registered for the provider.
func ParserFor(provider core.Provider) (Parser, error) {
	switch provider {
	case core.ProviderChatGPT:
		return &chatgptParser{}, nil
	case core.ProviderClaude:
		return &claudeParser{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
}
