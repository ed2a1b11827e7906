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
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedProvider indicates no parser is registered for the provider.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrEmptyPayload indicates the export payload was empty.
	ErrEmptyPayload = errors.New("empty export payload")

	// ErrNoExportData indicates a ZIP archive contained no JSON export file.
	ErrNoExportData = errors.New("no export data found in archive")
)

// FormatError describes a malformed export section. File-level format
// errors abort parsing; section-level ones become Report warnings.
type FormatError struct {
	Section string
	Err     error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed export section %q: %v", e.Section, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// NewFormatError wraps err with the description of the offending section.
func NewFormatError(section string, err error) *FormatError {
	return &FormatError{Section: section, Err: err}
}
