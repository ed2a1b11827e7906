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

// Package export parses provider conversation exports into a canonical
// shape.
//
// Each provider gets a Parser obtained through ParserFor. Parsers tolerate
// the field renames and structural drift real exports exhibit: missing
// optional fields default instead of failing, and a malformed conversation
// is skipped with a Report warning rather than aborting the file. ZIP
// archives are expanded with NormalizePayload before parsing; every JSON
// member is fed to the parser, since exports often split conversation
// lists across multiple files.
package export
