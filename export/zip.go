package export

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"
)

const zipMagic = "PK\x03\x04"

// IsZip reports whether the payload looks like a ZIP archive.
func IsZip(payload []byte) bool {
	return len(payload) >= len(zipMagic) && string(payload[:len(zipMagic)]) == zipMagic
}

// Payload is one JSON document lifted out of an upload. Plain JSON uploads
// produce a single entry with an empty Name; archives produce one entry per
// JSON member.
type Payload struct {
	Name string
	Data []byte
}

// NormalizePayload expands an upload into its JSON documents. Plain JSON
// passes through as a single payload. Archives contribute every JSON member,
// wherever it sits (exports commonly split conversation lists across
// data/<provider>/*.json alongside a top-level conversations.json). A member
// that cannot be read becomes a report warning instead of failing the
// archive; ErrNoExportData is returned only when nothing usable remains.
func NormalizePayload(payload []byte, report *Report) ([]Payload, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	if !IsZip(payload) {
		return []Payload{{Data: payload}}, nil
	}

	reader, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return nil, NewFormatError("zip archive", err)
	}

	var payloads []Payload
	for _, file := range reader.File {
		if file.FileInfo().IsDir() || !strings.HasSuffix(file.Name, ".json") {
			continue
		}
		// macOS archive junk shadows real members with resource forks.
		if strings.HasPrefix(file.Name, "__MACOSX/") {
			continue
		}
		data, err := readArchiveMember(file)
		if err != nil {
			if report != nil {
				report.Warn(file.Name, "%v", err)
			}
			continue
		}
		payloads = append(payloads, Payload{Name: file.Name, Data: data})
	}
	if len(payloads) == 0 {
		return nil, ErrNoExportData
	}
	return payloads, nil
}

func readArchiveMember(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return data, nil
}
