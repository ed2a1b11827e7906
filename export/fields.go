package export

import (
	"encoding/json"
	"strings"
	"time"
)

// topLevelConversations accepts both export top-level shapes: a bare list of
// conversations or an object with a "conversations" key.
func topLevelConversations(payload []byte) ([]json.RawMessage, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}

	var list []json.RawMessage
	if err := json.Unmarshal(payload, &list); err == nil {
		return list, nil
	}

	var wrapper struct {
		Conversations []json.RawMessage `json:"conversations"`
	}
	if err := json.Unmarshal(payload, &wrapper); err != nil {
		return nil, NewFormatError("top-level", err)
	}
	return wrapper.Conversations, nil
}

// contentBlock is the common shape of rich-content fragments across
// providers.
type contentBlock struct {
	Text string `json:"text"`
}

// textFromContent extracts plain text from the content shapes providers
// emit: a bare string, {"parts": [...]}, {"text": ...}, or a list of content
// blocks. Non-textual fragments are ignored; fragments are joined with
// single spaces.
func textFromContent(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var obj struct {
		Parts []json.RawMessage `json:"parts"`
		Text  string            `json:"text"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if len(obj.Parts) > 0 {
			return joinFragments(obj.Parts)
		}
		if obj.Text != "" {
			return strings.TrimSpace(obj.Text)
		}
	}

	var blocks []json.RawMessage
	if err := json.Unmarshal(raw, &blocks); err == nil {
		return joinFragments(blocks)
	}
	return ""
}

// joinFragments renders a list of string-or-block fragments as one string.
func joinFragments(fragments []json.RawMessage) string {
	var parts []string
	for _, frag := range fragments {
		var s string
		if err := json.Unmarshal(frag, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				parts = append(parts, s)
			}
			continue
		}
		var block contentBlock
		if err := json.Unmarshal(frag, &block); err == nil {
			if text := strings.TrimSpace(block.Text); text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, " ")
}

// flexibleTime parses the timestamp shapes providers emit: epoch seconds as
// int or float, or an RFC3339 string. Returns the zero time when absent or
// unparseable; a missing timestamp is data, not an error.
func flexibleTime(raw json.RawMessage) time.Time {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}
	}

	var epoch float64
	if err := json.Unmarshal(raw, &epoch); err == nil {
		if epoch == 0 {
			return time.Time{}
		}
		sec := int64(epoch)
		nsec := int64((epoch - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC()
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}
