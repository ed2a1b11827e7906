package export

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatvault/chatvault/core"
)

func parseAll(t *testing.T, p Parser, payload string) ([]*Conversation, *Report) {
	t.Helper()
	report := &Report{}
	seq, err := p.Parse([]byte(payload), report)
	require.NoError(t, err)

	var convs []*Conversation
	for conv := range seq {
		convs = append(convs, conv)
	}
	return convs, report
}

func TestChatGPTFlatList(t *testing.T) {
	payload := `[
		{
			"id": "conv-1",
			"title": "Greetings",
			"messages": [
				{"id": "m1", "author": {"role": "user"}, "content": "hello world", "create_time": 1700000000},
				{"id": "m2", "author": {"role": "assistant"}, "content": {"parts": ["goodbye world"]}, "create_time": 1700000060.5}
			]
		}
	]`

	parser, err := ParserFor(core.ProviderChatGPT)
	require.NoError(t, err)
	convs, report := parseAll(t, parser, payload)

	require.Len(t, convs, 1)
	assert.Empty(t, report.Warnings)

	conv := convs[0]
	assert.Equal(t, "conv-1", conv.ExternalId)
	assert.Equal(t, "Greetings", conv.Title)
	require.Len(t, conv.Messages, 2)

	assert.Equal(t, core.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, "hello world", conv.Messages[0].Contents)
	assert.Equal(t, 2, conv.Messages[0].WordCount)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), conv.Messages[0].Timestamp)

	assert.Equal(t, core.RoleAssistant, conv.Messages[1].Role)
	assert.Equal(t, "goodbye world", conv.Messages[1].Contents)
}

func TestChatGPTConversationsWrapper(t *testing.T) {
	payload := `{"conversations": [
		{"conversation_id": "conv-2", "title": "", "messages": [
			{"id": "m1", "role": "user", "content": "just checking"}
		]}
	]}`

	parser, _ := ParserFor(core.ProviderChatGPT)
	convs, report := parseAll(t, parser, payload)

	require.Len(t, convs, 1)
	assert.Empty(t, report.Warnings)
	assert.Equal(t, "conv-2", convs[0].ExternalId)
	assert.Equal(t, "Untitled", convs[0].Title)
	require.Len(t, convs[0].Messages, 1)
	assert.True(t, convs[0].Messages[0].Timestamp.IsZero())
}

func TestChatGPTExternalIdPrefersTopLevelId(t *testing.T) {
	payload := `[
		{"id": "conv-a", "conversation_id": "conv-b", "title": "Both ids", "messages": []},
		{"conversation_id": "conv-c", "title": "Fallback", "messages": []}
	]`

	parser, _ := ParserFor(core.ProviderChatGPT)
	convs, _ := parseAll(t, parser, payload)

	require.Len(t, convs, 2)
	assert.Equal(t, "conv-a", convs[0].ExternalId)
	assert.Equal(t, "conv-c", convs[1].ExternalId)
}

func TestChatGPTMappingFallback(t *testing.T) {
	payload := `[
		{
			"id": "conv-3",
			"title": "Mapped",
			"mapping": {
				"root": {"message": null},
				"n2": {"message": {"id": "m2", "author": {"role": "assistant"}, "content": {"parts": ["second reply"]}, "create_time": 1700000100}},
				"n1": {"message": {"id": "m1", "author": {"role": "user"}, "content": {"parts": ["first question"]}, "create_time": 1700000000}}
			}
		}
	]`

	parser, _ := ParserFor(core.ProviderChatGPT)
	convs, _ := parseAll(t, parser, payload)

	require.Len(t, convs, 1)
	require.Len(t, convs[0].Messages, 2)
	// Mapping order is reconstructed chronologically.
	assert.Equal(t, "first question", convs[0].Messages[0].Contents)
	assert.Equal(t, "second reply", convs[0].Messages[1].Contents)
}

func TestChatGPTContentVariants(t *testing.T) {
	payload := `[
		{"id": "conv-4", "title": "Shapes", "messages": [
			{"id": "m1", "role": "user", "content": {"text": "object text shape"}},
			{"id": "m2", "role": "assistant", "content": [{"type": "text", "text": "block"}, {"type": "text", "text": "list"}]},
			{"id": "m3", "role": "assistant", "content": {"parts": [""]}},
			{"id": "m4", "role": "tool", "content": "tool output"}
		]}
	]`

	parser, _ := ParserFor(core.ProviderChatGPT)
	convs, _ := parseAll(t, parser, payload)

	require.Len(t, convs, 1)
	// m3 has no text and is dropped; m4 maps tool onto the system role.
	require.Len(t, convs[0].Messages, 3)
	assert.Equal(t, "object text shape", convs[0].Messages[0].Contents)
	assert.Equal(t, "block list", convs[0].Messages[1].Contents)
	assert.Equal(t, core.RoleSystem, convs[0].Messages[2].Role)
}

func TestChatGPTFaultIsolation(t *testing.T) {
	// One malformed conversation among valid ones becomes a warning.
	payload := `[
		{"id": "good-1", "title": "A", "messages": [{"id": "m1", "role": "user", "content": "fine"}]},
		"not an object at all",
		{"id": "good-2", "title": "B", "messages": [{"id": "m1", "role": "user", "content": "also fine"}]}
	]`

	parser, _ := ParserFor(core.ProviderChatGPT)
	convs, report := parseAll(t, parser, payload)

	require.Len(t, convs, 2)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, "conversation 1", report.Warnings[0].Section)
}

func TestChatGPTRFC3339Timestamps(t *testing.T) {
	payload := `[
		{"id": "conv-5", "title": "ISO", "messages": [
			{"id": "m1", "role": "user", "content": "dated", "create_time": "2024-03-01T10:30:00Z"}
		]}
	]`

	parser, _ := ParserFor(core.ProviderChatGPT)
	convs, _ := parseAll(t, parser, payload)

	require.Len(t, convs, 1)
	require.Len(t, convs[0].Messages, 1)
	want := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	assert.Equal(t, want, convs[0].Messages[0].Timestamp)
}

func TestTopLevelGarbage(t *testing.T) {
	parser, _ := ParserFor(core.ProviderChatGPT)
	report := &Report{}

	_, err := parser.Parse([]byte("{broken json"), report)
	var formatErr *FormatError
	require.ErrorAs(t, err, &formatErr)
	assert.Equal(t, "top-level", formatErr.Section)

	_, err = parser.Parse(nil, report)
	assert.ErrorIs(t, err, ErrEmptyPayload)
}
