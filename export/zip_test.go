package export

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildArchive(t *testing.T, members map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, contents := range members {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(contents))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestNormalizePayloadPlainJSON(t *testing.T) {
	inner := `[{"uuid": "z-1", "name": "Plain", "chat_messages": []}]`

	payloads, err := NormalizePayload([]byte(inner), &Report{})
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.Empty(t, payloads[0].Name)
	assert.Equal(t, []byte(inner), payloads[0].Data)
}

func TestNormalizePayloadZip(t *testing.T) {
	inner := `[{"uuid": "z-1", "name": "Zipped", "chat_messages": [{"uuid": "m-1", "sender": "human", "text": "from the archive"}]}]`

	archive := buildArchive(t, map[string]string{
		"data/claude/conversations.json": inner,
	})

	payloads, err := NormalizePayload(archive, &Report{})
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.Equal(t, "data/claude/conversations.json", payloads[0].Name)
	assert.JSONEq(t, inner, string(payloads[0].Data))
}

func TestNormalizePayloadZipKeepsEveryJSONMember(t *testing.T) {
	archive := buildArchive(t, map[string]string{
		"conversations.json":        `[{"id": "conv-top", "title": "Top"}]`,
		"data/chatgpt/part1.json":   `[{"id": "conv-1", "title": "One"}]`,
		"data/chatgpt/part2.json":   `[{"id": "conv-2", "title": "Two"}]`,
		"readme.txt":                "not an export",
		"__MACOSX/data/.part1.json": "resource fork",
	})

	payloads, err := NormalizePayload(archive, &Report{})
	require.NoError(t, err)
	require.Len(t, payloads, 3)

	names := make([]string, 0, len(payloads))
	for _, pl := range payloads {
		names = append(names, pl.Name)
	}
	assert.ElementsMatch(t, []string{
		"conversations.json",
		"data/chatgpt/part1.json",
		"data/chatgpt/part2.json",
	}, names)
}

func TestNormalizePayloadZipWithoutJSON(t *testing.T) {
	archive := buildArchive(t, map[string]string{
		"readme.txt": "nothing to see",
	})

	_, err := NormalizePayload(archive, &Report{})
	assert.ErrorIs(t, err, ErrNoExportData)
}

func TestNormalizePayloadEmpty(t *testing.T) {
	_, err := NormalizePayload(nil, &Report{})
	assert.ErrorIs(t, err, ErrEmptyPayload)
}
