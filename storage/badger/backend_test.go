package badger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
	assert.NoError(t, backend.Ping())
}

func TestOpenBackend_FileSystem(t *testing.T) {
	backend, err := OpenBackend(t.TempDir(), false)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.NoError(t, backend.Ping())
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)

	require.NoError(t, backend.Close())
	assert.True(t, backend.IsClosed())

	// Closing twice is fine, using a closed backend is not.
	assert.NoError(t, backend.Close())
	assert.Error(t, backend.Ping())
}

func TestNewMemoryStore(t *testing.T) {
	store, err := NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()

	require.NotNil(t, store.Conversations)
	require.NotNil(t, store.Messages)
	require.NotNil(t, store.Embeddings)
	require.NotNil(t, store.Uploads)
	require.NotNil(t, store.SearchLogs)
}
