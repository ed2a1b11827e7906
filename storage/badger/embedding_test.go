package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatvault/chatvault/core"
	"github.com/chatvault/chatvault/storage"
)

const testModel = "nomic-embed-text"

func TestPutEmbeddingIdempotent(t *testing.T) {
	store, err := NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	emb := &core.Embedding{
		MessageId: core.ID(42),
		Model:     testModel,
		Vector:    []float32{0.6, 0.8, 0},
	}

	created, err := store.Embeddings.PutEmbedding(ctx, emb)
	require.NoError(t, err)
	assert.True(t, created)

	// Second write for the same pair is a no-op.
	created, err = store.Embeddings.PutEmbedding(ctx, &core.Embedding{
		MessageId: core.ID(42),
		Model:     testModel,
		Vector:    []float32{0, 1, 0},
	})
	require.NoError(t, err)
	assert.False(t, created)

	got, err := store.Embeddings.GetEmbedding(ctx, core.ID(42), testModel)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.6, 0.8, 0}, got.Vector)

	// A different model is a separate record.
	created, err = store.Embeddings.PutEmbedding(ctx, &core.Embedding{
		MessageId: core.ID(42),
		Model:     "other-model",
		Vector:    []float32{0, 1, 0},
	})
	require.NoError(t, err)
	assert.True(t, created)
}

func TestGetEmbeddingMissing(t *testing.T) {
	store, err := NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Embeddings.GetEmbedding(context.Background(), core.ID(1), testModel)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMissingEmbeddings(t *testing.T) {
	store, err := NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	_, err = store.Embeddings.PutEmbedding(ctx, &core.Embedding{
		MessageId: core.ID(2),
		Model:     testModel,
		Vector:    []float32{1, 0},
	})
	require.NoError(t, err)

	missing, err := store.Embeddings.MissingEmbeddings(ctx, testModel, core.ID(1), core.ID(2), core.ID(3))
	require.NoError(t, err)
	assert.Equal(t, []core.ID{core.ID(1), core.ID(3)}, missing)
}

func TestFindSimilar(t *testing.T) {
	store, err := NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	vectors := map[core.ID][]float32{
		core.ID(1): {1, 0, 0},
		core.ID(2): {0.8, 0.6, 0},
		core.ID(3): {0, 1, 0},
		core.ID(4): {0, 0, 1},
	}
	for id, vec := range vectors {
		_, err := store.Embeddings.PutEmbedding(ctx, &core.Embedding{
			MessageId: id,
			Model:     testModel,
			Vector:    vec,
		})
		require.NoError(t, err)
	}

	matches, err := store.Embeddings.FindSimilar(ctx, testModel, []float32{1, 0, 0}, 0.5, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, core.ID(1), matches[0].MessageId)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	assert.Equal(t, core.ID(2), matches[1].MessageId)
	assert.InDelta(t, 0.8, matches[1].Score, 1e-6)

	// Limit trims after ranking.
	matches, err = store.Embeddings.FindSimilar(ctx, testModel, []float32{1, 0, 0}, 0, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, core.ID(1), matches[0].MessageId)

	// Other models never participate.
	matches, err = store.Embeddings.FindSimilar(ctx, "other-model", []float32{1, 0, 0}, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, matches)
}
