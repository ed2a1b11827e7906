package backfill

import (
	"context"
	"fmt"
	"time"

	"github.com/chatvault/chatvault/ai"
	"github.com/chatvault/chatvault/core"
	"github.com/chatvault/chatvault/storage"
)

// BatchProcessor embeds batches of messages and stores the vectors.
type BatchProcessor struct {
	embeddings     storage.EmbeddingRepository
	embedder       ai.Embedder
	model          string
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of retry attempts for embedding API calls
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(embeddings storage.EmbeddingRepository, embedder ai.Embedder, model string, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		embeddings:     embeddings,
		embedder:       embedder,
		model:          model,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process embeds a batch of messages and stores the vectors, normalized for
// cosine similarity. Storing is idempotent, so re-running a batch after a
// partial failure is safe.
func (bp *BatchProcessor) Process(ctx context.Context, messages []*core.Message) error {
	if len(messages) == 0 {
		return nil
	}

	texts := make([]string, len(messages))
	for i, msg := range messages {
		texts[i] = msg.Contents
	}

	var vectors [][]float32
	err := RetryWithBackoff(ctx, func() error {
		var err error
		vectors, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
	}

	if len(vectors) != len(messages) {
		return fmt.Errorf("%w: expected %d, got %d", ErrEmbeddingMismatch, len(messages), len(vectors))
	}

	for i, msg := range messages {
		_, err := bp.embeddings.PutEmbedding(ctx, &core.Embedding{
			MessageId: msg.Id,
			Model:     bp.model,
			Vector:    NormalizeVector(vectors[i]),
		})
		if err != nil {
			return fmt.Errorf("failed to store embedding for message %d: %w", uint64(msg.Id), err)
		}
	}
	return nil
}
