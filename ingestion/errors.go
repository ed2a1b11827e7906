package ingestion

import "errors"

var (
	// ErrStoreRequired is returned when a storage repository is not provided.
	ErrStoreRequired = errors.New("storage repositories required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrEmbedQueueTimeout is returned when the embedding queue stays full
	// past the enqueue timeout. The message is left without an embedding and
	// picked up by a later backfill pass.
	ErrEmbedQueueTimeout = errors.New("embedding queue full")

	// ErrPipelineReleased is returned when work is submitted after Release.
	ErrPipelineReleased = errors.New("pipeline released")
)
