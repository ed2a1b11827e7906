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

package backfill

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/chatvault/chatvault/ai"
	"github.com/chatvault/chatvault/core"
	"github.com/chatvault/chatvault/storage"
)

// Config holds configuration for a backfill run.
type Config struct {
	// BatchSize is the number of messages to embed in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of messages)
	ReportInterval int

	// MaxRetries is the maximum number of retry attempts for failed operations
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Backfiller finds messages without an embedding for the configured model
// and generates the missing vectors. Ingestion drops embedding work under
// queue pressure or backend outages; this later pass picks those messages
// up.
type Backfiller struct {
	messages   storage.MessageRepository
	embeddings storage.EmbeddingRepository
	config     *Config
	progress   io.Writer
	processor  *BatchProcessor
}

// NewBackfiller creates a new backfiller.
// progress: where to write progress output (typically os.Stderr)
func NewBackfiller(
	messages storage.MessageRepository,
	embeddings storage.EmbeddingRepository,
	provider ai.AIProvider,
	config *Config,
	progress io.Writer,
) *Backfiller {
	if config == nil {
		config = DefaultConfig()
	}

	return &Backfiller{
		messages:   messages,
		embeddings: embeddings,
		config:     config,
		progress:   progress,
		processor: NewBatchProcessor(embeddings, provider.Embedder(), provider.EmbeddingModel(),
			config.MaxRetries, config.RetryDelay),
	}
}

// Run embeds every message lacking an embedding for the model. An empty
// userID backfills all users.
func (b *Backfiller) Run(ctx context.Context, userID string) error {
	all, err := b.messages.ListMessages(ctx, storage.MessageFilter{UserId: userID})
	if err != nil {
		return fmt.Errorf("failed to list messages: %w", err)
	}
	if len(all) == 0 {
		fmt.Fprintf(b.progress, "No messages found (0 messages)\n")
		return nil
	}

	byID := make(map[core.ID]*core.Message, len(all))
	ids := make([]core.ID, len(all))
	for i, msg := range all {
		byID[msg.Id] = msg
		ids[i] = msg.Id
	}

	missing, err := b.embeddings.MissingEmbeddings(ctx, b.processor.model, ids...)
	if err != nil {
		return fmt.Errorf("failed to find missing embeddings: %w", err)
	}
	if len(missing) == 0 {
		fmt.Fprintf(b.progress, "All %d messages already embedded\n", len(all))
		return nil
	}

	fmt.Fprintf(b.progress, "Backfilling %d of %d messages (batch size: %d)\n",
		len(missing), len(all), b.config.BatchSize)

	tracker := NewProgressTracker(b.progress, len(missing), b.config.ReportInterval)

	processed := 0
	for start := 0; start < len(missing); start += b.config.BatchSize {
		end := start + b.config.BatchSize
		if end > len(missing) {
			end = len(missing)
		}

		batch := make([]*core.Message, 0, end-start)
		for _, id := range missing[start:end] {
			batch = append(batch, byID[id])
		}

		if err := b.processor.Process(ctx, batch); err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}

		processed += len(batch)
		tracker.Update(processed)
	}
	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(b.progress, "Backfill complete. Embedded %d messages in %v (%.1f messages/sec)\n",
		processed, elapsed.Round(time.Second), float64(processed)/elapsed.Seconds())
	return nil
}
