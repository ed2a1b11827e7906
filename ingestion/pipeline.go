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

package ingestion

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/chatvault/chatvault/ai"
	"github.com/chatvault/chatvault/core"
	"github.com/chatvault/chatvault/storage"
)

const (
	defaultQueueCapacity  = 256
	defaultEnqueueTimeout = 5 * time.Second
)

// Stores bundles the repositories the pipeline writes to.
type Stores struct {
	Conversations storage.ConversationRepository
	Messages      storage.MessageRepository
	Embeddings    storage.EmbeddingRepository
	Uploads       storage.UploadRepository
}

// Pipeline orchestrates ingestion jobs: parsing, deduplicating upserts,
// stats recomputation and asynchronous embedding generation.
type Pipeline struct {
	stores   Stores
	provider ai.AIProvider

	uploadPool *ants.Pool
	embedPool  *ants.Pool
	scheduler  *embedScheduler

	queueCapacity  int
	enqueueTimeout time.Duration
	logger         *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool sizes for uploads and embeddings.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		if p.uploadPool != nil {
			p.uploadPool.Release()
		}
		if p.embedPool != nil {
			p.embedPool.Release()
		}

		uploadPool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		embedPool, err := ants.NewPool(size)
		if err != nil {
			uploadPool.Release()
			return err
		}

		p.uploadPool = uploadPool
		p.embedPool = embedPool
		return nil
	}
}

// WithQueueCapacity sets the bounded embedding queue size.
func WithQueueCapacity(capacity int) Option {
	return func(p *Pipeline) error {
		if capacity < 1 {
			capacity = 1
		}
		p.queueCapacity = capacity
		return nil
	}
}

// WithEnqueueTimeout sets how long Schedule blocks on a full embedding queue
// before leaving the message for the backfill pass.
func WithEnqueueTimeout(timeout time.Duration) Option {
	return func(p *Pipeline) error {
		if timeout > 0 {
			p.enqueueTimeout = timeout
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(stores Stores, provider ai.AIProvider, opts ...Option) (*Pipeline, error) {
	if stores.Conversations == nil || stores.Messages == nil ||
		stores.Embeddings == nil || stores.Uploads == nil {
		return nil, ErrStoreRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	uploadPool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}
	embedPool, err := ants.NewPool(poolSize)
	if err != nil {
		uploadPool.Release()
		return nil, err
	}

	p := &Pipeline{
		stores:         stores,
		provider:       provider,
		uploadPool:     uploadPool,
		embedPool:      embedPool,
		queueCapacity:  defaultQueueCapacity,
		enqueueTimeout: defaultEnqueueTimeout,
		logger:         slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}
	p.logger = p.logger.With("component", "ingestion")

	p.scheduler = newEmbedScheduler(
		stores.Embeddings,
		provider.Embedder(),
		provider.EmbeddingModel(),
		p.embedPool,
		p.queueCapacity,
		p.enqueueTimeout,
		p.logger,
	)
	return p, nil
}

// SubmitUpload runs an ingestion job on the upload pool and returns
// immediately. Job progress is observable through the upload record.
func (p *Pipeline) SubmitUpload(upload *core.FileUpload, payload []byte) error {
	return p.uploadPool.Submit(func() {
		if err := p.ProcessUpload(context.Background(), upload, payload); err != nil {
			p.logger.Error("upload job failed",
				"upload_id", upload.Id, "filename", upload.Filename, "err", err)
		}
	})
}

// WaitForEmbeddings blocks until all scheduled embedding work has run.
func (p *Pipeline) WaitForEmbeddings() {
	p.scheduler.Wait()
}

// Release releases worker pools and drains the embedding queue.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.scheduler != nil {
		p.scheduler.Release()
	}
	if p.uploadPool != nil {
		p.uploadPool.Release()
	}
	if p.embedPool != nil {
		p.embedPool.Release()
	}
}
