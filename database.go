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

package chatvault

import (
	"io"
	"log/slog"

	"github.com/chatvault/chatvault/ai"
	"github.com/chatvault/chatvault/ai/openai"
	"github.com/chatvault/chatvault/backfill"
	"github.com/chatvault/chatvault/ingestion"
	"github.com/chatvault/chatvault/search"
	"github.com/chatvault/chatvault/storage/badger"
)

// Database bundles the storage layer and the AI provider behind one handle
// and hands out the ingestion, search and backfill components wired to them.
type Database struct {
	store    *badger.Store
	provider ai.AIProvider
	logger   *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig *ai.Config
	provider ai.AIProvider
	inMemory bool
}

// WithAIConfig sets the embedding backend configuration.
// Default is ai.DefaultConfig().
func WithAIConfig(config *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		if config != nil {
			o.aiConfig = config
		}
	}
}

// WithAIProvider substitutes a pre-built provider, bypassing the OpenAI
// client construction. Intended for tests.
func WithAIProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithInMemoryStore opens the store in memory instead of on disk; the path
// argument is then ignored. Intended for tests.
func WithInMemoryStore() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// NewDatabase opens the store at filePath and connects the AI provider.
func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		aiConfig: ai.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(options)
	}

	var store *badger.Store
	var err error
	if options.inMemory {
		store, err = badger.NewMemoryStore()
	} else {
		store, err = badger.NewStore(filePath)
	}
	if err != nil {
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(options.aiConfig)
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	return &Database{
		store:    store,
		provider: provider,
		logger:   slog.Default(),
	}, nil
}

func (db *Database) Close() error {
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
	}
	if err := db.store.Close(); err != nil {
		db.logger.Error("error closing storage", "err", err)
		return err
	}
	return nil
}

// Store exposes the underlying repositories.
func (db *Database) Store() *badger.Store {
	return db.store
}

// Provider exposes the embedding backend.
func (db *Database) Provider() ai.AIProvider {
	return db.provider
}

// NewIngestionPipeline builds a pipeline over the database's repositories.
func (db *Database) NewIngestionPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	return ingestion.NewPipeline(ingestion.Stores{
		Conversations: db.store.Conversations,
		Messages:      db.store.Messages,
		Embeddings:    db.store.Embeddings,
		Uploads:       db.store.Uploads,
	}, db.provider, opts...)
}

// NewSearcher builds a searcher over the database's repositories.
func (db *Database) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	return search.NewSearcher(search.Stores{
		Conversations: db.store.Conversations,
		Messages:      db.store.Messages,
		Embeddings:    db.store.Embeddings,
		SearchLogs:    db.store.SearchLogs,
	}, db.provider, opts...)
}

// NewBackfiller builds the embedding later pass over the database's
// repositories. progress is where human-readable progress lines go.
func (db *Database) NewBackfiller(config *backfill.Config, progress io.Writer) *backfill.Backfiller {
	return backfill.NewBackfiller(db.store.Messages, db.store.Embeddings, db.provider, config, progress)
}
