package badger

import (
	"log/slog"

	"github.com/chatvault/chatvault/storage"
)

// Store bundles the BadgerDB-backed repositories over a shared Backend.
type Store struct {
	Backend       *Backend
	Conversations storage.ConversationRepository
	Messages      storage.MessageRepository
	Embeddings    storage.EmbeddingRepository
	Uploads       storage.UploadRepository
	SearchLogs    storage.SearchLogRepository
}

// NewStore opens a persistent store at the given path.
func NewStore(path string, opts ...BackendOption) (*Store, error) {
	return newStore(path, false, opts...)
}

// NewMemoryStore opens an in-memory store. Intended for tests.
func NewMemoryStore(opts ...BackendOption) (*Store, error) {
	return newStore("", true, opts...)
}

func newStore(path string, inMemory bool, opts ...BackendOption) (*Store, error) {
	backend, err := OpenBackend(path, inMemory, opts...)
	if err != nil {
		return nil, err
	}
	return &Store{
		Backend:       backend,
		Conversations: NewConversationRepository(backend),
		Messages:      NewMessageRepository(backend),
		Embeddings:    NewEmbeddingRepository(backend),
		Uploads:       NewUploadRepository(backend),
		SearchLogs:    NewSearchLogRepository(backend),
	}, nil
}

// Close closes the shared backend.
func (s *Store) Close() error {
	return s.Backend.Close()
}

// Logger exposes the backend logger for callers composing their own.
func (s *Store) Logger() *slog.Logger {
	return s.Backend.logger
}
