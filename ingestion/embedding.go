package ingestion

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/chatvault/chatvault/ai"
	"github.com/chatvault/chatvault/backfill"
	"github.com/chatvault/chatvault/core"
	"github.com/chatvault/chatvault/storage"
)

// embedTask is one unit of embedding work.
type embedTask struct {
	messageID core.ID
	contents  string
}

// embedScheduler decouples embedding generation from the ingestion write
// path. Tasks go through a bounded queue; a dispatcher drains the queue into
// an ants pool. When the queue stays full past the enqueue timeout the task
// is dropped and left for the backfill pass.
type embedScheduler struct {
	embeddings     storage.EmbeddingRepository
	embedder       ai.Embedder
	model          string
	queue          chan embedTask
	done           chan struct{}
	pool           *ants.Pool
	enqueueTimeout time.Duration
	logger         *slog.Logger

	wg       sync.WaitGroup
	inflight sync.WaitGroup

	mu        sync.Mutex
	released  bool
	producers sync.WaitGroup
}

func newEmbedScheduler(
	embeddings storage.EmbeddingRepository,
	embedder ai.Embedder,
	model string,
	pool *ants.Pool,
	queueCapacity int,
	enqueueTimeout time.Duration,
	logger *slog.Logger,
) *embedScheduler {
	s := &embedScheduler{
		embeddings:     embeddings,
		embedder:       embedder,
		model:          model,
		queue:          make(chan embedTask, queueCapacity),
		done:           make(chan struct{}),
		pool:           pool,
		enqueueTimeout: enqueueTimeout,
		logger:         logger.With("component", "embed-scheduler"),
	}

	s.wg.Add(1)
	go s.dispatch()
	return s
}

// Schedule queues one message for embedding. Blocks up to the enqueue
// timeout when the queue is full, then returns ErrEmbedQueueTimeout; the
// caller records the miss and moves on.
func (s *embedScheduler) Schedule(ctx context.Context, messageID core.ID, contents string) error {
	// The producer count is raised under the same lock that guards the
	// released flag, so Release can wait out every Schedule call that got
	// past the check before it closes the queue.
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return ErrPipelineReleased
	}
	s.producers.Add(1)
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.producers.Done()

	task := embedTask{messageID: messageID, contents: contents}
	timer := time.NewTimer(s.enqueueTimeout)
	defer timer.Stop()

	select {
	case s.queue <- task:
		return nil
	case <-s.done:
		s.inflight.Done()
		return ErrPipelineReleased
	case <-ctx.Done():
		s.inflight.Done()
		return ctx.Err()
	case <-timer.C:
		s.inflight.Done()
		return ErrEmbedQueueTimeout
	}
}

// dispatch drains the queue into the worker pool until the queue is closed.
func (s *embedScheduler) dispatch() {
	defer s.wg.Done()
	for task := range s.queue {
		t := task
		if err := s.pool.Submit(func() {
			defer s.inflight.Done()
			s.run(t)
		}); err != nil {
			s.inflight.Done()
			s.logger.Error("failed to submit embedding task", "message_id", uint64(t.messageID), "err", err)
		}
	}
}

func (s *embedScheduler) run(task embedTask) {
	ctx := context.Background()

	vector, err := s.embedder.EmbedText(ctx, task.contents)
	if err != nil {
		s.logger.Warn("embedding backend unavailable, leaving message for backfill",
			"message_id", uint64(task.messageID), "err", err)
		return
	}
	if len(vector) == 0 {
		s.logger.Warn("embedder returned empty vector", "message_id", uint64(task.messageID))
		return
	}

	created, err := s.embeddings.PutEmbedding(ctx, &core.Embedding{
		MessageId: task.messageID,
		Model:     s.model,
		Vector:    backfill.NormalizeVector(vector),
	})
	if err != nil {
		s.logger.Error("failed to store embedding", "message_id", uint64(task.messageID), "err", err)
		return
	}
	if !created {
		s.logger.Debug("embedding already present", "message_id", uint64(task.messageID))
	}
}

// Wait blocks until all scheduled tasks have run. Mainly for tests and the
// synchronous CLI import path.
func (s *embedScheduler) Wait() {
	s.inflight.Wait()
}

// Release stops accepting work, drains the queue and waits for in-flight
// tasks.
func (s *embedScheduler) Release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	s.mu.Unlock()

	// Unblock producers stuck on a full queue, then wait for every
	// Schedule call still in its send to finish. Only once no producer can
	// touch the queue is it safe to close it; the dispatcher then drains
	// what remains and exits.
	close(s.done)
	s.producers.Wait()
	close(s.queue)
	s.wg.Wait()
	s.inflight.Wait()
}
