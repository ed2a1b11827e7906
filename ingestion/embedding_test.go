package ingestion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/require"

	"github.com/chatvault/chatvault/ai/mock"
	"github.com/chatvault/chatvault/core"
	"github.com/chatvault/chatvault/storage/badger"
)

func newTestScheduler(t *testing.T, queueCapacity int, enqueueTimeout time.Duration, embedder *mock.MockEmbedder) *embedScheduler {
	t.Helper()

	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	pool, err := ants.NewPool(1)
	require.NoError(t, err)
	t.Cleanup(pool.Release)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newEmbedScheduler(store.Embeddings, embedder, "mock-embed", pool, queueCapacity, enqueueTimeout, logger)
}

func TestSchedulerScheduleAfterRelease(t *testing.T) {
	s := newTestScheduler(t, 4, 50*time.Millisecond, mock.NewMockEmbedder())
	s.Release()

	err := s.Schedule(context.Background(), core.ID(1), "hello")
	require.ErrorIs(t, err, ErrPipelineReleased)
}

func TestSchedulerReleaseIsIdempotent(t *testing.T) {
	s := newTestScheduler(t, 4, 50*time.Millisecond, mock.NewMockEmbedder())
	s.Release()
	s.Release()
}

// Producers racing Release must never hit a closed queue; they either slip
// a task in before shutdown or get ErrPipelineReleased back.
func TestSchedulerReleaseWithConcurrentProducers(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		time.Sleep(time.Millisecond)
		return []float32{1, 0, 0}, nil
	}
	s := newTestScheduler(t, 1, 5*time.Second, embedder)

	const producers = 8
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			<-start
			for j := 0; j < 50; j++ {
				err := s.Schedule(context.Background(), core.ID(n*100+j), "payload")
				if errors.Is(err, ErrPipelineReleased) {
					return
				}
				if err != nil && !errors.Is(err, ErrEmbedQueueTimeout) {
					t.Errorf("unexpected schedule error: %v", err)
					return
				}
			}
		}(i)
	}

	close(start)
	time.Sleep(5 * time.Millisecond)

	released := make(chan struct{})
	go func() {
		s.Release()
		close(released)
	}()

	select {
	case <-released:
	case <-time.After(10 * time.Second):
		t.Fatal("release did not complete")
	}
	wg.Wait()

	err := s.Schedule(context.Background(), core.ID(999), "late")
	require.ErrorIs(t, err, ErrPipelineReleased)
}
