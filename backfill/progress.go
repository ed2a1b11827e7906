package backfill

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker reports how far a backfill run has come. It is handed the
// number of messages still missing embeddings up front and prints a progress
// line every reportInterval embedded messages.
type ProgressTracker struct {
	writer         io.Writer
	total          int
	reportInterval int

	mu           sync.Mutex
	embedded     int
	lastReported int
	startTime    time.Time
}

// NewProgressTracker starts the clock for a run over total missing messages,
// writing progress lines to writer (typically os.Stderr).
func NewProgressTracker(writer io.Writer, total, reportInterval int) *ProgressTracker {
	return &ProgressTracker{
		writer:         writer,
		total:          total,
		reportInterval: reportInterval,
		startTime:      time.Now(),
	}
}

// Update records the number of messages embedded so far.
func (p *ProgressTracker) Update(embedded int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if embedded > p.total {
		embedded = p.total
	}
	p.embedded = embedded

	if p.embedded-p.lastReported >= p.reportInterval {
		p.report()
		p.lastReported = p.embedded
	}
}

// Finish prints the final progress line and terminates it.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.embedded = p.total
	p.report()
	fmt.Fprintln(p.writer)
}

// Elapsed returns the time since the run started.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Since(p.startTime)
}

// report prints the current backfill progress. Must be called with lock held.
func (p *ProgressTracker) report() {
	elapsed := time.Since(p.startTime)
	rate := float64(p.embedded) / elapsed.Seconds()

	percentage := 0.0
	if p.total > 0 {
		percentage = float64(p.embedded) / float64(p.total) * 100.0
	}

	fmt.Fprintf(p.writer, "\rBackfill: %d/%d messages (%.1f%%) - %.1f embeddings/s",
		p.embedded, p.total, percentage, rate)
}
