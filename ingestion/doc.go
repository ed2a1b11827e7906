// Package ingestion coordinates upload jobs from parsed export payload to
// queryable store.
//
// A Pipeline deduplicates and upserts normalized conversations, keeps each
// conversation's derived counters consistent through transactional
// recomputation, tracks per-upload progress, and branches embedding
// generation off the write path through a bounded queue. Ingestion is
// at-least-once and idempotent on retry: re-running the same file creates no
// duplicates.
package ingestion
