// Package backfill generates embeddings for messages the ingestion pass
// left without one.
//
// The Backfiller scans stored messages, finds those missing an embedding
// under the active model, and embeds them in batches with exponential
// backoff and progress reporting. Because embedding writes are idempotent,
// the pass can be re-run at any time.
package backfill
