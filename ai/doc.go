// Package ai defines the embedding service abstraction used by ingestion,
// backfill and search.
//
// The Embedder interface is implemented by the openai subpackage for any
// OpenAI-compatible API and by the mock subpackage for tests. Callers depend
// only on the interfaces here; configuration is shared through Config.
package ai
