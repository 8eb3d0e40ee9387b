// Package memory implements the episodic memory store: validated ingestion
// with semantic embeddings, similarity retrieval, access tracking, feedback
// updates, and the retention primitives (forgetting, consolidation support)
// driven by the memory manager.
//
// The store owns a single exclusive lock over its entry cache. Embedding
// generation is never performed while holding that lock; the text to embed
// is composed first, the provider is called, and the result is committed
// afterwards. Persistence writes are best-effort and asynchronous.
package memory
