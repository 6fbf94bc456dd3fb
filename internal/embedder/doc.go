// Package embedder turns text into vector embeddings through an ordered
// chain of providers: a local Ollama instance probed over HTTP, then cloud
// APIs (OpenAI, Jina) gated on their credentials. The registry serves from
// the first provider that is available and succeeds, caches results in an
// LRU keyed by content hash, and reports a kind-tagged provider-unavailable
// error when the whole chain is down — a state callers treat as degraded
// operation, not failure.
package embedder
