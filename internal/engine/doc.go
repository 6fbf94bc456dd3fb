// Package engine is the hybrid query path: full-text search over resources,
// substring search over annotations and artifacts, and semantic search over
// the vector classes when an embedding provider is reachable. Each result
// carries a provenance tag (keyword, substring, semantic) and buckets keep
// their store-native order; keyword rank and cosine similarity live on
// different scales, so the engine refuses to re-rank across them.
package engine
