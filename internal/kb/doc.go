// Package kb assembles the knowledge base: the content store, the
// dimension-typed vector store, the embedding provider registry, the
// background indexing scheduler, and the hybrid query engine, wired
// explicitly and exposed through the Core facade. Transports (MCP, CLI)
// talk only to Core; every error leaving it carries a machine-readable
// kind.
package kb
