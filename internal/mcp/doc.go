// Package mcp exposes the knowledge base over the Model Context Protocol on
// stdio. Six tools map onto the core surface: index_resource, delete_index,
// search_knowledge, semantic_search, vector_search, and get_status. Every
// tool responds with a {success, data, error} envelope; failures carry the
// core's error kind so clients can distinguish bad input from a missing
// provider or a corrupted index without parsing messages.
package mcp
