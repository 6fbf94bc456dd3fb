package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// indexResourceTool returns the tool definition for index_resource
func indexResourceTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_resource",
		Description: "Schedule background indexing (chunking and embedding) for a stored resource",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"resource_id": map[string]interface{}{
					"type":        "string",
					"description": "Identifier of the resource to index",
				},
				"wait": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, block until the indexing job completes",
					"default":     false,
				},
			},
			Required: []string{"resource_id"},
		},
	}
}

// deleteIndexTool returns the tool definition for delete_index
func deleteIndexTool() mcp.Tool {
	return mcp.Tool{
		Name:        "delete_index",
		Description: "Remove a resource's vectors and index state; the resource itself is kept",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"resource_id": map[string]interface{}{
					"type":        "string",
					"description": "Identifier of the resource whose index entries to remove",
				},
			},
			Required: []string{"resource_id"},
		},
	}
}

// searchKnowledgeTool returns the tool definition for search_knowledge
func searchKnowledgeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_knowledge",
		Description: "Hybrid search over the knowledge base: keyword, substring, and semantic paths with provenance tags",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords, max 1024 characters)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results per bucket (1-100)",
					"default":     20,
					"minimum":     1,
					"maximum":     100,
				},
				"min_score": map[string]interface{}{
					"type":        "number",
					"description": "Minimum relevance score threshold (0.0-1.0)",
					"minimum":     0.0,
					"maximum":     1.0,
				},
				"types": map[string]interface{}{
					"type":        "array",
					"description": "Restrict results to these resource types",
					"items": map[string]interface{}{
						"type": "string",
						"enum": []string{"note", "document", "page", "transcript"},
					},
				},
			},
			Required: []string{"query"},
		},
	}
}

// semanticSearchTool returns the tool definition for semantic_search
func semanticSearchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "semantic_search",
		Description: "Find resources semantically similar to an existing resource's content",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"resource_id": map[string]interface{}{
					"type":        "string",
					"description": "Identifier of the source resource",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of neighbors to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"min_score": map[string]interface{}{
					"type":        "number",
					"description": "Minimum cosine similarity threshold (0.0-1.0)",
					"minimum":     0.0,
					"maximum":     1.0,
				},
			},
			Required: []string{"resource_id"},
		},
	}
}

// vectorSearchTool returns the tool definition for vector_search
func vectorSearchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "vector_search",
		Description: "Raw nearest-neighbor search over resource chunks, without keyword fusion",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Text to embed and match against stored chunk vectors",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of rows to return (1-100)",
					"default":     20,
					"minimum":     1,
					"maximum":     100,
				},
				"min_score": map[string]interface{}{
					"type":        "number",
					"description": "Minimum cosine similarity threshold (0.0-1.0)",
					"minimum":     0.0,
					"maximum":     1.0,
				},
			},
			Required: []string{"query"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report index statistics: entity counts, vector table dimensions, and provider availability",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
