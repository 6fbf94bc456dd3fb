package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lodestone-kb/lodestone/internal/kberr"
	"github.com/lodestone-kb/lodestone/internal/store"
	"github.com/lodestone-kb/lodestone/pkg/types"
)

// handleIndexResource handles the index_resource tool invocation
func (s *Server) handleIndexResource(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return errorResult(kberr.New(kberr.KindValidation, "invalid arguments")), nil
	}

	resourceID, ok := args["resource_id"].(string)
	if !ok || resourceID == "" {
		return errorResult(kberr.New(kberr.KindValidation, "resource_id parameter is required")), nil
	}
	wait := getBoolDefault(args, "wait", false)

	job, err := s.core.Index(ctx, resourceID)
	if err != nil {
		return errorResult(err), nil
	}

	if wait {
		if err := job.Wait(ctx); err != nil {
			return errorResult(err), nil
		}
	}

	return successResult(map[string]interface{}{
		"resource_id": resourceID,
		"scheduled":   true,
		"completed":   wait,
	}), nil
}

// handleDeleteIndex handles the delete_index tool invocation
func (s *Server) handleDeleteIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return errorResult(kberr.New(kberr.KindValidation, "invalid arguments")), nil
	}

	resourceID, ok := args["resource_id"].(string)
	if !ok || resourceID == "" {
		return errorResult(kberr.New(kberr.KindValidation, "resource_id parameter is required")), nil
	}

	if err := s.core.DeleteIndex(ctx, resourceID); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]interface{}{
		"resource_id": resourceID,
		"deleted":     true,
	}), nil
}

// handleSearchKnowledge handles the search_knowledge tool invocation
func (s *Server) handleSearchKnowledge(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return errorResult(kberr.New(kberr.KindValidation, "invalid arguments")), nil
	}

	query, ok := args["query"].(string)
	if !ok {
		return errorResult(kberr.New(kberr.KindValidation, "query parameter is required")), nil
	}

	opts := types.SearchOptions{
		Limit:    getIntDefault(args, "limit", 0),
		MinScore: getFloatDefault(args, "min_score", 0),
		Types:    parseTypes(args["types"]),
	}

	resp, err := s.core.Search(ctx, query, opts)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(formatSearchResponse(resp)), nil
}

// handleSemanticSearch handles the semantic_search tool invocation
func (s *Server) handleSemanticSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return errorResult(kberr.New(kberr.KindValidation, "invalid arguments")), nil
	}

	resourceID, ok := args["resource_id"].(string)
	if !ok || resourceID == "" {
		return errorResult(kberr.New(kberr.KindValidation, "resource_id parameter is required")), nil
	}

	opts := types.SearchOptions{
		Limit:    getIntDefault(args, "limit", 10),
		MinScore: getFloatDefault(args, "min_score", 0),
	}

	results, err := s.core.SemanticSearch(ctx, resourceID, opts)
	if err != nil {
		return errorResult(err), nil
	}

	neighbors := make([]map[string]interface{}, len(results))
	for i, r := range results {
		neighbors[i] = map[string]interface{}{
			"resource": formatResource(r.Resource),
			"score":    r.Score,
		}
	}
	return successResult(map[string]interface{}{"neighbors": neighbors}), nil
}

// handleVectorSearch handles the vector_search tool invocation
func (s *Server) handleVectorSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return errorResult(kberr.New(kberr.KindValidation, "invalid arguments")), nil
	}

	query, ok := args["query"].(string)
	if !ok {
		return errorResult(kberr.New(kberr.KindValidation, "query parameter is required")), nil
	}

	opts := types.SearchOptions{
		Limit:    getIntDefault(args, "limit", 0),
		MinScore: getFloatDefault(args, "min_score", 0),
	}

	rows, err := s.core.VectorSearch(ctx, query, opts)
	if err != nil {
		return errorResult(err), nil
	}

	hits := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		hits[i] = map[string]interface{}{
			"resource_id": row.ResourceID,
			"chunk_index": row.ChunkIndex,
			"class":       string(row.Class),
			"score":       row.Score,
		}
	}
	return successResult(map[string]interface{}{"rows": hits}), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.core.Stats(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	tables := make(map[string]interface{}, len(stats.VectorTables))
	for class, info := range stats.VectorTables {
		tables[string(class)] = map[string]interface{}{
			"dimension": info.Dimension,
			"rows":      info.Rows,
		}
	}

	return successResult(map[string]interface{}{
		"resources":          stats.Resources,
		"annotations":        stats.Annotations,
		"artifacts":          stats.Artifacts,
		"vector_tables":      tables,
		"provider_available": s.core.ProviderAvailable(ctx),
		"build_mode":         store.BuildMode,
	}), nil
}

// Response envelope

// successResult wraps data in the {success, data} envelope.
func successResult(data interface{}) *mcp.CallToolResult {
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"success": true,
		"data":    data,
	}))
}

// errorResult renders a kind-tagged error as the {success, error} envelope.
// Tool errors are payload, not protocol errors: the client always gets a
// well-formed response.
func errorResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"success": false,
		"error": map[string]interface{}{
			"kind":    kberr.KindOf(err).String(),
			"message": err.Error(),
		},
	}))
}

func formatSearchResponse(resp *types.SearchResponse) map[string]interface{} {
	resources := make([]map[string]interface{}, len(resp.Resources))
	for i, r := range resp.Resources {
		entry := map[string]interface{}{
			"resource":   formatResource(r.Resource),
			"provenance": string(r.Provenance),
			"score":      r.Score,
		}
		if r.Snippet != "" {
			entry["snippet"] = r.Snippet
		}
		resources[i] = entry
	}

	annotations := make([]map[string]interface{}, len(resp.Annotations))
	for i, a := range resp.Annotations {
		annotations[i] = map[string]interface{}{
			"id":          a.Annotation.ID,
			"resource_id": a.Annotation.ResourceID,
			"content":     a.Annotation.Content,
			"provenance":  string(a.Provenance),
		}
	}

	artifacts := make([]map[string]interface{}, len(resp.Artifacts))
	for i, a := range resp.Artifacts {
		artifacts[i] = map[string]interface{}{
			"id":          a.Artifact.ID,
			"resource_id": a.Artifact.ResourceID,
			"title":       a.Artifact.Title,
			"provenance":  string(a.Provenance),
		}
	}

	return map[string]interface{}{
		"resources":   resources,
		"annotations": annotations,
		"artifacts":   artifacts,
	}
}

func formatResource(res *types.Resource) map[string]interface{} {
	return map[string]interface{}{
		"id":            res.ID,
		"collection_id": res.CollectionID,
		"type":          string(res.Type),
		"title":         res.Title,
		"updated_at":    res.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// Helper functions

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloatDefault extracts a float parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	if val, ok := args[key].(float64); ok {
		return val
	}
	return defaultValue
}

// parseTypes converts a JSON array argument into resource types.
func parseTypes(raw interface{}) []types.ResourceType {
	list, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]types.ResourceType, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, types.ResourceType(s))
		}
	}
	return out
}
