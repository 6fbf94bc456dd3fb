package mcp

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodestone-kb/lodestone/internal/embedder"
	"github.com/lodestone-kb/lodestone/internal/kb"
	"github.com/lodestone-kb/lodestone/pkg/types"
)

type hashProvider struct{}

func (hashProvider) Name() string                     { return "hash" }
func (hashProvider) Available(_ context.Context) bool { return true }
func (hashProvider) Dimension() int                   { return 8 }

func (hashProvider) Embed(_ context.Context, text string) (*embedder.Embedding, error) {
	digest := sha256.Sum256([]byte(text))
	vector := make([]float32, 8)
	for i := range vector {
		vector[i] = float32(digest[i]) / 255.0
	}
	return &embedder.Embedding{Vector: vector, Dimension: 8, Provider: "hash", Model: "hash"}, nil
}

func (h hashProvider) EmbedBatch(ctx context.Context, texts []string) ([]*embedder.Embedding, error) {
	embs := make([]*embedder.Embedding, len(texts))
	for i, text := range texts {
		emb, err := h.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embs[i] = emb
	}
	return embs, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	core, err := kb.Open(kb.Config{
		DBPath:   filepath.Join(t.TempDir(), "kb.db"),
		PoolSize: 2,
		Registry: embedder.NewRegistry(nil, embedder.NewCache(100), hashProvider{}),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = core.Close() })
	return NewServer(core, nil)
}

func toolRequest(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// envelope decodes the {success, data, error} payload of a tool result.
func envelope(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)

	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok, "tool result should be text content")

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &payload))
	return payload
}

func saveResource(t *testing.T, s *Server, content string) *types.Resource {
	t.Helper()
	res := &types.Resource{
		ID:           uuid.NewString(),
		CollectionID: "default",
		Type:         types.ResourceNote,
		Title:        "note",
		Content:      &content,
	}
	res.ComputeContentHash()
	require.NoError(t, s.core.Store().SaveResource(context.Background(), res))
	return res
}

func indexAndWait(t *testing.T, s *Server, resourceID string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := s.handleIndexResource(ctx, toolRequest(map[string]interface{}{
		"resource_id": resourceID,
		"wait":        true,
	}))
	require.NoError(t, err)
	payload := envelope(t, result)
	require.Equal(t, true, payload["success"])
}

func TestIndexResourceTool(t *testing.T) {
	s := newTestServer(t)

	res := saveResource(t, s, "The quick brown fox jumps over the lazy dog")
	indexAndWait(t, s, res.ID)

	stats, err := s.core.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.VectorTables[types.ClassResourceChunk].Rows)
}

func TestIndexResourceToolValidation(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleIndexResource(ctx, toolRequest(map[string]interface{}{}))
	require.NoError(t, err, "tool errors are payload, not protocol errors")

	payload := envelope(t, result)
	assert.Equal(t, false, payload["success"])
	errObj := payload["error"].(map[string]interface{})
	assert.Equal(t, "validation", errObj["kind"])
}

func TestIndexResourceToolNotFound(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleIndexResource(context.Background(), toolRequest(map[string]interface{}{
		"resource_id": uuid.NewString(),
	}))
	require.NoError(t, err)

	payload := envelope(t, result)
	assert.Equal(t, false, payload["success"])
	errObj := payload["error"].(map[string]interface{})
	assert.Equal(t, "not_found", errObj["kind"])
}

func TestSearchKnowledgeTool(t *testing.T) {
	s := newTestServer(t)

	res := saveResource(t, s, "The quick brown fox jumps over the lazy dog")
	indexAndWait(t, s, res.ID)

	result, err := s.handleSearchKnowledge(context.Background(), toolRequest(map[string]interface{}{
		"query": "quick fox",
	}))
	require.NoError(t, err)

	payload := envelope(t, result)
	require.Equal(t, true, payload["success"])

	data := payload["data"].(map[string]interface{})
	resources := data["resources"].([]interface{})
	require.Len(t, resources, 1)

	hit := resources[0].(map[string]interface{})
	assert.Equal(t, "keyword", hit["provenance"])
	assert.Equal(t, res.ID, hit["resource"].(map[string]interface{})["id"])
}

func TestSearchKnowledgeToolValidation(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleSearchKnowledge(context.Background(), toolRequest(map[string]interface{}{
		"query": "ok",
		"limit": float64(500),
	}))
	require.NoError(t, err)

	payload := envelope(t, result)
	assert.Equal(t, false, payload["success"])
	errObj := payload["error"].(map[string]interface{})
	assert.Equal(t, "validation", errObj["kind"])
}

func TestSemanticSearchTool(t *testing.T) {
	s := newTestServer(t)

	source := saveResource(t, s, "alpine climbing route notes")
	twin := saveResource(t, s, "alpine climbing route notes")
	indexAndWait(t, s, source.ID)
	indexAndWait(t, s, twin.ID)

	result, err := s.handleSemanticSearch(context.Background(), toolRequest(map[string]interface{}{
		"resource_id": source.ID,
		"min_score":   0.99,
	}))
	require.NoError(t, err)

	payload := envelope(t, result)
	require.Equal(t, true, payload["success"])

	neighbors := payload["data"].(map[string]interface{})["neighbors"].([]interface{})
	require.Len(t, neighbors, 1)
	neighbor := neighbors[0].(map[string]interface{})
	assert.Equal(t, twin.ID, neighbor["resource"].(map[string]interface{})["id"])
}

func TestVectorSearchTool(t *testing.T) {
	s := newTestServer(t)

	res := saveResource(t, s, "vector target content")
	indexAndWait(t, s, res.ID)

	result, err := s.handleVectorSearch(context.Background(), toolRequest(map[string]interface{}{
		"query":     "vector target content",
		"min_score": 0.99,
	}))
	require.NoError(t, err)

	payload := envelope(t, result)
	require.Equal(t, true, payload["success"])

	rows := payload["data"].(map[string]interface{})["rows"].([]interface{})
	require.Len(t, rows, 1)
	row := rows[0].(map[string]interface{})
	assert.Equal(t, res.ID, row["resource_id"])
	assert.Equal(t, "resource_chunk", row["class"])
}

func TestDeleteIndexTool(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	res := saveResource(t, s, "content to unindex")
	indexAndWait(t, s, res.ID)

	result, err := s.handleDeleteIndex(ctx, toolRequest(map[string]interface{}{
		"resource_id": res.ID,
	}))
	require.NoError(t, err)
	payload := envelope(t, result)
	require.Equal(t, true, payload["success"])

	stats, err := s.core.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.VectorTables[types.ClassResourceChunk].Rows)
}

func TestGetStatusTool(t *testing.T) {
	s := newTestServer(t)

	res := saveResource(t, s, "status check content")
	indexAndWait(t, s, res.ID)

	result, err := s.handleGetStatus(context.Background(), toolRequest(nil))
	require.NoError(t, err)

	payload := envelope(t, result)
	require.Equal(t, true, payload["success"])

	data := payload["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["resources"])
	assert.Equal(t, true, data["provider_available"])

	tables := data["vector_tables"].(map[string]interface{})
	require.Contains(t, tables, "resource_chunk")
	assert.Equal(t, float64(8), tables["resource_chunk"].(map[string]interface{})["dimension"])
}
