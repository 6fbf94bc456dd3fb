package kb

import (
	"context"
	"crypto/sha256"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodestone-kb/lodestone/internal/embedder"
	"github.com/lodestone-kb/lodestone/internal/kberr"
	"github.com/lodestone-kb/lodestone/pkg/types"
)

// hashProvider is a deterministic in-process embedding provider.
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

func newTestCore(t *testing.T) *Core {
	t.Helper()
	core, err := Open(Config{
		DBPath:   filepath.Join(t.TempDir(), "kb.db"),
		PoolSize: 2,
		Registry: embedder.NewRegistry(nil, embedder.NewCache(100), hashProvider{}),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = core.Close() })
	return core
}

func saveAndIndex(t *testing.T, core *Core, content string) *types.Resource {
	t.Helper()
	ctx := context.Background()

	res := &types.Resource{
		ID:           uuid.NewString(),
		CollectionID: "default",
		Type:         types.ResourceNote,
		Title:        "note",
		Content:      &content,
	}
	res.ComputeContentHash()
	// Saved through the store directly so the only scheduled job is the
	// explicit one below, which the test can wait on.
	require.NoError(t, core.Store().SaveResource(ctx, res))

	job, err := core.Index(ctx, res.ID)
	require.NoError(t, err)
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, job.Wait(waitCtx))
	return res
}

func TestSaveSearchRoundTrip(t *testing.T) {
	core := newTestCore(t)
	ctx := context.Background()

	res := saveAndIndex(t, core, "The quick brown fox jumps over the lazy dog")

	resp, err := core.Search(ctx, "quick fox", types.SearchOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Resources)
	assert.Equal(t, res.ID, resp.Resources[0].Resource.ID)
	assert.Equal(t, types.ProvenanceKeyword, resp.Resources[0].Provenance)
}

func TestSearchValidation(t *testing.T) {
	core := newTestCore(t)
	ctx := context.Background()

	long := make([]rune, MaxQueryLength+1)
	for i := range long {
		long[i] = 'q'
	}

	tests := []struct {
		name  string
		query string
		opts  types.SearchOptions
	}{
		{"empty query", "", types.SearchOptions{}},
		{"oversized query", string(long), types.SearchOptions{}},
		{"limit too large", "ok", types.SearchOptions{Limit: MaxLimit + 1}},
		{"negative limit", "ok", types.SearchOptions{Limit: -1}},
		{"min score out of range", "ok", types.SearchOptions{MinScore: 1.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := core.Search(ctx, tt.query, tt.opts)
			assert.Equal(t, kberr.KindValidation, kberr.KindOf(err))
		})
	}
}

func TestSaveResourceValidation(t *testing.T) {
	core := newTestCore(t)
	ctx := context.Background()

	assert.Equal(t, kberr.KindValidation, kberr.KindOf(core.SaveResource(ctx, nil)))
	assert.Equal(t, kberr.KindValidation, kberr.KindOf(core.SaveResource(ctx, &types.Resource{})))
}

func TestIndexMissingResource(t *testing.T) {
	core := newTestCore(t)

	_, err := core.Index(context.Background(), uuid.NewString())
	assert.Equal(t, kberr.KindNotFound, kberr.KindOf(err))
}

func TestDeleteIndexKeepsResource(t *testing.T) {
	core := newTestCore(t)
	ctx := context.Background()

	res := saveAndIndex(t, core, "searchable body of text")
	require.NoError(t, core.DeleteIndex(ctx, res.ID))

	// Vectors are gone, content remains.
	rows, err := core.VectorSearch(ctx, "searchable body of text", types.SearchOptions{MinScore: 0.99})
	require.NoError(t, err)
	assert.Empty(t, rows)

	resp, err := core.Search(ctx, "searchable body", types.SearchOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Resources, "keyword search still works after index deletion")
}

func TestDeleteResourceRemovesEverything(t *testing.T) {
	core := newTestCore(t)
	ctx := context.Background()

	res := saveAndIndex(t, core, "resource to be removed")
	require.NoError(t, core.DeleteResource(ctx, res.ID))

	resp, err := core.Search(ctx, "removed", types.SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, resp.Resources)

	err = core.DeleteResource(ctx, res.ID)
	assert.Equal(t, kberr.KindNotFound, kberr.KindOf(err))
}

func TestSemanticSearchThroughCore(t *testing.T) {
	core := newTestCore(t)
	ctx := context.Background()

	source := saveAndIndex(t, core, "notes about alpine climbing routes")
	twin := saveAndIndex(t, core, "notes about alpine climbing routes")

	results, err := core.SemanticSearch(ctx, source.ID, types.SearchOptions{MinScore: 0.99})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, twin.ID, results[0].Resource.ID)
}

func TestVectorSearchThroughCore(t *testing.T) {
	core := newTestCore(t)
	ctx := context.Background()

	res := saveAndIndex(t, core, "vector search target text")

	rows, err := core.VectorSearch(ctx, "vector search target text", types.SearchOptions{MinScore: 0.99})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, res.ID, rows[0].ResourceID)
}

func TestStats(t *testing.T) {
	core := newTestCore(t)
	ctx := context.Background()

	saveAndIndex(t, core, "first resource")
	saveAndIndex(t, core, "second resource")

	stats, err := core.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Resources)
	require.Contains(t, stats.VectorTables, types.ClassResourceChunk)
	assert.Equal(t, 8, stats.VectorTables[types.ClassResourceChunk].Dimension)
	assert.Equal(t, 2, stats.VectorTables[types.ClassResourceChunk].Rows)
}

func TestProviderAvailable(t *testing.T) {
	core := newTestCore(t)
	assert.True(t, core.ProviderAvailable(context.Background()))
}
