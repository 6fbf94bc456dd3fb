package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lodestone-kb/lodestone/internal/embedder"
	"github.com/lodestone-kb/lodestone/internal/store"
	"github.com/lodestone-kb/lodestone/internal/vectorstore"
	"github.com/lodestone-kb/lodestone/pkg/types"
)

// Embedder is the slice of the embedding registry the engine needs.
type Embedder interface {
	Available(ctx context.Context) bool
	Embed(ctx context.Context, text string) (*embedder.Embedding, error)
}

// Engine fuses keyword, substring, and semantic search into one response.
// Result buckets keep their store-native order and are tagged with
// provenance; the engine never re-ranks across buckets because keyword rank
// and cosine similarity are not comparable scales.
type Engine struct {
	store    *store.Store
	vectors  *vectorstore.VectorStore
	embedder Embedder
	logger   *slog.Logger
}

// New creates a query engine over the content store, the vector store, and
// an embedding source.
func New(st *store.Store, vectors *vectorstore.VectorStore, emb Embedder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    st,
		vectors:  vectors,
		embedder: emb,
		logger:   logger.With("component", "engine"),
	}
}

// Search runs the hybrid pipeline: keyword FTS over resources, substring
// over annotations and artifacts, and — when an embedding provider is up —
// semantic search over both vector classes. Without a provider the keyword
// and substring paths still serve; degradation is silent by design. A query
// that sanitizes to nothing returns an empty response.
func (e *Engine) Search(ctx context.Context, query string, opts types.SearchOptions) (*types.SearchResponse, error) {
	resp := &types.SearchResponse{
		Resources:   []types.ResourceResult{},
		Annotations: []types.AnnotationResult{},
		Artifacts:   []types.ArtifactResult{},
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	keyword, err := e.store.SearchKeyword(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	resp.Resources = keyword

	annotations, err := e.store.SearchAnnotationsSubstring(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	resp.Annotations = annotations
	if err := e.addAnnotationParents(ctx, resp); err != nil {
		return nil, err
	}

	artifacts, err := e.store.SearchArtifactsSubstring(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	resp.Artifacts = artifacts

	if e.embedder.Available(ctx) {
		if err := e.addSemanticResults(ctx, query, opts, resp); err != nil {
			return nil, err
		}
	}

	return resp, nil
}

// addAnnotationParents pulls the parent resource of every matched
// annotation into the response, so an annotation hit is always navigable to
// the text it annotates.
func (e *Engine) addAnnotationParents(ctx context.Context, resp *types.SearchResponse) error {
	seen := make(map[string]bool, len(resp.Resources))
	for _, r := range resp.Resources {
		seen[r.Resource.ID] = true
	}

	for _, ann := range resp.Annotations {
		if seen[ann.Annotation.ResourceID] {
			continue
		}
		parent, err := e.store.GetResource(ctx, ann.Annotation.ResourceID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		seen[parent.ID] = true
		resp.Resources = append(resp.Resources, types.ResourceResult{
			Resource:   parent,
			Provenance: types.ProvenanceSubstring,
		})
	}
	return nil
}

// addSemanticResults embeds the raw query and appends vector hits from both
// entity classes, deduplicating against keyword hits by resource identity.
// Annotation-class hits surface as the parent resource so results stay
// navigable.
func (e *Engine) addSemanticResults(ctx context.Context, query string, opts types.SearchOptions, resp *types.SearchResponse) error {
	emb, err := e.embedder.Embed(ctx, query)
	if err != nil {
		// Provider dropped between the availability check and the call;
		// keyword results still stand.
		e.logger.Warn("semantic search unavailable", "err", err)
		return nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	seen := make(map[string]bool, len(resp.Resources))
	for _, r := range resp.Resources {
		seen[r.Resource.ID] = true
	}

	for _, class := range []types.EntityClass{types.ClassResourceChunk, types.ClassAnnotationChunk} {
		rows, err := e.vectors.Search(ctx, class, emb.Vector, limit, opts.MinScore)
		if err != nil {
			return err
		}

		for _, row := range rows {
			if seen[row.ResourceID] {
				continue
			}

			res, err := e.store.GetResource(ctx, row.ResourceID)
			if errors.Is(err, store.ErrNotFound) {
				// Vector row outlived its resource; skip rather than fail
				// the whole search.
				continue
			}
			if err != nil {
				return err
			}
			if !matchesTypeFilter(res, opts.Types) {
				continue
			}

			seen[row.ResourceID] = true
			resp.Resources = append(resp.Resources, types.ResourceResult{
				Resource:   res,
				Provenance: types.ProvenanceSemantic,
				Score:      row.Score,
			})
		}
	}
	return nil
}

func matchesTypeFilter(res *types.Resource, filter []types.ResourceType) bool {
	if len(filter) == 0 {
		return true
	}
	for _, t := range filter {
		if res.Type == t {
			return true
		}
	}
	return false
}

// SemanticSearch finds resources similar to an existing resource by
// embedding its content and searching the resource-chunk class. The source
// resource itself is excluded.
func (e *Engine) SemanticSearch(ctx context.Context, resourceID string, limit int, minScore float64) ([]types.ScoredResource, error) {
	res, err := e.store.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	emb, err := e.embedder.Embed(ctx, res.Text())
	if err != nil {
		return nil, err
	}

	// One extra row absorbs the source resource's own chunk.
	rows, err := e.vectors.Search(ctx, types.ClassResourceChunk, emb.Vector, limit+1, minScore)
	if err != nil {
		return nil, err
	}

	results := make([]types.ScoredResource, 0, limit)
	seen := map[string]bool{resourceID: true}
	for _, row := range rows {
		if seen[row.ResourceID] {
			continue
		}
		seen[row.ResourceID] = true

		neighbor, err := e.store.GetResource(ctx, row.ResourceID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		results = append(results, types.ScoredResource{Resource: neighbor, Score: row.Score})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

// VectorSearch embeds the query and returns raw scored rows from one vector
// class, bypassing keyword fusion and parent enrichment. The low-level
// escape hatch for callers that rank on their own.
func (e *Engine) VectorSearch(ctx context.Context, class types.EntityClass, query string, limit int, minScore float64) ([]types.ScoredRow, error) {
	emb, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	return e.vectors.Search(ctx, class, emb.Vector, limit, minScore)
}
