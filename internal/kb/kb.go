package kb

import (
	"context"
	"errors"
	"log/slog"
	"unicode/utf8"

	"github.com/lodestone-kb/lodestone/internal/chunker"
	"github.com/lodestone-kb/lodestone/internal/embedder"
	"github.com/lodestone-kb/lodestone/internal/engine"
	"github.com/lodestone-kb/lodestone/internal/kberr"
	"github.com/lodestone-kb/lodestone/internal/scheduler"
	"github.com/lodestone-kb/lodestone/internal/store"
	"github.com/lodestone-kb/lodestone/internal/vectorstore"
	"github.com/lodestone-kb/lodestone/pkg/types"
)

// Validation bounds for the external surface.
const (
	MaxQueryLength = 1024
	MaxLimit       = 100
	DefaultLimit   = 20

	// Chunking defaults, in runes.
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
)

// Core is the knowledge-base facade: storage, background indexing, and
// hybrid search behind one surface. Every error leaving Core is kind-tagged
// so transports can map it mechanically.
type Core struct {
	store     *store.Store
	vectors   *vectorstore.VectorStore
	registry  *embedder.Registry
	scheduler *scheduler.Scheduler
	engine    *engine.Engine
	logger    *slog.Logger
}

// Config configures Core construction.
type Config struct {
	DBPath       string
	ChunkSize    int
	ChunkOverlap int
	PoolSize     int
	Logger       *slog.Logger

	// Registry overrides the environment-built provider registry. Tests
	// inject deterministic providers here.
	Registry *embedder.Registry
}

// Open builds a Core: content store, vector store sharing its connection,
// embedding registry, scheduler, and query engine.
func Open(cfg Config) (*Core, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		return nil, kberr.Wrap(kberr.KindInternal, err, "failed to open content store")
	}

	vs, err := vectorstore.New(st.DB(), logger)
	if err != nil {
		_ = st.Close()
		return nil, kberr.Wrap(kberr.KindInternal, err, "failed to open vector store")
	}

	registry := cfg.Registry
	if registry == nil {
		registry, err = embedder.NewFromEnv(logger)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	chunkOverlap := cfg.ChunkOverlap
	if chunkOverlap <= 0 {
		chunkOverlap = DefaultChunkOverlap
	}
	ch := chunker.New(chunkSize, chunkOverlap)

	opts := []scheduler.Option{scheduler.WithLogger(logger)}
	if cfg.PoolSize > 0 {
		opts = append(opts, scheduler.WithPoolSize(cfg.PoolSize))
	}
	sched, err := scheduler.New(st, vs, registry, ch, opts...)
	if err != nil {
		_ = st.Close()
		return nil, kberr.Wrap(kberr.KindInternal, err, "failed to start scheduler")
	}

	return &Core{
		store:     st,
		vectors:   vs,
		registry:  registry,
		scheduler: sched,
		engine:    engine.New(st, vs, registry, logger),
		logger:    logger.With("component", "kb"),
	}, nil
}

// Close stops the scheduler and closes the store. In-flight jobs finish
// first.
func (c *Core) Close() error {
	c.scheduler.Release()
	return c.store.Close()
}

// Store exposes the content store for callers that manage resources
// directly (the CLI import path, tests).
func (c *Core) Store() *store.Store {
	return c.store
}

// SaveResource persists a resource and schedules its indexing. The save is
// the primary write; indexing happens in the background and its failure
// never surfaces here.
func (c *Core) SaveResource(ctx context.Context, res *types.Resource) error {
	if res == nil || res.ID == "" {
		return kberr.New(kberr.KindValidation, "resource id is required")
	}
	res.ComputeContentHash()
	if err := c.store.SaveResource(ctx, res); err != nil {
		return wrapStoreErr(err)
	}

	if _, err := c.scheduler.Schedule(res.ID); err != nil {
		c.logger.Error("failed to schedule indexing after save", "resource", res.ID, "err", err)
	}
	return nil
}

// DeleteResource removes a resource, its children, and its index entries.
func (c *Core) DeleteResource(ctx context.Context, resourceID string) error {
	if resourceID == "" {
		return kberr.New(kberr.KindValidation, "resource id is required")
	}
	if _, err := c.store.GetResource(ctx, resourceID); err != nil {
		return wrapStoreErr(err)
	}
	if err := c.scheduler.DeleteIndex(ctx, resourceID); err != nil {
		return kberr.Wrap(kberr.KindInternal, err, "failed to delete index")
	}
	return wrapStoreErr(c.store.DeleteResource(ctx, resourceID))
}

// Index schedules background indexing for a resource and returns at once.
// The returned job reports completion for callers that want to wait.
func (c *Core) Index(ctx context.Context, resourceID string) (*scheduler.Job, error) {
	if resourceID == "" {
		return nil, kberr.New(kberr.KindValidation, "resource id is required")
	}
	if _, err := c.store.GetResource(ctx, resourceID); err != nil {
		return nil, wrapStoreErr(err)
	}
	return c.scheduler.Schedule(resourceID)
}

// DeleteIndex removes a resource's vectors and index state. The resource
// itself stays.
func (c *Core) DeleteIndex(ctx context.Context, resourceID string) error {
	if resourceID == "" {
		return kberr.New(kberr.KindValidation, "resource id is required")
	}
	if err := c.scheduler.DeleteIndex(ctx, resourceID); err != nil {
		return kberr.Wrap(kberr.KindInternal, err, "failed to delete index")
	}
	return nil
}

// Search runs the hybrid pipeline over the whole knowledge base.
func (c *Core) Search(ctx context.Context, query string, opts types.SearchOptions) (*types.SearchResponse, error) {
	if err := validateQuery(query); err != nil {
		return nil, err
	}
	normalized, err := normalizeOptions(opts)
	if err != nil {
		return nil, err
	}
	return c.engine.Search(ctx, query, normalized)
}

// SemanticSearch finds neighbors of an existing resource's content.
func (c *Core) SemanticSearch(ctx context.Context, resourceID string, opts types.SearchOptions) ([]types.ScoredResource, error) {
	if resourceID == "" {
		return nil, kberr.New(kberr.KindValidation, "resource id is required")
	}
	normalized, err := normalizeOptions(opts)
	if err != nil {
		return nil, err
	}

	results, err := c.engine.SemanticSearch(ctx, resourceID, normalized.Limit, normalized.MinScore)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return results, nil
}

// VectorSearch embeds a query and returns raw scored rows from the
// resource-chunk class, without keyword fusion.
func (c *Core) VectorSearch(ctx context.Context, query string, opts types.SearchOptions) ([]types.ScoredRow, error) {
	if err := validateQuery(query); err != nil {
		return nil, err
	}
	normalized, err := normalizeOptions(opts)
	if err != nil {
		return nil, err
	}
	return c.engine.VectorSearch(ctx, types.ClassResourceChunk, query, normalized.Limit, normalized.MinScore)
}

// ReindexAll rebuilds the whole index, skipping unchanged resources.
func (c *Core) ReindexAll(ctx context.Context) error {
	return c.scheduler.ReindexAll(ctx)
}

// Stats reports index state: row counts and per-class vector table shape.
func (c *Core) Stats(ctx context.Context) (*types.IndexStats, error) {
	stats, err := c.store.Stats(ctx)
	if err != nil {
		return nil, kberr.Wrap(kberr.KindInternal, err, "failed to read stats")
	}
	vectorStats, err := c.vectors.Stats(ctx)
	if err != nil {
		return nil, kberr.Wrap(kberr.KindInternal, err, "failed to read vector stats")
	}
	stats.VectorTables = vectorStats
	return stats, nil
}

// ProviderAvailable reports whether semantic search currently has a
// provider to embed with.
func (c *Core) ProviderAvailable(ctx context.Context) bool {
	return c.registry.Available(ctx)
}

func validateQuery(query string) error {
	if query == "" {
		return kberr.New(kberr.KindValidation, "query is required")
	}
	if utf8.RuneCountInString(query) > MaxQueryLength {
		return kberr.Newf(kberr.KindValidation, "query exceeds %d characters", MaxQueryLength)
	}
	return nil
}

func normalizeOptions(opts types.SearchOptions) (types.SearchOptions, error) {
	if opts.Limit == 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Limit < 1 || opts.Limit > MaxLimit {
		return opts, kberr.Newf(kberr.KindValidation, "limit must be between 1 and %d", MaxLimit)
	}
	if opts.MinScore < 0 || opts.MinScore > 1 {
		return opts, kberr.New(kberr.KindValidation, "min score must be between 0 and 1")
	}
	return opts, nil
}

func wrapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return kberr.Wrap(kberr.KindNotFound, err, "resource not found")
	}
	var kerr *kberr.Error
	if errors.As(err, &kerr) {
		return err
	}
	return kberr.Wrap(kberr.KindInternal, err, "store operation failed")
}
