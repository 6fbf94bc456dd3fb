package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"

	"github.com/lodestone-kb/lodestone/internal/chunker"
	"github.com/lodestone-kb/lodestone/internal/embedder"
	"github.com/lodestone-kb/lodestone/internal/kberr"
	"github.com/lodestone-kb/lodestone/internal/store"
	"github.com/lodestone-kb/lodestone/internal/vectorstore"
	"github.com/lodestone-kb/lodestone/pkg/types"
)

// Embedder is the slice of the embedding registry the scheduler needs.
type Embedder interface {
	Available(ctx context.Context) bool
	EmbedBatch(ctx context.Context, texts []string) ([]*embedder.Embedding, error)
}

// indexableTypes is the resource-type allow-list for indexing. Types outside
// it never get vectors.
var indexableTypes = map[types.ResourceType]bool{
	types.ResourceNote:       true,
	types.ResourceDocument:   true,
	types.ResourcePage:       true,
	types.ResourceTranscript: true,
}

// lockRetryDelay is how long a job backs off when another job holds the
// resource's lock.
const lockRetryDelay = 25 * time.Millisecond

// Job tracks one scheduled indexing run. Done closes when the run finishes;
// Err is valid after that.
type Job struct {
	ResourceID string

	done chan struct{}
	err  error
}

// Done returns a channel that closes when the job completes.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Err returns the job's outcome. Only valid after Done is closed.
func (j *Job) Err() error {
	return j.err
}

// Wait blocks until the job completes or ctx is cancelled.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-j.done:
		return j.err
	}
}

// Scheduler runs indexing in the background on a bounded worker pool.
// Scheduling never blocks the caller's write, and a job failure is logged
// rather than surfaced: the content store is the source of truth and the
// index catches up.
type Scheduler struct {
	store    *store.Store
	vectors  *vectorstore.VectorStore
	embedder Embedder
	chunker  *chunker.Chunker
	pool     *ants.Pool
	logger   *slog.Logger
	poolSize int

	locks sync.Map // resource id -> *indexLock
}

// Option configures a Scheduler.
type Option func(*Scheduler) error

// WithPoolSize sets the worker pool size. Default is half the CPU count,
// minimum 1.
func WithPoolSize(size int) Option {
	return func(s *Scheduler) error {
		if size < 1 {
			size = 1
		}
		if s.pool != nil {
			s.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		s.pool = pool
		s.poolSize = size
		return nil
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// New creates a scheduler over the content store, the vector store, and an
// embedding source.
func New(st *store.Store, vectors *vectorstore.VectorStore, emb Embedder, ch *chunker.Chunker, opts ...Option) (*Scheduler, error) {
	if st == nil || vectors == nil || emb == nil || ch == nil {
		return nil, errors.New("scheduler: all dependencies are required")
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		store:    st,
		vectors:  vectors,
		embedder: emb,
		chunker:  ch,
		pool:     pool,
		poolSize: poolSize,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(s); optErr != nil {
			s.Release()
			return nil, optErr
		}
	}
	s.logger = s.logger.With("component", "scheduler")
	return s, nil
}

// Release shuts down the worker pool. Jobs already running finish; nothing
// new is accepted.
func (s *Scheduler) Release() {
	if s.pool != nil {
		s.pool.Release()
	}
}

// ShouldIndex reports whether a resource qualifies for indexing: extracted
// content present and a type on the allow-list. Pure; no I/O.
func ShouldIndex(res *types.Resource) bool {
	if res == nil || res.Text() == "" {
		return false
	}
	return indexableTypes[res.Type]
}

// Schedule submits an indexing job for a resource and returns immediately.
// The returned Job reports completion through its Done channel. Jobs run on
// a background context: cancelling the caller's request does not abandon an
// index run already accepted.
func (s *Scheduler) Schedule(resourceID string) (*Job, error) {
	job := &Job{
		ResourceID: resourceID,
		done:       make(chan struct{}),
	}

	err := s.pool.Submit(func() {
		defer close(job.done)
		job.err = s.runIndex(context.Background(), resourceID)
		if job.err != nil {
			s.logger.Error("index job failed", "resource", resourceID, "err", job.err)
		}
	})
	if err != nil {
		return nil, kberr.Wrap(kberr.KindInternal, err, "failed to schedule index job")
	}
	return job, nil
}

// runIndex is the job body. Per-resource serialization: two jobs for the
// same resource never interleave; the later one backs off until the lock
// frees.
func (s *Scheduler) runIndex(ctx context.Context, resourceID string) error {
	lock := s.lockFor(resourceID)
	for !lock.TryAcquire() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
	defer lock.Release()

	return s.index(ctx, resourceID)
}

func (s *Scheduler) lockFor(resourceID string) *indexLock {
	actual, _ := s.locks.LoadOrStore(resourceID, &indexLock{})
	return actual.(*indexLock)
}

// index performs one indexing run: load, hash-compare, chunk, embed,
// replace vectors, record state. Caller holds the resource lock.
func (s *Scheduler) index(ctx context.Context, resourceID string) error {
	res, err := s.store.GetResource(ctx, resourceID)
	if errors.Is(err, store.ErrNotFound) {
		// Deleted between scheduling and running; drop whatever is left.
		return s.DeleteIndex(ctx, resourceID)
	}
	if err != nil {
		return err
	}

	if !ShouldIndex(res) {
		return s.DeleteIndex(ctx, resourceID)
	}

	if indexed, ok, err := s.store.IndexedHash(ctx, resourceID); err != nil {
		return err
	} else if ok && indexed == res.ContentHash {
		s.logger.Debug("content unchanged, skipping index", "resource", resourceID)
		return nil
	}

	if err := s.indexContent(ctx, res); err != nil {
		if kberr.KindOf(err) == kberr.KindProviderUnavailable {
			s.logger.Info("no embedding provider, deferring index", "resource", resourceID)
			return nil
		}
		return err
	}

	if err := s.indexAnnotations(ctx, res); err != nil {
		if kberr.KindOf(err) == kberr.KindProviderUnavailable {
			return nil
		}
		return err
	}

	if err := s.store.SetIndexedHash(ctx, resourceID, res.ContentHash); err != nil {
		return err
	}
	s.logger.Info("resource indexed", "resource", resourceID)
	return nil
}

func (s *Scheduler) indexContent(ctx context.Context, res *types.Resource) error {
	chunks := s.chunker.Split(res.Text())
	embs, err := s.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return err
	}

	if err := s.vectors.DeleteByResource(ctx, types.ClassResourceChunk, res.ID); err != nil {
		return err
	}
	for i, chunk := range chunks {
		if err := s.vectors.Upsert(ctx, types.ClassResourceChunk, res.ID, i, chunk, embs[i].Vector); err != nil {
			return err
		}
	}
	return nil
}

// indexAnnotations embeds all of a resource's annotations into the
// annotation class, keyed by the parent resource with a running chunk
// index.
func (s *Scheduler) indexAnnotations(ctx context.Context, res *types.Resource) error {
	annotations, err := s.store.ListAnnotationsByResource(ctx, res.ID)
	if err != nil {
		return err
	}

	if err := s.vectors.DeleteByResource(ctx, types.ClassAnnotationChunk, res.ID); err != nil {
		return err
	}
	if len(annotations) == 0 {
		return nil
	}

	chunks := make([]string, 0, len(annotations))
	for _, ann := range annotations {
		chunks = append(chunks, s.chunker.Split(ann.Content)...)
	}
	if len(chunks) == 0 {
		return nil
	}

	embs, err := s.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return err
	}
	for i, chunk := range chunks {
		if err := s.vectors.Upsert(ctx, types.ClassAnnotationChunk, res.ID, i, chunk, embs[i].Vector); err != nil {
			return err
		}
	}
	return nil
}

// DeleteIndex removes a resource's vectors in every class and forgets its
// index state. Used both for explicit removal and when a resource stops
// qualifying for indexing.
func (s *Scheduler) DeleteIndex(ctx context.Context, resourceID string) error {
	for _, class := range []types.EntityClass{types.ClassResourceChunk, types.ClassAnnotationChunk} {
		if err := s.vectors.DeleteByResource(ctx, class, resourceID); err != nil {
			return err
		}
	}
	return s.store.ClearIndexedHash(ctx, resourceID)
}

// ReindexAll walks every resource and indexes each, bounded to the pool
// size. Unchanged resources are skipped by the hash comparison inside each
// run.
func (s *Scheduler) ReindexAll(ctx context.Context) error {
	ids, err := s.store.ListResourceIDs(ctx)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.poolSize)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			return s.runIndex(ctx, id)
		})
	}
	return g.Wait()
}
