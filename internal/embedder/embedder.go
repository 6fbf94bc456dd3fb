package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lodestone-kb/lodestone/internal/kberr"
)

// Embedding is a vector embedding with provenance metadata.
type Embedding struct {
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
	Hash      string // content hash, used as the cache key
}

// Provider generates embeddings from one backend. Available is a capability
// probe: a provider that reports false is skipped by the registry without
// being called.
type Provider interface {
	// Name returns the provider name for logging and result metadata.
	Name() string

	// Available reports whether the provider can currently serve requests.
	Available(ctx context.Context) bool

	// Embed generates a single embedding for text.
	Embed(ctx context.Context, text string) (*Embedding, error)

	// EmbedBatch generates embeddings for multiple texts in order.
	EmbedBatch(ctx context.Context, texts []string) ([]*Embedding, error)

	// Dimension returns the embedding dimension this provider produces.
	Dimension() int
}

// Registry tries an ordered list of providers and serves from the first one
// that is available and succeeds. When every provider is unavailable or
// failing, Embed returns a kind-tagged provider-unavailable error; callers
// treat that as degradation, not as a failure of their own write.
type Registry struct {
	providers []Provider
	cache     *Cache
	logger    *slog.Logger
}

// NewRegistry creates a registry over providers in priority order.
func NewRegistry(logger *slog.Logger, cache *Cache, providers ...Provider) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		providers: providers,
		cache:     cache,
		logger:    logger.With("component", "embedder"),
	}
}

// Active returns the first available provider, or nil when none is.
func (r *Registry) Active(ctx context.Context) Provider {
	for _, p := range r.providers {
		if p.Available(ctx) {
			return p
		}
	}
	return nil
}

// Available reports whether any provider can currently serve requests.
func (r *Registry) Available(ctx context.Context) bool {
	return r.Active(ctx) != nil
}

// Embed generates an embedding for text, consulting the cache first and then
// the providers in priority order. A provider failure is logged and the next
// provider is tried; only when the whole chain is exhausted does the caller
// see an error.
func (r *Registry) Embed(ctx context.Context, text string) (*Embedding, error) {
	if text == "" {
		return nil, kberr.New(kberr.KindValidation, "cannot embed empty text")
	}

	hash := ComputeHash(text)
	if r.cache != nil {
		if emb, ok := r.cache.Get(hash); ok {
			return emb, nil
		}
	}

	var lastErr error
	for _, p := range r.providers {
		if !p.Available(ctx) {
			continue
		}

		emb, err := p.Embed(ctx, text)
		if err != nil {
			r.logger.Warn("embedding provider failed, trying next",
				"provider", p.Name(), "err", err)
			lastErr = err
			continue
		}

		emb.Hash = hash
		if r.cache != nil {
			r.cache.Set(hash, emb)
		}
		return emb, nil
	}

	if lastErr != nil {
		return nil, kberr.Wrap(kberr.KindProviderUnavailable, lastErr, "all embedding providers failed")
	}
	return nil, kberr.New(kberr.KindProviderUnavailable, "no embedding provider available")
}

// EmbedBatch generates embeddings for texts in order. Cached entries are
// reused; only the misses go to a provider.
func (r *Registry) EmbedBatch(ctx context.Context, texts []string) ([]*Embedding, error) {
	if len(texts) == 0 {
		return []*Embedding{}, nil
	}

	results := make([]*Embedding, len(texts))
	missing := make([]int, 0, len(texts))
	for i, text := range texts {
		if text == "" {
			return nil, kberr.Newf(kberr.KindValidation, "cannot embed empty text at index %d", i)
		}
		if r.cache != nil {
			if emb, ok := r.cache.Get(ComputeHash(text)); ok {
				results[i] = emb
				continue
			}
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return results, nil
	}

	missingTexts := make([]string, len(missing))
	for i, idx := range missing {
		missingTexts[i] = texts[idx]
	}

	var lastErr error
	for _, p := range r.providers {
		if !p.Available(ctx) {
			continue
		}

		embs, err := p.EmbedBatch(ctx, missingTexts)
		if err != nil {
			r.logger.Warn("embedding provider failed, trying next",
				"provider", p.Name(), "err", err)
			lastErr = err
			continue
		}
		if len(embs) != len(missingTexts) {
			lastErr = kberr.Newf(kberr.KindInternal,
				"provider %s returned %d embeddings for %d texts", p.Name(), len(embs), len(missingTexts))
			continue
		}

		for i, idx := range missing {
			emb := embs[i]
			emb.Hash = ComputeHash(texts[idx])
			if r.cache != nil {
				r.cache.Set(emb.Hash, emb)
			}
			results[idx] = emb
		}
		return results, nil
	}

	if lastErr != nil {
		return nil, kberr.Wrap(kberr.KindProviderUnavailable, lastErr, "all embedding providers failed")
	}
	return nil, kberr.New(kberr.KindProviderUnavailable, "no embedding provider available")
}

// Cache is an in-memory LRU cache of embeddings keyed by content hash.
type Cache struct {
	cache *lru.Cache[string, *Embedding]
}

// NewCache creates an embedding cache holding up to maxLen entries.
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 10000
	}
	cache, err := lru.New[string, *Embedding](maxLen)
	if err != nil {
		cache, _ = lru.New[string, *Embedding](10000)
	}
	return &Cache{cache: cache}
}

// Get retrieves a deep copy of a cached embedding. Copying keeps caller
// mutations out of the cache.
func (c *Cache) Get(hash string) (*Embedding, bool) {
	emb, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}

	vector := make([]float32, len(emb.Vector))
	copy(vector, emb.Vector)
	return &Embedding{
		Vector:    vector,
		Dimension: emb.Dimension,
		Provider:  emb.Provider,
		Model:     emb.Model,
		Hash:      emb.Hash,
	}, true
}

// Set stores an embedding, evicting the least recently used entry at
// capacity.
func (c *Cache) Set(hash string, emb *Embedding) {
	c.cache.Add(hash, emb)
}

// Size returns the current number of cached embeddings.
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.cache.Purge()
}

// ComputeHash returns the SHA-256 hex digest of text, the cache key.
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
