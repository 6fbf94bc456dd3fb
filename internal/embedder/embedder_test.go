package embedder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodestone-kb/lodestone/internal/kberr"
)

// fakeProvider is a scriptable in-memory provider for registry tests.
type fakeProvider struct {
	name      string
	available bool
	dimension int
	err       error
	calls     int
}

func (f *fakeProvider) Name() string                     { return f.name }
func (f *fakeProvider) Available(_ context.Context) bool { return f.available }
func (f *fakeProvider) Dimension() int                   { return f.dimension }

func (f *fakeProvider) Embed(_ context.Context, text string) (*Embedding, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	vector := make([]float32, f.dimension)
	for i := range vector {
		vector[i] = float32(len(text))
	}
	return &Embedding{
		Vector:    vector,
		Dimension: f.dimension,
		Provider:  f.name,
		Model:     "fake",
	}, nil
}

func (f *fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([]*Embedding, error) {
	embs := make([]*Embedding, len(texts))
	for i, text := range texts {
		emb, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embs[i] = emb
	}
	return embs, nil
}

func TestRegistryUsesFirstAvailableProvider(t *testing.T) {
	local := &fakeProvider{name: "local", available: true, dimension: 4}
	cloud := &fakeProvider{name: "cloud", available: true, dimension: 8}
	r := NewRegistry(nil, nil, local, cloud)

	emb, err := r.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "local", emb.Provider)
	assert.Equal(t, 1, local.calls)
	assert.Equal(t, 0, cloud.calls)
}

func TestRegistrySkipsUnavailableProviders(t *testing.T) {
	local := &fakeProvider{name: "local", available: false, dimension: 4}
	cloud := &fakeProvider{name: "cloud", available: true, dimension: 8}
	r := NewRegistry(nil, nil, local, cloud)

	emb, err := r.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "cloud", emb.Provider)
	assert.Equal(t, 0, local.calls, "unavailable provider must never be called")
}

func TestRegistryFallsThroughOnFailure(t *testing.T) {
	local := &fakeProvider{name: "local", available: true, dimension: 4, err: errors.New("model not loaded")}
	cloud := &fakeProvider{name: "cloud", available: true, dimension: 8}
	r := NewRegistry(nil, nil, local, cloud)

	emb, err := r.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "cloud", emb.Provider)
	assert.Equal(t, 1, local.calls)
}

func TestRegistryNoProviderAvailable(t *testing.T) {
	r := NewRegistry(nil, nil,
		&fakeProvider{name: "a", available: false},
		&fakeProvider{name: "b", available: false})

	_, err := r.Embed(context.Background(), "hello")
	assert.Equal(t, kberr.KindProviderUnavailable, kberr.KindOf(err))

	assert.False(t, r.Available(context.Background()))
	assert.Nil(t, r.Active(context.Background()))
}

func TestRegistryAllProvidersFailing(t *testing.T) {
	cause := errors.New("rate limited")
	r := NewRegistry(nil, nil,
		&fakeProvider{name: "a", available: true, dimension: 4, err: cause})

	_, err := r.Embed(context.Background(), "hello")
	assert.Equal(t, kberr.KindProviderUnavailable, kberr.KindOf(err))
	assert.ErrorIs(t, err, cause)
}

func TestRegistryEmptyText(t *testing.T) {
	r := NewRegistry(nil, nil, &fakeProvider{name: "a", available: true, dimension: 4})

	_, err := r.Embed(context.Background(), "")
	assert.Equal(t, kberr.KindValidation, kberr.KindOf(err))
}

func TestRegistryCacheHit(t *testing.T) {
	p := &fakeProvider{name: "local", available: true, dimension: 4}
	r := NewRegistry(nil, NewCache(100), p)
	ctx := context.Background()

	first, err := r.Embed(ctx, "same text")
	require.NoError(t, err)
	second, err := r.Embed(ctx, "same text")
	require.NoError(t, err)

	assert.Equal(t, 1, p.calls, "second call must be served from cache")
	assert.Equal(t, first.Vector, second.Vector)

	// Mutating the returned vector must not poison the cache.
	second.Vector[0] = -999
	third, err := r.Embed(ctx, "same text")
	require.NoError(t, err)
	assert.NotEqual(t, float32(-999), third.Vector[0])
}

func TestRegistryEmbedBatch(t *testing.T) {
	p := &fakeProvider{name: "local", available: true, dimension: 4}
	r := NewRegistry(nil, NewCache(100), p)
	ctx := context.Background()

	// Prime the cache with one of the texts.
	_, err := r.Embed(ctx, "beta")
	require.NoError(t, err)
	callsAfterPrime := p.calls

	embs, err := r.EmbedBatch(ctx, []string{"alpha", "beta", "gamma"})
	require.NoError(t, err)
	require.Len(t, embs, 3)
	for i, emb := range embs {
		require.NotNil(t, emb, "missing embedding at index %d", i)
		assert.Equal(t, 4, emb.Dimension)
	}

	// Only the two cache misses reach the provider.
	assert.Equal(t, callsAfterPrime+2, p.calls)
}

func TestRegistryEmbedBatchEmpty(t *testing.T) {
	r := NewRegistry(nil, nil, &fakeProvider{name: "a", available: true, dimension: 4})

	embs, err := r.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, embs)
}

func TestCacheEviction(t *testing.T) {
	c := NewCache(2)
	for _, key := range []string{"a", "b", "c"} {
		c.Set(key, &Embedding{Vector: []float32{1}, Dimension: 1})
	}

	assert.Equal(t, 2, c.Size())
	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok = c.Get("c")
	assert.True(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestComputeHashDeterministic(t *testing.T) {
	assert.Equal(t, ComputeHash("text"), ComputeHash("text"))
	assert.NotEqual(t, ComputeHash("text"), ComputeHash("other"))
	assert.Len(t, ComputeHash("text"), 64)
}
