package cache_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-recall/memory"
	"github.com/becomeliminal/nim-recall/memory/embedder/cache"
	"github.com/becomeliminal/nim-recall/memory/embedder/mock"
)

type countingEmbedder struct {
	*mock.MockEmbedder
	single atomic.Int64
	batch  atomic.Int64
	texts  atomic.Int64
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.single.Add(1)
	return c.MockEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batch.Add(1)
	c.texts.Add(int64(len(texts)))
	return c.MockEmbedder.EmbedBatch(ctx, texts)
}

func newCache(t *testing.T) (*cache.Embedder, *countingEmbedder) {
	t.Helper()
	inner := &countingEmbedder{MockEmbedder: mock.New(mock.WithDimensions(32))}
	c, err := cache.New(inner, cache.WithMaxBytes(1<<20), cache.WithMetrics())
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, inner
}

func TestCache_Embed(t *testing.T) {
	ctx := context.Background()
	c, inner := newCache(t)
	assert.Equal(t, 32, c.Dimensions())

	first, err := c.Embed(ctx, "tea with Anil")
	require.NoError(t, err)
	c.Wait()

	second, err := c.Embed(ctx, "tea with Anil")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, inner.single.Load())

	hits, _ := c.Stats()
	assert.EqualValues(t, 1, hits)
}

func TestCache_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c, _ := newCache(t)

	v, err := c.Embed(ctx, "morning walk")
	require.NoError(t, err)
	c.Wait()
	v[0] = 42

	again, err := c.Embed(ctx, "morning walk")
	require.NoError(t, err)
	assert.NotEqual(t, float32(42), again[0])
}

func TestCache_EmbedBatchOnlyMisses(t *testing.T) {
	ctx := context.Background()
	c, inner := newCache(t)

	_, err := c.Embed(ctx, "cached")
	require.NoError(t, err)
	c.Wait()

	vecs, err := c.EmbedBatch(ctx, []string{"cached", "fresh one", "fresh two"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.EqualValues(t, 1, inner.batch.Load())
	assert.EqualValues(t, 2, inner.texts.Load())

	want, err := inner.MockEmbedder.Embed(ctx, "fresh two")
	require.NoError(t, err)
	assert.Equal(t, want, vecs[2])
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	c, inner := newCache(t)

	_, err := c.Embed(ctx, "   ")
	require.Error(t, err)
	assert.True(t, memory.IsEmbedding(err))
	c.Wait()

	_, err = c.Embed(ctx, "   ")
	require.Error(t, err)
	assert.EqualValues(t, 2, inner.single.Load())
}

func TestCache_RequiresEmbedder(t *testing.T) {
	_, err := cache.New(nil)
	assert.Error(t, err)
}
