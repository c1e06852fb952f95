package cache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCache(t *testing.T) *EmbeddingCache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Migrate(context.Background()))
	return c
}

func TestCache_MissThenHit(t *testing.T) {
	ctx := context.Background()
	c := openTestCache(t)

	_, ok, err := c.Get(ctx, "jina-embeddings-v3", "mission text")
	require.NoError(t, err)
	assert.False(t, ok)

	vec := []float64{0.1, 0.2, 0.3}
	require.NoError(t, c.Put(ctx, "jina-embeddings-v3", "mission text", vec))

	got, ok, err := c.Get(ctx, "jina-embeddings-v3", "mission text")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, vec, got)
}

func TestCache_ModelSeparatesKeys(t *testing.T) {
	ctx := context.Background()
	c := openTestCache(t)

	require.NoError(t, c.Put(ctx, "model-a", "same text", []float64{1}))

	_, ok, err := c.Get(ctx, "model-b", "same text")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_PutReplaces(t *testing.T) {
	ctx := context.Background()
	c := openTestCache(t)

	require.NoError(t, c.Put(ctx, "m", "text", []float64{1}))
	require.NoError(t, c.Put(ctx, "m", "text", []float64{2}))

	got, ok, err := c.Get(ctx, "m", "text")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float64{2}, got)
}
