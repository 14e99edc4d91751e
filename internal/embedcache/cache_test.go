package embedcache

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestKeyStableAndModelScoped(t *testing.T) {
	k1 := Key("hello world", "modelA")
	k2 := Key("  hello world\n", "modelA")
	assert.Equal(t, k1, k2, "normalization should make whitespace-different text hash the same")

	k3 := Key("hello world", "modelB")
	assert.NotEqual(t, k1, k3, "different model must change the key")
}

func TestSetBatchThenGetBatchRoundTrip(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	vecs := map[string][]float32{
		"keyA": {1, 2, 3},
		"keyB": {4, 5, 6},
	}
	require.NoError(t, c.SetBatch(ctx, vecs, "modelA"))

	got, err := c.GetBatch(ctx, []string{"keyA", "keyB", "keyMissing"})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, got["keyA"])
	assert.Equal(t, []float32{4, 5, 6}, got["keyB"])
	_, found := got["keyMissing"]
	assert.False(t, found)

	stats := c.Stats()
	assert.EqualValues(t, 2, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
}

func TestGetOrComputeCachesMisses(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	var calls int32
	compute := func(ctx context.Context, texts []string) ([][]float32, error) {
		atomic.AddInt32(&calls, 1)
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{float32(i), float32(i + 1)}
		}
		return out, nil
	}

	vecs, err := c.GetOrCompute(ctx, []string{"alpha", "beta"}, "modelA", compute)
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	// Second call with the same texts should be served entirely from cache.
	vecs2, err := c.GetOrCompute(ctx, []string{"alpha", "beta"}, "modelA", compute)
	require.NoError(t, err)
	assert.Equal(t, vecs, vecs2)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "compute must not be called again for cached keys")
}

func TestGetOrComputeDedupesDuplicateTextsInOneCall(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	var computedTexts []string
	compute := func(ctx context.Context, texts []string) ([][]float32, error) {
		computedTexts = append(computedTexts, texts...)
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{1, 2}
		}
		return out, nil
	}

	vecs, err := c.GetOrCompute(ctx, []string{"same", "same", "same"}, "modelA", compute)
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Len(t, computedTexts, 1, "duplicate texts in one batch should only be embedded once")
}

func TestEvictLRURemovesOldestFirst(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetBatch(ctx, map[string][]float32{"k1": {1, 2, 3, 4}}, "m"))
	require.NoError(t, c.SetBatch(ctx, map[string][]float32{"k2": {1, 2, 3, 4}}, "m"))

	evicted, err := c.EvictLRU(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, evicted)

	got, err := c.GetBatch(ctx, []string{"k1", "k2"})
	require.NoError(t, err)
	assert.Empty(t, got)
}
