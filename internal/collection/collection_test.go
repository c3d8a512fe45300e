package collection

import (
	"context"
	"testing"

	"github.com/ares-vector/vdb/internal/config"
	"github.com/ares-vector/vdb/internal/vdberrors"
	"github.com/ares-vector/vdb/internal/vecstore"
	"github.com/ares-vector/vdb/pkg/distance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCollection(metric distance.Metric) *Collection {
	return New("test", 3, metric, config.FastHNSWConfig(), 0, 0.2)
}

func TestInsertAndGet(t *testing.T) {
	c := newTestCollection(distance.L2)
	require.NoError(t, c.Insert("a", []float32{1, 2, 3}, vecstore.Metadata{"k": vecstore.StringValue("v")}))

	v, md, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, v)
	assert.Equal(t, "v", md["k"].Str)
	assert.Equal(t, 1, c.Len())
}

func TestInsertDuplicateReturnsIndexError(t *testing.T) {
	c := newTestCollection(distance.L2)
	require.NoError(t, c.Insert("a", []float32{1, 2, 3}, nil))
	err := c.Insert("a", []float32{4, 5, 6}, nil)
	require.Error(t, err)
	assert.Equal(t, vdberrors.Index, vdberrors.CodeOf(err))
}

func TestInsertWrongDimensionFails(t *testing.T) {
	c := newTestCollection(distance.L2)
	err := c.Insert("a", []float32{1, 2}, nil)
	require.Error(t, err)
}

func TestInsertEmptyIDFails(t *testing.T) {
	c := newTestCollection(distance.L2)
	err := c.Insert("", []float32{1, 2, 3}, nil)
	require.Error(t, err)
}

func TestInsertNaNFails(t *testing.T) {
	c := newTestCollection(distance.L2)
	nan := float32(0)
	nan = nan / nan
	err := c.Insert("a", []float32{nan, 1, 2}, nil)
	require.Error(t, err)
}

func TestDeleteThenReinsert(t *testing.T) {
	c := newTestCollection(distance.L2)
	require.NoError(t, c.Insert("x", []float32{1, 1, 1}, nil))
	assert.True(t, c.Delete("x"))
	assert.False(t, c.Contains("x"))

	require.NoError(t, c.Insert("x", []float32{2, 2, 2}, nil))
	v, _, ok := c.Get("x")
	require.True(t, ok)
	assert.Equal(t, []float32{2, 2, 2}, v)
}

func TestUpdateMissingFails(t *testing.T) {
	c := newTestCollection(distance.L2)
	err := c.Update("ghost", []float32{1, 2, 3}, nil)
	require.Error(t, err)
}

func TestUpdateReplacesVector(t *testing.T) {
	c := newTestCollection(distance.L2)
	require.NoError(t, c.Insert("a", []float32{0, 0, 0}, nil))
	require.NoError(t, c.Update("a", []float32{9, 9, 9}, nil))

	v, _, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, []float32{9, 9, 9}, v)
}

func TestSearchOrdersByScoreL2(t *testing.T) {
	c := newTestCollection(distance.L2)
	require.NoError(t, c.Insert("near", []float32{0, 0, 0}, nil))
	require.NoError(t, c.Insert("far", []float32{50, 50, 50}, nil))

	hits, err := c.Search([]float32{0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "near", hits[0].ID)
	assert.Equal(t, "far", hits[1].ID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestSearchCosineNormalizesQuery(t *testing.T) {
	c := newTestCollection(distance.Cosine)
	require.NoError(t, c.Insert("a", []float32{1, 0, 0}, nil))
	require.NoError(t, c.Insert("b", []float32{0, 1, 0}, nil))

	hits, err := c.Search([]float32{10, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ID)
	assert.InDelta(t, 1.0, float64(hits[0].Score), 1e-4)
}

func TestSearchWithThresholdDropsLowScores(t *testing.T) {
	c := newTestCollection(distance.Cosine)
	require.NoError(t, c.Insert("a", []float32{1, 0, 0}, nil))
	require.NoError(t, c.Insert("b", []float32{-1, 0, 0}, nil))

	hits, err := c.SearchWithThreshold([]float32{1, 0, 0}, 2, 0.5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ID)
}

func TestInsertBatchSequential(t *testing.T) {
	c := newTestCollection(distance.L2)
	items := []InsertItem{
		{ID: "a", Vector: []float32{1, 1, 1}},
		{ID: "b", Vector: []float32{2, 2, 2}},
		{ID: "a", Vector: []float32{3, 3, 3}}, // duplicate, should fail
	}
	res := c.InsertBatch(context.Background(), items, config.HNSWConfig{ParallelConstruction: false})
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, c.Len())
}

func TestInsertBatchParallel(t *testing.T) {
	c := newTestCollection(distance.L2)
	items := make([]InsertItem, 0, 50)
	for i := 0; i < 50; i++ {
		items = append(items, InsertItem{ID: string(rune('a' + i)), Vector: []float32{float32(i), float32(i), float32(i)}})
	}
	cfg := config.HNSWConfig{ParallelConstruction: true, NumThreads: 4}
	res := c.InsertBatch(context.Background(), items, cfg)
	assert.Equal(t, 50, res.Inserted)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 50, c.Len())
}

func TestInsertBatchParallelPreservesOrderOnDuplicateIDs(t *testing.T) {
	c := newTestCollection(distance.L2)
	items := []InsertItem{
		{ID: "dup", Vector: []float32{1, 1, 1}},
		{ID: "dup", Vector: []float32{2, 2, 2}},
	}
	cfg := config.HNSWConfig{ParallelConstruction: true, NumThreads: 4}
	res := c.InsertBatch(context.Background(), items, cfg)

	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Failed)
	v, _, ok := c.Get("dup")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 1, 1}, v, "the first item in the batch must win, not whichever worker happened to validate first")
}

func TestCapacityEnforced(t *testing.T) {
	c := New("capped", 3, distance.L2, config.FastHNSWConfig(), 1, 0.2)
	require.NoError(t, c.Insert("a", []float32{1, 1, 1}, nil))
	err := c.Insert("b", []float32{2, 2, 2}, nil)
	require.Error(t, err)
}

func TestStatsTracksTombstonesAndShouldCompact(t *testing.T) {
	c := newTestCollection(distance.L2)
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, c.Insert(id, []float32{1, 1, 1}, nil))
	}
	require.True(t, c.Delete("a"))

	stats := c.Stats()
	assert.Equal(t, 3, stats.VectorCount)
	assert.Equal(t, 1, stats.TombstoneCount)
	assert.True(t, c.ShouldCompact())
}

func TestCompactRemovesTombstonesAndPreservesLiveVectors(t *testing.T) {
	c := newTestCollection(distance.L2)
	require.NoError(t, c.Insert("a", []float32{1, 1, 1}, nil))
	require.NoError(t, c.Insert("b", []float32{2, 2, 2}, nil))
	require.True(t, c.Delete("a"))

	c.Compact()

	stats := c.Stats()
	assert.Equal(t, 1, stats.VectorCount)
	assert.Equal(t, 0, stats.TombstoneCount)
	assert.True(t, c.Contains("b"))
	assert.False(t, c.Contains("a"))
}

func TestSearchCacheInvalidatedByMutation(t *testing.T) {
	c := newTestCollection(distance.L2)
	require.NoError(t, c.Insert("a", []float32{1, 1, 1}, nil))

	first, err := c.Search([]float32{1, 1, 1}, 2)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "a", first[0].ID)

	require.NoError(t, c.Insert("b", []float32{1, 1, 1.01}, nil))

	second, err := c.Search([]float32{1, 1, 1}, 2)
	require.NoError(t, err)
	assert.Len(t, second, 2, "cached single-hit result must not leak into a post-mutation query")
}

func TestSearchCacheReturnsSameResultWithoutMutation(t *testing.T) {
	c := newTestCollection(distance.L2)
	require.NoError(t, c.Insert("a", []float32{1, 1, 1}, nil))
	require.NoError(t, c.Insert("b", []float32{5, 5, 5}, nil))

	first, err := c.Search([]float32{1, 1, 1}, 1)
	require.NoError(t, err)
	second, err := c.Search([]float32{1, 1, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
