package vecstore

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/ares-vector/vdb/internal/hnsw"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func l2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return float32(math.Sqrt(float64(sum)))
}

func newTestStore() *Store {
	g := hnsw.NewWithRand(hnsw.Params{M: 8, EfConstruction: 64}, l2, rand.New(rand.NewPCG(3, 5)))
	return NewWithGraph(g)
}

func TestInsertAndGet(t *testing.T) {
	s := newTestStore()
	ok := s.Insert("a", []float32{1, 2, 3}, Metadata{"title": StringValue("doc")})
	require.True(t, ok)

	v, md, found := s.Get("a")
	require.True(t, found)
	assert.Equal(t, []float32{1, 2, 3}, v)
	assert.Equal(t, "doc", md["title"].Str)
	assert.True(t, s.Contains("a"))
	assert.Equal(t, 1, s.Len())
}

func TestInsertDuplicateFails(t *testing.T) {
	s := newTestStore()
	require.True(t, s.Insert("a", []float32{1, 2}, nil))
	assert.False(t, s.Insert("a", []float32{3, 4}, nil))
}

func TestDeleteThenReinsert(t *testing.T) {
	s := newTestStore()
	require.True(t, s.Insert("x", []float32{1, 1}, nil))
	require.True(t, s.Delete("x"))
	assert.False(t, s.Contains("x"))

	require.True(t, s.Insert("x", []float32{2, 2}, nil))
	v, _, ok := s.Get("x")
	require.True(t, ok)
	assert.Equal(t, []float32{2, 2}, v)
}

func TestUpdateReplacesVectorAndPreservesExternalID(t *testing.T) {
	s := newTestStore()
	require.True(t, s.Insert("e", []float32{0, 0}, Metadata{"v": IntValue(1)}))
	ok := s.Update("e", []float32{5, 5}, Metadata{"v": IntValue(2)})
	require.True(t, ok)

	v, md, found := s.Get("e")
	require.True(t, found)
	assert.Equal(t, []float32{5, 5}, v)
	assert.Equal(t, int64(2), md["v"].Int)
}

func TestUpdateMissingFails(t *testing.T) {
	s := newTestStore()
	assert.False(t, s.Update("ghost", []float32{1}, nil))
}

func TestDeletedIDNeverSearched(t *testing.T) {
	s := newTestStore()
	require.True(t, s.Insert("a", []float32{0, 0}, nil))
	require.True(t, s.Insert("b", []float32{1, 1}, nil))
	require.True(t, s.Delete("a"))

	hits := s.Search([]float32{0, 0}, 5, 32)
	for _, h := range hits {
		assert.NotEqual(t, "a", h.ExternalID)
	}
}

func TestSearchOrdersByDistance(t *testing.T) {
	s := newTestStore()
	require.True(t, s.Insert("near", []float32{0, 0}, nil))
	require.True(t, s.Insert("far", []float32{100, 100}, nil))

	hits := s.Search([]float32{0, 0}, 2, 32)
	require.Len(t, hits, 2)
	assert.Equal(t, "near", hits[0].ExternalID)
	assert.Equal(t, "far", hits[1].ExternalID)
}

func TestStatsTracksTombstones(t *testing.T) {
	s := newTestStore()
	require.True(t, s.Insert("a", []float32{0}, nil))
	require.True(t, s.Insert("b", []float32{1}, nil))
	require.True(t, s.Delete("a"))

	stats := s.Stats()
	assert.Equal(t, 1, stats.LiveCount)
	assert.Equal(t, 1, stats.TombstoneCount)
	assert.InDelta(t, 0.5, stats.TombstoneFraction(), 1e-9)
}

func TestEachLiveSkipsTombstones(t *testing.T) {
	s := newTestStore()
	require.True(t, s.Insert("a", []float32{0}, nil))
	require.True(t, s.Insert("b", []float32{1}, nil))
	require.True(t, s.Delete("a"))

	seen := map[string]bool{}
	s.EachLive(func(id string, vector []float32, metadata Metadata) {
		seen[id] = true
	})
	assert.Equal(t, map[string]bool{"b": true}, seen)
}
