package vecstore

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/ares-vector/vdb/internal/hnsw"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportImportRowsRoundTrip(t *testing.T) {
	s := newTestStore()
	require.True(t, s.Insert("a", []float32{1, 2}, Metadata{"k": StringValue("v")}))
	require.True(t, s.Insert("b", []float32{3, 4}, nil))
	require.True(t, s.Delete("b"))

	var buf bytes.Buffer
	require.NoError(t, s.ExportRows(&buf))

	restored := NewWithGraph(hnsw.NewWithRand(hnsw.Params{}, l2, rand.New(rand.NewPCG(1, 1))))
	require.NoError(t, restored.ImportRows(&buf))

	assert.Equal(t, 1, restored.Len())
	assert.True(t, restored.Contains("a"))
	assert.False(t, restored.Contains("b"))

	v, md, ok := restored.Get("a")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2}, v)
	assert.Equal(t, "v", md["k"].Str)

	stats := restored.Stats()
	assert.Equal(t, 1, stats.LiveCount)
	assert.Equal(t, 1, stats.TombstoneCount)
}
