package persistence

import (
	"testing"

	"github.com/ares-vector/vdb/internal/collection"
	"github.com/ares-vector/vdb/internal/config"
	"github.com/ares-vector/vdb/internal/vecstore"
	"github.com/ares-vector/vdb/pkg/distance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadCollectionRoundTrip(t *testing.T) {
	root := t.TempDir()

	c := collection.New("widgets", 3, distance.L2, config.FastHNSWConfig(), 0, 0.2)
	require.NoError(t, c.Insert("a", []float32{1, 2, 3}, vecstore.Metadata{"k": vecstore.StringValue("v")}))
	require.NoError(t, c.Insert("b", []float32{4, 5, 6}, nil))
	require.True(t, c.Delete("b"))

	require.NoError(t, SaveCollection(root, c))
	require.NoError(t, WriteManifest(root, []string{"widgets"}))

	names, err := ReadManifest(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"widgets"}, names)

	loaded, err := LoadCollection(root, "widgets")
	require.NoError(t, err)
	assert.Equal(t, "widgets", loaded.Name)
	assert.Equal(t, 3, loaded.Dim)
	assert.Equal(t, 1, loaded.Len())
	assert.True(t, loaded.Contains("a"))
	assert.False(t, loaded.Contains("b"))

	v, md, ok := loaded.Get("a")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, v)
	assert.Equal(t, "v", md["k"].Str)
}

func TestReadManifestMissingReturnsEmpty(t *testing.T) {
	root := t.TempDir()
	names, err := ReadManifest(root)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestDeleteCollectionFilesRemovesDirectory(t *testing.T) {
	root := t.TempDir()
	c := collection.New("temp", 2, distance.L2, config.FastHNSWConfig(), 0, 0.2)
	require.NoError(t, c.Insert("a", []float32{1, 1}, nil))
	require.NoError(t, SaveCollection(root, c))

	require.NoError(t, DeleteCollectionFiles(root, "temp"))
	_, err := LoadCollection(root, "temp")
	assert.Error(t, err)
}
