package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryConfigHasNoDataPath(t *testing.T) {
	c := Memory()
	assert.False(t, c.IsPersistent())
	assert.False(t, c.AutoPersist)
}

func TestPersistentConfigEnablesAutoPersist(t *testing.T) {
	c := Persistent("/tmp/vectors")
	assert.True(t, c.IsPersistent())
	assert.True(t, c.AutoPersist)
}

func TestHNSWPresetsOrderedByAccuracy(t *testing.T) {
	fast := FastHNSWConfig()
	accurate := AccurateHNSWConfig()
	memEff := MemoryEfficientHNSWConfig()

	assert.Less(t, fast.M, accurate.M)
	assert.Less(t, fast.EfConstruction, accurate.EfConstruction)
	assert.False(t, memEff.ParallelConstruction)
	assert.Equal(t, 1, memEff.NumThreads)
}

func TestResolveNumThreadsAutoDetects(t *testing.T) {
	c := HNSWConfig{NumThreads: 0}
	assert.Greater(t, c.ResolveNumThreads(), 0)

	c.NumThreads = 4
	assert.Equal(t, 4, c.ResolveNumThreads())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadAndWriteYAMLRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := Default()
	cfg.DataPath = dir
	cfg.MaxVectors = 500
	cfg.HNSW = AccurateHNSWConfig()

	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.DataPath, loaded.DataPath)
	assert.Equal(t, cfg.MaxVectors, loaded.MaxVectors)
	assert.Equal(t, cfg.HNSW, loaded.HNSW)
}

func TestValidateRejectsInvalidFields(t *testing.T) {
	c := Default()
	c.MaxVectors = -1
	assert.Error(t, c.Validate())

	c = Default()
	c.AutoPersist = true
	c.PersistIntervalSecs = 0
	assert.Error(t, c.Validate())

	c = Default()
	c.Compaction.TombstoneThreshold = 1.5
	assert.Error(t, c.Validate())

	assert.NoError(t, Default().Validate())
}
