// Package config is the Database's configuration type: in-memory vs
// persistent mode, per-collection vector cap, auto-persist scheduling,
// and the HNSW construction/query parameters, plus the three named
// presets from spec.md §6.
package config

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Database configuration.
type Config struct {
	// DataPath is the root directory for persisted collections. Empty
	// means pure in-memory: nothing is ever written to disk.
	DataPath string `yaml:"data_path" json:"data_path"`

	// MaxVectors caps the number of live vectors per collection; 0 means
	// unlimited.
	MaxVectors int `yaml:"max_vectors" json:"max_vectors"`

	// AutoPersist enables the background snapshot loop.
	AutoPersist bool `yaml:"auto_persist" json:"auto_persist"`

	// PersistIntervalSecs is the period of the auto-persist ticker.
	PersistIntervalSecs int `yaml:"persist_interval_secs" json:"persist_interval_secs"`

	HNSW       HNSWConfig       `yaml:"hnsw" json:"hnsw"`
	Compaction CompactionConfig `yaml:"compaction" json:"compaction"`
}

// HNSWConfig are the graph construction/query tunables, shared by every
// collection opened under this Config.
type HNSWConfig struct {
	// M is the per-layer neighbor degree target.
	M int `yaml:"m" json:"m"`
	// MMax is the layer-0 degree cap; 0 defaults to 2*M.
	MMax int `yaml:"m_max" json:"m_max"`
	// EfConstruction is the candidate list width used while inserting.
	EfConstruction int `yaml:"ef_construction" json:"ef_construction"`
	// EfSearch is the minimum candidate list width used while querying.
	EfSearch int `yaml:"ef_search" json:"ef_search"`
	// ParallelConstruction permits insert_batch to shard work across a
	// worker pool; when false, batches insert strictly in order.
	ParallelConstruction bool `yaml:"parallel_construction" json:"parallel_construction"`
	// NumThreads sizes that worker pool; 0 auto-detects via GOMAXPROCS.
	NumThreads int `yaml:"num_threads" json:"num_threads"`
}

// CompactionConfig controls when a collection is considered a candidate
// for automatic compaction.
type CompactionConfig struct {
	// TombstoneThreshold is the tombstone fraction (0..1) above which
	// Collection.ShouldCompact() reports true. 0 disables the
	// recommendation; Compact() remains callable directly regardless.
	TombstoneThreshold float64 `yaml:"tombstone_threshold" json:"tombstone_threshold"`
}

// Memory returns a Config with no DataPath: everything lives in memory
// and is lost when the process exits.
func Memory() Config {
	return Default()
}

// Persistent returns a Config rooted at path, with auto-persist enabled.
func Persistent(path string) Config {
	c := Default()
	c.DataPath = path
	c.AutoPersist = true
	return c
}

// Default returns the library's baseline configuration: in-memory,
// unlimited vectors, the default HNSW tunables, and a 20% compaction
// threshold (spec.md §4.2's suggested default).
func Default() Config {
	return Config{
		MaxVectors:          0,
		AutoPersist:         false,
		PersistIntervalSecs: 300,
		HNSW:                DefaultHNSWConfig(),
		Compaction:          CompactionConfig{TombstoneThreshold: 0.2},
	}
}

// DefaultHNSWConfig is the "balanced" tuning spec.md §6 assumes when no
// preset is named.
func DefaultHNSWConfig() HNSWConfig {
	return HNSWConfig{
		M:                    16,
		MMax:                 32,
		EfConstruction:       200,
		EfSearch:             100,
		ParallelConstruction: true,
		NumThreads:           0,
	}
}

// FastHNSWConfig trades recall for speed: m=8, ef_c=100, ef_s=50.
func FastHNSWConfig() HNSWConfig {
	return HNSWConfig{
		M:                    8,
		MMax:                 16,
		EfConstruction:       100,
		EfSearch:             50,
		ParallelConstruction: true,
		NumThreads:           0,
	}
}

// AccurateHNSWConfig trades speed and memory for recall: m=32,
// ef_c=400, ef_s=200.
func AccurateHNSWConfig() HNSWConfig {
	return HNSWConfig{
		M:                    32,
		MMax:                 64,
		EfConstruction:       400,
		EfSearch:             200,
		ParallelConstruction: true,
		NumThreads:           0,
	}
}

// MemoryEfficientHNSWConfig minimizes per-vector memory at the cost of
// recall, and runs single-threaded: m=8, ef_c=100, ef_s=64.
func MemoryEfficientHNSWConfig() HNSWConfig {
	return HNSWConfig{
		M:                    8,
		MMax:                 16,
		EfConstruction:       100,
		EfSearch:             64,
		ParallelConstruction: false,
		NumThreads:           1,
	}
}

// ResolveNumThreads returns NumThreads, substituting GOMAXPROCS when it
// is 0 (auto-detect).
func (c HNSWConfig) ResolveNumThreads() int {
	if c.NumThreads > 0 {
		return c.NumThreads
	}
	return runtime.GOMAXPROCS(0)
}

// WithDefaults fills in zero-valued fields of an HNSWConfig (MMax from
// M when unset); it leaves an already-complete config untouched.
func (c HNSWConfig) WithDefaults() HNSWConfig {
	if c.M <= 0 {
		c.M = 16
	}
	if c.MMax <= 0 {
		c.MMax = 2 * c.M
	}
	if c.EfConstruction <= 0 {
		c.EfConstruction = 200
	}
	if c.EfSearch <= 0 {
		c.EfSearch = 100
	}
	return c
}

// Load reads a YAML config file at path and merges it over Default().
// A missing file is not an error; Default() is returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// WriteYAML writes the config to path, creating or truncating it.
func (c Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks cross-field constraints not expressible as zero-value
// defaults.
func (c Config) Validate() error {
	if c.MaxVectors < 0 {
		return fmt.Errorf("max_vectors must be >= 0, got %d", c.MaxVectors)
	}
	if c.PersistIntervalSecs <= 0 && c.AutoPersist {
		return fmt.Errorf("persist_interval_secs must be > 0 when auto_persist is enabled")
	}
	if c.Compaction.TombstoneThreshold < 0 || c.Compaction.TombstoneThreshold > 1 {
		return fmt.Errorf("compaction.tombstone_threshold must be in [0,1], got %f", c.Compaction.TombstoneThreshold)
	}
	return nil
}

// IsPersistent reports whether DataPath is set.
func (c Config) IsPersistent() bool {
	return c.DataPath != ""
}
