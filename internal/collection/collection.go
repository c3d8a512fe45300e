// Package collection binds a fixed dimensionality, distance metric, and
// HNSW parameters to a vecstore.Store, and is the type the Database
// registry hands callers a reference to. It owns validation,
// capacity enforcement, parallel batch insert, and compaction; the
// lower-level id mapping and tombstoning live in internal/vecstore.
package collection

import (
	"context"
	"encoding/binary"
	"math"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ares-vector/vdb/internal/config"
	"github.com/ares-vector/vdb/internal/hnsw"
	"github.com/ares-vector/vdb/internal/vdberrors"
	"github.com/ares-vector/vdb/internal/vecstore"
	"github.com/ares-vector/vdb/pkg/distance"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
)

// queryCacheSize bounds the per-collection search result cache. Small:
// this is meant to absorb repeat identical queries (a UI re-rendering,
// a retry), not to act as a general-purpose result store.
const queryCacheSize = 128

// Collection is the per-collection handle returned by the registry.
// Cheap to share: it is already a pointer, and its own synchronization
// follows spec.md §5 — readers proceed concurrently via the current
// store; writers serialize on writeMu; Compact holds writeMu while it
// builds a fresh store and then atomically swaps it in, so in-flight
// readers keep observing the pre-compaction graph until that swap.
type Collection struct {
	Name       string
	Dim        int
	Metric     distance.Metric
	HNSWParams hnsw.Params

	maxVectors          int
	compactionThreshold float64

	writeMu    sync.Mutex
	store      atomic.Pointer[vecstore.Store]
	generation atomic.Uint64

	queryCache *lru.Cache[string, cachedSearch]
}

// cachedSearch pins a search result to the generation it was computed
// under; a cache hit whose generation no longer matches the
// collection's current one is treated as a miss and recomputed.
type cachedSearch struct {
	generation uint64
	results    []SearchResult
}

// New creates an empty collection. hnswCfg supplies the M/MMax/ef
// tunables; maxVectors is the per-collection cap (0 = unlimited).
func New(name string, dim int, metric distance.Metric, hnswCfg config.HNSWConfig, maxVectors int, compactionThreshold float64) *Collection {
	params := hnsw.Params{
		M:              hnswCfg.M,
		MMax:           hnswCfg.MMax,
		EfConstruction: hnswCfg.EfConstruction,
		EfSearch:       hnswCfg.EfSearch,
	}.WithDefaults()

	c := &Collection{
		Name:                name,
		Dim:                 dim,
		Metric:              metric,
		HNSWParams:          params,
		maxVectors:          maxVectors,
		compactionThreshold: compactionThreshold,
	}
	c.store.Store(vecstore.New(params, c.distanceFunc()))
	cache, _ := lru.New[string, cachedSearch](queryCacheSize)
	c.queryCache = cache
	return c
}

// bumpGeneration invalidates every cached search result. Called after
// any mutation that can change what a query would return.
func (c *Collection) bumpGeneration() {
	c.generation.Add(1)
}

func (c *Collection) distanceFunc() hnsw.DistanceFunc {
	m := c.Metric
	return func(a, b []float32) float32 {
		return distance.Distance(a, b, m)
	}
}

// currentStore loads the collection's active store. It is safe to call
// without writeMu for read-only operations; writers must hold writeMu
// across check-then-act sequences since the store pointer can otherwise
// be swapped out from under them by a concurrent Compact.
func (c *Collection) currentStore() *vecstore.Store {
	return c.store.Load()
}

// validateVector checks dim and NaN/Inf; it does not check for
// duplicate/missing ids, which differ between Insert and Update.
func (c *Collection) validateVector(vector []float32) error {
	if len(vector) != c.Dim {
		return vdberrors.NewDimensionMismatch(c.Dim, len(vector))
	}
	if !distance.ValidateComponents(vector) {
		return vdberrors.New(vdberrors.InvalidVector, "vector contains NaN or infinite components", nil)
	}
	return nil
}

// prepare validates and, for Cosine collections, returns a unit-norm
// copy (search and insert alike operate on normalized vectors so the
// graph's raw distance function is a faithful cosine proxy).
func (c *Collection) prepare(vector []float32) ([]float32, error) {
	if err := c.validateVector(vector); err != nil {
		return nil, err
	}
	if c.Metric != distance.Cosine {
		return vector, nil
	}
	out := make([]float32, len(vector))
	copy(out, vector)
	distance.Normalize(out)
	return out, nil
}

// Insert adds a new vector under a fresh external id. Fails with
// vdberrors.Index ("already exists") if id is already mapped — spec.md's
// ten-class error taxonomy has no dedicated vector-conflict class, so
// this reuses Index for the HNSW-level id conflict, the closest of the
// ten (see DESIGN.md).
func (c *Collection) Insert(id string, vector []float32, metadata vecstore.Metadata) error {
	if id == "" {
		return vdberrors.New(vdberrors.InvalidVector, "id must not be empty", nil)
	}
	prepared, err := c.prepare(vector)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.insertPreparedLocked(id, prepared, metadata)
}

// insertPreparedLocked performs the actual store mutation for an
// already-validated, already-normalized vector. Callers must hold
// writeMu. Factored out so the batch paths can validate/normalize
// concurrently and still commit each item under a single lock
// acquisition rather than re-entering Insert per item.
func (c *Collection) insertPreparedLocked(id string, prepared []float32, metadata vecstore.Metadata) error {
	s := c.currentStore()
	if c.maxVectors > 0 && s.Len() >= c.maxVectors {
		return vdberrors.New(vdberrors.Index, "collection at capacity", nil)
	}
	if !s.Insert(id, prepared, metadata) {
		return vdberrors.New(vdberrors.Index, "vector already exists: "+id, nil)
	}
	c.bumpGeneration()
	return nil
}

// InsertItem is one element of an InsertBatch call.
type InsertItem struct {
	ID       string
	Vector   []float32
	Metadata vecstore.Metadata
}

// BatchResult reports how many items of a batch succeeded and failed,
// and every per-item error in item order — spec.md §4.3's "aggregate"
// error reporting for partial failure.
type BatchResult struct {
	Inserted int
	Failed   int
	Errors   []error
}

// InsertBatch inserts every item, tolerating per-item failures (at
// least one bad id or dimension does not abort the rest). When
// ParallelConstruction is enabled and NumThreads != 1, per-item
// validation and (for Cosine collections) normalization — the CPU-bound
// work that dominates for high-dimensional vectors — is sharded across
// a bounded errgroup worker pool; the graph mutation itself is then
// committed under a single writeMu acquisition for the whole batch, in
// original item order. The graph is not safe for concurrent structural
// mutation (neither this package's nor the teacher's HNSW graph
// implements fine-grained node locking), so insertion order is
// preserved rather than racing workers against each other for the
// write lock — spec.md §9's batch-reordering allowance is not needed
// for this to be genuinely parallel work. With ParallelConstruction
// disabled, both validation and insertion are strictly sequential.
func (c *Collection) InsertBatch(ctx context.Context, items []InsertItem, hnswCfg config.HNSWConfig) BatchResult {
	if len(items) == 0 {
		return BatchResult{}
	}
	if !hnswCfg.ParallelConstruction || hnswCfg.NumThreads == 1 {
		return c.insertBatchSequential(items)
	}
	return c.insertBatchParallel(ctx, items, hnswCfg.ResolveNumThreads())
}

func (c *Collection) insertBatchSequential(items []InsertItem) BatchResult {
	var res BatchResult
	for _, it := range items {
		if err := c.Insert(it.ID, it.Vector, it.Metadata); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, err)
			continue
		}
		res.Inserted++
	}
	return res
}

// validated is one item's outcome after the concurrent prepare phase:
// either a ready-to-insert vector or the error that rejected it.
type validated struct {
	item     InsertItem
	prepared []float32
	err      error
}

// insertBatchParallel shards validation/normalization (prepare) across
// a bounded worker pool, then commits every item that survived
// preparation sequentially, in original order, under one writeMu
// acquisition. The prepare phase is genuinely concurrent CPU work
// (dimension/NaN checks plus, for Cosine, a per-vector normalize pass);
// the commit phase must stay single-threaded since the underlying
// vecstore.Store/hnsw.Graph are not safe for concurrent writers.
func (c *Collection) insertBatchParallel(ctx context.Context, items []InsertItem, workers int) BatchResult {
	results := make([]validated, len(items))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, it := range items {
		i, it := i, it
		g.Go(func() error {
			if it.ID == "" {
				results[i] = validated{item: it, err: vdberrors.New(vdberrors.InvalidVector, "id must not be empty", nil)}
				return nil
			}
			prepared, err := c.prepare(it.Vector)
			results[i] = validated{item: it, prepared: prepared, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var res BatchResult
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	for _, v := range results {
		if v.err != nil {
			res.Failed++
			res.Errors = append(res.Errors, v.err)
			continue
		}
		if err := c.insertPreparedLocked(v.item.ID, v.prepared, v.item.Metadata); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, err)
			continue
		}
		res.Inserted++
	}
	return res
}

// Update replaces id's vector and metadata via delete-and-reinsert
// (spec.md §9 open question, resolved in SPEC_FULL.md §4.3). Fails with
// vdberrors.VectorNotFound if id does not exist.
func (c *Collection) Update(id string, vector []float32, metadata vecstore.Metadata) error {
	prepared, err := c.prepare(vector)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	s := c.currentStore()
	if !s.Update(id, prepared, metadata) {
		return vdberrors.New(vdberrors.VectorNotFound, "vector not found: "+id, nil)
	}
	c.bumpGeneration()
	return nil
}

// Delete tombstones id. Returns true if id was live and is now deleted,
// false if id was not live (spec.md's "returns true if found and
// deleted").
func (c *Collection) Delete(id string) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	found := c.currentStore().Delete(id)
	if found {
		c.bumpGeneration()
	}
	return found
}

// DeleteBatch deletes every id present, returning the count actually
// deleted.
func (c *Collection) DeleteBatch(ids []string) int {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	s := c.currentStore()
	count := 0
	for _, id := range ids {
		if s.Delete(id) {
			count++
		}
	}
	if count > 0 {
		c.bumpGeneration()
	}
	return count
}

// Contains reports whether id is live. A pure reader: no writeMu.
func (c *Collection) Contains(id string) bool {
	return c.currentStore().Contains(id)
}

// Get returns the vector and metadata for a live id.
func (c *Collection) Get(id string) ([]float32, vecstore.Metadata, bool) {
	return c.currentStore().Get(id)
}

// Len returns the number of live vectors.
func (c *Collection) Len() int {
	return c.currentStore().Len()
}

// MaxVectors returns the configured capacity (0 = unlimited).
func (c *Collection) MaxVectors() int {
	return c.maxVectors
}

// CompactionThreshold returns the configured tombstone-fraction
// threshold (0 disables the ShouldCompact recommendation).
func (c *Collection) CompactionThreshold() float64 {
	return c.compactionThreshold
}

// SearchResult is one ranked hit, with the metric's similarity score
// attached (higher is better, regardless of metric).
type SearchResult struct {
	ID       string
	Score    float32
	Metadata vecstore.Metadata
}

// Search returns up to k nearest neighbors of query, best first.
func (c *Collection) Search(query []float32, k int) ([]SearchResult, error) {
	return c.SearchWithThreshold(query, k, 0)
}

// SearchWithThreshold applies the metric's similarity view and drops
// hits below minScore, after the graph traversal completes and before
// the k-truncation — exactly spec.md §4.3's ordering. Results are
// cached per (query, k, minScore) and reused as long as the collection
// has not been mutated since.
func (c *Collection) SearchWithThreshold(query []float32, k int, minScore float32) ([]SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	prepared, err := c.prepare(query)
	if err != nil {
		return nil, err
	}

	gen := c.generation.Load()
	key := searchCacheKey(prepared, k, minScore)
	if cached, ok := c.queryCache.Get(key); ok && cached.generation == gen {
		return cached.results, nil
	}

	s := c.currentStore()
	hits := s.Search(prepared, k, c.HNSWParams.EfSearch)

	out := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		score := distance.Similarity(prepared, h.Vector, c.Metric)
		if score < minScore {
			continue
		}
		out = append(out, SearchResult{ID: h.ExternalID, Score: score, Metadata: h.Metadata})
		if len(out) >= k {
			break
		}
	}

	c.queryCache.Add(key, cachedSearch{generation: gen, results: out})
	return out, nil
}

// searchCacheKey builds a cache key from the prepared query vector, k,
// and minScore. Binary-encoded rather than formatted: this runs on
// every search and avoids fmt's allocation and parsing overhead.
func searchCacheKey(query []float32, k int, minScore float32) string {
	buf := make([]byte, 0, len(query)*4+8)
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(k))
	buf = append(buf, tmp[:]...)
	binary.LittleEndian.PutUint32(tmp[:], math.Float32bits(minScore))
	buf = append(buf, tmp[:]...)
	for _, v := range query {
		binary.LittleEndian.PutUint32(tmp[:], math.Float32bits(v))
		buf = append(buf, tmp[:]...)
	}
	return string(buf)
}

// Stats describes a collection's current size and parameters.
type Stats struct {
	Name           string
	VectorCount    int
	TombstoneCount int
	Dimensions     int
	Metric         distance.Metric
	Params         hnsw.Params
	MemoryBytes    int64
}

// TombstoneFraction returns TombstoneCount / (VectorCount+TombstoneCount).
func (s Stats) TombstoneFraction() float64 {
	total := s.VectorCount + s.TombstoneCount
	if total == 0 {
		return 0
	}
	return float64(s.TombstoneCount) / float64(total)
}

// ShouldCompact reports whether the tombstone fraction exceeds the
// collection's configured threshold (0 disables the recommendation).
func (c *Collection) ShouldCompact() bool {
	if c.compactionThreshold <= 0 {
		return false
	}
	return c.Stats().TombstoneFraction() > c.compactionThreshold
}

// Stats computes the collection's current statistics. MemoryBytes is a
// rough estimate of the vector payload only (graph nodes, tombstoned
// ones included, × dimensions × 4 bytes); neighbor lists and metadata
// are not counted. Adequate for operator visibility, not accounting.
func (c *Collection) Stats() Stats {
	s := c.currentStore()
	vs := s.Stats()
	return Stats{
		Name:           c.Name,
		VectorCount:    vs.LiveCount,
		TombstoneCount: vs.TombstoneCount,
		Dimensions:     c.Dim,
		Metric:         c.Metric,
		Params:         c.HNSWParams,
		MemoryBytes:    int64(vs.GraphNodes) * int64(c.Dim) * 4,
	}
}

// Compact rebuilds a fresh, tombstone-free graph from every live vector
// and atomically installs it. Writers are serialized behind writeMu for
// the duration; readers continue to observe the pre-compaction store
// until the swap, then see the new one, per spec.md §5. Live vectors are
// re-inserted in ascending external-id order — an arbitrary but fixed
// choice, not Go's randomized map iteration order — so internal ids are
// assigned in the same order every time, per spec.md §4.2's "arbitrary
// but deterministic order". Each node's layer is still drawn from the
// fresh graph's time-seeded PRNG, so two compactions of the same live
// content can produce different graph structures.
func (c *Collection) Compact() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	old := c.currentStore()

	type liveEntry struct {
		id       string
		vector   []float32
		metadata vecstore.Metadata
	}
	entries := make([]liveEntry, 0, old.Len())
	old.EachLive(func(id string, vector []float32, metadata vecstore.Metadata) {
		entries = append(entries, liveEntry{id: id, vector: vector, metadata: metadata})
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

	fresh := vecstore.New(c.HNSWParams, c.distanceFunc())
	for _, e := range entries {
		fresh.Insert(e.id, e.vector, e.metadata)
	}
	c.store.Store(fresh)
	c.bumpGeneration()
}

// replaceStore installs a store built elsewhere (used by
// internal/persistence on load). Not for use by ordinary callers.
func (c *Collection) replaceStore(s *vecstore.Store) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.store.Store(s)
	c.bumpGeneration()
}

// StoreForPersistence exposes the active store so internal/persistence
// can call ExportRows/Graph().Export without this package depending on
// persistence (which would be a layering cycle — persistence loads
// collections, collections don't know about persistence).
func (c *Collection) StoreForPersistence() *vecstore.Store {
	return c.currentStore()
}

// ReplaceStoreFromLoad installs a store loaded from disk. Exported for
// internal/persistence; not part of the normal Collection API.
func (c *Collection) ReplaceStoreFromLoad(s *vecstore.Store) {
	c.replaceStore(s)
}

// NumCPUFallback returns runtime.GOMAXPROCS(0); kept as a tiny indirection
// so tests can assert the fallback path without spawning actual CPUs.
func NumCPUFallback() int {
	return runtime.GOMAXPROCS(0)
}
