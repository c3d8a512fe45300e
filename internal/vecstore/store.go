// Package vecstore binds a hand-rolled internal/hnsw.Graph to the
// external string id a caller uses, and owns the row of (vector,
// metadata, tombstone) data keyed by the internal id the graph operates
// on. It is the direct structural descendant of the teacher's
// internal/store.HNSWStore: an RWMutex-guarded id bijection plus lazy
// (tombstone, not structural) deletion, now wrapping a graph this
// module owns outright instead of github.com/coder/hnsw.
package vecstore

import (
	"sync"

	"github.com/ares-vector/vdb/internal/hnsw"
	"github.com/ares-vector/vdb/internal/vdberrors"
)

// row is one internal id's payload, independent of the graph's own node
// bookkeeping.
type row struct {
	vector    []float32
	metadata  Metadata
	tombstone bool
}

// Store owns the id bijection, the row table, and the graph. Callers
// (internal/collection) are expected to serialize writers and allow
// concurrent readers one level up, same as spec.md §5 describes for the
// collection as a whole; Store's own mutex additionally protects its
// internal maps from torn reads during a write.
type Store struct {
	mu    sync.RWMutex
	graph *hnsw.Graph

	rows   map[uint64]*row
	idMap  map[string]uint64 // external -> internal
	keyMap map[uint64]string // internal -> external, live ids only
	nextID uint64
}

// New creates an empty store with a process-seeded PRNG.
func New(params hnsw.Params, distance hnsw.DistanceFunc) *Store {
	return &Store{
		graph:  hnsw.New(params, distance),
		rows:   make(map[uint64]*row),
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

// NewWithGraph wraps an already-constructed graph (used by compaction
// and by load, where the graph is rebuilt or restored beforehand).
func NewWithGraph(g *hnsw.Graph) *Store {
	return &Store{
		graph:  g,
		rows:   make(map[uint64]*row),
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

// SearchHit is one ranked, externally-addressable result.
type SearchHit struct {
	ExternalID string
	InternalID uint64
	Vector     []float32
	Metadata   Metadata
	Distance   float32
}

// Contains reports whether id is live (not tombstoned).
func (s *Store) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.idMap[id]
	return ok
}

// Get returns the vector and metadata for a live external id.
func (s *Store) Get(id string) ([]float32, Metadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	internal, ok := s.idMap[id]
	if !ok {
		return nil, nil, false
	}
	r := s.rows[internal]
	if err := vdberrors.Assert(r != nil, "row exists for every live external id"); err != nil {
		return nil, nil, false
	}
	return r.vector, r.metadata.Clone(), true
}

// Len returns the number of live (non-tombstoned) vectors.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idMap)
}

// exists reports whether the given external id is already mapped,
// without taking the lock itself — callers already holding it (Insert)
// use this to avoid re-entrant locking.
func (s *Store) exists(id string) bool {
	_, ok := s.idMap[id]
	return ok
}

// Insert adds a brand new external id. Returns false if the id already
// exists (the collection layer turns that into a typed "already
// exists" error); the store itself stays unchanged on that path.
func (s *Store) Insert(id string, vector []float32, metadata Metadata) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exists(id) {
		return false
	}
	s.insertLocked(id, vector, metadata)
	return true
}

// insertLocked assumes the caller holds s.mu for writing.
func (s *Store) insertLocked(id string, vector []float32, metadata Metadata) uint64 {
	internal := s.nextID
	s.nextID++

	vecCopy := make([]float32, len(vector))
	copy(vecCopy, vector)

	s.rows[internal] = &row{vector: vecCopy, metadata: metadata.Clone()}
	s.idMap[id] = internal
	s.keyMap[internal] = id
	s.graph.Insert(internal, vecCopy)
	return internal
}

// Update replaces id's vector and metadata. Per the delete-and-reinsert
// semantics this module resolves spec.md §9's open question with, the
// old internal id is tombstoned and a fresh one allocated; the graph
// gains a new node rather than an in-place neighbor re-selection.
// Returns false if id does not exist.
func (s *Store) Update(id string, vector []float32, metadata Metadata) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	oldInternal, ok := s.idMap[id]
	if !ok {
		return false
	}

	s.rows[oldInternal].tombstone = true
	delete(s.idMap, id)
	delete(s.keyMap, oldInternal)

	s.insertLocked(id, vector, metadata)
	return true
}

// Delete tombstones id and releases the external↔internal mapping so a
// later Insert can reuse the external id (with a fresh internal id).
// The graph node and row are retained until Compact. Returns false if
// id was not live.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	internal, ok := s.idMap[id]
	if !ok {
		return false
	}
	s.rows[internal].tombstone = true
	delete(s.idMap, id)
	delete(s.keyMap, internal)
	return true
}

// Search runs a k-NN query and returns live (non-tombstoned) hits,
// best-first, truncated to `want`. It asks the graph for
// max(efSearch, want) raw candidates so that filtering tombstones still
// leaves room to reach `want`, per spec.md §4.2's "drop tombstoned ids,
// then return the first k".
func (s *Store) Search(query []float32, want int, efSearch int) []SearchHit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if want <= 0 {
		return nil
	}

	raw := s.graph.Search(query, want, efSearch)
	hits := make([]SearchHit, 0, want)
	for _, c := range raw {
		if len(hits) >= want {
			break
		}
		r := s.rows[c.ID]
		if err := vdberrors.Assert(r != nil, "row exists for every graph node"); err != nil {
			continue
		}
		if r.tombstone {
			continue
		}
		ext, ok := s.keyMap[c.ID]
		if !ok {
			continue
		}
		hits = append(hits, SearchHit{
			ExternalID: ext,
			InternalID: c.ID,
			Vector:     r.vector,
			Metadata:   r.metadata.Clone(),
			Distance:   c.Distance,
		})
	}
	return hits
}

// Stats summarizes row and tombstone counts for compaction decisions,
// the vecstore-level analogue of the teacher's HNSWStats.
type Stats struct {
	LiveCount      int
	TombstoneCount int
	GraphNodes     int
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tombstones := 0
	for _, r := range s.rows {
		if r.tombstone {
			tombstones++
		}
	}
	return Stats{
		LiveCount:      len(s.idMap),
		TombstoneCount: tombstones,
		GraphNodes:     s.graph.Len(),
	}
}

// TombstoneFraction returns TombstoneCount / (LiveCount+TombstoneCount),
// or 0 for an empty store.
func (s Stats) TombstoneFraction() float64 {
	total := s.LiveCount + s.TombstoneCount
	if total == 0 {
		return 0
	}
	return float64(s.TombstoneCount) / float64(total)
}

// EachLive calls fn for every live (id, vector, metadata) triple, in an
// arbitrary but (for a given Go map iteration) unspecified order.
// Compact uses this to seed a fresh graph.
func (s *Store) EachLive(fn func(id string, vector []float32, metadata Metadata)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, internal := range s.idMap {
		r := s.rows[internal]
		if err := vdberrors.Assert(r != nil, "row exists for every live external id"); err != nil {
			continue
		}
		fn(id, r.vector, r.metadata)
	}
}

// IsLiveInternalID reports whether internal still maps to a live
// (non-tombstoned) external id. Used by internal/persistence to check
// whether a restored graph's entry point survived a crash.
func (s *Store) IsLiveInternalID(internal uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keyMap[internal]
	return ok
}

// AnyLiveInternalID returns an arbitrary live internal id, or false if
// the store has none. Used to repair a tombstoned graph entry point on
// load.
func (s *Store) AnyLiveInternalID() (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for internal := range s.keyMap {
		return internal, true
	}
	return 0, false
}

// Graph exposes the underlying graph for persistence (Export/Import)
// and invariant checks. Callers must not mutate it outside Store's own
// methods.
func (s *Store) Graph() *hnsw.Graph {
	return s.graph
}
