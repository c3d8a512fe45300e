// Package hnsw implements the Hierarchical Navigable Small World graph:
// layer assignment, the insertion heuristic, greedy descent, the
// dynamic-candidate search used by both insertion and queries, and the
// relative-neighborhood pruning heuristic that keeps the graph connected
// as it grows.
//
// A Graph is keyed by internal id (uint64). It knows nothing about
// external string identifiers, tombstones, or metadata — that bookkeeping
// belongs to the collection layer (internal/vecstore, internal/collection).
// The graph never removes a node once added; deletion at this layer is
// the collection's job, achieved by simply not surfacing the id anymore.
package hnsw

import (
	"encoding/gob"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"time"
)

// DistanceFunc computes the distance between two equal-length vectors;
// lower is more similar. Collections pass in the metric's distance view
// (pkg/distance.Distance bound to the collection's metric).
type DistanceFunc func(a, b []float32) float32

// Params are the tunable construction/query parameters of a graph.
// MMax defaults to 2*M when zero (the teacher's and the original crate's
// convention); Ml defaults to 1/ln(M).
type Params struct {
	M              int
	MMax           int
	EfConstruction int
	EfSearch       int
	Ml             float64
}

// WithDefaults fills in the zero-valued fields of Params.
func (p Params) WithDefaults() Params {
	if p.M <= 0 {
		p.M = 16
	}
	if p.MMax <= 0 {
		p.MMax = 2 * p.M
	}
	if p.EfConstruction <= 0 {
		p.EfConstruction = 200
	}
	if p.EfSearch <= 0 {
		p.EfSearch = 100
	}
	if p.Ml <= 0 {
		p.Ml = 1.0 / math.Log(float64(p.M))
	}
	return p
}

// node is one internal id's presence in the graph: its vector, the
// layer it was assigned at insertion, and its neighbor lists, one slice
// per layer 0..=level.
type node struct {
	id        uint64
	vector    []float32
	level     int
	neighbors [][]uint64 // neighbors[l] = neighbor ids at layer l
}

// Graph is a layered proximity graph over internal ids. It is not
// internally synchronized: callers (internal/vecstore) are expected to
// hold a single writer lock across mutating calls and allow concurrent
// readers, per the concurrency model in SPEC_FULL.md §5.
type Graph struct {
	params   Params
	distance DistanceFunc
	rng      *rand.Rand

	nodes      map[uint64]*node
	entryPoint uint64
	hasEntry   bool
	topLayer   int
}

// New creates an empty graph. The PRNG is seeded once here, per process
// lifetime of the graph, not per insertion — callers needing determinism
// (tests) should use NewWithRand instead.
func New(params Params, distance DistanceFunc) *Graph {
	now := uint64(time.Now().UnixNano())
	return NewWithRand(params, distance, rand.New(rand.NewPCG(now, now^0x9e3779b97f4a7c15)))
}

// NewWithRand creates an empty graph with an explicit random source,
// for reproducible tests.
func NewWithRand(params Params, distance DistanceFunc, rng *rand.Rand) *Graph {
	return &Graph{
		params:   params.WithDefaults(),
		distance: distance,
		rng:      rng,
		nodes:    make(map[uint64]*node),
	}
}

// Len returns the number of nodes in the graph (including any the
// collection layer has tombstoned — the graph has no concept of
// tombstones).
func (g *Graph) Len() int {
	return len(g.nodes)
}

// EntryPoint returns the current entry point id and whether one is set.
func (g *Graph) EntryPoint() (uint64, bool) {
	return g.entryPoint, g.hasEntry
}

// TopLayer returns the current top layer index (0 when the graph is
// empty or has a single layer).
func (g *Graph) TopLayer() int {
	return g.topLayer
}

// assignLevel draws a random layer per spec.md §4.2: floor(-ln(u) * mL).
func (g *Graph) assignLevel() int {
	u := g.rng.Float64()
	for u == 0 {
		u = g.rng.Float64()
	}
	return int(math.Floor(-math.Log(u) * g.params.Ml))
}

// Insert adds a new internal id with its vector to the graph, following
// the insertion protocol of spec.md §4.2. The id must not already be
// present.
func (g *Graph) Insert(id uint64, vector []float32) {
	level := g.assignLevel()
	n := &node{
		id:        id,
		vector:    vector,
		level:     level,
		neighbors: make([][]uint64, level+1),
	}
	g.nodes[id] = n

	if !g.hasEntry {
		g.entryPoint = id
		g.hasEntry = true
		g.topLayer = level
		return
	}

	ep := g.entryPoint
	epDist := g.distance(vector, g.nodes[ep].vector)

	// Step 2: greedy 1-NN descent through layers strictly above `level`.
	for l := g.topLayer; l > level; l-- {
		ep, epDist = g.greedyClosest(ep, epDist, vector, l)
	}

	// Step 3: for each layer from min(top, level) down to 0, run the
	// dynamic-candidate search, select neighbors, wire bidirectional
	// edges, and re-prune any neighbor that now exceeds its cap.
	entrySet := []uint64{ep}
	for l := min(g.topLayer, level); l >= 0; l-- {
		candidates := g.searchLayer(vector, entrySet, g.params.EfConstruction, l)
		capN := g.capForLayer(l)
		selected := g.selectNeighbors(vector, candidates, capN)

		n.neighbors[l] = idsOf(selected)
		for _, c := range selected {
			g.addEdge(c.id, id, l)
			if g.degree(c.id, l) > capN {
				g.pruneNeighbors(c.id, l, capN)
			}
		}

		if len(candidates) > 0 {
			entrySet = []uint64{candidates[0].id}
		} else {
			entrySet = []uint64{ep}
		}
	}

	if level > g.topLayer {
		g.entryPoint = id
		g.topLayer = level
	}
}

// capForLayer returns the neighbor cap for a layer: MMax at layer 0, M
// everywhere else.
func (g *Graph) capForLayer(layer int) int {
	if layer == 0 {
		return g.params.MMax
	}
	return g.params.M
}

// greedyClosest performs one layer's worth of greedy 1-nearest-neighbor
// descent starting from (ep, epDist), returning the best node found.
func (g *Graph) greedyClosest(ep uint64, epDist float32, query []float32, layer int) (uint64, float32) {
	improved := true
	for improved {
		improved = false
		cur := g.nodes[ep]
		if layer >= len(cur.neighbors) {
			break
		}
		for _, cand := range cur.neighbors[layer] {
			d := g.distance(query, g.nodes[cand].vector)
			if d < epDist {
				ep = cand
				epDist = d
				improved = true
			}
		}
	}
	return ep, epDist
}

func (g *Graph) degree(id uint64, layer int) int {
	n := g.nodes[id]
	if layer >= len(n.neighbors) {
		return 0
	}
	return len(n.neighbors[layer])
}

// addEdge wires a bidirectional edge between a and b at the given layer.
// Both endpoints must already exist at that layer (spec.md's bidirectional
// edge invariant).
func (g *Graph) addEdge(a, b uint64, layer int) {
	na, nb := g.nodes[a], g.nodes[b]
	if layer >= len(na.neighbors) || layer >= len(nb.neighbors) {
		return
	}
	if !contains(na.neighbors[layer], b) {
		na.neighbors[layer] = append(na.neighbors[layer], b)
	}
	if !contains(nb.neighbors[layer], a) {
		nb.neighbors[layer] = append(nb.neighbors[layer], a)
	}
}

func contains(list []uint64, v uint64) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func idsOf(c []candidate) []uint64 {
	ids := make([]uint64, len(c))
	for i, x := range c {
		ids[i] = x.id
	}
	return ids
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// candidate pairs an internal id with its distance to some pivot vector,
// used by both the dynamic-candidate search and the pruning heuristic.
type candidate struct {
	id   uint64
	dist float32
}

// searchLayer runs the dynamic-candidate search of spec.md §4.2 at a
// single layer: seed the frontier with entrySet, expand by distance to
// query, and return up to ef results ordered best-first.
func (g *Graph) searchLayer(query []float32, entrySet []uint64, ef int, layer int) []candidate {
	visited := make(map[uint64]bool, ef*2)
	candidates := newMinHeap()
	results := newMaxHeap()

	for _, id := range entrySet {
		if visited[id] {
			continue
		}
		visited[id] = true
		d := g.distance(query, g.nodes[id].vector)
		candidates.push(candidate{id, d})
		results.push(candidate{id, d})
	}
	for results.Len() > ef {
		results.pop()
	}

	for candidates.Len() > 0 {
		c := candidates.pop()
		if results.Len() >= ef {
			worst := results.peek()
			if c.dist > worst.dist {
				break
			}
		}

		n := g.nodes[c.id]
		if layer >= len(n.neighbors) {
			continue
		}
		for _, nb := range n.neighbors[layer] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			d := g.distance(query, g.nodes[nb].vector)
			if results.Len() < ef {
				results.push(candidate{nb, d})
				candidates.push(candidate{nb, d})
			} else if worst := results.peek(); d < worst.dist {
				results.push(candidate{nb, d})
				results.pop()
				candidates.push(candidate{nb, d})
			}
		}
	}

	return results.sortedAscending()
}

// selectNeighbors implements the relative-neighborhood pruning heuristic
// of spec.md §4.2: walk candidates (already sorted by distance to the
// pivot) in order, admitting c only if it is closer to the pivot than to
// every neighbor already accepted.
func (g *Graph) selectNeighbors(pivot []float32, sorted []candidate, k int) []candidate {
	selected := make([]candidate, 0, k)
	for _, c := range sorted {
		if len(selected) >= k {
			break
		}
		ok := true
		for _, r := range selected {
			if g.distance(g.nodes[c.id].vector, g.nodes[r.id].vector) <= c.dist {
				ok = false
				break
			}
		}
		if ok {
			selected = append(selected, c)
		}
	}
	return selected
}

// pruneNeighbors re-runs neighbor selection on n's existing neighbor list
// at layer, trimming it back down to cap. Both directions of any dropped
// edge are removed to preserve the bidirectional-edge invariant.
func (g *Graph) pruneNeighbors(id uint64, layer int, capN int) {
	n := g.nodes[id]
	existing := n.neighbors[layer]
	cands := make([]candidate, len(existing))
	for i, nb := range existing {
		cands[i] = candidate{nb, g.distance(n.vector, g.nodes[nb].vector)}
	}
	sortCandidatesAscending(cands)
	selected := g.selectNeighbors(n.vector, cands, capN)

	keep := make(map[uint64]bool, len(selected))
	for _, s := range selected {
		keep[s.id] = true
	}
	for _, nb := range existing {
		if !keep[nb] {
			g.removeEdgeOneSide(nb, id, layer)
		}
	}
	n.neighbors[layer] = idsOf(selected)
}

// removeEdgeOneSide removes `other` from `id`'s neighbor list at layer;
// the caller is already rewriting id's own list separately.
func (g *Graph) removeEdgeOneSide(id, other uint64, layer int) {
	n, ok := g.nodes[id]
	if !ok || layer >= len(n.neighbors) {
		return
	}
	out := n.neighbors[layer][:0]
	for _, x := range n.neighbors[layer] {
		if x != other {
			out = append(out, x)
		}
	}
	n.neighbors[layer] = out
}

// SearchResult is one ranked hit from Search.
type SearchResult struct {
	ID       uint64
	Distance float32
}

// Search runs the k-NN query protocol of spec.md §4.2: greedy-descend to
// layer 1, then run the dynamic-candidate search at layer 0 with size
// max(efSearch, want), returning that whole candidate pool ordered best
// first. It does not truncate to `want`: the caller (vecstore) filters
// tombstones and then truncates.
func (g *Graph) Search(query []float32, want int, efSearch int) []SearchResult {
	if !g.hasEntry || want <= 0 {
		return nil
	}

	ep := g.entryPoint
	epDist := g.distance(query, g.nodes[ep].vector)
	for l := g.topLayer; l > 0; l-- {
		ep, epDist = g.greedyClosest(ep, epDist, query, l)
	}

	ef := efSearch
	if want > ef {
		ef = want
	}
	candidates := g.searchLayer(query, []uint64{ep}, ef, 0)

	results := make([]SearchResult, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, SearchResult{ID: c.id, Distance: c.dist})
	}
	return results
}

// Vector returns the stored vector for an internal id, for callers that
// need to re-score (e.g. the collection's tombstone-filter path).
func (g *Graph) Vector(id uint64) ([]float32, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, false
	}
	return n.vector, true
}

// CheckInvariants validates the graph invariants from spec.md §3: every
// bidirectional edge at layer l has both endpoints present at layer l,
// and the entry point, if set, is a node that exists at the top layer.
// Intended for use from tests and debug-build assertions, not the hot
// path.
func (g *Graph) CheckInvariants() error {
	for id, n := range g.nodes {
		for l, neighbors := range n.neighbors {
			for _, nb := range neighbors {
				other, ok := g.nodes[nb]
				if !ok {
					return fmt.Errorf("node %d has neighbor %d at layer %d that does not exist", id, nb, l)
				}
				if l >= len(other.neighbors) {
					return fmt.Errorf("node %d at layer %d neighbors %d, but %d does not exist at layer %d", id, l, nb, nb, l)
				}
				if !contains(other.neighbors[l], id) {
					return fmt.Errorf("edge %d->%d at layer %d is not bidirectional", id, nb, l)
				}
			}
		}
	}
	if g.hasEntry {
		ep, ok := g.nodes[g.entryPoint]
		if !ok {
			return fmt.Errorf("entry point %d does not exist", g.entryPoint)
		}
		if ep.level < g.topLayer {
			return fmt.Errorf("entry point %d is at level %d, below top layer %d", g.entryPoint, ep.level, g.topLayer)
		}
	}
	return nil
}

// ReplaceEntryPoint is used by the collection layer when the stored
// entry point has been tombstoned or, on load, found not to reference a
// live node; it performs the best-effort repair spec.md §4.6 calls for.
func (g *Graph) ReplaceEntryPoint(id uint64) bool {
	n, ok := g.nodes[id]
	if !ok {
		return false
	}
	g.entryPoint = id
	g.hasEntry = true
	if n.level > g.topLayer {
		g.topLayer = n.level
	}
	return true
}

// graphSnapshot is the on-disk shape of a Graph. internal/persistence
// writes one of these to graph.bin per collection with encoding/gob.
type graphSnapshot struct {
	Params     Params
	Nodes      []nodeSnapshot
	EntryPoint uint64
	HasEntry   bool
	TopLayer   int
}

type nodeSnapshot struct {
	ID        uint64
	Vector    []float32
	Level     int
	Neighbors [][]uint64
}

// Export gob-encodes the full graph topology and parameters to w. The
// distance function and PRNG are not part of the snapshot; the caller
// supplies them again through New/NewWithRand on Import.
func (g *Graph) Export(w io.Writer) error {
	snap := graphSnapshot{
		Params:     g.params,
		Nodes:      make([]nodeSnapshot, 0, len(g.nodes)),
		EntryPoint: g.entryPoint,
		HasEntry:   g.hasEntry,
		TopLayer:   g.topLayer,
	}
	for _, n := range g.nodes {
		snap.Nodes = append(snap.Nodes, nodeSnapshot{
			ID:        n.id,
			Vector:    n.vector,
			Level:     n.level,
			Neighbors: n.neighbors,
		})
	}
	return gob.NewEncoder(w).Encode(&snap)
}

// Import replaces the graph's topology with a previously exported
// snapshot. Callers should follow a failed entry-point liveness check
// (e.g. after a crash mid-compaction) with ReplaceEntryPoint rather than
// rejecting the whole load, per spec.md §4.6's repair-on-load behavior.
func (g *Graph) Import(r io.Reader) error {
	var snap graphSnapshot
	if err := gob.NewDecoder(r).Decode(&snap); err != nil {
		return err
	}
	g.params = snap.Params.WithDefaults()
	g.entryPoint = snap.EntryPoint
	g.hasEntry = snap.HasEntry
	g.topLayer = snap.TopLayer
	g.nodes = make(map[uint64]*node, len(snap.Nodes))
	for _, n := range snap.Nodes {
		g.nodes[n.ID] = &node{
			id:        n.ID,
			vector:    n.Vector,
			level:     n.Level,
			neighbors: n.Neighbors,
		}
	}
	return nil
}
