package hnsw

import (
	"container/heap"
	"sort"
)

// candidateSlice is the container/heap.Interface backing both minHeap and
// maxHeap; which end sorts to the root is controlled by ascending.
type candidateSlice struct {
	data      []candidate
	ascending bool
}

func (s *candidateSlice) Len() int { return len(s.data) }

func (s *candidateSlice) Less(i, j int) bool {
	if s.ascending {
		return s.data[i].dist < s.data[j].dist
	}
	return s.data[i].dist > s.data[j].dist
}

func (s *candidateSlice) Swap(i, j int) { s.data[i], s.data[j] = s.data[j], s.data[i] }

func (s *candidateSlice) Push(x any) { s.data = append(s.data, x.(candidate)) }

func (s *candidateSlice) Pop() any {
	old := s.data
	n := len(old)
	item := old[n-1]
	s.data = old[:n-1]
	return item
}

// minHeap pops the candidate closest to the query first. searchLayer uses
// it to drive expansion of the frontier in order of increasing distance.
type minHeap struct {
	items candidateSlice
}

func newMinHeap() *minHeap {
	return &minHeap{items: candidateSlice{ascending: true}}
}

func (h *minHeap) Len() int        { return h.items.Len() }
func (h *minHeap) push(c candidate) { heap.Push(&h.items, c) }
func (h *minHeap) pop() candidate   { return heap.Pop(&h.items).(candidate) }

// maxHeap pops the candidate farthest from the query first, so its root is
// always the worst of the retained results: the one to evict once the
// result set reaches ef.
type maxHeap struct {
	items candidateSlice
}

func newMaxHeap() *maxHeap {
	return &maxHeap{items: candidateSlice{ascending: false}}
}

func (h *maxHeap) Len() int        { return h.items.Len() }
func (h *maxHeap) push(c candidate) { heap.Push(&h.items, c) }
func (h *maxHeap) pop() candidate   { return heap.Pop(&h.items).(candidate) }
func (h *maxHeap) peek() candidate  { return h.items.data[0] }

// sortedAscending copies the heap's contents into a new slice ordered by
// increasing distance, leaving the heap itself untouched.
func (h *maxHeap) sortedAscending() []candidate {
	out := make([]candidate, len(h.items.data))
	copy(out, h.items.data)
	sortCandidatesAscending(out)
	return out
}

func sortCandidatesAscending(cands []candidate) {
	sort.Slice(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })
}
