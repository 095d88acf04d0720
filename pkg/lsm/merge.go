package lsm

import "container/heap"

// Merger merges N sorted Entry streams into one, ordered by InternalKey,
// with ties between equal keys from different sources broken by source
// index. Combined with InternalKey's inner descending sequence_number, a
// stable source-index tie-break is what makes "newest wins" deterministic
// when two sources happen to produce the exact same InternalKey.
//
// Implemented as a heap of (head, source index) pairs, per spec section
// 4.6 / 9: extract the minimum, advance its source, reinsert its next head
// if any. A source is polled only when its current head has been consumed,
// so a caller that stops requesting elements early never over-reads a
// source.
type Merger struct {
	sources []Stream[Entry]
	h       mergeHeap
}

type mergeHeapItem struct {
	head   Entry
	source int
}

type mergeHeap []mergeHeapItem

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	if c := CompareInternalKeys(h[i].head.Key, h[j].head.Key); c != 0 {
		return c < 0
	}
	return h[i].source < h[j].source
}
func (h mergeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)        { *h = append(*h, x.(mergeHeapItem)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// NewMerger builds a merger over sources, pulling exactly one element from
// each to seed the heap. Sources that are already exhausted contribute
// nothing.
func NewMerger(sources []Stream[Entry]) *Merger {
	m := &Merger{sources: sources}
	m.h = make(mergeHeap, 0, len(sources))
	for i, src := range sources {
		if e, ok := src.Next(); ok {
			m.h = append(m.h, mergeHeapItem{head: e, source: i})
		}
	}
	heap.Init(&m.h)
	return m
}

// Next implements Stream[Entry].
func (m *Merger) Next() (Entry, bool) {
	if m.h.Len() == 0 {
		return Entry{}, false
	}
	top := heap.Pop(&m.h).(mergeHeapItem)
	if next, ok := m.sources[top.source].Next(); ok {
		heap.Push(&m.h, mergeHeapItem{head: next, source: top.source})
	}
	return top.head, true
}
