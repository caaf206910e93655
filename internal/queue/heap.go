package queue

import "container/heap"

// itemHeap orders admittable items by priority, then age, then id.
// Entries may go stale when an item changes state while queued; Next
// filters those against the authoritative items map on pop.
type itemHeap struct {
	entries []*Item
}

func (h *itemHeap) Len() int           { return len(h.entries) }
func (h *itemHeap) Less(i, j int) bool { return h.entries[i].before(h.entries[j]) }
func (h *itemHeap) Swap(i, j int)      { h.entries[i], h.entries[j] = h.entries[j], h.entries[i] }

func (h *itemHeap) Push(x any) {
	h.entries = append(h.entries, x.(*Item))
}

func (h *itemHeap) Pop() any {
	old := h.entries
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	h.entries = old[:n-1]
	return it
}

func (h *itemHeap) push(it *Item) { heap.Push(h, it) }
func (h *itemHeap) pop() *Item    { return heap.Pop(h).(*Item) }
