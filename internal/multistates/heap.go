package multistates

import "github.com/roach88/loopexit/internal/ir"

// entry is one pooled state. index is maintained by the heap methods so
// Remove and Reprioritize can fix up the heap in O(log n).
type entry struct {
	id       ir.StateID
	priority int64
	seq      int64
	index    int
}

// before reports whether a is selected ahead of b.
func (a *entry) before(b *entry) bool {
	if a.priority != b.priority {
		return a.priority > b.priority
	}
	return a.seq < b.seq
}

// entryHeap is a max-heap of entries (implements heap.Interface).
type entryHeap []*entry

func (h entryHeap) Len() int           { return len(h) }
func (h entryHeap) Less(i, j int) bool { return h[i].before(h[j]) }

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
