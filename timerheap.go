package async

import "container/heap"

// timerEntry is one scheduled callback in the Loop's timer heap.
type timerEntry struct {
	due       float64 // seconds, measured against Loop.now()
	seq       uint64  // insertion order tiebreaker for equal due times
	id        uint64
	fn        func()
	cancelled bool
}

// timerHeap is a container/heap-based min-heap ordered by due time, with
// lazy-delete cancellation: a cancelled entry stays in the heap until it
// reaches the top, where it is discarded rather than fired.
type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].seq < h[j].seq
}

func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) {
	*h = append(*h, x.(*timerEntry))
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return entry
}

var _ = heap.Interface(&timerHeap{})
