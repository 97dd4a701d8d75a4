// Package queue provides a bounded min-heap that retains the highest-scoring
// items seen so far.
package queue

import "slices"

// Item is a scored entry in the queue.
type Item struct {
	ID    string
	Score float64
}

// TopK keeps at most Cap items. The heap root is always the lowest score, so
// an overflowing push evicts the current minimum.
//
// TopK is not safe for concurrent use.
type TopK struct {
	cap   int
	items []Item
}

// NewTopK returns a queue retaining up to capacity items. A capacity below
// one retains nothing.
func NewTopK(capacity int) *TopK {
	if capacity < 0 {
		capacity = 0
	}
	return &TopK{cap: capacity, items: make([]Item, 0, capacity+1)}
}

// Push inserts item and reports whether it was retained.
func (q *TopK) Push(item Item) bool {
	if q.cap == 0 {
		return false
	}
	if len(q.items) == q.cap && item.Score <= q.items[0].Score {
		return false
	}
	q.items = append(q.items, item)
	q.siftUp(len(q.items) - 1)
	if len(q.items) > q.cap {
		q.popMin()
	}
	return true
}

// Min returns the lowest retained item.
func (q *TopK) Min() (Item, bool) {
	if len(q.items) == 0 {
		return Item{}, false
	}
	return q.items[0], true
}

func (q *TopK) Len() int { return len(q.items) }

func (q *TopK) Cap() int { return q.cap }

// Sorted returns the retained items by descending score, ties by ID.
func (q *TopK) Sorted() []Item {
	out := slices.Clone(q.items)
	slices.SortFunc(out, func(a, b Item) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return compareString(a.ID, b.ID)
	})
	return out
}

// Reset empties the queue, keeping its capacity.
func (q *TopK) Reset() {
	clear(q.items)
	q.items = q.items[:0]
}

func (q *TopK) popMin() Item {
	n := len(q.items)
	root := q.items[0]
	q.items[0] = q.items[n-1]
	q.items[n-1] = Item{}
	q.items = q.items[:n-1]
	if len(q.items) > 0 {
		q.siftDown(0)
	}
	return root
}

func (q *TopK) less(i, j int) bool {
	return q.items[i].Score < q.items[j].Score
}

func (q *TopK) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !q.less(i, p) {
			return
		}
		q.items[i], q.items[p] = q.items[p], q.items[i]
		i = p
	}
}

func (q *TopK) siftDown(i int) {
	n := len(q.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		best := l
		if r := l + 1; r < n && q.less(r, l) {
			best = r
		}
		if !q.less(best, i) {
			return
		}
		q.items[i], q.items[best] = q.items[best], q.items[i]
		i = best
	}
}

func compareString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
