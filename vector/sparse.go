package vector

import (
	"cmp"
	"maps"
	"slices"
)

// Entry is a single non-zero component of a sparse vector.
type Entry struct {
	Index uint64
	Value float64
}

// Sparse is a sparse vector backed by entries sorted by strictly increasing index.
// The zero value is the empty vector.
type Sparse struct {
	entries []Entry
}

// FromEntries builds a vector from entries in any order.
// Duplicate indices keep the last value; zero values are dropped.
func FromEntries(entries []Entry) Sparse {
	if len(entries) == 0 {
		return Sparse{}
	}
	es := slices.Clone(entries)
	// Stable sort keeps input order among duplicates so "last wins" holds.
	slices.SortStableFunc(es, func(a, b Entry) int { return cmp.Compare(a.Index, b.Index) })

	out := es[:0]
	for i, e := range es {
		if i+1 < len(es) && es[i+1].Index == e.Index {
			continue
		}
		if e.Value == 0 {
			continue
		}
		out = append(out, e)
	}
	return Sparse{entries: slices.Clip(out)}
}

// FromMap builds a vector from an index to value mapping.
func FromMap(m map[uint64]float64) Sparse {
	if len(m) == 0 {
		return Sparse{}
	}
	idx := slices.Sorted(maps.Keys(m))
	es := make([]Entry, 0, len(idx))
	for _, i := range idx {
		if v := m[i]; v != 0 {
			es = append(es, Entry{Index: i, Value: v})
		}
	}
	return Sparse{entries: es}
}

// fromSorted wraps entries that are already sorted, unique and non-zero.
func fromSorted(es []Entry) Sparse {
	return Sparse{entries: es}
}

// Len returns the number of stored (non-zero) entries.
func (v Sparse) Len() int { return len(v.entries) }

// IsEmpty reports whether v has no non-zero entries.
func (v Sparse) IsEmpty() bool { return len(v.entries) == 0 }

// Entries returns the sorted entries. The slice must not be modified.
func (v Sparse) Entries() []Entry { return v.entries }

// Get returns the value at index i, or 0 when absent.
func (v Sparse) Get(i uint64) float64 {
	pos, ok := slices.BinarySearchFunc(v.entries, i, func(e Entry, t uint64) int {
		return cmp.Compare(e.Index, t)
	})
	if !ok {
		return 0
	}
	return v.entries[pos].Value
}

// Sum returns the sum of all weights.
func (v Sparse) Sum() float64 {
	var s float64
	for _, e := range v.entries {
		s += e.Value
	}
	return s
}

// Clone returns an independent copy of v.
func (v Sparse) Clone() Sparse {
	return Sparse{entries: slices.Clone(v.entries)}
}

// Equal reports whether a and b hold exactly the same entries.
func Equal(a, b Sparse) bool {
	return slices.Equal(a.entries, b.entries)
}

// ApproxEqual reports whether a and b agree on every index within tol.
func ApproxEqual(a, b Sparse, tol float64) bool {
	ok := true
	mergeScan(a, b, func(_ uint64, x, y float64) {
		d := x - y
		if d < -tol || d > tol {
			ok = false
		}
	})
	return ok
}

// mergeScan calls fn for every index present in a or b, in increasing order.
func mergeScan(a, b Sparse, fn func(idx uint64, x, y float64)) {
	ae, be := a.entries, b.entries
	i, j := 0, 0
	for i < len(ae) && j < len(be) {
		switch {
		case ae[i].Index == be[j].Index:
			fn(ae[i].Index, ae[i].Value, be[j].Value)
			i++
			j++
		case ae[i].Index < be[j].Index:
			fn(ae[i].Index, ae[i].Value, 0)
			i++
		default:
			fn(be[j].Index, 0, be[j].Value)
			j++
		}
	}
	for ; i < len(ae); i++ {
		fn(ae[i].Index, ae[i].Value, 0)
	}
	for ; j < len(be); j++ {
		fn(be[j].Index, 0, be[j].Value)
	}
}
