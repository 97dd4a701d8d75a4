package vector

import (
	"errors"
	"math"
	"slices"
)

// MinValueThreshold is the smallest mean weight kept by FinalizeMean.
// Smaller weights are treated as zero, which bounds centroid growth across rounds.
const MinValueThreshold = 1.0 / 100000.0

// ErrDegenerate is returned by NormalizeStrict for vectors whose weights sum to zero.
var ErrDegenerate = errors.New("vector: degenerate vector (weights sum to zero)")

// Normalize returns v with every weight divided by the sum of all weights (L1).
// A vector whose weights sum to zero is returned unchanged.
func Normalize(v Sparse) Sparse {
	n, _ := NormalizeChecked(v)
	return n
}

// NormalizeChecked is Normalize that also reports whether scaling took place.
// It returns (v, false) when the weights sum to zero.
func NormalizeChecked(v Sparse) (Sparse, bool) {
	sum := v.Sum()
	if sum == 0 {
		return v, false
	}
	out := make([]Entry, len(v.entries))
	for i, e := range v.entries {
		out[i] = Entry{Index: e.Index, Value: e.Value / sum}
	}
	return fromSorted(dropZeros(out)), true
}

// NormalizeStrict is Normalize that fails with ErrDegenerate instead of
// returning a zero-sum vector unchanged.
func NormalizeStrict(v Sparse) (Sparse, error) {
	n, ok := NormalizeChecked(v)
	if !ok {
		return v, ErrDegenerate
	}
	return n, nil
}

// CosineSimilarity returns the dot product of a and b.
//
// Only the numerator of the cosine is computed; inputs are expected to be
// normalized upstream, so no norm division takes place.
func CosineSimilarity(a, b Sparse) float64 {
	ae, be := a.entries, b.entries
	var s float64
	i, j := 0, 0
	for i < len(ae) && j < len(be) {
		switch {
		case ae[i].Index == be[j].Index:
			s += ae[i].Value * be[j].Value
			i++
			j++
		case ae[i].Index < be[j].Index:
			i++
		default:
			j++
		}
	}
	return s
}

// EuclideanDistance returns sqrt(Σ (a[i]-b[i])²) over the union of indices.
func EuclideanDistance(a, b Sparse) float64 {
	var s float64
	mergeScan(a, b, func(_ uint64, x, y float64) {
		d := x - y
		s += d * d
	})
	return math.Sqrt(s)
}

// Accumulator sums vectors into a running mean.
// It is owned by a single reduce task and is not safe for concurrent use.
type Accumulator struct {
	sums  map[uint64]float64
	count int
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{sums: make(map[uint64]float64)}
}

// Add adds every entry of v to the running sums.
func (a *Accumulator) Add(v Sparse) {
	for _, e := range v.entries {
		a.sums[e.Index] += e.Value
	}
	a.count++
}

// Count returns the number of vectors added.
func (a *Accumulator) Count() int { return a.count }

// Sum returns the accumulated sums as a vector.
func (a *Accumulator) Sum() Sparse { return FromMap(a.sums) }

// Mean returns the sums divided by the number of added vectors, without pruning.
func (a *Accumulator) Mean() Sparse {
	if a.count == 0 {
		return Sparse{}
	}
	return scale(a.Sum(), 1/float64(a.count))
}

// Finalize returns FinalizeMean(sums, count) over the added vectors.
func (a *Accumulator) Finalize() Sparse {
	return FinalizeMean(a.Sum(), a.count)
}

// FinalizeMean divides every entry of mean by count and removes entries whose
// result is below MinValueThreshold. A non-positive count yields the empty vector.
func FinalizeMean(mean Sparse, count int) Sparse {
	if count <= 0 {
		return Sparse{}
	}
	out := make([]Entry, 0, len(mean.entries))
	for _, e := range mean.entries {
		val := e.Value / float64(count)
		if val < MinValueThreshold {
			continue
		}
		out = append(out, Entry{Index: e.Index, Value: val})
	}
	return fromSorted(slices.Clip(out))
}

// MeanOf returns the unpruned mean of vectors.
func MeanOf(vectors []Sparse) Sparse {
	acc := NewAccumulator()
	for _, v := range vectors {
		acc.Add(v)
	}
	return acc.Mean()
}

func scale(v Sparse, f float64) Sparse {
	out := make([]Entry, len(v.entries))
	for i, e := range v.entries {
		out[i] = Entry{Index: e.Index, Value: e.Value * f}
	}
	return fromSorted(dropZeros(out))
}

func dropZeros(es []Entry) []Entry {
	out := es[:0]
	for _, e := range es {
		if e.Value != 0 {
			out = append(out, e)
		}
	}
	return out
}
