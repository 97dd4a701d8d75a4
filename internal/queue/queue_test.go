package queue

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scores(items []Item) []float64 {
	out := make([]float64, len(items))
	for i, it := range items {
		out[i] = it.Score
	}
	return out
}

func TestTopK_EvictsLowest(t *testing.T) {
	q := NewTopK(2)
	assert.True(t, q.Push(Item{ID: "a", Score: 0.9}))
	assert.True(t, q.Push(Item{ID: "b", Score: 0.3}))
	assert.True(t, q.Push(Item{ID: "c", Score: 0.7}))

	assert.Equal(t, 2, q.Len())
	assert.Equal(t, []float64{0.9, 0.7}, scores(q.Sorted()))

	lowest, ok := q.Min()
	require.True(t, ok)
	assert.Equal(t, "c", lowest.ID)
}

func TestTopK_RejectsBelowMin(t *testing.T) {
	q := NewTopK(1)
	q.Push(Item{ID: "a", Score: 0.5})
	assert.False(t, q.Push(Item{ID: "b", Score: 0.4}))
	assert.False(t, q.Push(Item{ID: "c", Score: 0.5}))
	assert.Equal(t, []Item{{ID: "a", Score: 0.5}}, q.Sorted())
}

func TestTopK_ZeroCapacity(t *testing.T) {
	q := NewTopK(0)
	assert.False(t, q.Push(Item{ID: "a", Score: 1}))
	_, ok := q.Min()
	assert.False(t, ok)
	assert.Empty(t, q.Sorted())
}

func TestTopK_MatchesSort(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for range 50 {
		capacity := 1 + rng.IntN(8)
		n := rng.IntN(40)
		q := NewTopK(capacity)
		all := make([]float64, n)
		for i := range n {
			all[i] = rng.Float64()
			q.Push(Item{Score: all[i]})
		}
		slices.Sort(all)
		slices.Reverse(all)
		want := all[:min(capacity, n)]
		assert.Equal(t, want, scores(q.Sorted()))
	}
}

func TestTopK_Reset(t *testing.T) {
	q := NewTopK(3)
	q.Push(Item{ID: "x", Score: 1})
	q.Reset()
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 3, q.Cap())
}
