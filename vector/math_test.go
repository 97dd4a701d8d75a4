package vector

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	v := MustParse("1:2.0 2:2.0")
	n := Normalize(v)
	assert.Equal(t, "1:0.5 2:0.5", n.String())

	// Input is left untouched.
	assert.Equal(t, "1:2 2:2", v.String())
}

func TestNormalize_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		v := randomSparse(rng, 30, 1000)
		n := Normalize(v)
		assert.InDelta(t, 1.0, n.Sum(), 1e-9)
		assert.True(t, ApproxEqual(n, Normalize(n), 1e-12), "normalize must be idempotent")
	}
}

func TestNormalize_Degenerate(t *testing.T) {
	tests := []struct {
		name string
		v    Sparse
	}{
		{"Empty", Sparse{}},
		{"Cancelling", FromEntries([]Entry{{Index: 1, Value: 1}, {Index: 2, Value: -1}})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, ok := NormalizeChecked(tt.v)
			assert.False(t, ok)
			assert.True(t, Equal(tt.v, n))
			assert.True(t, Equal(tt.v, Normalize(tt.v)))

			_, err := NormalizeStrict(tt.v)
			assert.ErrorIs(t, err, ErrDegenerate)
		})
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		expected float64
	}{
		{"Disjoint", "1:1", "2:1", 0},
		{"Overlap", "1:1", "1:0.8 2:0.2", 0.8},
		{"Partial", "2:1", "1:0.8 2:0.2", 0.2},
		{"Union", "1:0.5 3:0.5 9:1", "3:2 9:0.5 11:4", 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(MustParse(tt.a), MustParse(tt.b))
			assert.InDelta(t, tt.expected, got, 1e-12)
		})
	}
}

func TestCosineSimilarity_Symmetric(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 200; i++ {
		a := randomSparse(rng, 20, 50)
		b := randomSparse(rng, 20, 50)
		assert.Equal(t, CosineSimilarity(a, b), CosineSimilarity(b, a))
	}
}

func TestEuclideanDistance(t *testing.T) {
	a := MustParse("1:3 2:4")
	assert.InDelta(t, 5.0, EuclideanDistance(a, Sparse{}), 1e-12)
	assert.InDelta(t, 0.0, EuclideanDistance(a, a), 1e-12)
	assert.InDelta(t, math.Sqrt(9+16+1), EuclideanDistance(a, MustParse("7:1")), 1e-12)
	assert.InDelta(t, EuclideanDistance(a, MustParse("2:1 5:2")), EuclideanDistance(MustParse("2:1 5:2"), a), 1e-12)
}

func TestAccumulator_Mean(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(MustParse("1:1.0"))
	acc.Add(MustParse("1:3.0"))

	require.Equal(t, 2, acc.Count())
	assert.Equal(t, "1:2", acc.Mean().String())
	assert.Equal(t, "1:2", acc.Finalize().String())
	assert.Equal(t, "1:2", MeanOf([]Sparse{MustParse("1:1.0"), MustParse("1:3.0")}).String())
}

func TestFinalizeMean_Prunes(t *testing.T) {
	mean := MustParse("1:2 2:0.00001 3:0.5")
	got := FinalizeMean(mean, 2)

	assert.Equal(t, "1:1 3:0.25", got.String())
	for _, e := range got.Entries() {
		assert.GreaterOrEqual(t, math.Abs(e.Value), MinValueThreshold)
	}
	assert.True(t, FinalizeMean(mean, 0).IsEmpty())
}

func TestMeanOf_Unpruned(t *testing.T) {
	got := MeanOf([]Sparse{MustParse("1:1 2:0.000001"), MustParse("1:1")})
	assert.InDelta(t, 0.0000005, got.Get(2), 1e-15)
	assert.True(t, MeanOf(nil).IsEmpty())
}

func TestMean_OrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	vs := make([]Sparse, 40)
	for i := range vs {
		vs[i] = Normalize(randomSparse(rng, 15, 60))
	}

	finalize := func(order []int) Sparse {
		acc := NewAccumulator()
		for _, i := range order {
			acc.Add(vs[i])
		}
		return acc.Finalize()
	}

	base := make([]int, len(vs))
	for i := range base {
		base[i] = i
	}
	want := finalize(base)
	for p := 0; p < 10; p++ {
		perm := rng.Perm(len(vs))
		assert.True(t, ApproxEqual(want, finalize(perm), 1e-12))
	}
}
