package vector

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomSparse(rng *rand.Rand, maxLen int, maxIndex uint64) Sparse {
	n := 1 + rng.Intn(maxLen)
	es := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		es = append(es, Entry{Index: uint64(rng.Int63n(int64(maxIndex))), Value: rng.Float64() + 0.01})
	}
	return FromEntries(es)
}

func TestFromEntries(t *testing.T) {
	v := FromEntries([]Entry{
		{Index: 9, Value: 1},
		{Index: 2, Value: 0.5},
		{Index: 4, Value: 0},
		{Index: 2, Value: 0.75},
	})

	require.Equal(t, 2, v.Len())
	assert.Equal(t, []Entry{{Index: 2, Value: 0.75}, {Index: 9, Value: 1}}, v.Entries())
	assert.Equal(t, 0.0, v.Get(4))
	assert.Equal(t, 0.75, v.Get(2))
	assert.Equal(t, 0.0, v.Get(100))
}

func TestFromMap(t *testing.T) {
	v := FromMap(map[uint64]float64{3: 1, 1: 2, 7: 0})
	assert.Equal(t, []Entry{{Index: 1, Value: 2}, {Index: 3, Value: 1}}, v.Entries())
	assert.True(t, FromMap(nil).IsEmpty())
}

func TestClone_Independent(t *testing.T) {
	v := MustParse("1:1 2:2")
	c := v.Clone()
	c.entries[0].Value = 42

	assert.Equal(t, 1.0, v.Get(1))
	assert.False(t, Equal(v, c))
}

func TestApproxEqual(t *testing.T) {
	a := MustParse("1:0.5 2:0.5")
	b := MustParse("1:0.5000001 2:0.4999999")
	assert.True(t, ApproxEqual(a, b, 1e-6))
	assert.False(t, ApproxEqual(a, MustParse("1:0.5"), 1e-6))
}
