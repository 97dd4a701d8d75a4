package clusterkey

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	keys := []Key{
		New(1, "alpha"),
		New(0, "zulu"),
		New(1, "Bravo"),
		New(0, "alpha"),
	}
	slices.SortFunc(keys, Compare)

	assert.Equal(t, []Key{
		New(0, "alpha"),
		New(0, "zulu"),
		New(1, "Bravo"),
		New(1, "alpha"),
	}, keys)
	assert.Equal(t, 0, Compare(New(2, "x"), New(2, "x")))
	assert.Equal(t, "praha[3]", New(3, "praha").String())
}

func TestClusterPartitioner(t *testing.T) {
	var p ClusterPartitioner

	for _, id := range []string{"a", "b", "zzz"} {
		part, err := p.Partition(New(2, id), 4)
		require.NoError(t, err)
		assert.Equal(t, 2, part)
	}

	_, err := p.Partition(New(4, "a"), 4)
	var oor *ErrPartitionOutOfRange
	require.ErrorAs(t, err, &oor)
	assert.Equal(t, 4, oor.Cluster)

	_, err = p.Partition(New(-1, "a"), 4)
	assert.Error(t, err)
}

func TestHashPartitioner(t *testing.T) {
	var p HashPartitioner
	seen := make(map[int]int)
	for i := 0; i < 1000; i++ {
		id := string(rune('a'+i%26)) + string(rune('A'+i/26%26)) + string(rune('0'+i%10))
		part, err := p.Partition(id, 7)
		require.NoError(t, err)
		require.GreaterOrEqual(t, part, 0)
		require.Less(t, part, 7)

		again, _ := p.Partition(id, 7)
		assert.Equal(t, part, again)
		seen[part]++
	}
	assert.Len(t, seen, 7)
}
