package clusterkey

import (
	"github.com/cespare/xxhash/v2"
)

// ClusterPartitioner sends every key to the partition equal to its cluster id,
// so one reduce task sees all vectors of a cluster.
//
// Jobs using it must run with exactly k partitions.
type ClusterPartitioner struct{}

// Partition returns key.Cluster.
func (ClusterPartitioner) Partition(key Key, numPartitions int) (int, error) {
	if key.Cluster < 0 || key.Cluster >= numPartitions {
		return 0, &ErrPartitionOutOfRange{Cluster: key.Cluster, NumPartitions: numPartitions}
	}
	return key.Cluster, nil
}

// HashPartitioner spreads string keys over partitions by hash.
// It balances the normalize stage, where no cluster assignment exists yet.
type HashPartitioner struct{}

// Partition returns |hash(key)| mod numPartitions.
func (HashPartitioner) Partition(key string, numPartitions int) (int, error) {
	return HashPartition(key, numPartitions), nil
}

// HashPartition returns the partition of key among numPartitions (> 0).
func HashPartition(key string, numPartitions int) int {
	h := int64(xxhash.Sum64String(key))
	if h < 0 {
		h = -h
	}
	// -MinInt64 overflows back to itself.
	if h < 0 {
		h = 0
	}
	return int(h % int64(numPartitions))
}
