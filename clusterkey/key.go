// Package clusterkey defines the shuffle key used between assignment and
// aggregation, and the partitioners that route keys to reduce tasks.
package clusterkey

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
)

// Key routes a vector to the reduce task owning its cluster.
// Keys are ordered by cluster id first, then lexicographically by ID.
type Key struct {
	Cluster int    `msgpack:"c"`
	ID      string `msgpack:"id"`
}

// New returns the key for document or term id assigned to cluster.
func New(cluster int, id string) Key {
	return Key{Cluster: cluster, ID: id}
}

// Compare orders a and b by cluster id, then by ID.
func Compare(a, b Key) int {
	if c := cmp.Compare(a.Cluster, b.Cluster); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// String formats the key as "id[cluster]".
func (k Key) String() string {
	return k.ID + "[" + strconv.Itoa(k.Cluster) + "]"
}

// ErrPartitionOutOfRange is returned when a key's cluster has no partition.
type ErrPartitionOutOfRange struct {
	Cluster       int
	NumPartitions int
}

func (e *ErrPartitionOutOfRange) Error() string {
	return fmt.Sprintf("cluster %d out of range for %d partitions", e.Cluster, e.NumPartitions)
}
