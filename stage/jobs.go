package stage

import (
	"github.com/hupe1980/kmeansmr/centroid"
	"github.com/hupe1980/kmeansmr/clusterkey"
	"github.com/hupe1980/kmeansmr/distance"
	"github.com/hupe1980/kmeansmr/mapreduce"
	"github.com/hupe1980/kmeansmr/vector"
)

// ClusterJobConfig configures ClusterJob.
type ClusterJobConfig struct {
	Name   string
	Inputs []string
	Output string
	Store  centroid.Store
	// Round is the centroid round vectors are assigned against.
	Round  uint64
	K      int
	Metric distance.Metric
	Policy AggregationPolicy
	Mode   Mode
}

// ClusterJob returns an assign/aggregate job with one reducer per cluster.
// Keys are grouped by cluster, so one Reduce call sees every member.
func ClusterJob(cfg ClusterJobConfig) mapreduce.Job[clusterkey.Key, vector.Sparse] {
	return mapreduce.Job[clusterkey.Key, vector.Sparse]{
		Name:        cfg.Name,
		Inputs:      cfg.Inputs,
		Output:      cfg.Output,
		NumReducers: cfg.K,
		NewMapper: func() mapreduce.Mapper[clusterkey.Key, vector.Sparse] {
			return NewAssigner(cfg.Store, cfg.Round, cfg.K, cfg.Metric)
		},
		NewReducer: func() mapreduce.Reducer[clusterkey.Key, vector.Sparse] {
			return NewAggregator(AggregatorConfig{
				Store:  cfg.Store,
				Round:  cfg.Round,
				K:      cfg.K,
				Policy: cfg.Policy,
				Mode:   cfg.Mode,
			})
		},
		Partitioner: clusterkey.ClusterPartitioner{},
		Compare:     clusterkey.Compare,
		Group: func(a, b clusterkey.Key) bool {
			return a.Cluster == b.Cluster
		},
	}
}
