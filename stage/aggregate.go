package stage

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/hupe1980/kmeansmr/centroid"
	"github.com/hupe1980/kmeansmr/clusterkey"
	"github.com/hupe1980/kmeansmr/mapreduce"
	"github.com/hupe1980/kmeansmr/vector"
)

// AggregationPolicy selects how a cluster mean is finalized.
type AggregationPolicy int

const (
	// PrunedMean drops mean weights below vector.MinValueThreshold.
	PrunedMean AggregationPolicy = iota
	// PlainMean keeps every weight.
	PlainMean
)

func (p AggregationPolicy) String() string {
	switch p {
	case PrunedMean:
		return "pruned"
	case PlainMean:
		return "plain"
	default:
		return fmt.Sprintf("AggregationPolicy(%d)", int(p))
	}
}

// ParseAggregationPolicy parses "pruned" or "plain". Empty input selects
// PrunedMean.
func ParseAggregationPolicy(name string) (AggregationPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "pruned":
		return PrunedMean, nil
	case "plain":
		return PlainMean, nil
	default:
		return 0, fmt.Errorf("stage: unknown aggregation policy %q", name)
	}
}

// Mode selects what an Aggregator writes.
type Mode int

const (
	// Refine writes one recomputed centroid per cluster.
	Refine Mode = iota
	// Terminal writes membership, the final centroid, prototypes and stats.
	Terminal
)

func (m Mode) String() string {
	switch m {
	case Refine:
		return "refine"
	case Terminal:
		return "terminal"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ClusterStats summarizes how tightly members sit around their centroid.
type ClusterStats struct {
	Cluster        int
	Members        int
	MeanSimilarity float64
	StdDev         float64
	MinSimilarity  float64
	MaxSimilarity  float64
}

// String formats the stats as space-separated key=value pairs.
func (s ClusterStats) String() string {
	return fmt.Sprintf("members=%d mean=%s stddev=%s min=%s max=%s",
		s.Members,
		strconv.FormatFloat(s.MeanSimilarity, 'g', -1, 64),
		strconv.FormatFloat(s.StdDev, 'g', -1, 64),
		strconv.FormatFloat(s.MinSimilarity, 'g', -1, 64),
		strconv.FormatFloat(s.MaxSimilarity, 'g', -1, 64),
	)
}

func summarize(cluster int, sims []float64) ClusterStats {
	s := ClusterStats{Cluster: cluster, Members: len(sims)}
	if len(sims) == 0 {
		return s
	}
	s.MeanSimilarity = stat.Mean(sims, nil)
	if len(sims) > 1 {
		s.StdDev = stat.StdDev(sims, nil)
	}
	s.MinSimilarity = slices.Min(sims)
	s.MaxSimilarity = slices.Max(sims)
	return s
}

// Aggregator is the reducer of the cluster and final jobs. Each reduce task
// owns exactly one cluster, the one whose id equals the task index.
//
// Refine writes (cluster, mean) for the members of the round. A cluster that
// received no members keeps its previous centroid.
//
// Terminal never recomputes the centroid. It writes (cluster, id) for every
// member, the centroid to OutputCentroid, the k members most similar to the
// centroid to OutputPrototype and a ClusterStats line to OutputStats.
type Aggregator struct {
	store  centroid.Store
	round  uint64
	k      int
	policy AggregationPolicy
	mode   Mode

	cluster  int
	centroid vector.Sparse
	loaded   bool
	seen     bool
}

// AggregatorConfig configures NewAggregator.
type AggregatorConfig struct {
	Store centroid.Store
	// Round is the centroid round the members were assigned against.
	Round  uint64
	K      int
	Policy AggregationPolicy
	Mode   Mode
}

// NewAggregator returns an aggregation reducer.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	return &Aggregator{
		store:  cfg.Store,
		round:  cfg.Round,
		k:      cfg.K,
		policy: cfg.Policy,
		mode:   cfg.Mode,
	}
}

// Setup loads the current centroid of the task's cluster.
func (a *Aggregator) Setup(ctx context.Context, task mapreduce.TaskInfo) error {
	if task.Partitions != a.k {
		return fmt.Errorf("stage: aggregator needs %d partitions, got %d", a.k, task.Partitions)
	}
	centroids, err := loadCentroids(ctx, a.store, a.round, a.k)
	if err != nil {
		return err
	}
	a.cluster = task.Task
	a.centroid = centroids[task.Task]
	a.loaded = true
	a.seen = false
	return nil
}

// Reduce consumes every member of the task's cluster.
func (a *Aggregator) Reduce(ctx context.Context, key clusterkey.Key, members iter.Seq2[clusterkey.Key, vector.Sparse], out mapreduce.Output) error {
	if !a.loaded {
		return ErrNotReady
	}
	if key.Cluster != a.cluster {
		return fmt.Errorf("stage: cluster %d routed to partition %d", key.Cluster, a.cluster)
	}
	a.seen = true

	if a.mode == Terminal {
		return a.terminal(ctx, members, out)
	}
	return a.refine(members, out)
}

func (a *Aggregator) refine(members iter.Seq2[clusterkey.Key, vector.Sparse], out mapreduce.Output) error {
	acc := vector.NewAccumulator()
	for _, v := range members {
		acc.Add(v)
	}
	var mean vector.Sparse
	if a.policy == PlainMean {
		mean = acc.Mean()
	} else {
		mean = acc.Finalize()
	}
	return out.Write(strconv.Itoa(a.cluster), mean.String())
}

func (a *Aggregator) terminal(ctx context.Context, members iter.Seq2[clusterkey.Key, vector.Sparse], out mapreduce.Output) error {
	cluster := strconv.Itoa(a.cluster)
	if err := out.WriteNamed(OutputCentroid, cluster, a.centroid.String()); err != nil {
		return err
	}

	protos := NewPrototypeSet(a.k)
	var sims []float64
	for key, v := range members {
		if err := ctx.Err(); err != nil {
			return err
		}
		sim := vector.CosineSimilarity(a.centroid, v)
		protos.Add(Prototype{ID: key.ID, Similarity: sim})
		sims = append(sims, sim)
		if err := out.Write(cluster, key.ID); err != nil {
			return err
		}
	}

	for _, p := range protos.Sorted() {
		if err := out.WriteNamed(OutputPrototype, cluster, p.ID); err != nil {
			return err
		}
	}
	return out.WriteNamed(OutputStats, cluster, summarize(a.cluster, sims).String())
}

// Cleanup handles a cluster that received no members.
func (a *Aggregator) Cleanup(_ context.Context, out mapreduce.Output) error {
	if a.seen || !a.loaded {
		return nil
	}
	cluster := strconv.Itoa(a.cluster)
	if a.mode == Terminal {
		if err := out.WriteNamed(OutputCentroid, cluster, a.centroid.String()); err != nil {
			return err
		}
		return out.WriteNamed(OutputStats, cluster, summarize(a.cluster, nil).String())
	}
	return out.Write(cluster, a.centroid.String())
}
