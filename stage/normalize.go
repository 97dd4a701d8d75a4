package stage

import (
	"cmp"
	"context"
	"iter"
	"strconv"
	"sync/atomic"

	"github.com/hupe1980/kmeansmr/clusterkey"
	"github.com/hupe1980/kmeansmr/mapreduce"
	"github.com/hupe1980/kmeansmr/vector"
)

// Named outputs written next to a reduce task's main output.
const (
	OutputCentroid  = "centroid"
	OutputPrototype = "prototype"
	OutputStats     = "stats"
)

// NormalizeCounters are shared by all tasks of one normalize job.
type NormalizeCounters struct {
	// Degenerate counts vectors whose weights sum to zero. They pass through
	// unchanged.
	Degenerate atomic.Int64
	// Duplicates counts records dropped because their id was already seen.
	Duplicates atomic.Int64
}

// Normalizer parses vector text and scales it to unit L1 mass.
type Normalizer struct {
	counters *NormalizeCounters
}

// NewNormalizer returns a normalize mapper. counters may be nil.
func NewNormalizer(counters *NormalizeCounters) *Normalizer {
	return &Normalizer{counters: counters}
}

// Map emits (id, normalize(parse(text))). Malformed text fails the task with
// a *vector.ParseError.
func (n *Normalizer) Map(_ context.Context, id, text string, out mapreduce.Emitter[string, vector.Sparse]) error {
	v, err := vector.Parse(text)
	if err != nil {
		return err
	}
	norm, ok := vector.NormalizeChecked(v)
	if !ok && n.counters != nil {
		n.counters.Degenerate.Add(1)
	}
	return out.Emit(id, norm)
}

// NormalizeReducer writes every vector once and seeds one centroid per
// partition.
//
// The first id of the partition in sort order becomes the seed of the cluster
// whose id equals the partition index.
type NormalizeReducer struct {
	counters  *NormalizeCounters
	partition int
	seeded    bool
}

// NewNormalizeReducer returns a normalize reducer. counters may be nil.
func NewNormalizeReducer(counters *NormalizeCounters) *NormalizeReducer {
	return &NormalizeReducer{counters: counters}
}

// Setup records the partition index used as seed cluster id.
func (r *NormalizeReducer) Setup(_ context.Context, task mapreduce.TaskInfo) error {
	r.partition = task.Task
	r.seeded = false
	return nil
}

// Reduce writes the first vector of id. Later duplicates are dropped.
func (r *NormalizeReducer) Reduce(_ context.Context, id string, values iter.Seq2[string, vector.Sparse], out mapreduce.Output) error {
	first := true
	for _, v := range values {
		if !first {
			if r.counters != nil {
				r.counters.Duplicates.Add(1)
			}
			continue
		}
		first = false

		text := v.String()
		if err := out.Write(id, text); err != nil {
			return err
		}
		if !r.seeded {
			r.seeded = true
			if err := out.WriteNamed(OutputCentroid, strconv.Itoa(r.partition), text); err != nil {
				return err
			}
		}
	}
	return nil
}

// NormalizeJobConfig configures NormalizeJob.
type NormalizeJobConfig struct {
	Inputs []string
	Output string
	// K is the number of reduce partitions and therefore of seed centroids.
	K        int
	Counters *NormalizeCounters
}

// NormalizeJob returns the normalize job: hash-partitioned by id over K
// reducers.
func NormalizeJob(cfg NormalizeJobConfig) mapreduce.Job[string, vector.Sparse] {
	return mapreduce.Job[string, vector.Sparse]{
		Name:        "normalize",
		Inputs:      cfg.Inputs,
		Output:      cfg.Output,
		NumReducers: cfg.K,
		NewMapper: func() mapreduce.Mapper[string, vector.Sparse] {
			return NewNormalizer(cfg.Counters)
		},
		NewReducer: func() mapreduce.Reducer[string, vector.Sparse] {
			return NewNormalizeReducer(cfg.Counters)
		},
		Partitioner: clusterkey.HashPartitioner{},
		Compare:     cmp.Compare[string],
	}
}
