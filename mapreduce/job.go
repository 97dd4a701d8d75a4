package mapreduce

import (
	"context"
	"fmt"
	"iter"
)

// Emitter receives map output.
type Emitter[K, V any] interface {
	Emit(key K, value V) error
}

// Mapper turns one input record into zero or more intermediate records.
type Mapper[K, V any] interface {
	Map(ctx context.Context, key, value string, out Emitter[K, V]) error
}

// Reducer consumes one group of intermediate records. values yields every
// record of the group with its full key, in sort order.
type Reducer[K, V any] interface {
	Reduce(ctx context.Context, key K, values iter.Seq2[K, V], out Output) error
}

// Partitioner routes an intermediate key to a reduce partition in [0, n).
type Partitioner[K any] interface {
	Partition(key K, n int) (int, error)
}

// PartitionerFunc adapts a function to Partitioner.
type PartitionerFunc[K any] func(key K, n int) (int, error)

func (f PartitionerFunc[K]) Partition(key K, n int) (int, error) { return f(key, n) }

// Output writes reduce results as text lines.
type Output interface {
	// Write appends a record to the task's main output.
	Write(key, value string) error
	// WriteNamed appends a record to the named side output.
	WriteNamed(name, key, value string) error
}

// TaskInfo describes the task a Mapper or Reducer instance runs in.
type TaskInfo struct {
	JobID      string
	Job        string
	Task       int
	Partitions int
	// Input is the blob a map task reads; empty for reduce tasks.
	Input string
}

// TaskSetup is implemented by mappers and reducers that load state before
// their first record, such as a round's centroid snapshot.
type TaskSetup interface {
	Setup(ctx context.Context, task TaskInfo) error
}

// MapCleanup is implemented by mappers that emit after their last record.
type MapCleanup[K, V any] interface {
	Cleanup(ctx context.Context, out Emitter[K, V]) error
}

// ReduceCleanup is implemented by reducers that write after their last group.
// It runs even when the partition received no records.
type ReduceCleanup interface {
	Cleanup(ctx context.Context, out Output) error
}

// Job describes one map/reduce pass.
type Job[K, V any] struct {
	Name string
	// Inputs are blob name prefixes. Every blob under them whose base name
	// does not start with '_' or '.' becomes one map task.
	Inputs []string
	// Output is the directory prefix for reduce output. Existing content is
	// deleted before the job starts.
	Output      string
	NumReducers int

	NewMapper   func() Mapper[K, V]
	NewReducer  func() Reducer[K, V]
	Partitioner Partitioner[K]

	// Compare orders intermediate keys within a partition.
	Compare func(a, b K) int
	// Group reports whether two adjacent keys belong to the same Reduce
	// call. Nil groups keys that Compare reports equal.
	Group func(a, b K) bool
}

func (j *Job[K, V]) validate() error {
	switch {
	case j.Name == "":
		return fmt.Errorf("%w: job name is empty", ErrInvalidJob)
	case len(j.Inputs) == 0:
		return fmt.Errorf("%w: job %s has no inputs", ErrInvalidJob, j.Name)
	case j.Output == "":
		return fmt.Errorf("%w: job %s has no output", ErrInvalidJob, j.Name)
	case j.NumReducers <= 0:
		return fmt.Errorf("%w: job %s needs at least one reducer", ErrInvalidJob, j.Name)
	case j.NewMapper == nil || j.NewReducer == nil:
		return fmt.Errorf("%w: job %s needs a mapper and a reducer", ErrInvalidJob, j.Name)
	case j.Partitioner == nil || j.Compare == nil:
		return fmt.Errorf("%w: job %s needs a partitioner and a key order", ErrInvalidJob, j.Name)
	}
	return nil
}

func (j *Job[K, V]) sameGroup(a, b K) bool {
	if j.Group != nil {
		return j.Group(a, b)
	}
	return j.Compare(a, b) == 0
}

// Stats are the counters of a finished job.
type Stats struct {
	JobID              string
	MapTasks           int
	ReduceTasks        int
	MapInputRecords    int64
	MapOutputRecords   int64
	SpilledRecords     int64
	Spills             int64
	SpillBytes         int64
	ReduceGroups       int64
	ReduceInputRecords int64
	OutputRecords      int64
}
