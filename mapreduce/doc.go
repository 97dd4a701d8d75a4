// Package mapreduce is a small in-process map/shuffle/reduce engine.
//
// A Job reads text blobs (one "key<TAB>value" record per line), runs one map
// task per input blob and one reduce task per partition, and writes
// "key<TAB>value" lines to <output>/part-r-NNNNN plus any named outputs
// (<output>/<name>-r-NNNNN).
//
// Map output is serialized with msgpack on Emit, buffered per partition,
// sorted and spilled as compressed runs into the job's scratch prefix of the
// blob store. Each reduce task merges its runs and calls Reduce once per group
// of consecutive keys that the job's Group function considers equal. The
// group's values are delivered contiguously, ordered by the job's Compare.
//
// Tasks run in parallel; the first failing task cancels the job. There is no
// task retry and no speculative execution.
package mapreduce
