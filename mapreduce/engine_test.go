package mapreduce

import (
	"cmp"
	"context"
	"errors"
	"iter"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hupe1980/kmeansmr/blobstore"
	"github.com/hupe1980/kmeansmr/internal/compress"
	"github.com/hupe1980/kmeansmr/internal/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordMapper emits (word, 1) for every word of the value.
type wordMapper struct{}

func (wordMapper) Map(_ context.Context, _, value string, out Emitter[string, int]) error {
	for _, w := range strings.Fields(value) {
		if err := out.Emit(w, 1); err != nil {
			return err
		}
	}
	return nil
}

// sumReducer writes the sum per word and the group sizes to "sizes".
type sumReducer struct {
	cleanups *atomic.Int64
}

func (r sumReducer) Reduce(_ context.Context, key string, values iter.Seq2[string, int], out Output) error {
	sum := 0
	for _, v := range values {
		sum += v
	}
	if err := out.Write(key, strconv.Itoa(sum)); err != nil {
		return err
	}
	return out.WriteNamed("sizes", key, strconv.Itoa(sum))
}

func (r sumReducer) Cleanup(context.Context, Output) error {
	if r.cleanups != nil {
		r.cleanups.Add(1)
	}
	return nil
}

func firstLetterPartitioner(key string, n int) (int, error) {
	return int(key[0]) % n, nil
}

func wordCountJob(cleanups *atomic.Int64) Job[string, int] {
	return Job[string, int]{
		Name:        "wordcount",
		Inputs:      []string{"in/"},
		Output:      "out",
		NumReducers: 3,
		NewMapper:   func() Mapper[string, int] { return wordMapper{} },
		NewReducer:  func() Reducer[string, int] { return sumReducer{cleanups: cleanups} },
		Partitioner: PartitionerFunc[string](firstLetterPartitioner),
		Compare:     strings.Compare,
	}
}

func putInputs(t *testing.T, store blobstore.Store) {
	t.Helper()
	ctx := t.Context()
	require.NoError(t, store.Put(ctx, "in/a.txt", []byte("d1\tapple banana apple\nd2\tcherry\n\n")))
	require.NoError(t, store.Put(ctx, "in/b.txt", []byte("d3\tbanana apple\r\nd4\tdate\n")))
	require.NoError(t, store.Put(ctx, "in/_SUCCESS", []byte("ignored ignored")))
}

func readOutput(t *testing.T, store blobstore.Store, dir, file string) map[string]string {
	t.Helper()
	got := make(map[string]string)
	for rec, err := range ReadTextDir(t.Context(), store, dir, file) {
		require.NoError(t, err)
		got[rec.Key] = rec.Value
	}
	return got
}

func TestRun_WordCount(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts []EngineOption
	}{
		{name: "default"},
		{name: "tiny-spills", opts: []EngineOption{WithSpillBytes(8), WithCompression(compress.ZSTD)}},
		{name: "memory-limit", opts: []EngineOption{WithController(resource.NewController(resource.Config{MemoryLimitBytes: 64, MaxWorkers: 1}))}},
		{name: "uncompressed", opts: []EngineOption{WithCompression(compress.None)}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			store := blobstore.NewMemoryStore()
			putInputs(t, store)

			var cleanups atomic.Int64
			stats, err := Run(t.Context(), NewEngine(store, tc.opts...), wordCountJob(&cleanups))
			require.NoError(t, err)

			want := map[string]string{"apple": "3", "banana": "2", "cherry": "1", "date": "1"}
			assert.Equal(t, want, readOutput(t, store, "out", "part-"))
			assert.Equal(t, want, readOutput(t, store, "out", "sizes-"))

			assert.Equal(t, 2, stats.MapTasks)
			assert.Equal(t, int64(4), stats.MapInputRecords)
			assert.Equal(t, int64(7), stats.MapOutputRecords)
			assert.Equal(t, int64(7), stats.ReduceInputRecords)
			assert.Equal(t, int64(4), stats.ReduceGroups)
			assert.Equal(t, int64(8), stats.OutputRecords)
			assert.Equal(t, int64(3), cleanups.Load())

			// One main output per partition, even when empty.
			parts, err := store.List(t.Context(), "out/part-r-")
			require.NoError(t, err)
			assert.Len(t, parts, 3)

			_, err = store.Open(t.Context(), "out/"+SuccessMarker)
			require.NoError(t, err)

			scratch, err := store.List(t.Context(), DefaultScratchPrefix)
			require.NoError(t, err)
			assert.Empty(t, scratch)
		})
	}
}

func TestRun_SpillsWhenBufferFull(t *testing.T) {
	store := blobstore.NewMemoryStore()
	putInputs(t, store)

	stats, err := Run(t.Context(), NewEngine(store, WithSpillBytes(1)), wordCountJob(nil))
	require.NoError(t, err)
	assert.Greater(t, stats.Spills, int64(2))
	assert.Equal(t, int64(7), stats.SpilledRecords)
}

func TestRun_ClearsPreviousOutput(t *testing.T) {
	store := blobstore.NewMemoryStore()
	putInputs(t, store)
	require.NoError(t, store.Put(t.Context(), "out/stale-r-00009", []byte("x\t1\n")))

	_, err := Run(t.Context(), NewEngine(store), wordCountJob(nil))
	require.NoError(t, err)

	_, err = store.Open(t.Context(), "out/stale-r-00009")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

type groupKey struct {
	Group int    `msgpack:"g"`
	ID    string `msgpack:"id"`
}

func compareGroupKey(a, b groupKey) int {
	if c := cmp.Compare(a.Group, b.Group); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

type groupMapper struct{}

func (groupMapper) Map(_ context.Context, key, value string, out Emitter[groupKey, string]) error {
	g, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	return out.Emit(groupKey{Group: g, ID: key}, key)
}

// listReducer writes the member ids of each group in delivery order.
type listReducer struct{}

func (listReducer) Reduce(_ context.Context, key groupKey, values iter.Seq2[groupKey, string], out Output) error {
	var ids []string
	for k, v := range values {
		if k.ID != v {
			return errors.New("key and value disagree")
		}
		ids = append(ids, v)
	}
	return out.Write(strconv.Itoa(key.Group), strings.Join(ids, ","))
}

func TestRun_GroupingDeliversSortedMembers(t *testing.T) {
	store := blobstore.NewMemoryStore()
	ctx := t.Context()
	require.NoError(t, store.Put(ctx, "in/1", []byte("zeta\t0\nalpha\t1\nmike\t0\n")))
	require.NoError(t, store.Put(ctx, "in/2", []byte("bravo\t0\nyankee\t1\n")))

	job := Job[groupKey, string]{
		Name:        "group",
		Inputs:      []string{"in/"},
		Output:      "grouped",
		NumReducers: 2,
		NewMapper:   func() Mapper[groupKey, string] { return groupMapper{} },
		NewReducer:  func() Reducer[groupKey, string] { return listReducer{} },
		Partitioner: PartitionerFunc[groupKey](func(k groupKey, _ int) (int, error) { return k.Group, nil }),
		Compare:     compareGroupKey,
		Group:       func(a, b groupKey) bool { return a.Group == b.Group },
	}

	stats, err := Run(ctx, NewEngine(store, WithSpillBytes(16)), job)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.ReduceGroups)

	got := readOutput(t, store, "grouped", "part-")
	assert.Equal(t, map[string]string{"0": "bravo,mike,zeta", "1": "alpha,yankee"}, got)
}

// firstOnlyReducer consumes only the first value of each group.
type firstOnlyReducer struct{}

func (firstOnlyReducer) Reduce(_ context.Context, key string, values iter.Seq2[string, int], out Output) error {
	for k := range values {
		return out.Write(k, "seen")
	}
	return nil
}

func TestRun_PartiallyConsumedGroups(t *testing.T) {
	store := blobstore.NewMemoryStore()
	putInputs(t, store)

	job := wordCountJob(nil)
	job.NewReducer = func() Reducer[string, int] { return firstOnlyReducer{} }

	stats, err := Run(t.Context(), NewEngine(store), job)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.ReduceGroups)
	assert.Len(t, readOutput(t, store, "out", "part-"), 4)
}

type failingMapper struct{}

func (failingMapper) Map(_ context.Context, key, _ string, out Emitter[string, int]) error {
	if key == "d4" {
		return errors.New("bad record")
	}
	return out.Emit(key, 1)
}

func TestRun_MapErrorNamesInputLine(t *testing.T) {
	store := blobstore.NewMemoryStore()
	putInputs(t, store)

	job := wordCountJob(nil)
	job.NewMapper = func() Mapper[string, int] { return failingMapper{} }

	_, err := Run(t.Context(), NewEngine(store), job)
	var te *TaskError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, PhaseMap, te.Phase)
	assert.Equal(t, "in/b.txt", te.Input)
	assert.Equal(t, 2, te.Line)
	assert.Contains(t, err.Error(), "bad record")

	_, err = store.Open(t.Context(), "out/"+SuccessMarker)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestRun_PartitionOutOfRange(t *testing.T) {
	store := blobstore.NewMemoryStore()
	putInputs(t, store)

	job := wordCountJob(nil)
	job.Partitioner = PartitionerFunc[string](func(string, int) (int, error) { return 7, nil })

	_, err := Run(t.Context(), NewEngine(store), job)
	var te *TaskError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, err.Error(), "partition 7")
}

type failingReducer struct{}

func (failingReducer) Reduce(context.Context, string, iter.Seq2[string, int], Output) error {
	return errors.New("reduce failed")
}

func TestRun_ReduceErrorAbortsOutput(t *testing.T) {
	store := blobstore.NewMemoryStore()
	putInputs(t, store)

	job := wordCountJob(nil)
	job.NumReducers = 1
	job.NewReducer = func() Reducer[string, int] { return failingReducer{} }

	_, err := Run(t.Context(), NewEngine(store), job)
	var te *TaskError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, PhaseReduce, te.Phase)

	names, err := store.List(t.Context(), "out/")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestRun_InvalidJobs(t *testing.T) {
	store := blobstore.NewMemoryStore()
	e := NewEngine(store)

	job := wordCountJob(nil)
	job.NumReducers = 0
	_, err := Run(t.Context(), e, job)
	assert.ErrorIs(t, err, ErrInvalidJob)

	_, err = Run(t.Context(), e, wordCountJob(nil))
	assert.ErrorIs(t, err, ErrNoInput)
}

func TestRun_Canceled(t *testing.T) {
	store := blobstore.NewMemoryStore()
	putInputs(t, store)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := Run(ctx, NewEngine(store), wordCountJob(nil))
	assert.ErrorIs(t, err, context.Canceled)
}
