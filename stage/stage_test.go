package stage

import (
	"errors"
	"iter"
	"testing"

	"github.com/hupe1980/kmeansmr/blobstore"
	"github.com/hupe1980/kmeansmr/centroid"
	"github.com/hupe1980/kmeansmr/clusterkey"
	"github.com/hupe1980/kmeansmr/distance"
	"github.com/hupe1980/kmeansmr/mapreduce"
	"github.com/hupe1980/kmeansmr/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emitted[K any] struct {
	key   K
	value vector.Sparse
}

type captureEmitter[K any] struct {
	records []emitted[K]
}

func (e *captureEmitter[K]) Emit(key K, value vector.Sparse) error {
	e.records = append(e.records, emitted[K]{key: key, value: value})
	return nil
}

type line struct{ key, value string }

type captureOutput struct {
	main  []line
	named map[string][]line
}

func newCaptureOutput() *captureOutput {
	return &captureOutput{named: make(map[string][]line)}
}

func (o *captureOutput) Write(key, value string) error {
	o.main = append(o.main, line{key, value})
	return nil
}

func (o *captureOutput) WriteNamed(name, key, value string) error {
	o.named[name] = append(o.named[name], line{key, value})
	return nil
}

func seq[K any](keys []K, values []vector.Sparse) iter.Seq2[K, vector.Sparse] {
	return func(yield func(K, vector.Sparse) bool) {
		for i := range keys {
			if !yield(keys[i], values[i]) {
				return
			}
		}
	}
}

func publish(t *testing.T, store centroid.Store, round uint64, vectors ...string) {
	t.Helper()
	cs := make([]centroid.Centroid, len(vectors))
	for i, text := range vectors {
		cs[i] = centroid.Centroid{ID: i, Vector: vector.MustParse(text)}
	}
	set, err := centroid.NewSet(round, len(vectors), cs)
	require.NoError(t, err)
	require.NoError(t, store.Publish(t.Context(), set))
}

func newCentroidStore() centroid.Store {
	return centroid.NewBlobStore(blobstore.NewMemoryStore(), "centroids")
}

func TestNormalizer_Map(t *testing.T) {
	var counters NormalizeCounters
	n := NewNormalizer(&counters)
	out := &captureEmitter[string]{}

	require.NoError(t, n.Map(t.Context(), "doc", "1:2.0 2:2.0", out))
	require.Len(t, out.records, 1)
	assert.Equal(t, "doc", out.records[0].key)
	assert.Equal(t, "1:0.5 2:0.5", out.records[0].value.String())

	require.NoError(t, n.Map(t.Context(), "zero", "1:1 2:-1", out))
	assert.Equal(t, int64(1), counters.Degenerate.Load())
	assert.Equal(t, "1:1 2:-1", out.records[1].value.String())

	err := n.Map(t.Context(), "bad", "1-2", out)
	var perr *vector.ParseError
	require.ErrorAs(t, err, &perr)
}

func TestNormalizeReducer_SeedsFirstKey(t *testing.T) {
	var counters NormalizeCounters
	r := NewNormalizeReducer(&counters)
	require.NoError(t, r.Setup(t.Context(), mapreduce.TaskInfo{Task: 3, Partitions: 4}))

	out := newCaptureOutput()
	a := vector.MustParse("1:1")
	b := vector.MustParse("2:1")
	require.NoError(t, r.Reduce(t.Context(), "alpha", seq([]string{"alpha", "alpha"}, []vector.Sparse{a, b}), out))
	require.NoError(t, r.Reduce(t.Context(), "beta", seq([]string{"beta"}, []vector.Sparse{b}), out))

	assert.Equal(t, []line{{"alpha", "1:1"}, {"beta", "2:1"}}, out.main)
	assert.Equal(t, []line{{"3", "1:1"}}, out.named[OutputCentroid])
	assert.Equal(t, int64(1), counters.Duplicates.Load())
}

func TestAssigner_Assign(t *testing.T) {
	store := newCentroidStore()
	publish(t, store, 0, "1:1", "2:1")

	a := NewAssigner(store, 0, 2, distance.MetricCosine)
	require.NoError(t, a.Setup(t.Context(), mapreduce.TaskInfo{}))

	cluster, score, err := a.Assign(vector.MustParse("1:0.8 2:0.2"))
	require.NoError(t, err)
	assert.Equal(t, 0, cluster)
	assert.InDelta(t, 0.8, score, 1e-12)

	cluster, _, err = a.Assign(vector.MustParse("1:0.2 2:0.8"))
	require.NoError(t, err)
	assert.Equal(t, 1, cluster)

	out := &captureEmitter[clusterkey.Key]{}
	require.NoError(t, a.Map(t.Context(), "doc", "2:3", out))
	assert.Equal(t, clusterkey.New(1, "doc"), out.records[0].key)
}

func TestAssigner_TiesPickLowestIndex(t *testing.T) {
	for _, m := range []distance.Metric{distance.MetricCosine, distance.MetricEuclidean} {
		t.Run(m.String(), func(t *testing.T) {
			a := NewAssigner(nil, 0, 0, m)
			require.NoError(t, a.Load([]vector.Sparse{
				vector.MustParse("1:1"),
				vector.MustParse("2:1"),
				vector.MustParse("1:1"),
			}))
			cluster, _, err := a.Assign(vector.MustParse("1:0.5 2:0.5"))
			require.NoError(t, err)
			assert.Equal(t, 0, cluster)

			cluster, _, err = a.Assign(vector.MustParse("3:1"))
			require.NoError(t, err)
			assert.Equal(t, 0, cluster)
		})
	}
}

func TestAssigner_Euclidean(t *testing.T) {
	a := NewAssigner(nil, 0, 0, distance.MetricEuclidean)
	require.NoError(t, a.Load([]vector.Sparse{
		vector.MustParse("1:10"),
		vector.MustParse("1:1"),
	}))
	cluster, dist, err := a.Assign(vector.MustParse("1:2"))
	require.NoError(t, err)
	assert.Equal(t, 1, cluster)
	assert.InDelta(t, 1.0, dist, 1e-12)
}

func TestAssigner_SetupFailures(t *testing.T) {
	t.Run("round not published", func(t *testing.T) {
		a := NewAssigner(newCentroidStore(), 4, 2, distance.MetricCosine)
		err := a.Setup(t.Context(), mapreduce.TaskInfo{})
		require.ErrorIs(t, err, centroid.ErrRoundNotFound)
	})

	t.Run("fewer centroids than k", func(t *testing.T) {
		store := newCentroidStore()
		publish(t, store, 0, "1:1", "2:1")
		a := NewAssigner(store, 0, 4, distance.MetricCosine)
		err := a.Setup(t.Context(), mapreduce.TaskInfo{})
		var missing *centroid.MissingError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, []int{2, 3}, missing.Missing)
	})

	t.Run("assign before setup", func(t *testing.T) {
		a := NewAssigner(nil, 0, 2, distance.MetricCosine)
		_, _, err := a.Assign(vector.MustParse("1:1"))
		require.ErrorIs(t, err, ErrNotReady)
	})
}

func aggregatorFor(t *testing.T, store centroid.Store, cluster, k int, policy AggregationPolicy, mode Mode) *Aggregator {
	t.Helper()
	a := NewAggregator(AggregatorConfig{Store: store, Round: 0, K: k, Policy: policy, Mode: mode})
	require.NoError(t, a.Setup(t.Context(), mapreduce.TaskInfo{Task: cluster, Partitions: k}))
	return a
}

func TestAggregator_RefineMean(t *testing.T) {
	store := newCentroidStore()
	publish(t, store, 0, "1:1", "2:1")

	for _, policy := range []AggregationPolicy{PrunedMean, PlainMean} {
		t.Run(policy.String(), func(t *testing.T) {
			a := aggregatorFor(t, store, 0, 2, policy, Refine)
			keys := []clusterkey.Key{clusterkey.New(0, "a"), clusterkey.New(0, "b")}
			vals := []vector.Sparse{vector.MustParse("1:1"), vector.MustParse("1:3")}

			out := newCaptureOutput()
			require.NoError(t, a.Reduce(t.Context(), keys[0], seq(keys, vals), out))
			require.NoError(t, a.Cleanup(t.Context(), out))
			assert.Equal(t, []line{{"0", "1:2"}}, out.main)
		})
	}
}

func TestAggregator_PolicyPruning(t *testing.T) {
	store := newCentroidStore()
	publish(t, store, 0, "1:1")

	keys := []clusterkey.Key{clusterkey.New(0, "a"), clusterkey.New(0, "b")}
	vals := []vector.Sparse{vector.MustParse("1:1 2:0.000001"), vector.MustParse("1:1")}

	pruned := newCaptureOutput()
	a := aggregatorFor(t, store, 0, 1, PrunedMean, Refine)
	require.NoError(t, a.Reduce(t.Context(), keys[0], seq(keys, vals), pruned))
	assert.Equal(t, "1:1", pruned.main[0].value)

	plain := newCaptureOutput()
	a = aggregatorFor(t, store, 0, 1, PlainMean, Refine)
	require.NoError(t, a.Reduce(t.Context(), keys[0], seq(keys, vals), plain))
	assert.Equal(t, "1:1 2:5e-07", plain.main[0].value)
}

func TestAggregator_EmptyClusterKeepsPreviousCentroid(t *testing.T) {
	store := newCentroidStore()
	publish(t, store, 0, "1:1", "2:0.5 3:0.5")

	a := aggregatorFor(t, store, 1, 2, PrunedMean, Refine)
	out := newCaptureOutput()
	require.NoError(t, a.Cleanup(t.Context(), out))
	assert.Equal(t, []line{{"1", "2:0.5 3:0.5"}}, out.main)
}

func TestAggregator_WrongPartition(t *testing.T) {
	store := newCentroidStore()
	publish(t, store, 0, "1:1", "2:1")

	a := aggregatorFor(t, store, 0, 2, PrunedMean, Refine)
	key := clusterkey.New(1, "a")
	err := a.Reduce(t.Context(), key, seq([]clusterkey.Key{key}, []vector.Sparse{vector.MustParse("1:1")}), newCaptureOutput())
	require.Error(t, err)

	a = NewAggregator(AggregatorConfig{Store: store, K: 2})
	require.Error(t, a.Setup(t.Context(), mapreduce.TaskInfo{Task: 0, Partitions: 3}))
}

func TestAggregator_Terminal(t *testing.T) {
	store := newCentroidStore()
	publish(t, store, 0, "1:1", "2:1")

	keys := []clusterkey.Key{
		clusterkey.New(0, "a"),
		clusterkey.New(0, "b"),
		clusterkey.New(0, "c"),
	}
	vals := []vector.Sparse{
		vector.MustParse("1:0.9 2:0.1"),
		vector.MustParse("1:0.3 2:0.7"),
		vector.MustParse("1:0.7 2:0.3"),
	}

	a := aggregatorFor(t, store, 0, 2, PrunedMean, Terminal)
	out := newCaptureOutput()
	require.NoError(t, a.Reduce(t.Context(), keys[0], seq(keys, vals), out))
	require.NoError(t, a.Cleanup(t.Context(), out))

	assert.Equal(t, []line{{"0", "a"}, {"0", "b"}, {"0", "c"}}, out.main)
	assert.Equal(t, []line{{"0", "1:1"}}, out.named[OutputCentroid])
	assert.Equal(t, []line{{"0", "a"}, {"0", "c"}}, out.named[OutputPrototype])
	require.Len(t, out.named[OutputStats], 1)
	assert.Contains(t, out.named[OutputStats][0].value, "members=3")
}

func TestAggregator_TerminalEmptyCluster(t *testing.T) {
	store := newCentroidStore()
	publish(t, store, 0, "1:1", "2:1")

	a := aggregatorFor(t, store, 1, 2, PrunedMean, Terminal)
	out := newCaptureOutput()
	require.NoError(t, a.Cleanup(t.Context(), out))

	assert.Empty(t, out.main)
	assert.Equal(t, []line{{"1", "2:1"}}, out.named[OutputCentroid])
	assert.Equal(t, []line{{"1", "members=0 mean=0 stddev=0 min=0 max=0"}}, out.named[OutputStats])
}

func TestPrototypeSet(t *testing.T) {
	s := NewPrototypeSet(2)
	s.Add(Prototype{ID: "a", Similarity: 0.9})
	s.Add(Prototype{ID: "b", Similarity: 0.3})
	s.Add(Prototype{ID: "c", Similarity: 0.7})

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []Prototype{{ID: "a", Similarity: 0.9}, {ID: "c", Similarity: 0.7}}, s.Sorted())
	assert.False(t, s.Add(Prototype{ID: "d", Similarity: 0.1}))
}

func TestSummarize(t *testing.T) {
	s := summarize(2, []float64{0.5, 1.0, 1.5})
	assert.Equal(t, 2, s.Cluster)
	assert.Equal(t, 3, s.Members)
	assert.InDelta(t, 1.0, s.MeanSimilarity, 1e-12)
	assert.InDelta(t, 0.5, s.StdDev, 1e-12)
	assert.Equal(t, 0.5, s.MinSimilarity)
	assert.Equal(t, 1.5, s.MaxSimilarity)

	one := summarize(0, []float64{0.25})
	assert.Equal(t, 0.0, one.StdDev)
}

func TestParseAggregationPolicy(t *testing.T) {
	p, err := ParseAggregationPolicy("Plain")
	require.NoError(t, err)
	assert.Equal(t, PlainMean, p)

	p, err = ParseAggregationPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PrunedMean, p)

	_, err = ParseAggregationPolicy("median")
	require.Error(t, err)
}

func TestCollectCentroids(t *testing.T) {
	ctx := t.Context()
	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "norm/centroid-r-00000", []byte("1\t2:1\n")))
	require.NoError(t, store.Put(ctx, "norm/centroid-r-00001", []byte("0\t1:1\n")))
	require.NoError(t, store.Put(ctx, "norm/part-r-00000", []byte("x\t9:1\n")))

	set, err := CollectCentroids(ctx, store, "norm", OutputCentroid+"-", 0, 2)
	require.NoError(t, err)
	assert.Equal(t, "1:1", set.Centroids[0].Vector.String())
	assert.Equal(t, "2:1", set.Centroids[1].Vector.String())

	_, err = CollectCentroids(ctx, store, "norm", OutputCentroid+"-", 0, 3)
	var missing *centroid.MissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []int{2}, missing.Missing)

	require.NoError(t, store.Put(ctx, "bad/centroid-r-00000", []byte("zero\t1:1\n")))
	_, err = CollectCentroids(ctx, store, "bad", OutputCentroid+"-", 0, 1)
	require.Error(t, err)
}

func TestJobs_EndToEnd(t *testing.T) {
	ctx := t.Context()
	blobs := blobstore.NewMemoryStore()
	require.NoError(t, blobs.Put(ctx, "in/docs", []byte(
		"a\t1:4 2:1\n"+
			"b\t1:3 2:1\n"+
			"c\t3:2 4:2\n"+
			"d\t3:1 4:3\n",
	)))
	engine := mapreduce.NewEngine(blobs)

	var counters NormalizeCounters
	stats, err := mapreduce.Run(ctx, engine, NormalizeJob(NormalizeJobConfig{
		Inputs:   []string{"in/"},
		Output:   "norm",
		K:        1,
		Counters: &counters,
	}))
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.OutputRecords)

	centroids := newCentroidStore()
	publish(t, centroids, 0, "1:1", "3:1")

	for _, mode := range []Mode{Refine, Terminal} {
		_, err = mapreduce.Run(ctx, engine, ClusterJob(ClusterJobConfig{
			Name:   "cluster-" + mode.String(),
			Inputs: []string{"norm/part-"},
			Output: mode.String(),
			Store:  centroids,
			Round:  0,
			K:      2,
			Metric: distance.MetricCosine,
			Mode:   mode,
		}))
		require.NoError(t, err)
	}

	set, err := CollectCentroids(ctx, blobs, "refine", "part-", 1, 2)
	require.NoError(t, err)
	assert.True(t, vector.ApproxEqual(vector.MustParse("1:0.775 2:0.225"), set.Centroids[0].Vector, 1e-12))
	assert.True(t, vector.ApproxEqual(vector.MustParse("3:0.375 4:0.625"), set.Centroids[1].Vector, 1e-12))

	members := map[string]string{}
	for rec, err := range mapreduce.ReadTextDir(ctx, blobs, "terminal", "part-") {
		require.NoError(t, err)
		members[rec.Value] = rec.Key
	}
	assert.Equal(t, map[string]string{"a": "0", "b": "0", "c": "1", "d": "1"}, members)

	var protos []string
	for rec, err := range mapreduce.ReadTextDir(ctx, blobs, "terminal", OutputPrototype+"-") {
		require.NoError(t, err)
		protos = append(protos, rec.Key+":"+rec.Value)
	}
	assert.Equal(t, []string{"0:a", "0:b", "1:c", "1:d"}, protos)
}

func TestJobs_AssignFailsWithoutCentroids(t *testing.T) {
	ctx := t.Context()
	blobs := blobstore.NewMemoryStore()
	require.NoError(t, blobs.Put(ctx, "norm/part-r-00000", []byte("a\t1:1\n")))

	_, err := mapreduce.Run(ctx, mapreduce.NewEngine(blobs), ClusterJob(ClusterJobConfig{
		Name:   "cluster-0",
		Inputs: []string{"norm/part-"},
		Output: "means",
		Store:  newCentroidStore(),
		K:      2,
	}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, centroid.ErrRoundNotFound))

	var te *mapreduce.TaskError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, mapreduce.PhaseMap, te.Phase)
}
