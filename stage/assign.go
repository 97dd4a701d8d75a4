package stage

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/kmeansmr/centroid"
	"github.com/hupe1980/kmeansmr/clusterkey"
	"github.com/hupe1980/kmeansmr/distance"
	"github.com/hupe1980/kmeansmr/mapreduce"
	"github.com/hupe1980/kmeansmr/vector"
)

// ErrNotReady is returned when an Assigner or Aggregator is used before Setup.
var ErrNotReady = errors.New("stage: centroids not loaded")

// Assigner maps each vector to the nearest centroid of one round.
type Assigner struct {
	store  centroid.Store
	round  uint64
	k      int
	metric distance.Metric

	score     distance.Func
	centroids []vector.Sparse
}

// NewAssigner returns an assignment mapper against round of store.
func NewAssigner(store centroid.Store, round uint64, k int, metric distance.Metric) *Assigner {
	return &Assigner{store: store, round: round, k: k, metric: metric}
}

// Setup loads the round's centroid snapshot. It fails with a
// *centroid.MissingError when fewer than k centroids exist.
func (a *Assigner) Setup(ctx context.Context, _ mapreduce.TaskInfo) error {
	score, err := distance.Provider(a.metric)
	if err != nil {
		return err
	}
	centroids, err := loadCentroids(ctx, a.store, a.round, a.k)
	if err != nil {
		return err
	}
	a.score = score
	a.centroids = centroids
	return nil
}

// Load installs centroids directly, bypassing the store.
func (a *Assigner) Load(centroids []vector.Sparse) error {
	score, err := distance.Provider(a.metric)
	if err != nil {
		return err
	}
	if len(centroids) == 0 {
		return fmt.Errorf("%w: empty centroid set", ErrNotReady)
	}
	a.score = score
	a.centroids = centroids
	a.k = len(centroids)
	return nil
}

// Assign returns the index of the closest centroid and its score.
// Ties resolve to the lowest index.
func (a *Assigner) Assign(v vector.Sparse) (int, float64, error) {
	if len(a.centroids) == 0 {
		return 0, 0, ErrNotReady
	}
	best, bestScore := 0, a.score(v, a.centroids[0])
	for i := 1; i < len(a.centroids); i++ {
		s := a.score(v, a.centroids[i])
		if a.metric.Better(s, bestScore) {
			best, bestScore = i, s
		}
	}
	return best, bestScore, nil
}

// Map parses text and emits it keyed by its cluster.
func (a *Assigner) Map(_ context.Context, id, text string, out mapreduce.Emitter[clusterkey.Key, vector.Sparse]) error {
	v, err := vector.Parse(text)
	if err != nil {
		return err
	}
	cluster, _, err := a.Assign(v)
	if err != nil {
		return err
	}
	return out.Emit(clusterkey.New(cluster, id), v)
}

// loadCentroids returns the k centroid vectors of round, ordered by id.
func loadCentroids(ctx context.Context, store centroid.Store, round uint64, k int) ([]vector.Sparse, error) {
	set, err := store.Load(ctx, round)
	if err != nil {
		return nil, err
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	switch {
	case set.K < k:
		return nil, &centroid.MissingError{Round: round, K: k, Missing: missingRange(set.K, k)}
	case set.K > k:
		return nil, fmt.Errorf("%w: round %d has %d centroids, want %d", centroid.ErrInvalidSet, round, set.K, k)
	}
	return set.Vectors(), nil
}

func missingRange(have, want int) []int {
	out := make([]int, 0, want-have)
	for i := have; i < want; i++ {
		out = append(out, i)
	}
	return out
}
