package stage

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hupe1980/kmeansmr/blobstore"
	"github.com/hupe1980/kmeansmr/centroid"
	"github.com/hupe1980/kmeansmr/mapreduce"
	"github.com/hupe1980/kmeansmr/vector"
)

// CollectCentroids reads "cluster<TAB>vector" lines from the blobs under dir
// whose base name starts with filePrefix and assembles them into the set of
// round. Missing clusters fail with a *centroid.MissingError. A cluster
// written twice keeps the first vector.
func CollectCentroids(ctx context.Context, store blobstore.Store, dir, filePrefix string, round uint64, k int) (centroid.Set, error) {
	var (
		cs   []centroid.Centroid
		seen = make(map[int]struct{}, k)
	)
	for rec, err := range mapreduce.ReadTextDir(ctx, store, dir, filePrefix) {
		if err != nil {
			return centroid.Set{}, err
		}
		id, err := strconv.Atoi(rec.Key)
		if err != nil {
			return centroid.Set{}, fmt.Errorf("centroid line %d: invalid cluster id %q: %w", rec.Line, rec.Key, err)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		v, err := vector.ParseOrEmpty(rec.Value)
		if err != nil {
			return centroid.Set{}, fmt.Errorf("centroid %d: %w", id, err)
		}
		seen[id] = struct{}{}
		cs = append(cs, centroid.Centroid{ID: id, Vector: v})
	}
	return centroid.NewSet(round, k, cs)
}
