package centroid

import (
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/kmeansmr/vector"
)

var (
	// ErrRoundNotFound is returned by Load for rounds that were never published
	// and by Latest when nothing was published yet.
	ErrRoundNotFound = errors.New("centroid: round not found")
	// ErrRoundExists is returned when a round is published twice.
	ErrRoundExists = errors.New("centroid: round already published")
	// ErrInvalidSet is returned for sets with out-of-range or duplicate ids.
	ErrInvalidSet = errors.New("centroid: invalid set")
)

// Centroid is the mean vector of one cluster.
type Centroid struct {
	ID     int
	Vector vector.Sparse
}

// Set is the complete centroid array of one round. After a successful
// Validate, Centroids[i].ID == i for every i in [0, K).
type Set struct {
	Round     uint64
	K         int
	Centroids []Centroid
}

// MissingError reports cluster ids without a centroid.
type MissingError struct {
	Round   uint64
	K       int
	Missing []int
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("centroid: round %d has %d of %d centroids, missing %v",
		e.Round, e.K-len(e.Missing), e.K, e.Missing)
}

// NewSet orders centroids by id and validates that every slot in [0, k) is
// populated exactly once.
func NewSet(round uint64, k int, centroids []Centroid) (Set, error) {
	s := Set{Round: round, K: k}
	if k <= 0 {
		return s, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidSet, k)
	}

	present := roaring.New()
	slots := make([]Centroid, k)
	for _, c := range centroids {
		if c.ID < 0 || c.ID >= k {
			return s, fmt.Errorf("%w: centroid id %d outside [0,%d)", ErrInvalidSet, c.ID, k)
		}
		if !present.CheckedAdd(uint32(c.ID)) {
			return s, fmt.Errorf("%w: duplicate centroid id %d", ErrInvalidSet, c.ID)
		}
		slots[c.ID] = c
	}

	if missing := missingSlots(present, k); len(missing) > 0 {
		return s, &MissingError{Round: round, K: k, Missing: missing}
	}
	s.Centroids = slots
	return s, nil
}

// Validate checks that the set has exactly K centroids in id order.
func (s Set) Validate() error {
	if s.K <= 0 {
		return fmt.Errorf("%w: k must be positive, got %d", ErrInvalidSet, s.K)
	}
	if len(s.Centroids) > s.K {
		return fmt.Errorf("%w: %d centroids for k=%d", ErrInvalidSet, len(s.Centroids), s.K)
	}
	present := roaring.New()
	for i, c := range s.Centroids {
		if c.ID != i {
			return fmt.Errorf("%w: slot %d holds centroid %d", ErrInvalidSet, i, c.ID)
		}
		present.Add(uint32(i))
	}
	if missing := missingSlots(present, s.K); len(missing) > 0 {
		return &MissingError{Round: s.Round, K: s.K, Missing: missing}
	}
	return nil
}

// Get returns the centroid vector of cluster id.
func (s Set) Get(id int) (vector.Sparse, error) {
	if id < 0 || id >= s.K || id >= len(s.Centroids) {
		return vector.Sparse{}, &MissingError{Round: s.Round, K: s.K, Missing: []int{id}}
	}
	return s.Centroids[id].Vector, nil
}

// Vectors returns the centroid vectors indexed by cluster id.
func (s Set) Vectors() []vector.Sparse {
	out := make([]vector.Sparse, len(s.Centroids))
	for i, c := range s.Centroids {
		out[i] = c.Vector
	}
	return out
}

func missingSlots(present *roaring.Bitmap, k int) []int {
	all := roaring.New()
	all.AddRange(0, uint64(k))
	all.AndNot(present)
	if all.IsEmpty() {
		return nil
	}
	missing := make([]int, 0, all.GetCardinality())
	it := all.Iterator()
	for it.HasNext() {
		missing = append(missing, int(it.Next()))
	}
	return missing
}
