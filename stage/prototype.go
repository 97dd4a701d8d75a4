package stage

import (
	"github.com/hupe1980/kmeansmr/internal/queue"
)

// Prototype is a cluster member ranked by its similarity to the centroid.
type Prototype struct {
	ID         string
	Similarity float64
}

// PrototypeSet retains the most similar members of a cluster. Once full, a
// new member replaces the least similar one only if it scores higher.
type PrototypeSet struct {
	q *queue.TopK
}

// NewPrototypeSet returns a set holding at most capacity prototypes.
func NewPrototypeSet(capacity int) *PrototypeSet {
	return &PrototypeSet{q: queue.NewTopK(capacity)}
}

// Add offers p and reports whether it was retained.
func (s *PrototypeSet) Add(p Prototype) bool {
	return s.q.Push(queue.Item{ID: p.ID, Score: p.Similarity})
}

// Len returns the number of retained prototypes.
func (s *PrototypeSet) Len() int { return s.q.Len() }

// Sorted returns the retained prototypes by descending similarity.
func (s *PrototypeSet) Sorted() []Prototype {
	items := s.q.Sorted()
	out := make([]Prototype, len(items))
	for i, it := range items {
		out[i] = Prototype{ID: it.ID, Similarity: it.Score}
	}
	return out
}
