package centroid

import "context"

// Store publishes and loads versioned centroid sets.
//
// Publish must make the whole set visible at once: a concurrent Load of the
// same round sees either ErrRoundNotFound or the complete set.
type Store interface {
	// Publish writes set as round set.Round. The set must validate.
	Publish(ctx context.Context, set Set) error
	// Load returns the set published for round.
	Load(ctx context.Context, round uint64) (Set, error)
	// Latest returns the most recently published round.
	Latest(ctx context.Context) (uint64, error)
}
