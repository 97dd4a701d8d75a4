package centroid

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedStore keeps recently loaded rounds decoded in memory. Rounds are
// immutable once published, so entries never go stale.
type CachedStore struct {
	inner Store
	cache *lru.Cache[uint64, Set]
}

// NewCachedStore caches up to size rounds of inner.
func NewCachedStore(inner Store, size int) (*CachedStore, error) {
	if size <= 0 {
		size = 4
	}
	c, err := lru.New[uint64, Set](size)
	if err != nil {
		return nil, err
	}
	return &CachedStore{inner: inner, cache: c}, nil
}

func (s *CachedStore) Publish(ctx context.Context, set Set) error {
	if err := s.inner.Publish(ctx, set); err != nil {
		return err
	}
	s.cache.Add(set.Round, set)
	return nil
}

func (s *CachedStore) Load(ctx context.Context, round uint64) (Set, error) {
	if set, ok := s.cache.Get(round); ok {
		return set, nil
	}
	set, err := s.inner.Load(ctx, round)
	if err != nil {
		return Set{}, err
	}
	s.cache.Add(round, set)
	return set, nil
}

func (s *CachedStore) Latest(ctx context.Context) (uint64, error) {
	return s.inner.Latest(ctx)
}

// Cached reports whether round is held in memory.
func (s *CachedStore) Cached(round uint64) bool {
	return s.cache.Contains(round)
}
