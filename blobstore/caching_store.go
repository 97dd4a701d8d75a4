package blobstore

import (
	"bytes"
	"context"
	"io"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheEntries bounds a CachingStore created with size <= 0.
const DefaultCacheEntries = 256

// CachingStore is a read-through cache of whole blobs in front of another
// Store. Blobs larger than maxBlobBytes bypass the cache. Writes and deletes
// through the CachingStore invalidate the affected entry.
//
// Centroid rounds are read once per task; caching them keeps remote stores
// from serving the same blobs k times per round.
type CachingStore struct {
	inner        Store
	cache        *lru.Cache[string, []byte]
	maxBlobBytes int
	group        singleflight.Group
}

// NewCachingStore wraps inner with an LRU of up to size blobs.
func NewCachingStore(inner Store, size, maxBlobBytes int) (*CachingStore, error) {
	if size <= 0 {
		size = DefaultCacheEntries
	}
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &CachingStore{inner: inner, cache: c, maxBlobBytes: maxBlobBytes}, nil
}

func (s *CachingStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if data, ok := s.cache.Get(name); ok {
		return io.NopCloser(bytes.NewReader(data)), nil
	}

	v, err, _ := s.group.Do(name, func() (any, error) {
		data, err := ReadAll(ctx, s.inner, name)
		if err != nil {
			return nil, err
		}
		if s.maxBlobBytes <= 0 || len(data) <= s.maxBlobBytes {
			s.cache.Add(name, data)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(v.([]byte))), nil
}

func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	s.cache.Remove(name)
	return s.inner.Put(ctx, name, data)
}

func (s *CachingStore) Create(ctx context.Context, name string) (WritableBlob, error) {
	s.cache.Remove(name)
	w, err := s.inner.Create(ctx, name)
	if err != nil {
		return nil, err
	}
	return &invalidatingBlob{WritableBlob: w, name: name, cache: s.cache}, nil
}

func (s *CachingStore) Delete(ctx context.Context, name string) error {
	s.cache.Remove(name)
	return s.inner.Delete(ctx, name)
}

func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

// Len reports the number of cached blobs.
func (s *CachingStore) Len() int { return s.cache.Len() }

type invalidatingBlob struct {
	WritableBlob
	name  string
	cache *lru.Cache[string, []byte]
}

func (b *invalidatingBlob) Close() error {
	err := b.WritableBlob.Close()
	b.cache.Remove(b.name)
	return err
}
