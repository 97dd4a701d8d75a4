package centroid

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/kmeansmr/blobstore"
	"github.com/hupe1980/kmeansmr/codec"
	"github.com/hupe1980/kmeansmr/internal/compress"
	"github.com/hupe1980/kmeansmr/internal/hash"
	"github.com/hupe1980/kmeansmr/vector"
	"golang.org/x/sync/errgroup"
)

const (
	currentName    = "CURRENT"
	manifestPrefix = "MANIFEST-"
	manifestFormat = "MANIFEST-%06d.json"
	centroidFormat = "rounds/%06d/centroid-%05d"
	formatVersion  = 1
)

// ErrCorrupt is returned when a centroid blob does not match its manifest.
var ErrCorrupt = errors.New("centroid: corrupt blob")

type manifest struct {
	FormatVersion int             `json:"format_version"`
	Codec         string          `json:"codec"`
	Round         uint64          `json:"round"`
	K             int             `json:"k"`
	CreatedAt     time.Time       `json:"created_at"`
	Compression   string          `json:"compression"`
	Centroids     []manifestEntry `json:"centroids"`
}

type manifestEntry struct {
	ID      int    `json:"id"`
	Path    string `json:"path"`
	Entries int    `json:"entries"`
	Size    int    `json:"size"`
	CRC32C  uint32 `json:"crc32c"`
}

// BlobStore keeps centroid rounds in a blobstore.Store.
//
// Layout under the prefix:
//
//	rounds/000003/centroid-00000   binary vector, compressed frame
//	MANIFEST-000003.json           round, k and per-centroid checksums
//	CURRENT                        name of the latest manifest
//
// Publish writes the centroid blobs and the manifest first and replaces
// CURRENT last, so Latest never points at a partially written round.
type BlobStore struct {
	store       blobstore.Store
	prefix      string
	codec       codec.Codec
	compression compress.Type
	concurrency int

	mu sync.Mutex
}

// BlobStoreOption configures a BlobStore.
type BlobStoreOption func(*BlobStore)

// WithCodec sets the manifest codec.
func WithCodec(c codec.Codec) BlobStoreOption {
	return func(s *BlobStore) {
		if c != nil {
			s.codec = c
		}
	}
}

// WithCompression sets the compression of centroid blobs.
func WithCompression(t compress.Type) BlobStoreOption {
	return func(s *BlobStore) { s.compression = t }
}

// WithConcurrency bounds parallel blob reads and writes.
func WithConcurrency(n int) BlobStoreOption {
	return func(s *BlobStore) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewBlobStore stores rounds under prefix in store.
func NewBlobStore(store blobstore.Store, prefix string, optFns ...BlobStoreOption) *BlobStore {
	s := &BlobStore{
		store:       store,
		prefix:      strings.Trim(prefix, "/"),
		codec:       codec.Default,
		compression: compress.ZSTD,
		concurrency: 8,
	}
	for _, fn := range optFns {
		fn(s)
	}
	return s
}

func (s *BlobStore) name(rel string) string {
	if s.prefix == "" {
		return rel
	}
	return s.prefix + "/" + rel
}

func (s *BlobStore) Publish(ctx context.Context, set Set) error {
	if err := set.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	manifestName := fmt.Sprintf(manifestFormat, set.Round)
	if _, err := blobstore.ReadAll(ctx, s.store, s.name(manifestName)); err == nil {
		return fmt.Errorf("%w: %d", ErrRoundExists, set.Round)
	} else if !errors.Is(err, blobstore.ErrNotFound) {
		return err
	}

	m := manifest{
		FormatVersion: formatVersion,
		Codec:         s.codec.Name(),
		Round:         set.Round,
		K:             set.K,
		CreatedAt:     time.Now().UTC(),
		Compression:   s.compression.String(),
		Centroids:     make([]manifestEntry, set.K),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, c := range set.Centroids {
		g.Go(func() error {
			frame, err := compress.Encode(c.Vector.AppendBinary(nil), s.compression)
			if err != nil {
				return err
			}
			path := fmt.Sprintf(centroidFormat, set.Round, c.ID)
			if err := s.store.Put(gctx, s.name(path), frame); err != nil {
				return fmt.Errorf("write centroid %d: %w", c.ID, err)
			}
			m.Centroids[c.ID] = manifestEntry{
				ID:      c.ID,
				Path:    path,
				Entries: c.Vector.Len(),
				Size:    len(frame),
				CRC32C:  hash.CRC32C(frame),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	data, err := s.codec.Marshal(m)
	if err != nil {
		return err
	}
	if err := s.store.Put(ctx, s.name(manifestName), data); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return s.store.Put(ctx, s.name(currentName), []byte(manifestName))
}

func (s *BlobStore) Load(ctx context.Context, round uint64) (Set, error) {
	m, err := s.readManifest(ctx, fmt.Sprintf(manifestFormat, round))
	if err != nil {
		return Set{}, err
	}

	centroids := make([]Centroid, len(m.Centroids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, e := range m.Centroids {
		g.Go(func() error {
			v, err := s.readCentroid(gctx, e)
			if err != nil {
				return err
			}
			centroids[i] = Centroid{ID: e.ID, Vector: v}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Set{}, err
	}

	return NewSet(m.Round, m.K, centroids)
}

func (s *BlobStore) Latest(ctx context.Context) (uint64, error) {
	data, err := blobstore.ReadAll(ctx, s.store, s.name(currentName))
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return 0, ErrRoundNotFound
		}
		return 0, err
	}
	return parseManifestName(strings.TrimSpace(string(data)))
}

// Rounds lists every published round in ascending order.
func (s *BlobStore) Rounds(ctx context.Context) ([]uint64, error) {
	names, err := s.store.List(ctx, s.name(manifestPrefix))
	if err != nil {
		return nil, err
	}
	rounds := make([]uint64, 0, len(names))
	for _, n := range names {
		if r, err := parseManifestName(n[strings.LastIndex(n, "/")+1:]); err == nil {
			rounds = append(rounds, r)
		}
	}
	slices.Sort(rounds)
	return rounds, nil
}

// Prune deletes all rounds older than before, except the latest round.
func (s *BlobStore) Prune(ctx context.Context, before uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest, err := s.Latest(ctx)
	if err != nil && !errors.Is(err, ErrRoundNotFound) {
		return err
	}
	rounds, err := s.Rounds(ctx)
	if err != nil {
		return err
	}
	for _, r := range rounds {
		if r >= before || r == latest {
			continue
		}
		// Manifest first, so a half-pruned round reads as not found.
		if err := s.store.Delete(ctx, s.name(fmt.Sprintf(manifestFormat, r))); err != nil {
			return err
		}
		if err := blobstore.DeletePrefix(ctx, s.store, s.name(fmt.Sprintf("rounds/%06d/", r))); err != nil {
			return err
		}
	}
	return nil
}

func (s *BlobStore) readManifest(ctx context.Context, name string) (manifest, error) {
	var m manifest
	data, err := blobstore.ReadAll(ctx, s.store, s.name(name))
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return m, fmt.Errorf("%w: %s", ErrRoundNotFound, name)
		}
		return m, err
	}
	if err := s.codec.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("%w: manifest %s: %v", ErrCorrupt, name, err)
	}
	if m.FormatVersion != formatVersion {
		return m, fmt.Errorf("%w: manifest %s has format version %d", ErrCorrupt, name, m.FormatVersion)
	}
	if _, ok := codec.ByName(m.Codec); !ok {
		return m, fmt.Errorf("%w: manifest %s written with unknown codec %q", ErrCorrupt, name, m.Codec)
	}
	return m, nil
}

func (s *BlobStore) readCentroid(ctx context.Context, e manifestEntry) (vector.Sparse, error) {
	frame, err := blobstore.ReadAll(ctx, s.store, s.name(e.Path))
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return vector.Sparse{}, fmt.Errorf("%w: %s missing", ErrCorrupt, e.Path)
		}
		return vector.Sparse{}, err
	}
	if len(frame) != e.Size || hash.CRC32C(frame) != e.CRC32C {
		return vector.Sparse{}, fmt.Errorf("%w: %s checksum mismatch", ErrCorrupt, e.Path)
	}
	raw, err := compress.Decode(frame)
	if err != nil {
		return vector.Sparse{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, e.Path, err)
	}
	v, n, err := vector.DecodeBinary(raw)
	if err != nil || n != len(raw) {
		return vector.Sparse{}, fmt.Errorf("%w: %s: bad vector encoding", ErrCorrupt, e.Path)
	}
	return v, nil
}

func parseManifestName(name string) (uint64, error) {
	digits, ok := strings.CutPrefix(name, manifestPrefix)
	if ok {
		digits, ok = strings.CutSuffix(digits, ".json")
	}
	round, err := strconv.ParseUint(digits, 10, 64)
	if !ok || err != nil {
		return 0, fmt.Errorf("%w: bad manifest name %q", ErrCorrupt, name)
	}
	return round, nil
}
