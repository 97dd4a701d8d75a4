package centroid

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/hupe1980/kmeansmr/vector"
)

// BadgerOptions configures a BadgerStore.
type BadgerOptions struct {
	// Dir is the database directory. Ignored when InMemory is set.
	Dir string
	// InMemory keeps everything in RAM.
	InMemory bool
	// Logger receives Badger's internal logs. Nil silences them.
	Logger badger.Logger
}

// BadgerStore keeps centroid rounds in a Badger database.
//
// Keys:
//
//	r/<round:8>/k            cluster count, uvarint
//	r/<round:8>/c/<id:4>     binary vector
//	current                  latest round, 8 bytes
//
// Integers are big-endian so rounds and ids iterate in numeric order.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens or creates the database.
func OpenBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	bopts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts = bopts.WithLogger(opts.Logger)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerLogger routes Badger's logs to l. Badger's info messages are
// chatty, so they are logged at debug level.
func NewBadgerLogger(l *slog.Logger) badger.Logger {
	return badgerLogger{l: l.With("component", "badger")}
}

type badgerLogger struct {
	l *slog.Logger
}

func (b badgerLogger) Errorf(format string, args ...any) {
	b.l.Error(trimf(format, args))
}

func (b badgerLogger) Warningf(format string, args ...any) {
	b.l.Warn(trimf(format, args))
}

func (b badgerLogger) Infof(format string, args ...any) {
	b.l.Debug(trimf(format, args))
}

func (b badgerLogger) Debugf(format string, args ...any) {
	b.l.Debug(trimf(format, args))
}

func trimf(format string, args []any) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

var currentKey = []byte("current")

func roundPrefix(round uint64) []byte {
	b := make([]byte, 0, 11)
	b = append(b, 'r', '/')
	b = binary.BigEndian.AppendUint64(b, round)
	return append(b, '/')
}

func kKey(round uint64) []byte {
	return append(roundPrefix(round), 'k')
}

func centroidPrefix(round uint64) []byte {
	return append(roundPrefix(round), 'c', '/')
}

func centroidKey(round uint64, id int) []byte {
	return binary.BigEndian.AppendUint32(centroidPrefix(round), uint32(id))
}

// Publish writes the round and moves the current pointer in one transaction.
func (s *BadgerStore) Publish(ctx context.Context, set Set) error {
	if err := set.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(kKey(set.Round)); err == nil {
			return fmt.Errorf("%w: %d", ErrRoundExists, set.Round)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if err := txn.Set(kKey(set.Round), binary.AppendUvarint(nil, uint64(set.K))); err != nil {
			return err
		}
		for _, c := range set.Centroids {
			if err := txn.Set(centroidKey(set.Round, c.ID), c.Vector.AppendBinary(nil)); err != nil {
				return err
			}
		}
		return txn.Set(currentKey, binary.BigEndian.AppendUint64(nil, set.Round))
	})
	if errors.Is(err, badger.ErrTxnTooBig) {
		return fmt.Errorf("publish round %d: centroid set exceeds one transaction: %w", set.Round, err)
	}
	return err
}

func (s *BadgerStore) Load(ctx context.Context, round uint64) (Set, error) {
	if err := ctx.Err(); err != nil {
		return Set{}, err
	}

	var (
		k         int
		centroids []Centroid
	)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(kKey(round))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %d", ErrRoundNotFound, round)
		}
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			n, sz := binary.Uvarint(val)
			if sz <= 0 {
				return fmt.Errorf("%w: round %d cluster count", ErrCorrupt, round)
			}
			k = int(n)
			return nil
		}); err != nil {
			return err
		}

		prefix := centroidPrefix(round)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.Key()
			id := int(binary.BigEndian.Uint32(key[len(prefix):]))
			err := item.Value(func(val []byte) error {
				v, n, err := vector.DecodeBinary(val)
				if err != nil || n != len(val) {
					return fmt.Errorf("%w: round %d centroid %d", ErrCorrupt, round, id)
				}
				centroids = append(centroids, Centroid{ID: id, Vector: v})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Set{}, err
	}
	return NewSet(round, k, centroids)
}

func (s *BadgerStore) Latest(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var round uint64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(currentKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrRoundNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("%w: current pointer", ErrCorrupt)
			}
			round = binary.BigEndian.Uint64(val)
			return nil
		})
	})
	return round, err
}
