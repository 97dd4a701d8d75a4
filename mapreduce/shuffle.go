package mapreduce

import (
	"bytes"
	"container/heap"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/hupe1980/kmeansmr/internal/compress"
	"github.com/vmihailenco/msgpack/v5"
)

// wireRecord is the msgpack form of one intermediate record.
type wireRecord[K, V any] struct {
	Key   K `msgpack:"k"`
	Value V `msgpack:"v"`
}

// buffered is an intermediate record waiting in a map-side buffer. The key is
// kept decoded for sorting; data is the encoded wireRecord.
type buffered[K any] struct {
	key  K
	data []byte
}

func encodeRecord[K, V any](key K, value V) ([]byte, error) {
	return msgpack.Marshal(&wireRecord[K, V]{Key: key, Value: value})
}

// encodeRun sorts records and packs them into one compressed frame.
func encodeRun[K any](records []buffered[K], compare func(a, b K) int, t compress.Type) ([]byte, error) {
	slices.SortStableFunc(records, func(a, b buffered[K]) int { return compare(a.key, b.key) })

	size := 0
	for _, r := range records {
		size += len(r.data)
	}
	raw := make([]byte, 0, size)
	for _, r := range records {
		raw = append(raw, r.data...)
	}
	return compress.Encode(raw, t)
}

// runReader decodes the records of one run in order.
type runReader[K, V any] struct {
	dec *msgpack.Decoder
	cur wireRecord[K, V]
	ok  bool
}

func newRunReader[K, V any](frame []byte) (*runReader[K, V], error) {
	raw, err := compress.Decode(frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSpill, err)
	}
	r := &runReader[K, V]{dec: msgpack.NewDecoder(bytes.NewReader(raw))}
	if err := r.next(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *runReader[K, V]) next() error {
	var rec wireRecord[K, V]
	if err := r.dec.Decode(&rec); err != nil {
		r.ok = false
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrCorruptSpill, err)
	}
	r.cur, r.ok = rec, true
	return nil
}

// merger yields the records of several sorted runs in global key order. Equal
// keys come out in run order, which keeps the merge stable.
type merger[K, V any] struct {
	h   runHeap[K, V]
	err error
}

func newMerger[K, V any](runs []*runReader[K, V], compare func(a, b K) int) *merger[K, V] {
	m := &merger[K, V]{h: runHeap[K, V]{compare: compare}}
	for i, r := range runs {
		if r.ok {
			m.h.items = append(m.h.items, heapItem[K, V]{run: r, order: i})
		}
	}
	heap.Init(&m.h)
	return m
}

func (m *merger[K, V]) valid() bool { return m.err == nil && len(m.h.items) > 0 }

func (m *merger[K, V]) head() *wireRecord[K, V] { return &m.h.items[0].run.cur }

func (m *merger[K, V]) advance() {
	top := m.h.items[0].run
	if err := top.next(); err != nil {
		m.err = err
		return
	}
	if top.ok {
		heap.Fix(&m.h, 0)
	} else {
		heap.Pop(&m.h)
	}
}

type heapItem[K, V any] struct {
	run   *runReader[K, V]
	order int
}

type runHeap[K, V any] struct {
	items   []heapItem[K, V]
	compare func(a, b K) int
}

func (h *runHeap[K, V]) Len() int { return len(h.items) }

func (h *runHeap[K, V]) Less(i, j int) bool {
	if c := h.compare(h.items[i].run.cur.Key, h.items[j].run.cur.Key); c != 0 {
		return c < 0
	}
	return h.items[i].order < h.items[j].order
}

func (h *runHeap[K, V]) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *runHeap[K, V]) Push(x any) { h.items = append(h.items, x.(heapItem[K, V])) }

func (h *runHeap[K, V]) Pop() any {
	n := len(h.items)
	it := h.items[n-1]
	h.items[n-1] = heapItem[K, V]{}
	h.items = h.items[:n-1]
	return it
}

// loadRuns reads every run of a partition. Runs are small compressed frames
// bounded by the spill size, so they are held in memory for the merge.
func loadRuns[K, V any](ctx context.Context, e *Engine, dir string) ([]*runReader[K, V], int64, error) {
	names, err := e.store.List(ctx, dir)
	if err != nil {
		return nil, 0, err
	}
	runs := make([]*runReader[K, V], 0, len(names))
	var total int64
	for _, name := range names {
		frame, err := readBlob(ctx, e, name)
		if err != nil {
			return nil, 0, fmt.Errorf("read run %s: %w", name, err)
		}
		total += int64(len(frame))
		r, err := newRunReader[K, V](frame)
		if err != nil {
			return nil, 0, fmt.Errorf("run %s: %w", name, err)
		}
		runs = append(runs, r)
	}
	return runs, total, nil
}

func readBlob(ctx context.Context, e *Engine, name string) ([]byte, error) {
	r, err := e.store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if err := e.controller.AcquireIO(ctx, len(data)); err != nil {
		return nil, err
	}
	return data, nil
}
