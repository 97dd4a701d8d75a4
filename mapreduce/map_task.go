package mapreduce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hupe1980/kmeansmr/internal/resource"
)

type mapTask[K, V any] struct {
	engine  *Engine
	job     *Job[K, V]
	info    TaskInfo
	scratch string
	c       *counters

	// ctx is the task context, kept for spills triggered from Emit.
	ctx      context.Context
	parts    [][]buffered[K]
	buffered int
	reserved int64
	spillSeq int
}

func (t *mapTask[K, V]) fail(err error, line int) error {
	var te *TaskError
	if errors.As(err, &te) {
		return err
	}
	return &TaskError{Job: t.info.Job, Phase: PhaseMap, Task: t.info.Task, Input: t.info.Input, Line: line, Err: err}
}

func (t *mapTask[K, V]) run(ctx context.Context) error {
	ctrl := t.engine.controller
	if err := ctrl.AcquireWorker(ctx); err != nil {
		return err
	}
	defer ctrl.ReleaseWorker()
	defer func() { ctrl.ReleaseMemory(t.reserved) }()

	t.ctx = ctx
	t.parts = make([][]buffered[K], t.info.Partitions)
	mapper := t.job.NewMapper()
	if s, ok := mapper.(TaskSetup); ok {
		if err := s.Setup(ctx, t.info); err != nil {
			return t.fail(fmt.Errorf("setup: %w", err), 0)
		}
	}

	r, err := t.engine.store.Open(ctx, t.info.Input)
	if err != nil {
		return t.fail(err, 0)
	}
	defer r.Close()

	line := 0
	for rec, err := range readRecords(r, t.engine.maxLineBytes) {
		if err != nil {
			return t.fail(err, line)
		}
		line = rec.Line
		if err := ctx.Err(); err != nil {
			return err
		}
		t.c.mapInput.Add(1)
		if err := mapper.Map(ctx, rec.Key, rec.Value, t); err != nil {
			return t.fail(err, line)
		}
	}

	if c, ok := mapper.(MapCleanup[K, V]); ok {
		if err := c.Cleanup(ctx, t); err != nil {
			return t.fail(fmt.Errorf("cleanup: %w", err), 0)
		}
	}

	if err := t.spill(ctx); err != nil {
		return t.fail(err, 0)
	}
	t.engine.logger.Debug("map task done",
		slog.String("job", t.info.Job),
		slog.Int("task", t.info.Task),
		slog.String("input", t.info.Input),
		slog.Int("lines", line),
		slog.Int("spills", t.spillSeq),
	)
	return nil
}

// Emit serializes the record into its partition buffer. A full buffer, or a
// memory reservation refused by the controller, spills first.
func (t *mapTask[K, V]) Emit(key K, value V) error {
	p, err := t.job.Partitioner.Partition(key, t.info.Partitions)
	if err != nil {
		return err
	}
	if p < 0 || p >= t.info.Partitions {
		return fmt.Errorf("partition %d outside [0,%d)", p, t.info.Partitions)
	}
	data, err := encodeRecord(key, value)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	if t.buffered+len(data) > t.engine.spillBytes && t.buffered > 0 {
		if err := t.spill(t.ctx); err != nil {
			return err
		}
	}
	if err := t.reserve(int64(len(data))); err != nil {
		return err
	}

	t.parts[p] = append(t.parts[p], buffered[K]{key: key, data: data})
	t.buffered += len(data)
	t.c.mapOutput.Add(1)
	return nil
}

func (t *mapTask[K, V]) reserve(n int64) error {
	ctrl := t.engine.controller
	err := ctrl.AcquireMemory(n)
	if errors.Is(err, resource.ErrMemoryLimitExceeded) && t.buffered > 0 {
		if err := t.spill(t.ctx); err != nil {
			return err
		}
		err = ctrl.AcquireMemory(n)
	}
	if err != nil {
		return fmt.Errorf("buffer %d bytes: %w", n, err)
	}
	t.reserved += n
	return nil
}

// spill writes one sorted run per non-empty partition and empties the buffers.
func (t *mapTask[K, V]) spill(ctx context.Context) error {
	if t.buffered == 0 {
		return nil
	}
	e := t.engine
	for p, records := range t.parts {
		if len(records) == 0 {
			continue
		}
		frame, err := encodeRun(records, t.job.Compare, e.compression)
		if err != nil {
			return fmt.Errorf("encode spill: %w", err)
		}
		if err := e.controller.AcquireIO(ctx, len(frame)); err != nil {
			return err
		}
		name := fmt.Sprintf("%smap-%05d-spill-%05d", partitionDir(t.scratch, p), t.info.Task, t.spillSeq)
		if err := e.store.Put(ctx, name, frame); err != nil {
			return fmt.Errorf("write spill %s: %w", name, err)
		}
		t.c.spilled.Add(int64(len(records)))
		t.c.spillBytes.Add(int64(len(frame)))
		clear(records)
		t.parts[p] = records[:0]
	}
	t.c.spills.Add(1)
	t.spillSeq++
	t.buffered = 0
	e.controller.ReleaseMemory(t.reserved)
	t.reserved = 0
	return nil
}
