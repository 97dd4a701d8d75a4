package mapreduce

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
)

type reduceTask[K, V any] struct {
	engine  *Engine
	job     *Job[K, V]
	info    TaskInfo
	scratch string
	output  string
	c       *counters
}

func (t *reduceTask[K, V]) fail(err error) error {
	var te *TaskError
	if errors.As(err, &te) {
		return err
	}
	return &TaskError{Job: t.info.Job, Phase: PhaseReduce, Task: t.info.Task, Err: err}
}

func (t *reduceTask[K, V]) run(ctx context.Context) error {
	ctrl := t.engine.controller
	if err := ctrl.AcquireWorker(ctx); err != nil {
		return err
	}
	defer ctrl.ReleaseWorker()

	reducer := t.job.NewReducer()
	if s, ok := reducer.(TaskSetup); ok {
		if err := s.Setup(ctx, t.info); err != nil {
			return t.fail(fmt.Errorf("setup: %w", err))
		}
	}

	runs, runBytes, err := loadRuns[K, V](ctx, t.engine, partitionDir(t.scratch, t.info.Task))
	if err != nil {
		return t.fail(err)
	}

	out, err := newTaskOutput(ctx, t.engine.store, t.output, t.info.Task)
	if err != nil {
		return t.fail(err)
	}

	groups, records, err := t.reduce(ctx, reducer, newMerger(runs, t.job.Compare), out)
	if err == nil {
		if c, ok := reducer.(ReduceCleanup); ok {
			if cerr := c.Cleanup(ctx, out); cerr != nil {
				err = fmt.Errorf("cleanup: %w", cerr)
			}
		}
	}
	if err != nil {
		out.abort()
		return t.fail(err)
	}
	if err := out.commit(); err != nil {
		return t.fail(err)
	}

	t.c.groups.Add(groups)
	t.c.reduceInput.Add(records)
	t.c.outputRecords.Add(out.records)
	t.engine.logger.Debug("reduce task done",
		slog.String("job", t.info.Job),
		slog.Int("task", t.info.Task),
		slog.Int("runs", len(runs)),
		slog.Int64("run_bytes", runBytes),
		slog.Int64("groups", groups),
		slog.Int64("records", records),
	)
	return nil
}

// reduce calls the reducer once per group. Records the reducer leaves
// unconsumed are skipped before the next group starts.
func (t *reduceTask[K, V]) reduce(ctx context.Context, reducer Reducer[K, V], m *merger[K, V], out Output) (groups, records int64, err error) {
	for m.valid() {
		if err := ctx.Err(); err != nil {
			return groups, records, err
		}
		first := m.head().Key
		values := iter.Seq2[K, V](func(yield func(K, V) bool) {
			for m.valid() && t.job.sameGroup(first, m.head().Key) {
				rec := *m.head()
				m.advance()
				records++
				if !yield(rec.Key, rec.Value) {
					return
				}
			}
		})

		groups++
		if err := reducer.Reduce(ctx, first, values, out); err != nil {
			return groups, records, fmt.Errorf("reduce %v: %w", first, err)
		}
		for m.valid() && t.job.sameGroup(first, m.head().Key) {
			m.advance()
			records++
		}
	}
	return groups, records, m.err
}
