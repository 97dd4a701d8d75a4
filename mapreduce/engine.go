package mapreduce

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/kmeansmr/blobstore"
	"github.com/hupe1980/kmeansmr/internal/compress"
	"github.com/hupe1980/kmeansmr/internal/resource"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultSpillBytes is the map-side buffer size that triggers a spill.
	DefaultSpillBytes = 16 << 20
	// DefaultMaxLineBytes bounds one input line.
	DefaultMaxLineBytes = 64 << 20
	// DefaultScratchPrefix holds shuffle runs while a job is running.
	DefaultScratchPrefix = "_scratch"
	// SuccessMarker is written into a job's output directory on success.
	SuccessMarker = "_SUCCESS"
)

// Engine runs jobs against a blob store.
type Engine struct {
	store        blobstore.Store
	logger       *slog.Logger
	controller   *resource.Controller
	compression  compress.Type
	spillBytes   int
	maxLineBytes int
	scratch      string
	keepScratch  bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger for job and task events.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithController shares a resource controller between engines.
func WithController(c *resource.Controller) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.controller = c
		}
	}
}

// WithCompression sets the compression of shuffle runs.
func WithCompression(t compress.Type) EngineOption {
	return func(e *Engine) { e.compression = t }
}

// WithSpillBytes sets the map buffer size that triggers a spill.
func WithSpillBytes(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.spillBytes = n
		}
	}
}

// WithMaxLineBytes bounds the length of one input line.
func WithMaxLineBytes(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxLineBytes = n
		}
	}
}

// WithScratchPrefix sets where shuffle runs are written.
func WithScratchPrefix(p string) EngineOption {
	return func(e *Engine) {
		if p = strings.Trim(p, "/"); p != "" {
			e.scratch = p
		}
	}
}

// WithKeepScratch leaves shuffle runs in place after the job. Debugging aid.
func WithKeepScratch(keep bool) EngineOption {
	return func(e *Engine) { e.keepScratch = keep }
}

// NewEngine creates an Engine over store.
func NewEngine(store blobstore.Store, optFns ...EngineOption) *Engine {
	e := &Engine{
		store:        store,
		logger:       slog.New(slog.DiscardHandler),
		compression:  compress.LZ4,
		spillBytes:   DefaultSpillBytes,
		maxLineBytes: DefaultMaxLineBytes,
		scratch:      DefaultScratchPrefix,
	}
	for _, fn := range optFns {
		fn(e)
	}
	if e.controller == nil {
		e.controller = resource.NewController(resource.Config{})
	}
	return e
}

// Store returns the engine's blob store.
func (e *Engine) Store() blobstore.Store { return e.store }

// counters are shared by all tasks of one job.
type counters struct {
	mapInput      atomic.Int64
	mapOutput     atomic.Int64
	spilled       atomic.Int64
	spills        atomic.Int64
	spillBytes    atomic.Int64
	groups        atomic.Int64
	reduceInput   atomic.Int64
	outputRecords atomic.Int64
}

// Run executes job to completion. Map tasks all finish before the first
// reduce task starts.
func Run[K, V any](ctx context.Context, e *Engine, job Job[K, V]) (Stats, error) {
	if err := job.validate(); err != nil {
		return Stats{}, err
	}

	jobID := uuid.NewString()
	scratch := path.Join(e.scratch, job.Name+"-"+jobID)
	output := strings.TrimSuffix(job.Output, "/")
	logger := e.logger.With(slog.String("job", job.Name), slog.String("job_id", jobID))

	inputs, err := e.resolveInputs(ctx, job.Inputs)
	if err != nil {
		return Stats{}, err
	}
	if len(inputs) == 0 {
		return Stats{}, fmt.Errorf("%w: job %s inputs %v", ErrNoInput, job.Name, job.Inputs)
	}

	if err := blobstore.DeletePrefix(ctx, e.store, output+"/"); err != nil {
		return Stats{}, fmt.Errorf("clear output %s: %w", output, err)
	}
	if !e.keepScratch {
		defer func() {
			// The job context may already be canceled.
			if err := blobstore.DeletePrefix(context.WithoutCancel(ctx), e.store, scratch+"/"); err != nil {
				logger.Warn("scratch cleanup failed", slog.Any("error", err))
			}
		}()
	}

	start := time.Now()
	logger.Debug("job started", slog.Int("map_tasks", len(inputs)), slog.Int("reduce_tasks", job.NumReducers))

	var c counters
	limit := e.controller.MaxWorkers()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, input := range inputs {
		g.Go(func() error {
			t := &mapTask[K, V]{
				engine:  e,
				job:     &job,
				info:    TaskInfo{JobID: jobID, Job: job.Name, Task: i, Partitions: job.NumReducers, Input: input},
				scratch: scratch,
				c:       &c,
			}
			return t.run(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	logger.Debug("map phase done", slog.Int64("records", c.mapOutput.Load()), slog.Int64("spills", c.spills.Load()))

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for p := range job.NumReducers {
		g.Go(func() error {
			t := &reduceTask[K, V]{
				engine:  e,
				job:     &job,
				info:    TaskInfo{JobID: jobID, Job: job.Name, Task: p, Partitions: job.NumReducers},
				scratch: scratch,
				output:  output,
				c:       &c,
			}
			return t.run(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	if err := e.store.Put(ctx, output+"/"+SuccessMarker, nil); err != nil {
		return Stats{}, err
	}

	stats := Stats{
		JobID:              jobID,
		MapTasks:           len(inputs),
		ReduceTasks:        job.NumReducers,
		MapInputRecords:    c.mapInput.Load(),
		MapOutputRecords:   c.mapOutput.Load(),
		SpilledRecords:     c.spilled.Load(),
		Spills:             c.spills.Load(),
		SpillBytes:         c.spillBytes.Load(),
		ReduceGroups:       c.groups.Load(),
		ReduceInputRecords: c.reduceInput.Load(),
		OutputRecords:      c.outputRecords.Load(),
	}
	logger.Debug("job finished",
		slog.Duration("duration", time.Since(start)),
		slog.Int64("groups", stats.ReduceGroups),
		slog.Int64("output_records", stats.OutputRecords),
	)
	return stats, nil
}

func (e *Engine) resolveInputs(ctx context.Context, prefixes []string) ([]string, error) {
	seen := make(map[string]struct{})
	var inputs []string
	for _, prefix := range prefixes {
		names, err := e.store.List(ctx, prefix)
		if err != nil {
			return nil, fmt.Errorf("list input %s: %w", prefix, err)
		}
		for _, name := range names {
			base := path.Base(name)
			if strings.HasPrefix(base, "_") || strings.HasPrefix(base, ".") {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			inputs = append(inputs, name)
		}
	}
	return inputs, nil
}

func partitionDir(scratch string, p int) string {
	return fmt.Sprintf("%s/part-%05d/", scratch, p)
}
