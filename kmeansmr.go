// Package kmeansmr clusters sparse TF-IDF vectors with iterative map/reduce
// k-means.
//
// A run normalizes the corpus, seeds one centroid per normalize partition,
// refines the centroids for a fixed number of rounds and finally writes the
// cluster of every vector together with the most representative members of
// each cluster. Every job runs on the mapreduce engine over a blobstore.Store,
// so the same pipeline works on a local directory, S3 or MinIO.
//
// # Quick Start
//
//	ctx := context.Background()
//	store := blobstore.NewLocalStore("./data")
//	p, err := kmeansmr.New(store,
//	    kmeansmr.WithRounds(10),
//	    kmeansmr.WithLogLevel(slog.LevelInfo),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := p.Run(ctx, kmeansmr.Job{K: 8, Input: "tfidf/", Output: "out"})
//
// Input blobs hold one "id<TAB>index:value index:value ..." record per line.
// The run writes:
//
//	out/norm/part-r-NNNNN       id<TAB>normalized vector
//	out/means/part-r-NNNNN      cluster<TAB>centroid of the last refinement round
//	out/clusters/part-r-NNNNN   cluster<TAB>id
//	out/clusters/centroid-r-*   cluster<TAB>final centroid
//	out/clusters/prototype-r-*  cluster<TAB>id, most similar members first
//	out/clusters/stats-r-*      cluster<TAB>member count and similarity summary
//	out/centroids/              versioned centroid rounds
//
// # Rounds
//
// Round 0 holds the seed centroids. Refinement round r assigns every vector
// against round r and publishes round r+1. The final assignment uses the last
// published round. Centroid rounds are write-once; assigners of a round start
// only after the round has been published.
package kmeansmr

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hupe1980/kmeansmr/blobstore"
	"github.com/hupe1980/kmeansmr/centroid"
	"github.com/hupe1980/kmeansmr/distance"
	"github.com/hupe1980/kmeansmr/internal/resource"
	"github.com/hupe1980/kmeansmr/mapreduce"
	"github.com/hupe1980/kmeansmr/stage"
)

// Output subdirectories below Job.Output.
const (
	DirNormalized = "norm"
	DirMeans      = "means"
	DirClusters   = "clusters"
	DirCentroids  = "centroids"
	DirScratch    = "_scratch"
)

// Job is the input of one pipeline run.
type Job struct {
	// K is the number of clusters.
	K int
	// Input is the blob name prefix of the input corpus.
	Input string
	// Output is the directory prefix every stage writes under.
	Output string
}

// Outputs lists where a run wrote its results.
type Outputs struct {
	Normalized string
	Means      string
	Clusters   string
	Centroids  string
}

// StageStats records one executed stage.
type StageStats struct {
	Stage    Stage
	Round    int
	Duration time.Duration
	Job      mapreduce.Stats
}

// Result describes a finished run.
type Result struct {
	K int
	// Rounds is the number of refinement rounds executed.
	Rounds int
	// FinalRound is the centroid round used for the final assignment.
	FinalRound uint64
	Output     Outputs
	// Centroids holds every published round of the run.
	Centroids centroid.Store
	Stages    []StageStats
	// Degenerate counts input vectors whose weights summed to zero.
	Degenerate int64
	Duration   time.Duration
}

// Pipeline runs the clustering state machine:
// Normalizing, Seeding, Refining, Finalizing, then Done or Failed.
//
// A Pipeline may run several jobs, one at a time.
type Pipeline struct {
	store      blobstore.Store
	opts       options
	controller *resource.Controller
	logger     *Logger
	metrics    MetricsCollector

	state   atomic.Int32
	running atomic.Bool
}

// New returns a pipeline over store.
func New(store blobstore.Store, optFns ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, fmt.Errorf("kmeansmr: store is nil")
	}
	o := applyOptions(optFns)
	if o.rounds < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRounds, o.rounds)
	}
	if _, err := distance.Provider(o.metric); err != nil {
		return nil, translateError(err)
	}

	return &Pipeline{
		store: store,
		opts:  o,
		controller: resource.NewController(resource.Config{
			MaxWorkers:         int64(o.workers),
			MemoryLimitBytes:   o.memoryLimit,
			IOLimitBytesPerSec: o.ioLimit,
		}),
		logger:  o.logger,
		metrics: o.metricsCollector,
	}, nil
}

// State returns the current state of the running or last run.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

func (p *Pipeline) transition(ctx context.Context, to State) {
	from := State(p.state.Swap(int32(to)))
	if from != to {
		p.logger.LogTransition(ctx, from, to)
	}
}

// run holds the per-job state of Pipeline.Run.
type run struct {
	p         *Pipeline
	job       Job
	rounds    int
	engine    *mapreduce.Engine
	centroids centroid.Store
	out       Outputs
	logger    *Logger
	result    Result
}

// Run executes job to completion. Any stage failure aborts the run with a
// *StageError; nothing is retried.
func (p *Pipeline) Run(ctx context.Context, job Job) (Result, error) {
	if job.K <= 0 {
		return Result{}, fmt.Errorf("%w: got %d", ErrInvalidK, job.K)
	}
	if job.Input == "" || strings.Trim(job.Output, "/") == "" {
		return Result{}, fmt.Errorf("kmeansmr: input and output must be set")
	}
	if overlaps(job.Input, job.Output) {
		return Result{}, fmt.Errorf("%w: input %q, output %q", ErrOutputOverlapsInput, job.Input, job.Output)
	}
	if !p.running.CompareAndSwap(false, true) {
		return Result{}, fmt.Errorf("kmeansmr: pipeline is already running")
	}
	defer p.running.Store(false)
	p.state.Store(int32(StateIdle))

	r, err := p.prepare(ctx, job)
	if err != nil {
		p.transition(ctx, StateFailed)
		return Result{}, err
	}

	start := time.Now()
	if err := r.execute(ctx); err != nil {
		p.transition(ctx, StateFailed)
		return r.result, err
	}
	p.transition(ctx, StateDone)

	r.result.Duration = time.Since(start)
	r.logger.InfoContext(ctx, "pipeline finished",
		"rounds", r.result.Rounds,
		"final_round", r.result.FinalRound,
		"duration", r.result.Duration,
	)
	return r.result, nil
}

// overlaps reports whether blobs written below output would be read back as
// input on a later run, or whether clearing output would delete input.
func overlaps(input, output string) bool {
	root := strings.Trim(output, "/") + "/"
	in := strings.TrimPrefix(input, "/")
	return strings.HasPrefix(root, in) || strings.HasPrefix(in, root)
}

func (p *Pipeline) prepare(ctx context.Context, job Job) (*run, error) {
	root := strings.Trim(job.Output, "/")
	out := Outputs{
		Normalized: path.Join(root, DirNormalized),
		Means:      path.Join(root, DirMeans),
		Clusters:   path.Join(root, DirClusters),
		Centroids:  path.Join(root, DirCentroids),
	}

	rounds := p.opts.rounds
	if rounds == 0 {
		rounds = job.K
	}

	var store centroid.Store = p.opts.centroids
	if store == nil {
		// Rounds are write-once, so a rerun starts from an empty store.
		if err := blobstore.DeletePrefix(ctx, p.store, out.Centroids+"/"); err != nil {
			return nil, fmt.Errorf("kmeansmr: clear centroids: %w", err)
		}
		store = centroid.NewBlobStore(p.store, out.Centroids,
			centroid.WithCompression(p.opts.centroidCompress),
		)
	}
	if p.opts.centroidCacheSize > 0 {
		cached, err := centroid.NewCachedStore(store, p.opts.centroidCacheSize)
		if err != nil {
			return nil, err
		}
		store = cached
	}

	engine := mapreduce.NewEngine(p.store,
		mapreduce.WithLogger(p.logger.Logger),
		mapreduce.WithController(p.controller),
		mapreduce.WithCompression(p.opts.compression),
		mapreduce.WithSpillBytes(p.opts.spillBytes),
		mapreduce.WithScratchPrefix(path.Join(root, DirScratch)),
		mapreduce.WithKeepScratch(p.opts.keepIntermediate),
	)

	return &run{
		p:         p,
		job:       job,
		rounds:    rounds,
		engine:    engine,
		centroids: store,
		out:       out,
		logger:    p.logger.WithK(job.K),
		result:    Result{K: job.K, Output: out, Centroids: store},
	}, nil
}

func (r *run) execute(ctx context.Context) error {
	r.logger.InfoContext(ctx, "pipeline started",
		"input", r.job.Input,
		"output", r.job.Output,
		"rounds", r.rounds,
		"policy", r.p.opts.policy.String(),
		"metric", r.p.opts.metric.String(),
	)

	r.p.transition(ctx, StateNormalizing)
	if err := r.normalize(ctx); err != nil {
		return err
	}

	r.p.transition(ctx, StateSeeding)
	if err := r.seed(ctx); err != nil {
		return err
	}

	r.p.transition(ctx, StateRefining)
	for round := range r.rounds {
		if err := r.refine(ctx, round); err != nil {
			return err
		}
		r.result.Rounds++
	}
	r.result.FinalRound = uint64(r.rounds)

	r.p.transition(ctx, StateFinalizing)
	return r.finalize(ctx)
}

// runStage runs fn as one stage, recording logs and metrics and wrapping
// failures in a *StageError.
func (r *run) runStage(ctx context.Context, st Stage, round int, fn func(ctx context.Context) (mapreduce.Stats, error)) error {
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: st, Round: round, Err: err}
	}

	start := time.Now()
	stats, err := fn(ctx)
	elapsed := time.Since(start)

	r.p.metrics.RecordStage(st, elapsed, stats.OutputRecords, err)
	r.logger.LogStage(ctx, st, round, stats.OutputRecords, elapsed, err)
	if err != nil {
		return &StageError{Stage: st, Round: round, Err: translateError(err)}
	}
	r.result.Stages = append(r.result.Stages, StageStats{Stage: st, Round: round, Duration: elapsed, Job: stats})
	return nil
}

func (r *run) publish(ctx context.Context, set centroid.Set) error {
	start := time.Now()
	err := r.centroids.Publish(ctx, set)
	r.p.metrics.RecordPublish(set.Round, set.K, time.Since(start), err)
	r.logger.LogPublish(ctx, set.Round, set.K, err)
	return err
}

func (r *run) normalize(ctx context.Context) error {
	return r.runStage(ctx, StageNormalize, -1, func(ctx context.Context) (mapreduce.Stats, error) {
		var counters stage.NormalizeCounters
		stats, err := mapreduce.Run(ctx, r.engine, stage.NormalizeJob(stage.NormalizeJobConfig{
			Inputs:   []string{r.job.Input},
			Output:   r.out.Normalized,
			K:        r.job.K,
			Counters: &counters,
		}))
		r.result.Degenerate = counters.Degenerate.Load()
		if n := r.result.Degenerate; n > 0 {
			r.logger.WarnContext(ctx, "vectors with zero weight sum left unnormalized", "count", n)
		}
		if n := counters.Duplicates.Load(); n > 0 {
			r.logger.WarnContext(ctx, "duplicate ids dropped", "count", n)
		}
		return stats, err
	})
}

func (r *run) seed(ctx context.Context) error {
	return r.runStage(ctx, StageSeed, -1, func(ctx context.Context) (mapreduce.Stats, error) {
		set, err := stage.CollectCentroids(ctx, r.p.store, r.out.Normalized, stage.OutputCentroid+"-", 0, r.job.K)
		if err != nil {
			return mapreduce.Stats{}, err
		}
		if err := r.publish(ctx, set); err != nil {
			return mapreduce.Stats{}, err
		}
		return mapreduce.Stats{OutputRecords: int64(set.K)}, nil
	})
}

func (r *run) refine(ctx context.Context, round int) error {
	return r.runStage(ctx, StageRefine, round, func(ctx context.Context) (mapreduce.Stats, error) {
		stats, err := mapreduce.Run(ctx, r.engine, stage.ClusterJob(stage.ClusterJobConfig{
			Name:   fmt.Sprintf("cluster-%d", round),
			Inputs: []string{r.out.Normalized + "/part-"},
			Output: r.out.Means,
			Store:  r.centroids,
			Round:  uint64(round),
			K:      r.job.K,
			Metric: r.p.opts.metric,
			Policy: r.p.opts.policy,
			Mode:   stage.Refine,
		}))
		if err != nil {
			return stats, err
		}
		set, err := stage.CollectCentroids(ctx, r.p.store, r.out.Means, "part-", uint64(round)+1, r.job.K)
		if err != nil {
			return stats, err
		}
		return stats, r.publish(ctx, set)
	})
}

func (r *run) finalize(ctx context.Context) error {
	return r.runStage(ctx, StageFinalize, -1, func(ctx context.Context) (mapreduce.Stats, error) {
		return mapreduce.Run(ctx, r.engine, stage.ClusterJob(stage.ClusterJobConfig{
			Name:   "final",
			Inputs: []string{r.out.Normalized + "/part-"},
			Output: r.out.Clusters,
			Store:  r.centroids,
			Round:  r.result.FinalRound,
			K:      r.job.K,
			Metric: r.p.opts.metric,
			Policy: r.p.opts.policy,
			Mode:   stage.Terminal,
		}))
	})
}
