package kmeansmr

import (
	"log/slog"

	"github.com/hupe1980/kmeansmr/centroid"
	"github.com/hupe1980/kmeansmr/distance"
	"github.com/hupe1980/kmeansmr/internal/compress"
	"github.com/hupe1980/kmeansmr/stage"
)

// Compression selects the block codec of shuffle spills and centroid blobs.
type Compression = compress.Type

const (
	CompressionNone = compress.None
	CompressionLZ4  = compress.LZ4
	CompressionZSTD = compress.ZSTD
)

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(s string) (Compression, error) {
	return compress.ParseType(s)
}

type options struct {
	rounds            int
	policy            stage.AggregationPolicy
	metric            distance.Metric
	workers           int
	memoryLimit       int64
	ioLimit           int64
	spillBytes        int
	compression       Compression
	centroidCompress  Compression
	centroids         centroid.Store
	centroidCacheSize int
	keepIntermediate  bool
	metricsCollector  MetricsCollector
	logger            *Logger
}

// Option configures a Pipeline.
type Option func(*options)

// WithRounds sets the number of refinement rounds. Zero runs k rounds.
func WithRounds(n int) Option {
	return func(o *options) {
		o.rounds = n
	}
}

// WithPolicy selects how refined means are finalized.
func WithPolicy(p stage.AggregationPolicy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithMetric selects the assignment metric. The default is cosine
// similarity.
func WithMetric(m distance.Metric) Option {
	return func(o *options) {
		o.metric = m
	}
}

// WithWorkers bounds the number of map or reduce tasks running at once.
// If n <= 0, GOMAXPROCS is used.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithMemoryLimit bounds the bytes map tasks buffer before spilling, summed
// over all running tasks. Zero disables the limit.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithIOLimit rate-limits shuffle reads and writes. Zero disables the limit.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimit = bytesPerSec
	}
}

// WithSpillBytes sets the per-task buffer size that triggers a spill.
func WithSpillBytes(n int) Option {
	return func(o *options) {
		o.spillBytes = n
	}
}

// WithCompression sets the shuffle spill codec.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithCentroidCompression sets the codec of centroid blobs written by the
// default centroid store.
func WithCentroidCompression(c Compression) Option {
	return func(o *options) {
		o.centroidCompress = c
	}
}

// WithCentroidStore replaces the default blob-backed centroid store, which
// lives under "<output>/centroids". The store must not hold rounds from a
// previous run.
func WithCentroidStore(s centroid.Store) Option {
	return func(o *options) {
		o.centroids = s
	}
}

// WithCentroidCacheSize sets how many round snapshots are cached in memory
// in front of the centroid store. Zero disables the cache.
func WithCentroidCacheSize(n int) Option {
	return func(o *options) {
		o.centroidCacheSize = n
	}
}

// WithKeepIntermediate keeps shuffle scratch data after each job.
func WithKeepIntermediate(keep bool) Option {
	return func(o *options) {
		o.keepIntermediate = keep
	}
}

// WithMetricsCollector configures a metrics collector for monitoring stages.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &kmeansmr.BasicMetricsCollector{}
//	p, _ := kmeansmr.New(store, kmeansmr.WithMetricsCollector(metrics))
//	// ... run ...
//	stats := metrics.GetStats()
//	fmt.Printf("Stages: %d, Avg latency: %dns\n", stats.StageCount, stats.StageAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := kmeansmr.NewJSONLogger(slog.LevelInfo)
//	p, _ := kmeansmr.New(store, kmeansmr.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		policy:            stage.PrunedMean,
		metric:            distance.MetricCosine,
		compression:       CompressionLZ4,
		centroidCompress:  CompressionZSTD,
		centroidCacheSize: 4,
		metricsCollector:  NoopMetricsCollector{},
		logger:            NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}
