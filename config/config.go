// Package config loads pipeline settings from a YAML file.
//
// Every field has a default, so a file only needs the values it changes.
// Command-line flags are applied on top of the loaded file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/kmeansmr"
	"github.com/hupe1980/kmeansmr/distance"
	"github.com/hupe1980/kmeansmr/stage"
)

// Store backends.
const (
	StoreLocal = "local"
	StoreS3    = "s3"
	StoreMinIO = "minio"
)

// Centroid store backends.
const (
	CentroidsBlob   = "blob"
	CentroidsBadger = "badger"
)

// Config holds the complete pipeline configuration.
type Config struct {
	// K is the number of clusters.
	K int `yaml:"k"`
	// Input is the blob prefix of the input corpus.
	Input string `yaml:"input"`
	// Output is the directory every stage writes under.
	Output string `yaml:"output"`

	// Rounds is the number of refinement rounds; 0 runs K rounds.
	Rounds int    `yaml:"rounds"`
	Policy string `yaml:"policy"`
	Metric string `yaml:"metric"`

	Workers            int    `yaml:"workers,omitempty"`
	SpillBytes         int    `yaml:"spill_bytes,omitempty"`
	MemoryLimitBytes   int64  `yaml:"memory_limit_bytes,omitempty"`
	IOLimitBytesPerSec int64  `yaml:"io_limit_bytes_per_sec,omitempty"`
	Compression        string `yaml:"compression"`
	KeepIntermediate   bool   `yaml:"keep_intermediate,omitempty"`

	Store     StoreConfig    `yaml:"store"`
	Centroids CentroidConfig `yaml:"centroids"`
	Log       LogConfig      `yaml:"log"`
}

// StoreConfig selects where input, intermediate and output blobs live.
type StoreConfig struct {
	// Type is "local", "s3" or "minio".
	Type string `yaml:"type"`
	// Root is the directory of the local store.
	Root string `yaml:"root,omitempty"`

	Bucket   string `yaml:"bucket,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
	Region   string `yaml:"region,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`

	// AccessKey and SecretKey authenticate against MinIO. SecretKey is never
	// read from the file; it comes from the environment.
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"-"`
	UseSSL    bool   `yaml:"use_ssl,omitempty"`

	// DDBTable enables the DynamoDB commit log for the S3 centroid pointer.
	DDBTable string `yaml:"ddb_table,omitempty"`

	// CacheBlobs caches small blobs (centroid rounds) in memory.
	CacheBlobs int `yaml:"cache_blobs,omitempty"`
}

// CentroidConfig selects the centroid store.
type CentroidConfig struct {
	// Backend is "blob" or "badger".
	Backend string `yaml:"backend"`
	// Dir is the Badger directory. Empty keeps Badger in memory.
	Dir         string `yaml:"dir,omitempty"`
	CacheSize   int    `yaml:"cache_size"`
	Compression string `yaml:"compression"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Policy:      stage.PrunedMean.String(),
		Metric:      "cosine",
		Compression: "lz4",
		Store: StoreConfig{
			Type: StoreLocal,
			Root: ".",
		},
		Centroids: CentroidConfig{
			Backend:     CentroidsBlob,
			CacheSize:   4,
			Compression: "zstd",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML data over the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration can run.
func (c *Config) Validate() error {
	var errs []error
	if c.K <= 0 {
		errs = append(errs, fmt.Errorf("k must be positive, got %d", c.K))
	}
	if c.Input == "" {
		errs = append(errs, errors.New("input is required"))
	}
	if c.Output == "" {
		errs = append(errs, errors.New("output is required"))
	}
	if c.Rounds < 0 {
		errs = append(errs, fmt.Errorf("rounds must not be negative, got %d", c.Rounds))
	}
	if _, err := stage.ParseAggregationPolicy(c.Policy); err != nil {
		errs = append(errs, err)
	}
	if _, err := distance.ParseMetric(c.Metric); err != nil {
		errs = append(errs, err)
	}
	if _, err := kmeansmr.ParseCompression(c.Compression); err != nil {
		errs = append(errs, err)
	}
	if _, err := kmeansmr.ParseCompression(c.Centroids.Compression); err != nil {
		errs = append(errs, fmt.Errorf("centroids: %w", err))
	}
	if err := c.Store.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	switch c.Centroids.Backend {
	case CentroidsBlob, CentroidsBadger:
	default:
		errs = append(errs, fmt.Errorf("centroids: unknown backend %q", c.Centroids.Backend))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log: unknown format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Validate checks the backend-specific settings.
func (s *StoreConfig) Validate() error {
	switch s.Type {
	case StoreLocal:
		if s.Root == "" {
			return errors.New("root is required for the local store")
		}
	case StoreS3, StoreMinIO:
		if s.Bucket == "" {
			return fmt.Errorf("bucket is required for the %s store", s.Type)
		}
		if s.Type == StoreMinIO && s.Endpoint == "" {
			return errors.New("endpoint is required for the minio store")
		}
	default:
		return fmt.Errorf("unknown type %q", s.Type)
	}
	return nil
}

// SlogLevel parses Level ("debug", "info", "warn", "error").
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, err
	}
	return level, nil
}

// Logger returns the configured logger.
func (l LogConfig) Logger() (*kmeansmr.Logger, error) {
	level, err := l.SlogLevel()
	if err != nil {
		return nil, err
	}
	if l.Format == "json" {
		return kmeansmr.NewJSONLogger(level), nil
	}
	return kmeansmr.NewTextLogger(level), nil
}

// Options translates the configuration into pipeline options. The store
// and centroid store are wired by the caller.
func (c *Config) Options() ([]kmeansmr.Option, error) {
	policy, err := stage.ParseAggregationPolicy(c.Policy)
	if err != nil {
		return nil, err
	}
	metric, err := distance.ParseMetric(c.Metric)
	if err != nil {
		return nil, err
	}
	comp, err := kmeansmr.ParseCompression(c.Compression)
	if err != nil {
		return nil, err
	}
	centroidComp, err := kmeansmr.ParseCompression(c.Centroids.Compression)
	if err != nil {
		return nil, err
	}
	logger, err := c.Log.Logger()
	if err != nil {
		return nil, err
	}

	return []kmeansmr.Option{
		kmeansmr.WithRounds(c.Rounds),
		kmeansmr.WithPolicy(policy),
		kmeansmr.WithMetric(metric),
		kmeansmr.WithWorkers(c.Workers),
		kmeansmr.WithSpillBytes(c.SpillBytes),
		kmeansmr.WithMemoryLimit(c.MemoryLimitBytes),
		kmeansmr.WithIOLimit(c.IOLimitBytesPerSec),
		kmeansmr.WithCompression(comp),
		kmeansmr.WithCentroidCompression(centroidComp),
		kmeansmr.WithCentroidCacheSize(c.Centroids.CacheSize),
		kmeansmr.WithKeepIntermediate(c.KeepIntermediate),
		kmeansmr.WithLogger(logger),
	}, nil
}
