// Command kmeansmr clusters a corpus of sparse TF-IDF vectors with iterative
// map/reduce k-means.
//
// Usage:
//
//	kmeansmr -k 20 -input corpus/ -output result
//	kmeansmr --config kmeans.yaml --rounds 5 --metric euclidean
//
// Long flags take one or two dashes. Flags override values from the config
// file.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/kmeansmr"
	"github.com/hupe1980/kmeansmr/config"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runCLI(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		stop()
		os.Exit(1)
	}
}

// runCLI executes the root command with args and reports any failure,
// including flag parse errors, on stderr.
func runCLI(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(normalizeArgs(args, func(name string) bool {
		return cmd.Flags().Lookup(name) != nil
	}))
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "kmeansmr: %v\n", err)
		return err
	}
	return nil
}

// normalizeArgs rewrites single-dash long flags such as -input to --input.
// Single-letter shorthands and everything after "--" pass through unchanged.
func normalizeArgs(args []string, isFlag func(name string) bool) []string {
	out := make([]string, 0, len(args))
	for i, arg := range args {
		if arg == "--" {
			return append(out, args[i:]...)
		}
		if strings.HasPrefix(arg, "-") && !strings.HasPrefix(arg, "--") {
			name, _, _ := strings.Cut(arg[1:], "=")
			if len(name) > 1 && isFlag(name) {
				arg = "-" + arg
			}
		}
		out = append(out, arg)
	}
	return out
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kmeansmr",
		Short: "Iterative map/reduce k-means over sparse TF-IDF vectors",
		Long: `kmeansmr groups documents into k clusters.

Input lines are "<doc-id>\t<index>:<weight> ...". The pipeline normalizes
every vector, seeds k centroids, refines them for a number of rounds and
writes the final membership, prototypes and per-cluster statistics under
the output directory.`,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	f := cmd.Flags()
	f.String("config", "", "YAML config file")
	f.IntP("k", "k", 0, "Number of clusters")
	f.StringP("input", "i", "", "Input prefix of the corpus")
	f.StringP("output", "o", "", "Output directory")
	f.Int("rounds", 0, "Refinement rounds (0 runs k rounds)")
	f.String("policy", "pruned", "Mean aggregation policy: pruned|plain")
	f.String("metric", "cosine", "Assignment metric: cosine|euclidean")
	f.Int("workers", 0, "Concurrent map or reduce tasks (0 uses GOMAXPROCS)")
	f.Int("spill-bytes", 0, "Map buffer size that triggers a spill")
	f.Int64("memory-limit", 0, "Bytes buffered by all map tasks (0 disables)")
	f.Int64("io-limit", 0, "Shuffle bytes per second (0 disables)")
	f.String("compression", "lz4", "Shuffle spill codec: none|lz4|zstd")
	f.Bool("keep-intermediate", false, "Keep shuffle scratch data")

	f.String("store", config.StoreLocal, "Blob store: local|s3|minio")
	f.String("root", ".", "Root directory of the local store")
	f.String("bucket", "", "Bucket of the s3 or minio store")
	f.String("prefix", "", "Key prefix inside the bucket")
	f.String("region", "", "AWS region")
	f.String("endpoint", "", "Endpoint of the minio store or an s3-compatible service")
	f.Bool("use-ssl", false, "Use TLS for the minio store")
	f.String("ddb-table", "", "DynamoDB table guarding centroid commits on s3")
	f.Int("cache-blobs", 0, "Blobs cached in memory in front of the store (0 disables)")

	f.String("centroids", config.CentroidsBlob, "Centroid store: blob|badger")
	f.String("centroid-dir", "", "Badger directory (empty keeps it in memory)")
	f.Int("centroid-cache", 4, "Centroid rounds cached in memory")

	f.String("log-level", "info", "Log level: debug|info|warn|error")
	f.String("log-format", "text", "Log format: text|json")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kmeansmr v%s (%s)\n", version, commit)
		},
	})

	return cmd
}

func run(cmd *cobra.Command) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	opts, err := cfg.Options()
	if err != nil {
		return err
	}
	logger, err := cfg.Log.Logger()
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	centroids, closeCentroids, err := openCentroids(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open centroid store: %w", err)
	}
	defer func() {
		if cerr := closeCentroids(); cerr != nil {
			logger.Warn("closing centroid store failed", "error", cerr)
		}
	}()
	if centroids != nil {
		opts = append(opts, kmeansmr.WithCentroidStore(centroids))
	}

	p, err := kmeansmr.New(store, opts...)
	if err != nil {
		return err
	}

	res, err := p.Run(ctx, kmeansmr.Job{K: cfg.K, Input: cfg.Input, Output: cfg.Output})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "k=%d rounds=%d final_round=%d duration=%s\n",
		res.K, res.Rounds, res.FinalRound, res.Duration)
	fmt.Fprintf(out, "clusters:  %s\n", res.Output.Clusters)
	fmt.Fprintf(out, "centroids: %s\n", res.Output.Centroids)
	if res.Degenerate > 0 {
		fmt.Fprintf(out, "degenerate vectors: %d\n", res.Degenerate)
	}
	return nil
}

// loadConfig reads the config file, if any, and applies every flag the user
// set explicitly on top of it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	f := cmd.Flags()

	cfg := config.Default()
	if path, _ := f.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	setInt := func(name string, dst *int) {
		if f.Changed(name) {
			*dst, _ = f.GetInt(name)
		}
	}
	setInt64 := func(name string, dst *int64) {
		if f.Changed(name) {
			*dst, _ = f.GetInt64(name)
		}
	}
	setString := func(name string, dst *string) {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	setBool := func(name string, dst *bool) {
		if f.Changed(name) {
			*dst, _ = f.GetBool(name)
		}
	}

	setInt("k", &cfg.K)
	setString("input", &cfg.Input)
	setString("output", &cfg.Output)
	setInt("rounds", &cfg.Rounds)
	setString("policy", &cfg.Policy)
	setString("metric", &cfg.Metric)
	setInt("workers", &cfg.Workers)
	setInt("spill-bytes", &cfg.SpillBytes)
	setInt64("memory-limit", &cfg.MemoryLimitBytes)
	setInt64("io-limit", &cfg.IOLimitBytesPerSec)
	setString("compression", &cfg.Compression)
	setBool("keep-intermediate", &cfg.KeepIntermediate)

	setString("store", &cfg.Store.Type)
	setString("root", &cfg.Store.Root)
	setString("bucket", &cfg.Store.Bucket)
	setString("prefix", &cfg.Store.Prefix)
	setString("region", &cfg.Store.Region)
	setString("endpoint", &cfg.Store.Endpoint)
	setBool("use-ssl", &cfg.Store.UseSSL)
	setString("ddb-table", &cfg.Store.DDBTable)
	setInt("cache-blobs", &cfg.Store.CacheBlobs)

	setString("centroids", &cfg.Centroids.Backend)
	setString("centroid-dir", &cfg.Centroids.Dir)
	setInt("centroid-cache", &cfg.Centroids.CacheSize)

	setString("log-level", &cfg.Log.Level)
	setString("log-format", &cfg.Log.Format)

	if cfg.Store.AccessKey == "" {
		cfg.Store.AccessKey = os.Getenv(envAccessKey)
	}
	cfg.Store.SecretKey = os.Getenv(envSecretKey)

	return cfg, nil
}
