package main

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/kmeansmr"
	"github.com/hupe1980/kmeansmr/blobstore"
	"github.com/hupe1980/kmeansmr/blobstore/minio"
	"github.com/hupe1980/kmeansmr/blobstore/s3"
	"github.com/hupe1980/kmeansmr/centroid"
	"github.com/hupe1980/kmeansmr/config"
)

const (
	envAccessKey = "KMEANSMR_ACCESS_KEY"
	envSecretKey = "KMEANSMR_SECRET_KEY"
)

// maxCachedBlob keeps shuffle spills out of the blob cache.
const maxCachedBlob = 1 << 20

func openStore(ctx context.Context, cfg *config.Config) (blobstore.Store, error) {
	var store blobstore.Store
	switch cfg.Store.Type {
	case config.StoreLocal:
		store = blobstore.NewLocalStore(cfg.Store.Root)
	case config.StoreS3:
		client, err := newS3Client(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
		store = s3.NewStore(client, cfg.Store.Bucket, cfg.Store.Prefix)
	case config.StoreMinIO:
		client, err := miniogo.New(cfg.Store.Endpoint, &miniogo.Options{
			Creds:  credentials.NewStaticV4(cfg.Store.AccessKey, cfg.Store.SecretKey, ""),
			Secure: cfg.Store.UseSSL,
			Region: cfg.Store.Region,
		})
		if err != nil {
			return nil, err
		}
		store = minio.NewStore(client, cfg.Store.Bucket, cfg.Store.Prefix)
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Store.Type)
	}

	if cfg.Store.CacheBlobs > 0 {
		cached, err := blobstore.NewCachingStore(store, cfg.Store.CacheBlobs, maxCachedBlob)
		if err != nil {
			return nil, err
		}
		store = cached
	}
	return store, nil
}

func newS3Client(ctx context.Context, sc config.StoreConfig) (*awss3.Client, error) {
	awsCfg, err := loadAWSConfig(ctx, sc)
	if err != nil {
		return nil, err
	}
	return awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if sc.Endpoint != "" {
			o.BaseEndpoint = aws.String(sc.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func loadAWSConfig(ctx context.Context, sc config.StoreConfig) (aws.Config, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if sc.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(sc.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

// openCentroids returns the centroid store selected by cfg, or nil when the
// pipeline should use its default store under the output directory. The
// returned close function is never nil.
func openCentroids(ctx context.Context, cfg *config.Config, logger *kmeansmr.Logger) (centroid.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Centroids.Backend {
	case config.CentroidsBadger:
		bs, err := centroid.OpenBadgerStore(centroid.BadgerOptions{
			Dir:      cfg.Centroids.Dir,
			InMemory: cfg.Centroids.Dir == "",
			Logger:   centroid.NewBadgerLogger(logger.Logger),
		})
		if err != nil {
			return nil, noop, err
		}
		// Rounds are write-once; an on-disk store from an earlier run would
		// collide on round 0.
		if _, err := bs.Latest(ctx); !errors.Is(err, centroid.ErrRoundNotFound) {
			_ = bs.Close()
			if err == nil {
				err = fmt.Errorf("%s already holds centroid rounds", cfg.Centroids.Dir)
			}
			return nil, noop, err
		}
		return bs, bs.Close, nil

	case config.CentroidsBlob:
		if cfg.Store.Type != config.StoreS3 || cfg.Store.DDBTable == "" {
			return nil, noop, nil
		}
		store, err := newDDBCentroidStore(ctx, cfg)
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil

	default:
		return nil, noop, fmt.Errorf("unknown centroid backend %q", cfg.Centroids.Backend)
	}
}

// newDDBCentroidStore publishes centroid rounds to S3 under the output
// directory and commits the CURRENT pointer through DynamoDB.
func newDDBCentroidStore(ctx context.Context, cfg *config.Config) (centroid.Store, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	client, err := newS3Client(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	root := path.Join(cfg.Store.Prefix, cfg.Output, kmeansmr.DirCentroids)
	commits := s3.NewDDBCommitStore(
		s3.NewStore(client, cfg.Store.Bucket, root),
		dynamodb.NewFromConfig(awsCfg),
		cfg.Store.DDBTable,
		"s3://"+path.Join(cfg.Store.Bucket, root),
	)
	// The commit log is append-only; only the round blobs are cleared.
	if err := blobstore.DeletePrefix(ctx, commits, ""); err != nil {
		return nil, fmt.Errorf("clear centroids: %w", err)
	}

	comp, err := kmeansmr.ParseCompression(cfg.Centroids.Compression)
	if err != nil {
		return nil, err
	}
	return centroid.NewBlobStore(commits, "", centroid.WithCompression(comp)), nil
}
