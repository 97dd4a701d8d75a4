// Package s3 stores pipeline blobs in Amazon S3.
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "runs/2024-06")
//
// S3 overwrites are strongly consistent, so Store.Put of the CURRENT pointer
// is already atomic for a single writer. DDBCommitStore adds DynamoDB
// conditional writes for CURRENT when several pipelines may publish into the
// same prefix.
package s3
