// Package minio stores pipeline blobs in MinIO or any other S3-compatible
// service through the native MinIO client.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	store := minioblob.NewStore(client, "kmeans", "runs/2024-06")
//
// PutObject replaces an object atomically, which is all the centroid store
// needs for its CURRENT pointer.
package minio
