package archive

import (
	"context"
	"fmt"
	"os"
)

// Backend selects the storage implementation.
type Backend string

const (
	BackendFile Backend = "file"
	BackendS3   Backend = "s3"
	BackendGCS  Backend = "gcs"
)

// Config selects and configures a Store backend.
type Config struct {
	Backend  Backend
	Dir      string // file backend root
	Bucket   string // s3/gcs bucket
	Region   string // s3 region
	Endpoint string // s3 custom endpoint (MinIO, LocalStack)
	Prefix   string // object key prefix
}

// New creates the configured evidence store.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendFile, "":
		dir := cfg.Dir
		if dir == "" {
			dir = "archives"
		}
		return NewFileStore(dir)
	case BackendS3:
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("archive: s3 backend requires a bucket")
		}
		region := cfg.Region
		if region == "" {
			region = os.Getenv("AWS_REGION")
		}
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Store(ctx, S3Config{
			Bucket:   cfg.Bucket,
			Region:   region,
			Endpoint: cfg.Endpoint,
			Prefix:   cfg.Prefix,
		})
	case BackendGCS:
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("archive: gcs backend requires a bucket")
		}
		return newGCSStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("archive: unsupported backend %q", cfg.Backend)
	}
}
