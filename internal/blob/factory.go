package blob

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Environment variables:
//   BUILDCORE_BLOB_DRIVER=fs|s3|memory (default fs)
//   BUILDCORE_BLOB_FS_ROOT=<dir> (fs driver)
//   BUILDCORE_BLOB_S3_BUCKET=<bucket> (required for s3)
//   BUILDCORE_BLOB_S3_REGION=<region> (default us-east-1)
//   BUILDCORE_BLOB_S3_ENDPOINT=<url> (optional, for MinIO)
//   BUILDCORE_BLOB_S3_PATH_STYLE=true|false (default false)
//   AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (optional)

// OpenFromEnv constructs the archive store selected by the process
// environment.
func OpenFromEnv(ctx context.Context) (Store, error) {
	driver := Driver(strings.ToLower(os.Getenv("BUILDCORE_BLOB_DRIVER")))
	switch driver {
	case "", DriverFilesystem:
		return NewFSStore(os.Getenv("BUILDCORE_BLOB_FS_ROOT"))
	case DriverS3:
		bucket := os.Getenv("BUILDCORE_BLOB_S3_BUCKET")
		if bucket == "" {
			return nil, fmt.Errorf("BUILDCORE_BLOB_S3_BUCKET required for s3 driver")
		}
		return NewS3Store(ctx, S3Config{
			Bucket:          bucket,
			Region:          os.Getenv("BUILDCORE_BLOB_S3_REGION"),
			Endpoint:        os.Getenv("BUILDCORE_BLOB_S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			PathStyle:       strings.EqualFold(os.Getenv("BUILDCORE_BLOB_S3_PATH_STYLE"), "true"),
		})
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", driver)
	}
}
