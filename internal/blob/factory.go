package blob

import (
	"context"
	"fmt"
)

// Options selects and configures a blob driver.
type Options struct {
	Driver Driver    // fs|s3|gcs|memory (default fs)
	FSRoot string    // directory root when Driver=fs
	S3     S3Config  // used when Driver=s3
	GCS    GCSConfig // used when Driver=gcs
}

// Open selects a blob.Store implementation from opts.
func Open(ctx context.Context, opts Options) (Store, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(opts.FSRoot)
	case DriverS3:
		return NewS3(ctx, opts.S3)
	case DriverGCS:
		return NewGCS(ctx, opts.GCS)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
