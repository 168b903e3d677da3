package blob

import (
	"context"

	infraGCS "dicompreset/internal/infra/blob/gcs"
)

// GCSConfig re-exports the infra GCS configuration type.
type GCSConfig = infraGCS.Config

// NewGCS constructs a Google Cloud Storage backed blob.Store.
func NewGCS(ctx context.Context, cfg GCSConfig) (Store, error) {
	return infraGCS.New(ctx, cfg)
}
