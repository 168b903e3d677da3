package blob

import (
	memorystore "dicompreset/internal/infra/blob/memory"
)

// NewMemory returns an empty in-memory blob.Store.
func NewMemory() Store { return memorystore.New(nil) }

// NewMemoryBucket returns an in-memory blob.Store seeded with objects. Empty
// values are kept as zero-size objects.
func NewMemoryBucket(objects map[string][]byte) Store { return memorystore.New(objects) }
