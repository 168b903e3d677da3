package blob

import (
	"dicompreset/internal/infra/blob/fs"
)

// NewFilesystem constructs a filesystem-backed blob.Store rooted at the provided path.
// The root must already exist when it is used as a read-only source.
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}
