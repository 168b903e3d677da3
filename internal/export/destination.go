package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"dicompreset/internal/blob"
)

// Written describes where a manifest ended up.
type Written struct {
	Location string // file path or object key
	URL      string // download link, when the backend can sign one
}

// Destination stores an encoded manifest under a file name.
type Destination interface {
	Write(ctx context.Context, fileName string, data []byte) (Written, error)
}

const contentTypeJSON = "application/json"

// DirDestination writes manifests into a local directory. Existing files are
// never overwritten.
type DirDestination struct {
	Dir string
}

// Write implements Destination.
func (d DirDestination) Write(ctx context.Context, fileName string, data []byte) (Written, error) {
	store, err := blob.NewFilesystem(d.Dir)
	if err != nil {
		return Written{}, fmt.Errorf("open output dir: %w", err)
	}
	info, err := store.Put(ctx, fileName, bytes.NewReader(data), blob.PutOptions{})
	if err != nil {
		return Written{}, fmt.Errorf("write %s: %w", fileName, err)
	}
	dir := d.Dir
	if dir == "" {
		dir = "."
	}
	return Written{Location: path.Join(dir, info.Key)}, nil
}

// StoreDestination uploads manifests to a blob store under Prefix and signs a
// download link when the driver supports it.
type StoreDestination struct {
	Store         blob.Store
	Prefix        string
	PresignExpiry time.Duration // default blob core default
}

// Write implements Destination.
func (d StoreDestination) Write(ctx context.Context, fileName string, data []byte) (Written, error) {
	if d.Store == nil {
		return Written{}, errors.New("no output store configured")
	}
	key := fileName
	if d.Prefix != "" {
		key = path.Join(d.Prefix, fileName)
	}
	info, err := d.Store.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{ContentType: contentTypeJSON})
	if err != nil {
		return Written{}, fmt.Errorf("upload %s: %w", key, err)
	}
	out := Written{Location: info.Key}
	url, err := d.Store.PresignURL(ctx, info.Key, blob.SignedURLOptions{Method: "GET", Expiry: d.PresignExpiry})
	switch {
	case err == nil:
		out.URL = url
	case errors.Is(err, blob.ErrUnsupported):
	default:
		return out, fmt.Errorf("presign %s: %w", info.Key, err)
	}
	return out, nil
}
