// Package gcs implements core.Store on Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"dicompreset/internal/blob/core"
)

// Config holds construction parameters for a single-bucket GCS store.
type Config struct {
	Bucket          string
	CredentialsFile string // service account key; empty uses application default credentials
	Endpoint        string // optional, e.g. a local emulator
	Anonymous       bool   // skip authentication (public buckets, emulators)
}

// Store implements core.Store on one GCS bucket.
type Store struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
}

// New creates a GCS blob store from Config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Anonymous {
		opts = append(opts, option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &Store{client: client, bucket: client.Bucket(cfg.Bucket), name: cfg.Bucket}, nil
}

func (s *Store) Driver() core.Driver { return core.DriverGCS }

// Close releases the underlying client.
func (s *Store) Close() error { return s.client.Close() }

// Put writes a new object; the precondition makes it fail if the key exists.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	w := s.bucket.Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = opts.ContentType
	if len(opts.Metadata) > 0 {
		w.Metadata = opts.Metadata
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return core.Info{}, fmt.Errorf("failed to copy to GCS object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return core.Info{}, fmt.Errorf("failed to close GCS writer for %s: %w", key, err)
	}
	return fromAttrs(w.Attrs()), nil
}

func (s *Store) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	rd, err := s.bucket.Object(key).NewReader(ctx)
	if err != nil {
		return core.Info{}, nil, describeError(key, err)
	}
	info := core.Info{
		Key:          key,
		Size:         rd.Attrs.Size,
		ContentType:  rd.Attrs.ContentType,
		LastModified: rd.Attrs.LastModified,
	}
	return info, rd, nil
}

func (s *Store) Head(ctx context.Context, key string) (core.Info, error) {
	attrs, err := s.bucket.Object(key).Attrs(ctx)
	if err != nil {
		return core.Info{}, describeError(key, err)
	}
	return fromAttrs(attrs), nil
}

// List returns every object under prefix ordered by key.
func (s *Store) List(ctx context.Context, prefix string) ([]core.Info, error) {
	var infos []core.Info
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, describeError(prefix, err)
		}
		infos = append(infos, fromAttrs(attrs))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// PresignURL signs a V4 GET URL; it needs credentials able to sign.
func (s *Store) PresignURL(ctx context.Context, key string, opts core.SignedURLOptions) (string, error) {
	if opts.Method != "" && strings.ToUpper(opts.Method) != "GET" {
		return "", core.ErrUnsupported
	}
	expiry := opts.Expiry
	if expiry <= 0 {
		expiry = core.DefaultPresignExpiry
	}
	return s.bucket.SignedURL(key, &storage.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(expiry),
		Scheme:  storage.SigningSchemeV4,
	})
}

func fromAttrs(attrs *storage.ObjectAttrs) core.Info {
	if attrs == nil {
		return core.Info{}
	}
	return core.Info{
		Key:          attrs.Name,
		Size:         attrs.Size,
		ContentType:  attrs.ContentType,
		ETag:         strings.Trim(attrs.Etag, "\""),
		Metadata:     attrs.Metadata,
		LastModified: attrs.Updated,
	}
}

func describeError(key string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("NoSuchKey: %s: %w", key, err)
	}
	return err
}
