// Package source collects raw file blobs for an export, either from files on
// local disk or from objects under a prefix in a cloud bucket.
//
// Collection is all-or-nothing: the first read failure cancels the remaining
// reads and no blobs are returned.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"dicompreset/internal/blob"
	"dicompreset/internal/observability"
)

// ErrSourceUnavailable wraps every listing or read failure.
var ErrSourceUnavailable = errors.New("source unavailable")

// DefaultConcurrency bounds parallel reads when Options.Concurrency is unset.
const DefaultConcurrency = 8

// Blob is one raw input file.
type Blob struct {
	Key  string // object key or file path
	Name string // final path segment of Key
	Data []byte
}

// Options tunes collection.
type Options struct {
	Concurrency  int           // parallel reads, default DefaultConcurrency
	FetchTimeout time.Duration // per-read timeout, 0 disables
	Logger       *slog.Logger
}

func (o Options) limit() int {
	if o.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return o.Concurrency
}

// Source produces the blobs for one export.
type Source interface {
	// Collect returns every usable blob, or nil when there is nothing to read.
	Collect(ctx context.Context) ([]Blob, error)
	// Kind names the source for logs and metrics ("local" or "cloud").
	Kind() string
}

// BaseName returns the part of key after its last '/'.
func BaseName(key string) string {
	return key[strings.LastIndex(key, "/")+1:]
}

// fetchJob reads one blob from a store.
type fetchJob struct {
	store blob.Store
	key   string // key inside store
	blob  Blob   // Key and Name preset; Data filled by gather
}

// gather runs every job concurrently and returns the blobs in job order. The
// first failure cancels the rest and is the only error reported.
func gather(ctx context.Context, jobs []fetchJob, opts Options) ([]Blob, error) {
	if len(jobs) == 0 {
		return nil, nil
	}
	out := make([]Blob, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.limit())
	for i, job := range jobs {
		g.Go(func() error {
			data, err := read(gctx, job.store, job.key, opts.FetchTimeout)
			if err != nil {
				return fmt.Errorf("%w: fetch %s: %w", ErrSourceUnavailable, job.blob.Key, err)
			}
			b := job.blob
			b.Data = data
			out[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	observability.OrDefault(opts.Logger).Debug("source collected", "files", len(out))
	return out, nil
}

func read(ctx context.Context, store blob.Store, key string, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	_, rc, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}
