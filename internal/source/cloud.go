package source

import (
	"context"
	"fmt"

	"dicompreset/internal/blob"
	"dicompreset/internal/observability"
)

// CloudSource lists objects under Prefix in a bucket and fetches them.
type CloudSource struct {
	Store   blob.Store
	Prefix  string
	Options Options
}

// Kind implements Source.
func (c CloudSource) Kind() string { return "cloud" }

// Collect lists Prefix, drops zero-size entries (folder markers), and fetches
// the rest concurrently.
func (c CloudSource) Collect(ctx context.Context) ([]Blob, error) {
	if c.Store == nil {
		return nil, fmt.Errorf("%w: no object store configured", ErrSourceUnavailable)
	}
	infos, err := c.Store.List(ctx, c.Prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: list %q: %w", ErrSourceUnavailable, c.Prefix, err)
	}
	jobs := make([]fetchJob, 0, len(infos))
	for _, info := range infos {
		if info.Size <= 0 {
			continue
		}
		jobs = append(jobs, fetchJob{
			store: c.Store,
			key:   info.Key,
			blob:  Blob{Key: info.Key, Name: BaseName(info.Key)},
		})
	}
	observability.OrDefault(c.Options.Logger).Info("listed objects",
		"driver", c.Store.Driver(), "prefix", c.Prefix, "objects", len(infos), "fetching", len(jobs))
	return gather(ctx, jobs, c.Options)
}

// Cloud collects blobs under prefix from store.
func Cloud(ctx context.Context, store blob.Store, prefix string, opts Options) ([]Blob, error) {
	return CloudSource{Store: store, Prefix: prefix, Options: opts}.Collect(ctx)
}
