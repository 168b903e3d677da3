package extract

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"dicompreset/internal/observability"
	"dicompreset/internal/source"
)

// Result is the outcome for one file. A failed decode keeps the file name
// and carries the cause; its record has no identifying attributes.
type Result struct {
	FileName string
	Record   Record
	Err      error
}

// Failed reports whether the decoder rejected the file.
func (r Result) Failed() bool { return r.Err != nil }

// Extractor decodes blobs concurrently.
type Extractor struct {
	Decoder     Decoder // default ParserDecoder
	Concurrency int     // default source.DefaultConcurrency
	Logger      *slog.Logger
}

// Extract decodes one blob. It never fails: decoder errors (and panics) are
// logged and returned in the Result.
func (e *Extractor) Extract(b source.Blob) (res Result) {
	res = Result{FileName: b.Name}
	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("decoder panic: %v", p)
			res.Record = Record{KeyFileName: b.Name}
			e.logger().Warn("error reading dicom file", "file", b.Key, "error", res.Err)
		}
	}()
	ds, err := e.decoder().Decode(b.Data)
	if err != nil {
		res.Err = err
		res.Record = Record{KeyFileName: b.Name}
		e.logger().Warn("error reading dicom file", "file", b.Key, "error", err)
		return res
	}
	rec := ds.Dict
	if rec == nil {
		rec = Record{}
	}
	rec[KeyMeta] = ds.Meta
	rec[KeyFileName] = b.Name
	res.Record = rec
	return res
}

// ExtractAll decodes every blob and returns results in input order. Only
// context cancellation stops the batch.
func (e *Extractor) ExtractAll(ctx context.Context, blobs []source.Blob) ([]Result, error) {
	out := make([]Result, len(blobs))
	g, gctx := errgroup.WithContext(ctx)
	limit := e.Concurrency
	if limit <= 0 {
		limit = source.DefaultConcurrency
	}
	g.SetLimit(limit)
	for i, b := range blobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = e.Extract(b)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Failures counts failed results.
func Failures(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Failed() {
			n++
		}
	}
	return n
}

func (e *Extractor) decoder() Decoder {
	if e.Decoder == nil {
		return ParserDecoder{}
	}
	return e.Decoder
}

func (e *Extractor) logger() *slog.Logger {
	return observability.OrDefault(e.Logger)
}
