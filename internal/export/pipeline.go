// Package export runs one preset export: collect files, decode them, group
// the instances into studies and series, render the manifest and write it.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"dicompreset/internal/extract"
	"dicompreset/internal/hierarchy"
	"dicompreset/internal/manifest"
	"dicompreset/internal/observability"
	"dicompreset/internal/source"
)

var (
	// ErrBusy rejects a Run while another Run of the same pipeline is active.
	ErrBusy = errors.New("export already in progress")
	// ErrEmptyInput reports that the source produced no files. Nothing is
	// written.
	ErrEmptyInput = errors.New("no input files")
	// ErrSourceUnavailable is the source package sentinel, re-exported for
	// callers that only import export.
	ErrSourceUnavailable = source.ErrSourceUnavailable
)

// Pipeline stage names used for metrics and trace spans.
const (
	OpCollect = "collect"
	OpExtract = "extract"
	OpBuild   = "build"
	OpWrite   = "write"
	OpExport  = "export"
)

// Request describes one export.
type Request struct {
	Source      source.Source
	DataPath    string // prefix joined to every file name in the manifest
	Format      manifest.Format
	Destination Destination // nil builds the manifest without writing it
}

// Result is the outcome of a successful Run.
type Result struct {
	RunID          string
	Manifest       manifest.Manifest
	Encoded        []byte
	FileName       string
	Location       string
	URL            string
	Files          int
	DecodeFailures int
}

// Pipeline holds the long-lived collaborators of an export. A Pipeline runs
// one export at a time.
type Pipeline struct {
	Extractor *extract.Extractor
	Metrics   observability.MetricsRecorder
	Tracer    observability.Tracer
	Logger    *slog.Logger
	Now       func() time.Time

	busy atomic.Bool
}

// Run performs the export described by req.
func (p *Pipeline) Run(ctx context.Context, req Request) (res Result, err error) {
	if !p.busy.CompareAndSwap(false, true) {
		return Result{}, ErrBusy
	}
	defer p.busy.Store(false)

	if req.Source == nil {
		return Result{}, errors.New("export: no source configured")
	}
	if !req.Format.Valid() {
		return Result{}, fmt.Errorf("export: unknown format %d", int(req.Format))
	}

	res.RunID = uuid.NewString()
	ctx = observability.WithRunID(ctx, res.RunID)
	log := p.logger().With("run_id", res.RunID, "source", req.Source.Kind())
	started := time.Now()
	defer func() {
		p.metrics().Observe(ctx, OpExport, err == nil || errors.Is(err, ErrEmptyInput), time.Since(started))
	}()

	var blobs []source.Blob
	err = p.stage(ctx, OpCollect, func(ctx context.Context) error {
		var cerr error
		blobs, cerr = req.Source.Collect(ctx)
		return cerr
	})
	if err != nil {
		log.Debug("collect failed", "error", err)
		return Result{}, err
	}
	if len(blobs) == 0 {
		log.Info("nothing to export")
		return Result{}, ErrEmptyInput
	}
	if fc, ok := p.Metrics.(observability.FileCounter); ok {
		fc.FilesFetched(req.Source.Kind(), len(blobs))
	}

	var results []extract.Result
	err = p.stage(ctx, OpExtract, func(ctx context.Context) error {
		var xerr error
		results, xerr = p.extractor().ExtractAll(ctx, blobs)
		return xerr
	})
	if err != nil {
		return Result{}, fmt.Errorf("extract: %w", err)
	}
	failures := extract.Failures(results)
	if fc, ok := p.Metrics.(observability.FileCounter); ok && failures > 0 {
		fc.DecodeFailures(failures)
	}

	var m manifest.Manifest
	var encoded []byte
	err = p.stage(ctx, OpBuild, func(context.Context) error {
		studies := hierarchy.Group(hierarchy.FromResults(results))
		var berr error
		if m, berr = manifest.Build(studies, req.DataPath, req.Format); berr != nil {
			return berr
		}
		encoded, berr = manifest.Encode(m)
		return berr
	})
	if err != nil {
		return Result{}, err
	}

	res.Manifest = m
	res.Encoded = encoded
	res.FileName = manifest.FileName(p.now())
	res.Files = len(blobs)
	res.DecodeFailures = failures

	if req.Destination != nil {
		var w Written
		err = p.stage(ctx, OpWrite, func(ctx context.Context) error {
			var werr error
			w, werr = req.Destination.Write(ctx, res.FileName, encoded)
			return werr
		})
		if err != nil {
			return Result{}, err
		}
		res.Location, res.URL = w.Location, w.URL
	}

	log.Info("export complete",
		"files", res.Files, "decode_failures", failures, "studies", len(m),
		"format", req.Format.String(), "file", res.FileName, "location", res.Location)
	return res, nil
}

// Busy reports whether a Run is in progress.
func (p *Pipeline) Busy() bool { return p.busy.Load() }

// stage runs fn inside a trace span and records its duration.
func (p *Pipeline) stage(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := p.tracer().Start(ctx, op)
	started := time.Now()
	err := fn(ctx)
	p.metrics().Observe(ctx, op, err == nil, time.Since(started))
	span.End(err)
	return err
}

func (p *Pipeline) extractor() *extract.Extractor {
	if p.Extractor == nil {
		return &extract.Extractor{Logger: p.Logger}
	}
	return p.Extractor
}

func (p *Pipeline) metrics() observability.MetricsRecorder {
	if p.Metrics == nil {
		return observability.NoopRecorder{}
	}
	return p.Metrics
}

func (p *Pipeline) tracer() observability.Tracer {
	if p.Tracer == nil {
		return observability.NoopTracer{}
	}
	return p.Tracer
}

func (p *Pipeline) logger() *slog.Logger { return observability.OrDefault(p.Logger) }

func (p *Pipeline) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}
