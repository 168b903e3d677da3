package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"dicompreset/internal/blob"
	"dicompreset/internal/config"
	"dicompreset/internal/export"
	"dicompreset/internal/extract"
	"dicompreset/internal/observability"
	"dicompreset/internal/source"
)

// app carries what every sub-command needs once flags are parsed.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var configPath string
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "dicompreset",
		Short: "Build viewer preset manifests from DICOM files",
		Long: `dicompreset reads DICOM files from local disk or from a cloud bucket,
groups them by study and series, and writes a preset_<date>_<time>.json
manifest listing every instance path.

Settings come from defaults, an optional YAML profile (--config), DICOMPRESET_*
environment variables and flags, in increasing priority.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return configError{err}
			}
			var setErr error
			cmd.Flags().Visit(func(f *pflag.Flag) {
				if f.Name == "config" || setErr != nil {
					return
				}
				setErr = cfg.Set(f.Name, f.Value.String())
			})
			if setErr != nil {
				return usageError{setErr}
			}
			if err := cfg.Validate(); err != nil {
				return configError{err}
			}
			logger, err := observability.NewLogger(stderr, cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return configError{err}
			}
			a.cfg = cfg
			a.logger = logger
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })

	pf := root.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "YAML profile with default settings")
	pf.String("mode", config.ModeLocal, "source mode: local or cloud")
	pf.String("driver", string(blob.DriverS3), "cloud backend: s3 or gcs")
	pf.String("access-key", "", "cloud access key id")
	pf.String("secret-key", "", "cloud secret access key")
	pf.String("session-token", "", "optional session token")
	pf.String("region", "us-east-1", "bucket region")
	pf.String("endpoint", "", "custom endpoint, e.g. a MinIO server")
	pf.Bool("path-style", false, "use path-style bucket addressing")
	pf.String("bucket", "", "bucket holding the DICOM objects")
	pf.String("gcs-credentials-file", "", "service account key for the gcs driver")
	pf.String("data-path", "", "bucket prefix to scan and path root written into the manifest")
	pf.String("format", "v1", "manifest format: v1 (structured items) or v2 (plain paths)")
	pf.String("output-dir", ".", "directory the manifest is written to")
	pf.String("output-prefix", "", "upload the manifest to the bucket under this prefix instead")
	pf.Int("concurrency", source.DefaultConcurrency, "files read and decoded in parallel")
	pf.Duration("fetch-timeout", 0, "timeout for each file read, 0 for none")
	pf.String("log-level", "info", "debug, info, warn or error")
	pf.String("log-format", "text", "text or json")
	pf.String("metrics-file", "", "write Prometheus metrics to this textfile after the run")
	pf.String("trace-file", "", "append JSON trace spans to this file")

	root.AddCommand(newExportCmd(a), newInspectCmd(a))
	return root
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export [paths...]",
		Short: "Scan files and write a preset manifest",
		Long: `Scan DICOM files and write a preset manifest.

In local mode the arguments are files or directories; directories are read
recursively. In cloud mode every non-empty object under --data-path in
--bucket is read and no arguments are accepted.

Examples:
  dicompreset export --data-path /data/study1 ./study1
  dicompreset export --mode cloud --bucket scans --data-path study1 --format v2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Mode == config.ModeCloud && len(args) > 0 {
				return usageError{errors.New("export: cloud mode takes no path arguments")}
			}
			return a.runExport(cmd.Context(), args)
		},
	}
}

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Print the decoded record of one DICOM file as JSON",
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usageError{fmt.Errorf("inspect: want exactly one file, got %d", len(args))}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInspect(cmd.Context(), args[0])
		},
	}
}

func (a *app) sourceOptions() source.Options {
	return source.Options{
		Concurrency:  a.cfg.Concurrency,
		FetchTimeout: a.cfg.FetchTimeout,
		Logger:       a.logger,
	}
}

func (a *app) runExport(ctx context.Context, args []string) (err error) {
	format, err := a.cfg.ManifestFormat()
	if err != nil {
		return configError{err}
	}

	recorder := observability.NewPrometheusRecorder()
	if a.cfg.MetricsFile != "" {
		defer func() {
			if werr := recorder.WriteTextfile(a.cfg.MetricsFile); werr != nil {
				a.logger.Warn("write metrics textfile", "path", a.cfg.MetricsFile, "error", werr)
			}
		}()
	}
	var tracer observability.Tracer = observability.NoopTracer{}
	if a.cfg.TraceFile != "" {
		f, err := os.OpenFile(a.cfg.TraceFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return configError{fmt.Errorf("open trace file: %w", err)}
		}
		defer func() { _ = f.Close() }()
		tracer = observability.NewJSONTracer(f)
	}

	req := export.Request{DataPath: a.cfg.DataPath, Format: format}
	opts := a.sourceOptions()
	switch a.cfg.Mode {
	case config.ModeCloud:
		store, err := openStore(ctx, a.cfg.BlobOptions())
		if err != nil {
			return fmt.Errorf("%w: %w", source.ErrSourceUnavailable, err)
		}
		if c, ok := store.(io.Closer); ok {
			defer func() { _ = c.Close() }()
		}
		req.Source = source.CloudSource{Store: store, Prefix: a.cfg.CloudPrefix(), Options: opts}
		if a.cfg.OutputPrefix != "" {
			req.Destination = export.StoreDestination{Store: store, Prefix: a.cfg.OutputPrefix}
		}
	default:
		req.Source = source.LocalSource{Paths: args, Options: opts}
	}
	if req.Destination == nil {
		req.Destination = export.DirDestination{Dir: a.cfg.OutputDir}
	}

	p := &export.Pipeline{
		Extractor: &extract.Extractor{Concurrency: a.cfg.Concurrency, Logger: a.logger},
		Metrics:   recorder,
		Tracer:    tracer,
		Logger:    a.logger,
	}
	res, err := p.Run(ctx, req)
	if errors.Is(err, export.ErrEmptyInput) {
		a.logger.Info("no files to export, nothing written")
		return nil
	}
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(a.stdout, res.Location)
	if res.URL != "" {
		_, _ = fmt.Fprintln(a.stdout, res.URL)
	}
	return nil
}

func (a *app) runInspect(ctx context.Context, path string) error {
	blobs, err := source.Local(ctx, []string{path}, a.sourceOptions())
	if err != nil {
		return err
	}
	if len(blobs) == 0 {
		return fmt.Errorf("inspect %s: file is empty", path)
	}
	ex := &extract.Extractor{Logger: a.logger}
	res := ex.Extract(blobs[0])
	if res.Failed() {
		return fmt.Errorf("decode %s: %w", path, res.Err)
	}
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res.Record)
}
