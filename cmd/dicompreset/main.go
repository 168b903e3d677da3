// Command dicompreset scans DICOM files on local disk or in a cloud bucket,
// groups them into studies and series, and writes a viewer preset manifest.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/smithy-go"

	"dicompreset/internal/blob"
	"dicompreset/internal/export"
	"dicompreset/internal/source"
)

var (
	exitFunc  = os.Exit
	openStore = blob.Open
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	exitFunc(code)
}

// cli runs one command line and returns the process exit code.
func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		var usage usageError
		if errors.As(err, &usage) {
			_, _ = fmt.Fprintf(stderr, "%v\n", err)
			return 2
		}
		_, _ = fmt.Fprintf(stderr, "%s: %s\n", errorName(err), errorMessage(err))
		return 1
	}
	return 0
}

// errorName classifies err for the "<name>: <message>" line printed on failure.
func errorName(err error) string {
	var apiErr smithy.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.ErrorCode()
	case errors.Is(err, export.ErrBusy):
		return "Busy"
	case errors.Is(err, source.ErrSourceUnavailable):
		return "SourceUnavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Canceled"
	case errors.As(err, new(configError)):
		return "ConfigError"
	default:
		return "Error"
	}
}

// errorMessage is the text after the name. Service errors show only the
// service message; the full chain is logged at debug level by the pipeline.
func errorMessage(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorMessage() != "" {
		return apiErr.ErrorMessage()
	}
	return err.Error()
}

// usageError marks bad command lines; they exit with status 2.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// configError marks invalid settings.
type configError struct{ err error }

func (e configError) Error() string { return e.err.Error() }
func (e configError) Unwrap() error { return e.err }
