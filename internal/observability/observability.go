// Package observability provides the logger, metrics recorder and tracer
// used by the export pipeline.
package observability

import (
	"context"
	"time"
)

// MetricsRecorder captures the outcome of a pipeline operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// FileCounter records per-file events. Recorders that do not care may skip it.
type FileCounter interface {
	FilesFetched(source string, n int)
	DecodeFailures(n int)
}

// Tracer starts spans around pipeline stages.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended exactly once with the stage error, if any.
type TraceSpan interface {
	End(err error)
}

// NoopRecorder discards observations.
type NoopRecorder struct{}

// Observe implements MetricsRecorder.
func (NoopRecorder) Observe(context.Context, string, bool, time.Duration) {}

// NoopTracer produces spans that record nothing.
type NoopTracer struct{}

// Start implements Tracer.
func (NoopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}
