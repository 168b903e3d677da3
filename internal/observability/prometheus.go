package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dicompreset"

// PrometheusRecorder publishes pipeline metrics on a private registry so a
// one-shot CLI run can dump them to a node-exporter textfile.
type PrometheusRecorder struct {
	registry       *prometheus.Registry
	durations      *prometheus.HistogramVec
	results        *prometheus.CounterVec
	filesFetched   *prometheus.CounterVec
	decodeFailures prometheus.Counter
}

// NewPrometheusRecorder registers the pipeline collectors on a fresh registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	r := &PrometheusRecorder{
		registry: prometheus.NewRegistry(),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of export pipeline operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Export pipeline operations by outcome.",
		}, []string{"operation", "status"}),
		filesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_fetched_total",
			Help:      "Files read from a source.",
		}, []string{"source"}),
		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_failures_total",
			Help:      "Files the DICOM decoder could not parse.",
		}),
	}
	r.registry.MustRegister(r.durations, r.results, r.filesFetched, r.decodeFailures)
	return r
}

// Registry exposes the underlying registry as a Gatherer.
func (r *PrometheusRecorder) Registry() *prometheus.Registry { return r.registry }

// Observe implements MetricsRecorder.
func (r *PrometheusRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
	r.results.WithLabelValues(operation, status).Inc()
}

// FilesFetched implements FileCounter.
func (r *PrometheusRecorder) FilesFetched(source string, n int) {
	r.filesFetched.WithLabelValues(source).Add(float64(n))
}

// DecodeFailures implements FileCounter.
func (r *PrometheusRecorder) DecodeFailures(n int) {
	r.decodeFailures.Add(float64(n))
}

// WriteTextfile dumps the registry in text exposition format to path.
func (r *PrometheusRecorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
