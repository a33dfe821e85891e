// internal/archiver/metrics.go
package archiver

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for archive runs. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Registry          *prometheus.Registry
	ResourcesTotal    *prometheus.CounterVec
	ResourceBytes     prometheus.Counter
	FetchDuration     prometheus.Histogram
	FramesTotal       prometheus.Counter
	ArchivesTotal     *prometheus.CounterVec
	EncodingFallbacks prometheus.Counter
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	resources := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webarchiver_resources_total",
			Help: "Resources finished, by type and outcome.",
		},
		[]string{"type", "outcome"},
	)
	resourceBytes := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webarchiver_resource_bytes_total",
			Help: "Bytes of resource bodies written to scratch storage.",
		},
	)
	fetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webarchiver_fetch_duration_seconds",
			Help:    "Latency of resource and root document fetches.",
			Buckets: prometheus.DefBuckets,
		},
	)
	frames := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webarchiver_frames_total",
			Help: "Frames created, including the root frame.",
		},
	)
	archives := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webarchiver_archives_total",
			Help: "Archive runs by result.",
		},
		[]string{"result"},
	)
	fallbacks := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webarchiver_response_encoding_fallbacks_total",
			Help: "Response records that fell back to the plain encoding.",
		},
	)

	registry.MustRegister(resources, resourceBytes, fetchDuration, frames, archives, fallbacks)

	return &Metrics{
		Registry:          registry,
		ResourcesTotal:    resources,
		ResourceBytes:     resourceBytes,
		FetchDuration:     fetchDuration,
		FramesTotal:       frames,
		ArchivesTotal:     archives,
		EncodingFallbacks: fallbacks,
	}
}

// ObserveResource records a finished resource.
func (m *Metrics) ObserveResource(t ResourceType, err error, size int64) {
	if m == nil {
		return
	}
	m.ResourcesTotal.WithLabelValues(t.String(), outcomeLabel(err)).Inc()
	if size > 0 {
		m.ResourceBytes.Add(float64(size))
	}
}

// ObserveFetch records a fetch latency.
func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

// IncFrames counts a new frame.
func (m *Metrics) IncFrames() {
	if m == nil {
		return
	}
	m.FramesTotal.Inc()
}

// IncArchive counts a finished run. result is "succeeded", "failed" or "cancelled".
func (m *Metrics) IncArchive(result string) {
	if m == nil {
		return
	}
	m.ArchivesTotal.WithLabelValues(result).Inc()
}

// IncEncodingFallback counts a response record that used the plain encoding.
func (m *Metrics) IncEncodingFallback() {
	if m == nil {
		return
	}
	m.EncodingFallbacks.Inc()
}

// WriteToTextfile exports the registry in the node_exporter textfile format.
func (m *Metrics) WriteToTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
