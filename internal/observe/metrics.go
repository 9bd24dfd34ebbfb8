// Package observe provides application-wide observability primitives for
// murmur: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all murmur metrics.
const meterName = "github.com/MrWong99/murmur"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// SynthesisDuration tracks the latency of one synthesis call. Use with
	// attribute.String("status", ...).
	SynthesisDuration metric.Float64Histogram

	// PlaybackDuration tracks how long one item was audible (or tried to be).
	PlaybackDuration metric.Float64Histogram

	// --- Counters ---

	// SpeechRequests counts accepted Speak calls by outcome. Use with
	// attributes: attribute.String("mode", ...), attribute.String("status", ...)
	// where status is one of "queued", "dropped", "played", "failed", "cancelled".
	SpeechRequests metric.Int64Counter

	// SpeechErrors counts per-item failures. Use with attribute:
	//   attribute.String("kind", ...)
	SpeechErrors metric.Int64Counter

	// VoiceFallbacks counts requests for unknown modes that were served by
	// the default voice. Use with attribute: attribute.String("mode", ...)
	VoiceFallbacks metric.Int64Counter

	// SynthesizedBytes counts audio bytes received from the synthesis backend.
	SynthesizedBytes metric.Int64Counter

	// --- Gauges ---

	// QueueDepth tracks the number of requests waiting in the queue.
	QueueDepth metric.Int64UpDownCounter

	// ActivePumps tracks the number of running queue pumps (0 or 1, briefly
	// 2 while a stopped pump winds down).
	ActivePumps metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...),
	//   attribute.String("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// synthesis round trips.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30,
}

// playbackBuckets defines histogram bucket boundaries (in seconds) for spoken
// replies, which run from a word to a couple of minutes.
var playbackBuckets = []float64{
	0.5, 1, 2.5, 5, 10, 20, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.SynthesisDuration, err = m.Float64Histogram("murmur.synthesis.duration",
		metric.WithDescription("Latency of speech synthesis requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlaybackDuration, err = m.Float64Histogram("murmur.playback.duration",
		metric.WithDescription("Time spent playing one queued item."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(playbackBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.SpeechRequests, err = m.Int64Counter("murmur.speech.requests",
		metric.WithDescription("Total speech requests by mode and outcome."),
	); err != nil {
		return nil, err
	}
	if met.SpeechErrors, err = m.Int64Counter("murmur.speech.errors",
		metric.WithDescription("Total per-item speech failures by kind."),
	); err != nil {
		return nil, err
	}
	if met.VoiceFallbacks, err = m.Int64Counter("murmur.voice.fallbacks",
		metric.WithDescription("Requests for unknown modes served by the default voice."),
	); err != nil {
		return nil, err
	}
	if met.SynthesizedBytes, err = m.Int64Counter("murmur.synthesis.bytes",
		metric.WithDescription("Audio bytes received from the synthesis backend."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.QueueDepth, err = m.Int64UpDownCounter("murmur.queue.depth",
		metric.WithDescription("Number of speech requests waiting in the queue."),
	); err != nil {
		return nil, err
	}
	if met.ActivePumps, err = m.Int64UpDownCounter("murmur.queue.active_pumps",
		metric.WithDescription("Number of running queue pumps."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("murmur.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordSpeechRequest records one speech request outcome for mode.
func (m *Metrics) RecordSpeechRequest(ctx context.Context, mode, status string) {
	m.SpeechRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("status", status),
		),
	)
}

// RecordSpeechError records one per-item failure of the given kind.
func (m *Metrics) RecordSpeechError(ctx context.Context, kind string) {
	m.SpeechErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordSynthesis records the latency and payload size of one synthesis call.
func (m *Metrics) RecordSynthesis(ctx context.Context, seconds float64, bytes int, status string) {
	m.SynthesisDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("status", status)),
	)
	if bytes > 0 {
		m.SynthesizedBytes.Add(ctx, int64(bytes))
	}
}

// RecordVoiceFallback records a request for an unknown mode.
func (m *Metrics) RecordVoiceFallback(ctx context.Context, mode string) {
	m.VoiceFallbacks.Add(ctx, 1,
		metric.WithAttributes(attribute.String("mode", mode)),
	)
}
