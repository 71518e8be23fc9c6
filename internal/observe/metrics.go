// Package observe provides application-wide observability primitives for
// cuecard: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all cuecard metrics.
const meterName = "github.com/MrWong99/cuecard"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Audio pipeline ---

	// FramesMixed counts mixed frames produced by the poll loop.
	FramesMixed metric.Int64Counter

	// FramesSent counts mixed frames handed to a live session.
	FramesSent metric.Int64Counter

	// FramesDropped counts frames that could not be delivered. Use with
	// attribute:
	//   attribute.String("reason", ...)
	FramesDropped metric.Int64Counter

	// --- Notes ---

	// NotesEmitted counts validated notes. Use with attribute:
	//   attribute.String("category", ...)
	NotesEmitted metric.Int64Counter

	// NotesRejected counts completed turns that produced no note.
	NotesRejected metric.Int64Counter

	// TurnDuration tracks the time from a turn's first token to its
	// generation-complete signal.
	TurnDuration metric.Float64Histogram

	// --- Session ---

	// HeartbeatFailures counts failed keep-alive pings.
	HeartbeatFailures metric.Int64Counter

	// Reconnects counts reconnect attempts. Use with attribute:
	//   attribute.String("status", ...)
	Reconnects metric.Int64Counter

	// ProviderErrors counts backend errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// ActiveSessions tracks the number of live capture sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// turnBuckets defines histogram bucket boundaries (in seconds) for model
// turn latencies.
var turnBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Audio pipeline.
	if met.FramesMixed, err = m.Int64Counter("cuecard.frames.mixed",
		metric.WithDescription("Total mixed frames produced."),
	); err != nil {
		return nil, err
	}
	if met.FramesSent, err = m.Int64Counter("cuecard.frames.sent",
		metric.WithDescription("Total mixed frames sent to the live session."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("cuecard.frames.dropped",
		metric.WithDescription("Total frames dropped by reason."),
	); err != nil {
		return nil, err
	}

	// Notes.
	if met.NotesEmitted, err = m.Int64Counter("cuecard.notes.emitted",
		metric.WithDescription("Total notes emitted by category."),
	); err != nil {
		return nil, err
	}
	if met.NotesRejected, err = m.Int64Counter("cuecard.notes.rejected",
		metric.WithDescription("Total completed turns that produced no note."),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("cuecard.turn.duration",
		metric.WithDescription("Time from first token to generation complete."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(turnBuckets...),
	); err != nil {
		return nil, err
	}

	// Session.
	if met.HeartbeatFailures, err = m.Int64Counter("cuecard.heartbeat.failures",
		metric.WithDescription("Total failed keep-alive pings."),
	); err != nil {
		return nil, err
	}
	if met.Reconnects, err = m.Int64Counter("cuecard.reconnects",
		metric.WithDescription("Total reconnect attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("cuecard.provider.errors",
		metric.WithDescription("Total backend errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("cuecard.active_sessions",
		metric.WithDescription("Number of live capture sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("cuecard.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
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

// RecordNote records one emitted note of the given category.
func (m *Metrics) RecordNote(ctx context.Context, category string) {
	m.NotesEmitted.Add(ctx, 1, metric.WithAttributes(attribute.String("category", category)))
}

// RecordDrop records one dropped frame.
func (m *Metrics) RecordDrop(ctx context.Context, reason string) {
	m.FramesDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordReconnect records one reconnect attempt with its outcome.
func (m *Metrics) RecordReconnect(ctx context.Context, status string) {
	m.Reconnects.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
