package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the value of the data point carrying key=value, or -1.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if key == "" {
			return dp.Value
		}
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == key && kv.Value.AsString() == value {
				return dp.Value
			}
		}
	}
	return -1
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestFrameCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.FramesMixed.Add(ctx, 3)
	m.FramesSent.Add(ctx, 2)
	m.RecordDrop(ctx, "no_session")
	m.RecordDrop(ctx, "no_session")
	m.RecordDrop(ctx, "circuit_open")

	rm := collect(t, reader)
	if got := sumFor(t, rm, "cuecard.frames.mixed", "", ""); got != 3 {
		t.Errorf("frames.mixed = %d, want 3", got)
	}
	if got := sumFor(t, rm, "cuecard.frames.sent", "", ""); got != 2 {
		t.Errorf("frames.sent = %d, want 2", got)
	}
	if got := sumFor(t, rm, "cuecard.frames.dropped", "reason", "no_session"); got != 2 {
		t.Errorf("frames.dropped{no_session} = %d, want 2", got)
	}
}

func TestNotesCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordNote(ctx, "advice")
	m.RecordNote(ctx, "advice")
	m.RecordNote(ctx, "answer")
	m.NotesRejected.Add(ctx, 1)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "cuecard.notes.emitted", "category", "advice"); got != 2 {
		t.Errorf("notes.emitted{advice} = %d, want 2", got)
	}
	if got := sumFor(t, rm, "cuecard.notes.rejected", "", ""); got != 1 {
		t.Errorf("notes.rejected = %d, want 1", got)
	}
}

func TestSessionCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HeartbeatFailures.Add(ctx, 1)
	m.RecordReconnect(ctx, "ok")
	m.RecordReconnect(ctx, "error")
	m.RecordReconnect(ctx, "error")
	m.RecordProviderError(ctx, "gemini-live", "transport")
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "cuecard.heartbeat.failures", "", ""); got != 1 {
		t.Errorf("heartbeat.failures = %d, want 1", got)
	}
	if got := sumFor(t, rm, "cuecard.reconnects", "status", "error"); got != 2 {
		t.Errorf("reconnects{error} = %d, want 2", got)
	}
	if got := sumFor(t, rm, "cuecard.provider.errors", "kind", "transport"); got != 1 {
		t.Errorf("provider.errors{transport} = %d, want 1", got)
	}
	if got := sumFor(t, rm, "cuecard.active_sessions", "", ""); got != 1 {
		t.Errorf("active_sessions = %d, want 1", got)
	}
}

func TestHistograms(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"cuecard.turn.duration", m.TurnDuration},
		{"cuecard.http.request.duration", m.HTTPRequestDuration},
	}
	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)
	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
