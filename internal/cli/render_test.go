package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/cuecard/internal/events"
	"github.com/MrWong99/cuecard/pkg/audio"
)

func TestRenderer_Note(t *testing.T) {
	t.Parallel()
	r := NewRenderer(&bytes.Buffer{})

	got := r.Note(events.Message{
		Content:   "Ask about the rollout date.",
		Category:  events.CategoryFollowUp,
		Timestamp: time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC),
	})
	for _, want := range []string{"FOLLOW-UP", "15:04:05", "Ask about the rollout date."} {
		if !strings.Contains(got, want) {
			t.Errorf("note missing %q:\n%s", want, got)
		}
	}
}

func TestRenderer_Event(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		event events.Event
		want  string
	}{
		{name: "response", event: events.Event{Kind: events.KindResponse, Message: events.Message{Content: "42", Category: events.CategoryAnswer}}, want: "42"},
		{name: "status", event: events.Status("connected"), want: "• connected"},
		{name: "error", event: events.Error("boom"), want: "✗ boom"},
		{name: "activity is silent", event: events.Event{Kind: events.KindAudioActivity}},
		{name: "processing is silent", event: events.Event{Kind: events.KindProcessingStart}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			NewRenderer(&buf).Event(tc.event)
			if tc.want == "" {
				if buf.Len() != 0 {
					t.Errorf("output = %q, want none", buf.String())
				}
				return
			}
			if !strings.Contains(buf.String(), tc.want) {
				t.Errorf("output = %q, want it to contain %q", buf.String(), tc.want)
			}
		})
	}
}

func TestRenderer_Devices(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	NewRenderer(&buf).Devices(audio.DeviceList{
		Devices: []audio.Device{
			{ID: "0", Name: "Built-in Mic", InputChannels: 1},
			{ID: "1", Name: "Loopback", InputChannels: 2, OutputChannels: 2},
		},
		DefaultInputID:  "0",
		DefaultOutputID: "1",
	})
	out := buf.String()
	for _, want := range []string{"Built-in Mic", "Loopback", "*i", "*o"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	NewRenderer(&buf).Devices(audio.DeviceList{})
	if !strings.Contains(buf.String(), "no audio devices found") {
		t.Errorf("empty list output = %q", buf.String())
	}
}
