// Package events defines the contract between the audio pipeline and whatever
// front-end displays its results.
//
// The pipeline never waits on the front-end: every [Sink] implementation must
// return from Emit promptly, and delivery is fire-and-forget.
package events

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// Kind names an event.
type Kind string

const (
	// KindAudioActivity carries the per-frame levels of both sources.
	KindAudioActivity Kind = "audio-activity"

	// KindAudioStatus carries a human-readable status line.
	KindAudioStatus Kind = "audio-status"

	// KindAudioError carries a human-readable error message.
	KindAudioError Kind = "audio-error"

	// KindProcessingStart marks the first token of a model turn.
	KindProcessingStart Kind = "gemini-processing-start"

	// KindProcessingEnd marks the end of processing for a model turn.
	KindProcessingEnd Kind = "gemini-processing-end"

	// KindTurnComplete is emitted when the backend closes a turn.
	KindTurnComplete Kind = "gemini-turn-complete"

	// KindResponse carries one validated structured note.
	KindResponse Kind = "gemini-response"

	// KindRecordingComplete carries the WAV recording of a finished session.
	KindRecordingComplete Kind = "recording-complete"
)

// Category classifies a structured note.
type Category string

const (
	CategoryAnswer   Category = "answer"
	CategoryAdvice   Category = "advice"
	CategoryFollowUp Category = "follow-up"
)

// ParseCategory reports whether s names a known category.
func ParseCategory(s string) (Category, bool) {
	switch c := Category(s); c {
	case CategoryAnswer, CategoryAdvice, CategoryFollowUp:
		return c, true
	}
	return "", false
}

// Message is a validated note produced from one model turn.
type Message struct {
	Content   string    `json:"content"`
	Category  Category  `json:"category"`
	Timestamp time.Time `json:"timestamp"`
}

// Activity holds the input levels of one mixed frame, each in [0, 1].
type Activity struct {
	Mic    float64 `json:"mic"`
	System float64 `json:"system"`
}

// Recording is the payload of [KindRecordingComplete].
type Recording struct {
	// WAV is the complete file, header included.
	WAV []byte

	// CapturedAt is the time the recording was finished.
	CapturedAt time.Time
}

// Event is one notification. Only the payload field matching Kind is set.
type Event struct {
	Kind Kind

	// Text is set for KindAudioStatus and KindAudioError.
	Text string

	// Activity is set for KindAudioActivity.
	Activity Activity

	// Message is set for KindResponse.
	Message Message

	// Recording is set for KindRecordingComplete.
	Recording Recording
}

// Status builds a KindAudioStatus event.
func Status(text string) Event { return Event{Kind: KindAudioStatus, Text: text} }

// Error builds a KindAudioError event.
func Error(text string) Event { return Event{Kind: KindAudioError, Text: text} }

// Sink receives pipeline events. Emit must not block.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }

// Discard is a Sink that drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// ChannelSink forwards events into a buffered channel. When the channel is
// full the event is dropped and counted. A quarter of the buffer is reserved
// for events other than [KindAudioActivity], so a slow reader loses level
// ticks before it loses notes, statuses or recordings.
type ChannelSink struct {
	ch       chan Event
	activity int // queue length above which activity events are dropped
	dropped  atomic.Int64
}

var _ Sink = (*ChannelSink)(nil)

// NewChannelSink creates a ChannelSink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	buffer = max(buffer, 1)
	return &ChannelSink{
		ch:       make(chan Event, buffer),
		activity: buffer - buffer/4,
	}
}

// Emit enqueues e without blocking.
func (s *ChannelSink) Emit(e Event) {
	if e.Kind == KindAudioActivity && len(s.ch) >= s.activity {
		s.drop(e)
		return
	}
	select {
	case s.ch <- e:
	default:
		s.drop(e)
	}
}

func (s *ChannelSink) drop(e Event) {
	if s.dropped.Add(1) == 1 {
		slog.Warn("events: sink full, dropping events", "kind", e.Kind)
	}
}

// Events returns the receive side of the channel.
func (s *ChannelSink) Events() <-chan Event { return s.ch }

// Dropped returns the number of events dropped so far.
func (s *ChannelSink) Dropped() int64 { return s.dropped.Load() }
