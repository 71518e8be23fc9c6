// Package assembler turns the incremental text tokens of a realtime session
// into validated structured notes.
//
// Tokens are buffered per model turn. When the backend signals that
// generation is complete, the buffered text is run through [Extract] and, if
// it yields a valid note, a [events.KindResponse] event is emitted. Turns that
// produce nothing usable are silent.
package assembler

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/cuecard/internal/events"
	"github.com/MrWong99/cuecard/internal/observe"
	"github.com/MrWong99/cuecard/pkg/provider/realtime"
)

// internalErrorText is the audio-error text emitted when processing a message
// panics.
const internalErrorText = "internal error processing response"

// Option configures an Assembler.
type Option func(*Assembler)

// WithClock overrides the time source used for note timestamps and turn
// durations.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) {
		if now != nil {
			a.now = now
		}
	}
}

// WithMetrics sets the metrics instruments. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Assembler) {
		if m != nil {
			a.metrics = m
		}
	}
}

// Assembler buffers one turn at a time. It is safe for concurrent use, though
// a realtime session delivers messages from a single goroutine.
type Assembler struct {
	sink    events.Sink
	metrics *observe.Metrics
	now     func() time.Time

	mu        sync.Mutex
	buf       strings.Builder
	turnStart time.Time
}

// New creates an Assembler emitting to sink.
func New(sink events.Sink, opts ...Option) *Assembler {
	a := &Assembler{
		sink: sink,
		now:  time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	return a
}

// Handle processes one server message. Fields are handled in the order text,
// generation complete, turn complete, interrupted, error.
func (a *Assembler) Handle(msg realtime.ServerMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("assembler: panic while processing message", "panic", r)
			a.buf.Reset()
			a.sink.Emit(events.Event{Kind: events.KindProcessingEnd})
			a.sink.Emit(events.Error(internalErrorText))
		}
	}()

	for _, tok := range msg.Text {
		a.appendToken(tok)
	}
	if msg.GenerationComplete {
		a.completeGeneration()
	}
	if msg.TurnComplete {
		a.completeTurn()
	}
	if msg.Interrupted {
		a.interrupt()
	}
	if msg.Error != "" {
		a.fail(msg.Error)
	}
}

// Reset discards any partially assembled turn without emitting events.
func (a *Assembler) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf.Reset()
}

// Pending returns the text buffered for the current turn.
func (a *Assembler) Pending() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buf.String()
}

func (a *Assembler) appendToken(tok string) {
	if tok == "" {
		return
	}
	if a.buf.Len() == 0 {
		a.turnStart = a.now()
		a.sink.Emit(events.Event{Kind: events.KindProcessingStart})
	}
	a.buf.WriteString(tok)
}

func (a *Assembler) completeGeneration() {
	// No processing-start was emitted for an empty turn.
	if a.buf.Len() == 0 {
		return
	}
	text := a.buf.String()
	a.buf.Reset()
	ctx := context.Background()
	a.metrics.TurnDuration.Record(ctx, a.now().Sub(a.turnStart).Seconds())

	r := Extract(text)
	if r.OK {
		a.sink.Emit(events.Event{
			Kind: events.KindResponse,
			Message: events.Message{
				Content:   r.Note.Content,
				Category:  r.Note.Category,
				Timestamp: a.now(),
			},
		})
		a.metrics.RecordNote(ctx, string(r.Note.Category))
	} else {
		slog.Debug("assembler: turn produced no note", "reason", r.Reason, "chars", len(text))
		a.metrics.NotesRejected.Add(ctx, 1)
	}
	a.sink.Emit(events.Event{Kind: events.KindProcessingEnd})
}

func (a *Assembler) completeTurn() {
	if a.buf.Len() > 0 {
		slog.Warn("assembler: turn completed without generation complete, discarding buffer", "chars", a.buf.Len())
		a.buf.Reset()
		a.sink.Emit(events.Event{Kind: events.KindProcessingEnd})
	}
	a.sink.Emit(events.Event{Kind: events.KindTurnComplete})
}

func (a *Assembler) interrupt() {
	if a.buf.Len() == 0 {
		return
	}
	slog.Debug("assembler: turn interrupted", "chars", a.buf.Len())
	a.buf.Reset()
	a.sink.Emit(events.Event{Kind: events.KindProcessingEnd})
}

func (a *Assembler) fail(message string) {
	slog.Warn("assembler: backend error", "error", message)
	a.buf.Reset()
	a.sink.Emit(events.Event{Kind: events.KindProcessingEnd})
	a.sink.Emit(events.Error(message))
}
