// Package mock provides a recording events.Sink for tests.
package mock

import (
	"sync"
	"time"

	"github.com/MrWong99/cuecard/internal/events"
)

// Sink records every emitted event in order.
type Sink struct {
	mu     sync.Mutex
	events []events.Event
	notify chan struct{}
}

var _ events.Sink = (*Sink)(nil)

// Emit records e.
func (s *Sink) Emit(e events.Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	ch := s.notify
	s.notify = nil
	s.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}

// Events returns a copy of all recorded events.
func (s *Sink) Events() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Event(nil), s.events...)
}

// Kinds returns the kinds of all recorded events in order.
func (s *Sink) Kinds() []events.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]events.Kind, len(s.events))
	for i, e := range s.events {
		kinds[i] = e.Kind
	}
	return kinds
}

// OfKind returns the recorded events of kind k.
func (s *Sink) OfKind(k events.Kind) []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.Event
	for _, e := range s.events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

// Count returns the number of recorded events of kind k.
func (s *Sink) Count(k events.Kind) int { return len(s.OfKind(k)) }

// Reset discards all recorded events.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// WaitFor blocks until at least n events of kind k were recorded or timeout
// elapses. It reports whether the condition was met.
func (s *Sink) WaitFor(k events.Kind, n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		s.mu.Lock()
		count := 0
		for _, e := range s.events {
			if e.Kind == k {
				count++
			}
		}
		if count >= n {
			s.mu.Unlock()
			return true
		}
		if s.notify == nil {
			s.notify = make(chan struct{})
		}
		ch := s.notify
		s.mu.Unlock()

		select {
		case <-ch:
		case <-deadline:
			return false
		}
	}
}
