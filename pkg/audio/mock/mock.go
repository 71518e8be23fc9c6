// Package mock provides in-memory mock implementations of the [audio.Backend]
// and [audio.Source] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record method calls so that
// tests can assert on call counts, and they expose exported fields that the
// test can set to control return values.
//
// Typical usage:
//
//	mic := &mock.Source{}
//	sys := &mock.Source{}
//	backend := &mock.Backend{Sources: map[string]*mock.Source{"mic-1": mic, "sys-1": sys}}
//	// ... start the orchestrator with backend ...
//	mic.Emit(frame)
package mock

import (
	"fmt"
	"sync"

	"github.com/MrWong99/cuecard/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Backend = (*Backend)(nil)
	_ audio.Source  = (*Source)(nil)
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock implementation of [audio.Source]. Frames and errors are
// injected with [Source.Emit] and [Source.Fail].
type Source struct {
	mu sync.Mutex

	// StartError is returned by Start.
	StartError error

	// CloseError is returned by the first Close call. Subsequent calls return
	// [audio.ErrStreamClosed].
	CloseError error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	onFrame audio.FrameFunc
	onError audio.ErrorFunc
	closed  bool
}

// Start implements [audio.Source].
func (s *Source) Start(onFrame audio.FrameFunc, onError audio.ErrorFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStart++
	if s.StartError != nil {
		return s.StartError
	}
	s.onFrame = onFrame
	s.onError = onError
	s.closed = false
	return nil
}

// Close implements [audio.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	if s.closed {
		return audio.ErrStreamClosed
	}
	s.closed = true
	s.onFrame = nil
	s.onError = nil
	return s.CloseError
}

// Emit delivers frame to the registered frame callback, if the source is
// running. It reports whether the frame was delivered.
func (s *Source) Emit(frame []byte) bool {
	s.mu.Lock()
	cb := s.onFrame
	s.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(frame)
	return true
}

// Fail delivers err to the registered error callback, if the source is
// running.
func (s *Source) Fail(err error) bool {
	s.mu.Lock()
	cb := s.onError
	s.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(err)
	return true
}

// Running reports whether Start succeeded and Close has not been called since.
func (s *Source) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onFrame != nil
}

// Closes returns CallCountClose under the lock.
func (s *Source) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountClose
}

// ─── Backend ──────────────────────────────────────────────────────────────────

// OpenCall records the arguments of a single [Backend.Open] invocation.
type OpenCall struct {
	DeviceID string
	Kind     audio.Kind
}

// Backend is a mock implementation of [audio.Backend].
type Backend struct {
	mu sync.Mutex

	// DeviceList is returned by Devices.
	DeviceList audio.DeviceList

	// DevicesError is returned by Devices.
	DevicesError error

	// Sources maps device IDs to the sources returned by Open. Unknown IDs
	// produce an error.
	Sources map[string]*Source

	// OpenErrors maps device IDs to errors returned by Open.
	OpenErrors map[string]error

	// OpenCalls records all Open invocations.
	OpenCalls []OpenCall
}

// Devices implements [audio.Backend].
func (b *Backend) Devices() (audio.DeviceList, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.DeviceList, b.DevicesError
}

// Open implements [audio.Backend].
func (b *Backend) Open(deviceID string, kind audio.Kind) (audio.Source, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.OpenCalls = append(b.OpenCalls, OpenCall{DeviceID: deviceID, Kind: kind})
	if err := b.OpenErrors[deviceID]; err != nil {
		return nil, err
	}
	src, ok := b.Sources[deviceID]
	if !ok {
		return nil, fmt.Errorf("mock: unknown device %q", deviceID)
	}
	return src, nil
}

// Opens returns a copy of OpenCalls under the lock.
func (b *Backend) Opens() []OpenCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]OpenCall, len(b.OpenCalls))
	copy(out, b.OpenCalls)
	return out
}
