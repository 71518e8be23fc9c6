// Package audio defines the PCM frame format, the capture source abstraction,
// and the pure sample-level operations (mixing, level metering, format
// conversion) used by the cuecard capture pipeline.
//
// The two primary abstractions are:
//
//   - [Backend]: enumerates devices and opens a [Source] for one of them.
//   - [Source]: a running capture stream that hands fixed-duration PCM frames
//     to a callback.
//
// Implementations live in sub-packages (audio/portaudio for real devices,
// audio/mock for tests). This package lives under pkg/ because external code
// is expected to provide alternative backends.
package audio

import (
	"errors"
	"strings"
)

// ErrStreamClosed is returned by [Source.Close] when the underlying stream is
// already closed. Teardown paths treat it as benign.
var ErrStreamClosed = errors.New("audio: no open stream to close")

// FrameFunc receives one PCM frame (16 kHz, mono, s16le). Ownership of the
// slice transfers to the callee. It is called from the source's own goroutine
// and must return quickly.
type FrameFunc func(frame []byte)

// ErrorFunc receives errors raised by a running source after Start returned.
type ErrorFunc func(err error)

// Source is a running or startable capture stream for one device.
//
// Implementations must be safe for concurrent use. Close must be idempotent:
// closing an already closed source returns [ErrStreamClosed] (or an error
// wrapping it) rather than panicking.
type Source interface {
	// Start begins capture. Frames are delivered to onFrame; asynchronous
	// stream failures are delivered to onError. Both callbacks may be invoked
	// concurrently with the caller.
	Start(onFrame FrameFunc, onError ErrorFunc) error

	// Close stops capture and releases the device.
	Close() error
}

// Backend is the entry point for an audio device layer.
//
// Implementations must be safe for concurrent use.
type Backend interface {
	// Devices enumerates the available audio endpoints.
	Devices() (DeviceList, error)

	// Open prepares a capture [Source] for the device with the given ID. The
	// source delivers frames in the pipeline format regardless of the device's
	// native rate and channel count.
	Open(deviceID string, kind Kind) (Source, error)
}

// IsBenign reports whether err is an expected teardown error that should be
// swallowed rather than surfaced, such as closing an already closed stream.
func IsBenign(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, ErrStreamClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no open stream") ||
		strings.Contains(msg, "stream is stopped") ||
		strings.Contains(msg, "already closed")
}
