// Package realtime defines the Provider interface for live, bidirectional
// generative-AI sessions.
//
// A realtime provider accepts a continuous stream of PCM audio (and occasional
// still images) and replies with incremental text tokens grouped into turns.
// The session is long-lived (minutes) and reports its lifecycle through a
// fixed set of [Handlers] registered at connect time.
//
// All implementations must be safe for concurrent use.
package realtime

import "context"

// MIME types of the realtime inputs the pipeline produces.
const (
	// MIMEAudioPCM is 16 kHz mono signed 16-bit little-endian PCM.
	MIMEAudioPCM = "audio/pcm;rate=16000"

	// MIMEImagePNG is a PNG-encoded still image.
	MIMEImagePNG = "image/png"
)

// GenerationConfig holds the fixed sampling parameters sent with the session
// setup. Zero values are omitted and leave the backend's defaults in place.
type GenerationConfig struct {
	Temperature     float64
	TopP            float64
	TopK            int
	MaxOutputTokens int
}

// SessionConfig is the initial configuration for a new realtime session.
type SessionConfig struct {
	// Instructions is the system instruction for the whole session.
	Instructions string

	// Generation holds the sampling parameters.
	Generation GenerationConfig
}

// ServerMessage is one decoded inbound message. A single message may carry
// several of the fields at once; consumers handle them in declaration order.
type ServerMessage struct {
	// Text holds the incremental model tokens carried by this message.
	Text []string

	// GenerationComplete is set when the model finished generating the
	// current turn.
	GenerationComplete bool

	// TurnComplete is set when the backend closes the current turn.
	TurnComplete bool

	// Interrupted is set when the backend cut the current turn short.
	Interrupted bool

	// Error is a backend-reported error message, if any.
	Error string
}

// CloseInfo describes why a session ended.
type CloseInfo struct {
	// Code is the transport close code, or -1 when none was received.
	Code int

	// Reason is the human-readable close reason.
	Reason string

	// Err is the transport error that ended the session, if any.
	Err error
}

// Handlers are the lifecycle callbacks of a session. They are invoked from
// the session's internal receive goroutine and must not block. Any of them
// may be nil.
type Handlers struct {
	// OnOpen is called once when the backend acknowledged the session setup.
	OnOpen func()

	// OnMessage is called for every inbound message.
	OnMessage func(ServerMessage)

	// OnError is called for transport or protocol errors that do not by
	// themselves end the session.
	OnError func(error)

	// OnClose is called exactly once after an opened session ended, whatever
	// the cause.
	OnClose func(CloseInfo)
}

// SessionHandle represents an open realtime session. It is an interface so
// that test code can supply mock implementations without a live backend.
//
// Callers must call Close when the session is no longer needed.
type SessionHandle interface {
	// SendAudio pushes one PCM chunk ([MIMEAudioPCM]) as realtime input.
	// pcm is only valid for the duration of the call; callers reuse the
	// buffer, so implementations that queue it must copy.
	SendAudio(pcm []byte) error

	// SendImage pushes one PNG image ([MIMEImagePNG]) as realtime input.
	SendImage(png []byte) error

	// Ping sends a content-free keep-alive and waits for the acknowledgement.
	Ping(ctx context.Context) error

	// Close terminates the session. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Provider is the abstraction over any realtime backend.
type Provider interface {
	// Connect establishes a new session and blocks until the backend
	// acknowledged the setup or ctx is done. The handlers are registered
	// before any message is read.
	Connect(ctx context.Context, cfg SessionConfig, h Handlers) (SessionHandle, error)

	// Name returns a short identifier for logs and metrics (e.g. "gemini-live").
	Name() string
}
