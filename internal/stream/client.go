// Package stream owns the connection between the capture pipeline and a
// realtime backend.
//
// [Client] opens at most one session at a time, forwards audio and images to
// it, hands inbound messages to a handler (the response assembler) and keeps
// the session alive with a heartbeat. Unexpected disconnects are reported to
// the UI and, when enabled, repaired by a [Reconnector].
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/cuecard/internal/events"
	"github.com/MrWong99/cuecard/internal/heartbeat"
	"github.com/MrWong99/cuecard/internal/observe"
	"github.com/MrWong99/cuecard/internal/resilience"
	"github.com/MrWong99/cuecard/pkg/provider/realtime"
)

// ErrMissingCredential is returned by Connect when no API key is configured.
var ErrMissingCredential = errors.New("stream: missing API key")

// errClosedDuringSetup is returned by Connect when the session was closed
// before Connect returned.
var errClosedDuringSetup = errors.New("stream: session closed during setup")

// State is the lifecycle state of a [Client].
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
	StateError
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ReconnectConfig controls automatic reconnection after unexpected closes.
type ReconnectConfig struct {
	Enabled    bool
	MaxRetries int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// Config is read once by New.
type Config struct {
	// APIKey is the backend credential. Connect fails fast without it.
	APIKey string

	// Session holds the instructions and generation parameters sent with
	// every session setup.
	Session realtime.SessionConfig

	// Reconnect controls automatic reconnection.
	Reconnect ReconnectConfig
}

// ── Options ────────────────────────────────────────────────────────────────────

// Option configures a Client.
type Option func(*Client)

// WithMessageHandler sets the consumer of inbound messages. It runs on the
// session's receive goroutine.
func WithMessageHandler(fn func(realtime.ServerMessage)) Option {
	return func(c *Client) { c.onMessage = fn }
}

// WithHeartbeat replaces the default heartbeat keeper.
func WithHeartbeat(k *heartbeat.Keeper) Option {
	return func(c *Client) { c.keeper = k }
}

// WithBreaker replaces the circuit breaker wrapping audio sends.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// WithMetrics sets the metrics instruments. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithReconnectBackoff overrides the reconnect timing. Used by tests.
func WithReconnectBackoff(initial, maxBackoff time.Duration) Option {
	return func(c *Client) {
		c.cfg.Reconnect.Backoff = initial
		c.cfg.Reconnect.MaxBackoff = maxBackoff
	}
}

// ── Client ─────────────────────────────────────────────────────────────────────

// Client is the streaming session client. All methods are safe for
// concurrent use.
type Client struct {
	cfg       Config
	provider  realtime.Provider
	sink      events.Sink
	onMessage func(realtime.ServerMessage)
	keeper    *heartbeat.Keeper
	breaker   *resilience.CircuitBreaker
	metrics   *observe.Metrics
	recon     *Reconnector

	mu          sync.Mutex
	state       State
	sess        realtime.SessionHandle
	gen         uint64
	intentional bool
	warnedIdle  bool
}

// New creates an idle Client. The credential and generation parameters are
// taken from cfg once, here.
func New(cfg Config, provider realtime.Provider, sink events.Sink, opts ...Option) *Client {
	if sink == nil {
		sink = events.Discard
	}
	c := &Client{
		cfg:      cfg,
		provider: provider,
		sink:     sink,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.keeper == nil {
		c.keeper = heartbeat.New(heartbeat.WithMetrics(c.metrics))
	}
	if c.breaker == nil {
		c.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:          "audio-send",
			OnStateChange: c.onBreakerChange,
		})
	}
	c.recon = NewReconnector(ReconnectorConfig{
		Connect:     c.reconnect,
		IsPermanent: func(err error) bool { return errors.Is(err, ErrMissingCredential) },
		MaxRetries:  c.cfg.Reconnect.MaxRetries,
		Backoff:     c.cfg.Reconnect.Backoff,
		MaxBackoff:  c.cfg.Reconnect.MaxBackoff,
		OnAttempt: func(_ int, err error) {
			status := "ok"
			if err != nil {
				status = "error"
			}
			c.metrics.RecordReconnect(context.Background(), status)
		},
		OnGiveUp: func(err error) {
			c.setState(StateError)
			c.sink.Emit(events.Error(fmt.Sprintf("reconnect failed: %v", err)))
		},
	})
	return c
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether a session is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil
}

// HasCredential reports whether an API key is configured.
func (c *Client) HasCredential() bool { return c.cfg.APIKey != "" }

// ProviderName returns the backend name.
func (c *Client) ProviderName() string { return c.provider.Name() }

// Connect opens a new session, replacing any open one. It blocks until the
// backend acknowledged the setup.
func (c *Client) Connect(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		return ErrMissingCredential
	}

	ctx, span := observe.StartSpan(ctx, "stream.connect")
	defer span.End()
	log := observe.Logger(ctx)

	c.mu.Lock()
	old := c.sess
	c.sess = nil
	c.gen++
	gen := c.gen
	c.state = StateConnecting
	c.intentional = false
	c.mu.Unlock()

	if old != nil {
		c.keeper.Stop()
		if err := old.Close(); err != nil {
			log.Warn("stream: close replaced session", "err", err)
		}
	}

	h, err := c.provider.Connect(ctx, c.cfg.Session, c.handlers(gen))
	if err != nil {
		c.mu.Lock()
		if c.gen == gen {
			c.state = StateError
		}
		c.mu.Unlock()
		c.metrics.RecordProviderError(ctx, c.provider.Name(), "connect")
		span.RecordError(err)
		return fmt.Errorf("stream: connect: %w", err)
	}

	c.mu.Lock()
	if c.gen != gen || (c.state != StateConnecting && c.state != StateOpen) {
		c.mu.Unlock()
		_ = h.Close()
		return errClosedDuringSetup
	}
	c.sess = h
	c.state = StateOpen
	c.warnedIdle = false
	c.mu.Unlock()

	c.breaker.Reset()
	c.keeper.Start(h.Ping)
	log.Info("stream: session open", "provider", c.provider.Name())
	c.sink.Emit(events.Status("connected"))
	return nil
}

// Close ends the session intentionally: no disconnect status is emitted and
// no reconnect is attempted. Closing an idle client is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	c.intentional = true
	c.mu.Unlock()

	c.recon.Stop()

	c.mu.Lock()
	c.intentional = true
	s := c.sess
	c.sess = nil
	c.gen++
	if s != nil {
		c.state = StateClosing
	}
	c.mu.Unlock()

	c.keeper.Stop()

	var err error
	if s != nil {
		err = s.Close()
	}

	c.mu.Lock()
	if c.state == StateClosing || c.state == StateOpen || c.state == StateConnecting {
		c.state = StateClosed
	}
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("stream: close: %w", err)
	}
	return nil
}

// SendAudio forwards one PCM chunk. Without an open session the chunk is
// dropped with a warning logged once per disconnected period. Send failures
// are logged and counted, never returned. pcm is not retained after the call.
func (c *Client) SendAudio(pcm []byte) {
	ctx := context.Background()
	s := c.session()
	if s == nil {
		c.metrics.RecordDrop(ctx, "no_session")
		return
	}

	err := c.breaker.Execute(func() error { return s.SendAudio(pcm) })
	switch {
	case err == nil:
		c.metrics.FramesSent.Add(ctx, 1)
	case errors.Is(err, resilience.ErrCircuitOpen):
		c.metrics.RecordDrop(ctx, "circuit_open")
	default:
		slog.Debug("stream: audio send failed", "error", err)
		c.metrics.RecordDrop(ctx, "send_error")
	}
}

// SendImage forwards one PNG image. It reports whether the image was handed
// to an open session.
func (c *Client) SendImage(png []byte) bool {
	s := c.session()
	if s == nil {
		return false
	}
	if err := s.SendImage(png); err != nil {
		slog.Warn("stream: image send failed", "error", err, "bytes", len(png))
		return false
	}
	return true
}

// session returns the open session, logging the idle warning once.
func (c *Client) session() realtime.SessionHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil && !c.warnedIdle {
		c.warnedIdle = true
		slog.Warn("stream: no open session, dropping input", "state", c.state)
	}
	return c.sess
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// reconnect is the Reconnector's connect callback. After an intentional
// close there is nothing to repair and the cycle ends.
func (c *Client) reconnect(ctx context.Context) error {
	c.mu.Lock()
	stopped := c.intentional
	c.mu.Unlock()
	if stopped {
		return nil
	}
	return c.Connect(ctx)
}

// ── Handlers ───────────────────────────────────────────────────────────────────

// handlers binds session callbacks to generation gen. Callbacks from a
// replaced or closed session are ignored.
func (c *Client) handlers(gen uint64) realtime.Handlers {
	return realtime.Handlers{
		OnOpen: func() {
			c.mu.Lock()
			if c.gen == gen && c.state == StateConnecting {
				c.state = StateOpen
			}
			c.mu.Unlock()
		},
		OnMessage: func(msg realtime.ServerMessage) {
			if !c.current(gen) {
				return
			}
			if c.onMessage != nil {
				c.onMessage(msg)
			}
		},
		OnError: func(err error) {
			if !c.current(gen) {
				return
			}
			slog.Warn("stream: session error", "error", err)
			c.metrics.RecordProviderError(context.Background(), c.provider.Name(), "session")
			c.sink.Emit(events.Error(err.Error()))
		},
		OnClose: func(info realtime.CloseInfo) {
			c.handleClose(gen, info)
		},
	}
}

func (c *Client) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

func (c *Client) handleClose(gen uint64, info realtime.CloseInfo) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	intentional := c.intentional
	c.sess = nil
	c.state = StateClosed
	c.mu.Unlock()

	c.keeper.Stop()
	if intentional {
		return
	}

	reason := info.Reason
	if reason == "" {
		reason = fmt.Sprintf("code %d", info.Code)
	}
	slog.Warn("stream: session closed unexpectedly", "code", info.Code, "reason", reason)
	c.metrics.RecordProviderError(context.Background(), c.provider.Name(), "disconnect")
	c.sink.Emit(events.Status("disconnected: " + reason))

	if c.cfg.Reconnect.Enabled {
		c.recon.Trigger()
	}
}

func (c *Client) onBreakerChange(_, to resilience.State) {
	switch to {
	case resilience.StateOpen:
		c.sink.Emit(events.Status("network unstable, pausing audio"))
	case resilience.StateClosed:
		c.sink.Emit(events.Status("audio resumed"))
	}
}
