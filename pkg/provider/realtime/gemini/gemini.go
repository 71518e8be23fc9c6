// Package gemini implements the realtime.Provider interface for Google's
// Gemini Live API.
//
// It establishes a bidirectional WebSocket connection to the Gemini Live
// endpoint and exchanges JSON messages according to the BidiGenerateContent
// protocol. Audio and images are transmitted as base64-encoded realtime input
// chunks; the model replies with TEXT parts.
package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/cuecard/pkg/provider/realtime"
)

// Compile-time assertions that Provider and session satisfy the realtime interfaces.
var _ realtime.Provider = (*Provider)(nil)
var _ realtime.SessionHandle = (*session)(nil)

const (
	defaultModel        = "gemini-2.0-flash-live-001"
	defaultBaseURL      = "wss://generativelanguage.googleapis.com/ws"
	defaultSetupTimeout = 15 * time.Second

	// maxMessageBytes bounds a single inbound frame.
	maxMessageBytes = 4 << 20
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the Gemini model used for sessions.
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		if url != "" {
			p.baseURL = url
		}
	}
}

// WithSetupTimeout bounds how long Connect waits for setupComplete when ctx
// carries no earlier deadline.
func WithSetupTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.setupTimeout = d
		}
	}
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements realtime.Provider for Google's Gemini Live API.
type Provider struct {
	apiKey       string
	model        string
	baseURL      string
	setupTimeout time.Duration
}

// New creates a new Gemini Live Provider with the given API key and options.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		baseURL:      defaultBaseURL,
		setupTimeout: defaultSetupTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Name returns "gemini-live".
func (p *Provider) Name() string { return "gemini-live" }

// Connect dials the Gemini Live endpoint, sends the setup message and waits
// for the server's setupComplete acknowledgement.
func (p *Provider) Connect(ctx context.Context, cfg realtime.SessionConfig, h realtime.Handlers) (realtime.SessionHandle, error) {
	setupCtx, cancelSetup := context.WithTimeout(ctx, p.setupTimeout)
	defer cancelSetup()

	wsURL := fmt.Sprintf(
		"%s/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent?key=%s",
		p.baseURL, p.apiKey,
	)
	conn, _, err := websocket.Dial(setupCtx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Content-Type": []string{"application/json"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: dial: %w", err)
	}
	conn.SetReadLimit(maxMessageBytes)

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:     conn,
		handlers: h,
		ready:    make(chan struct{}),
		exited:   make(chan struct{}),
		ctx:      sessCtx,
		cancel:   sessCancel,
	}

	if err := sess.sendSetup(p.model, cfg); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("gemini: setup: %w", err)
	}

	go sess.receiveLoop()

	select {
	case <-sess.ready:
		return sess, nil
	case <-sess.exited:
		err := sess.Err()
		if err == nil {
			err = errors.New("connection closed before setup completed")
		}
		_ = sess.Close()
		return nil, fmt.Errorf("gemini: setup: %w", err)
	case <-setupCtx.Done():
		_ = sess.Close()
		return nil, fmt.Errorf("gemini: waiting for setupComplete: %w", setupCtx.Err())
	}
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type setupMessage struct {
	Setup setupConfig `json:"setup"`
}

type setupConfig struct {
	Model             string             `json:"model"`
	GenerationConfig  generationConfig   `json:"generationConfig"`
	SystemInstruction *systemInstruction `json:"systemInstruction,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities"`
	Temperature        *float64 `json:"temperature,omitempty"`
	TopP               *float64 `json:"topP,omitempty"`
	TopK               *int     `json:"topK,omitempty"`
	MaxOutputTokens    *int     `json:"maxOutputTokens,omitempty"`
}

type systemInstruction struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text,omitempty"`
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []mediaChunk `json:"mediaChunks"`
}

type mediaChunk struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type serverMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	GoAway        *json.RawMessage `json:"goAway,omitempty"`
	Error         *geminiError     `json:"error,omitempty"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

type serverContent struct {
	ModelTurn          *modelTurn `json:"modelTurn,omitempty"`
	GenerationComplete bool       `json:"generationComplete,omitempty"`
	TurnComplete       bool       `json:"turnComplete,omitempty"`
	Interrupted        bool       `json:"interrupted,omitempty"`
}

type modelTurn struct {
	Parts []part `json:"parts"`
}

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	conn     *websocket.Conn
	handlers realtime.Handlers

	writeMu sync.Mutex

	mu     sync.Mutex
	errVal error
	closed bool
	opened bool

	ready     chan struct{}
	exited    chan struct{}
	readyOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
}

// sendSetup sends the initial BidiGenerateContent setup message.
func (s *session) sendSetup(model string, cfg realtime.SessionConfig) error {
	msg := setupMessage{
		Setup: setupConfig{
			Model: fmt.Sprintf("models/%s", model),
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"TEXT"},
			},
		},
	}

	gen := cfg.Generation
	if gen.Temperature != 0 {
		msg.Setup.GenerationConfig.Temperature = &gen.Temperature
	}
	if gen.TopP != 0 {
		msg.Setup.GenerationConfig.TopP = &gen.TopP
	}
	if gen.TopK != 0 {
		msg.Setup.GenerationConfig.TopK = &gen.TopK
	}
	if gen.MaxOutputTokens != 0 {
		msg.Setup.GenerationConfig.MaxOutputTokens = &gen.MaxOutputTokens
	}

	if cfg.Instructions != "" {
		msg.Setup.SystemInstruction = &systemInstruction{
			Parts: []part{{Text: cfg.Instructions}},
		}
	}

	return s.writeJSON(msg)
}

// writeJSON marshals v and writes it as a text WebSocket message. Writes are
// serialised so that audio, image and setup frames never interleave.
func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("gemini: marshal: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// receiveLoop reads messages from the WebSocket and dispatches them. When it
// exits after the session was opened it invokes OnClose exactly once.
func (s *session) receiveLoop() {
	defer close(s.exited)

	var exitErr error
	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			exitErr = err
			if s.ctx.Err() == nil {
				s.setErr(err)
			}
			break
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.reportError(fmt.Errorf("gemini: decode server message: %w", err))
			continue
		}

		s.handleServerMessage(&msg)
	}

	s.mu.Lock()
	opened := s.opened
	s.mu.Unlock()
	if opened && s.handlers.OnClose != nil {
		s.handlers.OnClose(closeInfo(exitErr, s.ctx.Err() != nil))
	}
}

// closeInfo derives a CloseInfo from the error that ended the read loop.
func closeInfo(err error, local bool) realtime.CloseInfo {
	info := realtime.CloseInfo{Code: -1, Err: err}
	var ce websocket.CloseError
	switch {
	case errors.As(err, &ce):
		info.Code = int(ce.Code)
		info.Reason = ce.Reason
		if info.Reason == "" {
			info.Reason = ce.Code.String()
		}
	case local:
		info.Code = int(websocket.StatusNormalClosure)
		info.Reason = "session closed"
		info.Err = nil
	case err != nil:
		info.Reason = err.Error()
	}
	return info
}

func (s *session) handleServerMessage(msg *serverMessage) {
	if msg.SetupComplete != nil {
		s.markOpen()
	}

	var out realtime.ServerMessage
	relevant := false

	if sc := msg.ServerContent; sc != nil {
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p.Text != "" {
					out.Text = append(out.Text, p.Text)
				}
			}
		}
		out.GenerationComplete = sc.GenerationComplete
		out.TurnComplete = sc.TurnComplete
		out.Interrupted = sc.Interrupted
		relevant = len(out.Text) > 0 || sc.GenerationComplete || sc.TurnComplete || sc.Interrupted
	}

	if msg.Error != nil {
		out.Error = msg.Error.Message
		if out.Error == "" {
			out.Error = "unknown error"
		}
		relevant = true
	}

	if relevant && s.handlers.OnMessage != nil {
		s.handlers.OnMessage(out)
	}
}

// markOpen records the setup acknowledgement and fires OnOpen once.
func (s *session) markOpen() {
	s.readyOnce.Do(func() {
		s.mu.Lock()
		s.opened = true
		s.mu.Unlock()
		close(s.ready)
		if s.handlers.OnOpen != nil {
			s.handlers.OnOpen()
		}
	})
}

func (s *session) reportError(err error) {
	if s.handlers.OnError != nil {
		s.handlers.OnError(err)
	}
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil {
		s.errVal = err
	}
}

// ── SessionHandle methods ──────────────────────────────────────────────────────

// SendAudio delivers a raw PCM chunk (16 kHz, s16le, mono) to the model.
func (s *session) SendAudio(pcm []byte) error {
	return s.sendMedia(realtime.MIMEAudioPCM, pcm)
}

// SendImage delivers a PNG still image to the model.
func (s *session) SendImage(png []byte) error {
	return s.sendMedia(realtime.MIMEImagePNG, png)
}

func (s *session) sendMedia(mimeType string, data []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("gemini: session closed")
	}
	s.mu.Unlock()

	msg := realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []mediaChunk{
				{MIMEType: mimeType, Data: base64.StdEncoding.EncodeToString(data)},
			},
		},
	}
	return s.writeJSON(msg)
}

// Ping sends a WebSocket ping and waits for the pong. It carries no content
// and does not affect the model's turn state.
func (s *session) Ping(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("gemini: session closed")
	}
	s.mu.Unlock()
	if err := s.conn.Ping(ctx); err != nil {
		return fmt.Errorf("gemini: ping: %w", err)
	}
	return nil
}

// Err returns the first transport error that terminated the session, or nil.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Close terminates the session and releases all resources. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel() // unblocks receiveLoop
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}
