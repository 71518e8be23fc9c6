// Package mock provides test doubles for the realtime package interfaces.
//
// Provider records Connect calls and hands out a Session. The Session records
// every send and lets tests drive the handlers registered at connect time, as
// if the backend had produced them:
//
//	sess := &mock.Session{}
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.Connect(ctx, cfg, handlers)
//	sess.Deliver(realtime.ServerMessage{Text: []string{"{}"}})
//	sess.RemoteClose(realtime.CloseInfo{Code: 1011, Reason: "overloaded"})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/cuecard/pkg/provider/realtime"
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Cfg is the SessionConfig passed to Connect.
	Cfg realtime.SessionConfig
}

// Provider is a mock implementation of realtime.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is returned by Connect. If nil, Connect creates a fresh Session
	// per call; the latest one is available through LastSession.
	Session *Session

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall

	last *Session
}

// Connect records the call, binds h to the session and invokes OnOpen before
// returning, mirroring a backend that acknowledged the setup.
func (p *Provider) Connect(ctx context.Context, cfg realtime.SessionConfig, h realtime.Handlers) (realtime.SessionHandle, error) {
	p.mu.Lock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Cfg: cfg})
	if p.ConnectErr != nil {
		err := p.ConnectErr
		p.mu.Unlock()
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	sess := p.Session
	if sess == nil {
		sess = &Session{}
	}
	p.last = sess
	p.mu.Unlock()

	sess.bind(h)
	if h.OnOpen != nil {
		h.OnOpen()
	}
	return sess, nil
}

// Name returns ProviderName or "mock".
func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// Connects returns the number of Connect calls so far.
func (p *Provider) Connects() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ConnectCalls)
}

// LastSession returns the session handed out by the most recent successful
// Connect, or nil.
func (p *Provider) LastSession() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// SetConnectErr replaces ConnectErr under the provider's lock.
func (p *Provider) SetConnectErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectErr = err
}

// Ensure Provider implements realtime.Provider at compile time.
var _ realtime.Provider = (*Provider)(nil)

// Session is a mock implementation of realtime.SessionHandle.
type Session struct {
	mu sync.Mutex

	handlers realtime.Handlers
	closed   bool

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// SendImageErr, if non-nil, is returned by every SendImage call.
	SendImageErr error

	// PingErr, if non-nil, is returned by every Ping call.
	PingErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// AudioChunks holds a copy of every chunk passed to SendAudio.
	AudioChunks [][]byte

	// Images holds a copy of every image passed to SendImage.
	Images [][]byte

	// PingCallCount is the number of times Ping was called.
	PingCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Ensure Session implements realtime.SessionHandle at compile time.
var _ realtime.SessionHandle = (*Session)(nil)

func (s *Session) bind(h realtime.Handlers) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = h
	s.closed = false
}

// SendAudio records a copy of pcm and returns SendAudioErr.
func (s *Session) SendAudio(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AudioChunks = append(s.AudioChunks, append([]byte(nil), pcm...))
	return s.SendAudioErr
}

// SendImage records a copy of png and returns SendImageErr.
func (s *Session) SendImage(png []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Images = append(s.Images, append([]byte(nil), png...))
	return s.SendImageErr
}

// Ping records the call and returns PingErr.
func (s *Session) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PingCallCount++
	return s.PingErr
}

// Close records the call. The first Close fires OnClose with a normal
// closure, like a real backend acknowledging a local close.
func (s *Session) Close() error {
	s.mu.Lock()
	s.CloseCallCount++
	first := !s.closed
	s.closed = true
	onClose := s.handlers.OnClose
	err := s.CloseErr
	s.mu.Unlock()

	if first && onClose != nil {
		onClose(realtime.CloseInfo{Code: 1000, Reason: "session closed"})
	}
	return err
}

// Deliver invokes OnMessage with msg as if the backend had sent it.
func (s *Session) Deliver(msg realtime.ServerMessage) {
	s.mu.Lock()
	h := s.handlers.OnMessage
	s.mu.Unlock()
	if h != nil {
		h(msg)
	}
}

// Fail invokes OnError with err.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	h := s.handlers.OnError
	s.mu.Unlock()
	if h != nil {
		h(err)
	}
}

// RemoteClose ends the session from the backend side and fires OnClose with
// info. It is a no-op when the session is already closed.
func (s *Session) RemoteClose(info realtime.CloseInfo) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	h := s.handlers.OnClose
	s.mu.Unlock()
	if h != nil {
		h(info)
	}
}

// SetPingErr replaces PingErr under the session's lock.
func (s *Session) SetPingErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PingErr = err
}

// SetSendAudioErr replaces SendAudioErr under the session's lock.
func (s *Session) SetSendAudioErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendAudioErr = err
}

// Audio returns copies of the recorded audio chunks.
func (s *Session) Audio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.AudioChunks...)
}

// SentImages returns copies of the recorded images.
func (s *Session) SentImages() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.Images...)
}

// Pings returns PingCallCount.
func (s *Session) Pings() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PingCallCount
}

// Closes returns CloseCallCount.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCallCount
}

// IsClosed reports whether the session was closed locally or remotely.
func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
