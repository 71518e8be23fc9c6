package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Default reconnection parameters.
const (
	defaultMaxRetries = 10
	defaultBackoff    = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// ReconnectorConfig configures a [Reconnector].
type ReconnectorConfig struct {
	// Connect establishes a new session. Required.
	Connect func(ctx context.Context) error

	// IsPermanent reports errors that must not be retried. May be nil.
	IsPermanent func(error) bool

	// MaxRetries is the maximum number of attempts per disconnect.
	// Defaults to 10 if zero.
	MaxRetries int

	// Backoff is the initial backoff duration between retries. Doubles each
	// attempt up to MaxBackoff. Defaults to 1s if zero.
	Backoff time.Duration

	// MaxBackoff is the upper limit on backoff duration. Defaults to 30s if zero.
	MaxBackoff time.Duration

	// OnAttempt is called after every attempt with its outcome. May be nil.
	OnAttempt func(attempt int, err error)

	// OnGiveUp is called when all attempts failed or a permanent error was
	// returned. May be nil.
	OnGiveUp func(err error)
}

// Reconnector re-establishes a dropped session with exponential backoff.
//
// [Reconnector.Trigger] starts a retry cycle in the background unless one is
// already running; [Reconnector.Stop] cancels it and waits for it to exit.
// A stopped Reconnector can be triggered again.
//
// All methods are safe for concurrent use.
type Reconnector struct {
	cfg ReconnectorConfig

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReconnector creates a new [Reconnector] with the given configuration.
func NewReconnector(cfg ReconnectorConfig) *Reconnector {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	return &Reconnector{cfg: cfg}
}

// Trigger starts a retry cycle. It reports false when a cycle is already in
// progress.
func (r *Reconnector) Trigger() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		select {
		case <-r.done:
		default:
			return false
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(ctx, r.done)
	return true
}

// Active reports whether a retry cycle is in progress.
func (r *Reconnector) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done == nil {
		return false
	}
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// Stop cancels the current retry cycle, if any, and waits for it to exit.
// It must not be called from the Connect callback.
func (r *Reconnector) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// run tries to reconnect with exponential backoff.
func (r *Reconnector) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	currentBackoff := r.cfg.Backoff
	var lastErr error

	for attempt := 1; attempt <= r.cfg.MaxRetries; attempt++ {
		// Wait before each attempt so a flapping backend is not hammered.
		select {
		case <-ctx.Done():
			return
		case <-time.After(currentBackoff):
		}

		slog.Info("attempting reconnection",
			"attempt", attempt,
			"max_retries", r.cfg.MaxRetries,
			"backoff", currentBackoff,
		)

		err := r.cfg.Connect(ctx)
		if r.cfg.OnAttempt != nil {
			r.cfg.OnAttempt(attempt, err)
		}
		if err == nil {
			slog.Info("reconnection successful", "attempt", attempt)
			return
		}
		if ctx.Err() != nil {
			return
		}
		lastErr = err

		if r.cfg.IsPermanent != nil && r.cfg.IsPermanent(err) {
			slog.Error("reconnection aborted", "error", err)
			r.giveUp(err)
			return
		}

		slog.Warn("reconnection attempt failed",
			"attempt", attempt,
			"error", err,
		)

		currentBackoff *= 2
		if currentBackoff > r.cfg.MaxBackoff {
			currentBackoff = r.cfg.MaxBackoff
		}
	}

	slog.Error("reconnection failed after max retries",
		"max_retries", r.cfg.MaxRetries,
		"error", lastErr,
	)
	r.giveUp(lastErr)
}

func (r *Reconnector) giveUp(err error) {
	if r.cfg.OnGiveUp != nil {
		r.cfg.OnGiveUp(err)
	}
}
