package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestReconnector_Defaults(t *testing.T) {
	t.Parallel()

	r := NewReconnector(ReconnectorConfig{Connect: func(context.Context) error { return nil }})
	if r.cfg.MaxRetries != 10 {
		t.Errorf("expected default MaxRetries=10, got %d", r.cfg.MaxRetries)
	}
	if r.cfg.Backoff != time.Second {
		t.Errorf("expected default Backoff=1s, got %v", r.cfg.Backoff)
	}
	if r.cfg.MaxBackoff != 30*time.Second {
		t.Errorf("expected default MaxBackoff=30s, got %v", r.cfg.MaxBackoff)
	}
}

func TestReconnector_Trigger(t *testing.T) {
	t.Parallel()

	t.Run("succeeds after failures", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		done := make(chan struct{})
		r := NewReconnector(ReconnectorConfig{
			Connect: func(context.Context) error {
				if calls.Add(1) < 3 {
					return errors.New("still down")
				}
				close(done)
				return nil
			},
			Backoff:    time.Millisecond,
			MaxBackoff: 4 * time.Millisecond,
		})
		if !r.Trigger() {
			t.Fatal("Trigger should start a cycle")
		}

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for reconnection")
		}
		r.Stop()
		if got := calls.Load(); got != 3 {
			t.Errorf("connect calls = %d, want 3", got)
		}
		if r.Active() {
			t.Error("cycle should be over")
		}
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		gaveUp := make(chan error, 1)
		connectErr := errors.New("refused")
		r := NewReconnector(ReconnectorConfig{
			Connect: func(context.Context) error {
				calls.Add(1)
				return connectErr
			},
			MaxRetries: 3,
			Backoff:    time.Millisecond,
			OnGiveUp:   func(err error) { gaveUp <- err },
		})
		r.Trigger()

		select {
		case err := <-gaveUp:
			if !errors.Is(err, connectErr) {
				t.Errorf("give-up error = %v, want %v", err, connectErr)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for give-up")
		}
		if got := calls.Load(); got != 3 {
			t.Errorf("connect calls = %d, want 3", got)
		}
	})

	t.Run("permanent error stops immediately", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		gaveUp := make(chan error, 1)
		r := NewReconnector(ReconnectorConfig{
			Connect: func(context.Context) error {
				calls.Add(1)
				return ErrMissingCredential
			},
			IsPermanent: func(err error) bool { return errors.Is(err, ErrMissingCredential) },
			Backoff:     time.Millisecond,
			OnGiveUp:    func(err error) { gaveUp <- err },
		})
		r.Trigger()

		select {
		case <-gaveUp:
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for give-up")
		}
		if got := calls.Load(); got != 1 {
			t.Errorf("connect calls = %d, want 1", got)
		}
	})

	t.Run("second trigger is ignored while running", func(t *testing.T) {
		t.Parallel()

		r := NewReconnector(ReconnectorConfig{
			Connect: func(context.Context) error { return errors.New("down") },
			Backoff: time.Hour,
		})
		if !r.Trigger() {
			t.Fatal("first Trigger should start a cycle")
		}
		if r.Trigger() {
			t.Error("second Trigger should be ignored")
		}
		r.Stop()
		if !r.Trigger() {
			t.Error("Trigger after Stop should start a new cycle")
		}
		r.Stop()
	})
}

func TestReconnector_StopCancelsBackoff(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	r := NewReconnector(ReconnectorConfig{
		Connect: func(context.Context) error { calls.Add(1); return nil },
		Backoff: time.Hour,
	})
	r.Trigger()

	stopped := make(chan struct{})
	go func() {
		r.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return while waiting in backoff")
	}
	if calls.Load() != 0 {
		t.Error("connect should not have been attempted")
	}
}

func TestReconnector_ReportsAttempts(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var outcomes []bool
	done := make(chan struct{})
	var n atomic.Int32
	r := NewReconnector(ReconnectorConfig{
		Connect: func(context.Context) error {
			if n.Add(1) == 1 {
				return errors.New("first fails")
			}
			return nil
		},
		Backoff: time.Millisecond,
		OnAttempt: func(_ int, err error) {
			mu.Lock()
			outcomes = append(outcomes, err == nil)
			if err == nil {
				close(done)
			}
			mu.Unlock()
		},
	})
	r.Trigger()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(outcomes) != 2 || outcomes[0] || !outcomes[1] {
		t.Errorf("outcomes = %v, want [false true]", outcomes)
	}
}
