// Package heartbeat keeps an idle realtime session alive by pinging it at a
// fixed interval.
package heartbeat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/cuecard/internal/observe"
)

// DefaultInterval is the period between keep-alive pings.
const DefaultInterval = 5 * time.Second

// PingFunc sends one content-free keep-alive and waits for it to be
// acknowledged.
type PingFunc func(ctx context.Context) error

// Option configures a Keeper.
type Option func(*Keeper)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(k *Keeper) {
		if d > 0 {
			k.interval = d
		}
	}
}

// WithTimeout bounds a single ping. Defaults to the interval.
func WithTimeout(d time.Duration) Option {
	return func(k *Keeper) {
		if d > 0 {
			k.timeout = d
		}
	}
}

// WithOnFailure registers a callback invoked once when a ping fails. It runs
// on the keeper's goroutine after the keeper has stopped itself.
func WithOnFailure(fn func(error)) Option {
	return func(k *Keeper) { k.onFailure = fn }
}

// WithMetrics sets the metrics instruments. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(k *Keeper) {
		if m != nil {
			k.metrics = m
		}
	}
}

// Keeper pings a session periodically while running. The first failed ping
// stops it; restarting is the caller's decision.
//
// All methods are safe for concurrent use.
type Keeper struct {
	interval  time.Duration
	timeout   time.Duration
	onFailure func(error)
	metrics   *observe.Metrics

	mu    sync.Mutex
	run   *run
	pings uint64
}

type run struct {
	stop chan struct{}
	done chan struct{}
}

// New creates a stopped Keeper.
func New(opts ...Option) *Keeper {
	k := &Keeper{interval: DefaultInterval}
	for _, o := range opts {
		o(k)
	}
	if k.timeout <= 0 {
		k.timeout = k.interval
	}
	if k.metrics == nil {
		k.metrics = observe.DefaultMetrics()
	}
	return k
}

// Start begins pinging with ping. A keeper that is already running is
// stopped first.
func (k *Keeper) Start(ping PingFunc) {
	k.Stop()

	k.mu.Lock()
	defer k.mu.Unlock()
	r := &run{stop: make(chan struct{}), done: make(chan struct{})}
	k.run = r
	go k.loop(r, ping)
}

// Stop halts the keeper and waits for its goroutine to exit. Safe to call
// when stopped and from the failure callback.
func (k *Keeper) Stop() {
	k.mu.Lock()
	r := k.run
	k.run = nil
	k.mu.Unlock()
	if r == nil {
		return
	}
	close(r.stop)
	<-r.done
}

// Running reports whether the keeper is active.
func (k *Keeper) Running() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.run != nil
}

// Pings returns the number of successful pings since creation.
func (k *Keeper) Pings() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.pings
}

func (k *Keeper) loop(r *run, ping PingFunc) {
	defer close(r.done)

	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			if err := k.ping(r, ping); err != nil {
				k.fail(r, err)
				return
			}
		}
	}
}

func (k *Keeper) ping(r *run, ping PingFunc) error {
	ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
	defer cancel()
	go func() {
		select {
		case <-r.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := ping(ctx); err != nil {
		return err
	}
	k.mu.Lock()
	k.pings++
	k.mu.Unlock()
	return nil
}

// fail detaches r so that Stop does not wait on the exiting goroutine, then
// reports the failure.
func (k *Keeper) fail(r *run, err error) {
	select {
	case <-r.stop:
		return
	default:
	}

	k.mu.Lock()
	current := k.run == r
	if current {
		k.run = nil
	}
	k.mu.Unlock()
	if !current {
		return
	}

	slog.Warn("heartbeat: ping failed, stopping keep-alive", "error", err)
	k.metrics.HeartbeatFailures.Add(context.Background(), 1)
	if k.onFailure != nil {
		k.onFailure(err)
	}
}
