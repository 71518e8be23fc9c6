package config

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

// DefaultWatchInterval is how often a [Watcher] stats the config file.
const DefaultWatchInterval = 2 * time.Second

// ChangeFunc receives the differences between the previous and the newly
// loaded config, together with the new config.
type ChangeFunc func(d ConfigDiff, cfg *Config)

// fileStamp identifies one version of the config file.
type fileStamp struct {
	mtime time.Time
	size  int64
	sum   uint64
}

// Watcher keeps the config loaded from a file current while a session runs.
// Edits that fail to parse or validate are logged and ignored; the last good
// config stays in effect.
type Watcher struct {
	path     string
	interval time.Duration
	onChange ChangeFunc

	current atomic.Pointer[Config]

	// mu serialises reloads.
	mu    sync.Mutex
	stamp fileStamp

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values are ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and starts polling it. onChange may be nil. The
// initial load must succeed.
func NewWatcher(path string, onChange ChangeFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onChange: onChange,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, stamp, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.current.Store(cfg)
	w.stamp = stamp

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Current returns the last config that loaded successfully.
func (w *Watcher) Current() *Config { return w.current.Load() }

// Stop ends polling and waits for an in-flight reload. It is idempotent.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	w.wg.Wait()
}

// Check reloads the file if it changed since the last successful load and
// reports whether a new config was applied.
func (w *Watcher) Check() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config: cannot stat watched file", "path", w.path, "err", err)
		return false
	}
	if info.ModTime().Equal(w.stamp.mtime) && info.Size() == w.stamp.size {
		return false
	}

	cfg, stamp, err := w.read()
	if err != nil {
		slog.Warn("config: ignoring invalid edit", "path", w.path, "err", err)
		return false
	}
	if stamp.sum == w.stamp.sum {
		w.stamp = stamp
		return false
	}
	w.stamp = stamp

	old := w.current.Swap(cfg)
	d := Diff(old, cfg)
	slog.Info("config: reloaded", "path", w.path, "restart_required", d.RestartRequired)
	if w.onChange != nil && d.Changed() {
		w.onChange(d, cfg)
	}
	return true
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-t.C:
			w.Check()
		}
	}
}

// read parses the file with the environment credential applied.
func (w *Watcher) read() (*Config, fileStamp, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	cfg, err := parse(data, os.LookupEnv)
	if err != nil {
		return nil, fileStamp{}, err
	}
	return cfg, fileStamp{mtime: info.ModTime(), size: info.Size(), sum: xxhash.Sum64(data)}, nil
}
