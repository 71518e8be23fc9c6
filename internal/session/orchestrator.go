// Package session supervises one capture session: two audio sources, the
// mixing poll loop, the optional recording and the streaming client.
//
// Only one session is active at a time. Start and Stop are serialised; all
// exported methods are safe for concurrent use.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/cuecard/internal/events"
	"github.com/MrWong99/cuecard/internal/observe"
	"github.com/MrWong99/cuecard/internal/recording"
	"github.com/MrWong99/cuecard/internal/stream"
	"github.com/MrWong99/cuecard/pkg/audio"
)

// DefaultPollInterval is half the frame cadence, so a frame pair is never
// left waiting for more than one tick.
const DefaultPollInterval = audio.FrameDuration / 2

var (
	// ErrNoDevice is returned by Start when a device ID is missing.
	ErrNoDevice = errors.New("session: no audio device selected")

	// ErrMissingCredential is returned by Start when the client has no API key.
	ErrMissingCredential = stream.ErrMissingCredential
)

// Client is the streaming side of a session. *stream.Client implements it.
type Client interface {
	HasCredential() bool
	ProviderName() string
	Connect(ctx context.Context) error
	Connected() bool
	SendAudio(pcm []byte)
	SendImage(png []byte) bool
	Close() error
}

// Resetter clears per-turn state between sessions. *assembler.Assembler
// implements it.
type Resetter interface {
	Reset()
}

// Options selects the devices for one session.
type Options struct {
	MicDeviceID    string
	SystemDeviceID string
}

// Info holds metadata about the active session.
type Info struct {
	// ID is derived from the start time.
	ID string

	// MicDeviceID and SystemDeviceID are the devices being captured.
	MicDeviceID    string
	SystemDeviceID string

	// StartedAt is when Start completed.
	StartedAt time.Time
}

// StopResult describes the outcome of Stop.
type StopResult struct {
	// Stopped is false when no session was active.
	Stopped bool

	// Recording is the finished recording, or nil when recording was
	// disabled or nothing was captured.
	Recording *recording.Recording
}

// Config holds the dependencies of an [Orchestrator].
type Config struct {
	// Backend opens the capture sources. Required.
	Backend audio.Backend

	// Client streams mixed audio and images. Required.
	Client Client

	// Sink receives UI events. Defaults to events.Discard.
	Sink events.Sink

	// Assembler, if set, is reset whenever a session ends.
	Assembler Resetter

	// Record enables the recording aggregator.
	Record bool

	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration

	// Metrics defaults to observe.DefaultMetrics.
	Metrics *observe.Metrics
}

// Orchestrator owns the lifecycle of capture sessions.
type Orchestrator struct {
	backend  audio.Backend
	client   Client
	sink     events.Sink
	asm      Resetter
	record   bool
	interval time.Duration
	metrics  *observe.Metrics

	// mu serialises Start, Stop and asynchronous teardown.
	mu       sync.Mutex
	gen      uint64
	info     Info
	mic, sys audio.Source
	rec      *recording.Aggregator
	cancel   context.CancelFunc
	done     chan struct{}

	active  atomic.Bool
	micSlot atomic.Pointer[[]byte]
	sysSlot atomic.Pointer[[]byte]
}

// New creates an idle Orchestrator.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		backend:  cfg.Backend,
		client:   cfg.Client,
		sink:     cfg.Sink,
		asm:      cfg.Assembler,
		record:   cfg.Record,
		interval: cfg.PollInterval,
		metrics:  cfg.Metrics,
		rec:      recording.NewAggregator(),
	}
	if o.sink == nil {
		o.sink = events.Discard
	}
	if o.interval <= 0 {
		o.interval = DefaultPollInterval
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}

// Start opens both sources, connects the client and starts the poll loop.
// A previously active session is torn down first. Start is all-or-nothing:
// on error everything opened so far is released again.
func (o *Orchestrator) Start(ctx context.Context, opts Options) error {
	if !o.client.HasCredential() {
		return ErrMissingCredential
	}
	if opts.MicDeviceID == "" || opts.SystemDeviceID == "" {
		return ErrNoDevice
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active.Load() {
		slog.Info("session: replacing active session", "session_id", o.info.ID)
		if _, err := o.stopLocked(ctx); err != nil {
			slog.Warn("session: teardown of previous session", "err", err)
		}
	}

	o.gen++
	gen := o.gen

	ctx, span := observe.StartSpan(ctx, "session.start")
	defer span.End()
	span.SetAttributes(observe.SessionAttrs(gen, o.client.ProviderName())...)
	log := observe.Logger(ctx)

	o.micSlot.Store(nil)
	o.sysSlot.Store(nil)
	if o.record {
		o.rec.Start()
	}

	var mic, sys audio.Source
	var g errgroup.Group
	g.Go(func() error {
		var err error
		mic, err = o.openSource(gen, opts.MicDeviceID, audio.KindMic, &o.micSlot)
		return err
	})
	g.Go(func() error {
		var err error
		sys, err = o.openSource(gen, opts.SystemDeviceID, audio.KindSystem, &o.sysSlot)
		return err
	})
	if err := g.Wait(); err != nil {
		o.unwind(mic, sys, false)
		span.RecordError(err)
		return err
	}

	if err := o.client.Connect(ctx); err != nil {
		o.unwind(mic, sys, true)
		span.RecordError(err)
		return fmt.Errorf("session: connect: %w", err)
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go o.poll(pollCtx, done)

	now := time.Now().UTC()
	o.mic, o.sys = mic, sys
	o.cancel, o.done = cancel, done
	o.info = Info{
		ID:             "session-" + now.Format("20060102T150405Z"),
		MicDeviceID:    opts.MicDeviceID,
		SystemDeviceID: opts.SystemDeviceID,
		StartedAt:      now,
	}
	o.active.Store(true)
	o.metrics.ActiveSessions.Add(ctx, 1)

	log.Info("session started",
		"session_id", o.info.ID,
		"mic", opts.MicDeviceID,
		"system", opts.SystemDeviceID,
		"recording", o.record,
	)
	return nil
}

// Stop ends the active session. It is idempotent: without an active session
// it returns a zero StopResult and no error.
func (o *Orchestrator) Stop(ctx context.Context) (StopResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.active.Load() {
		return StopResult{}, nil
	}
	return o.stopLocked(ctx)
}

// SendImage forwards a PNG to the client. It reports false when no session
// is active or the client could not take it.
func (o *Orchestrator) SendImage(png []byte) bool {
	if !o.active.Load() {
		return false
	}
	return o.client.SendImage(png)
}

// Active reports whether a session is running.
func (o *Orchestrator) Active() bool { return o.active.Load() }

// Ready reports whether a session is running with an open stream.
func (o *Orchestrator) Ready() bool { return o.active.Load() && o.client.Connected() }

// Info returns metadata about the active session, or the zero value.
func (o *Orchestrator) Info() Info {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.info
}

// stopLocked tears the active session down. Callers hold o.mu.
func (o *Orchestrator) stopLocked(ctx context.Context) (StopResult, error) {
	ctx, span := observe.StartSpan(ctx, "session.stop")
	defer span.End()
	span.SetAttributes(observe.SessionAttrs(o.gen, o.client.ProviderName())...)

	o.active.Store(false)
	o.cancel()
	<-o.done

	errs := []error{closeSource(o.mic), closeSource(o.sys)}

	var res StopResult
	res.Stopped = true
	if o.record {
		if rec, ok := o.rec.Finish(); ok {
			res.Recording = rec
			o.sink.Emit(events.Event{
				Kind:      events.KindRecordingComplete,
				Recording: events.Recording{WAV: rec.WAV, CapturedAt: rec.CapturedAt},
			})
		}
	}

	if err := o.client.Close(); err != nil {
		errs = append(errs, err)
	}
	if o.asm != nil {
		o.asm.Reset()
	}

	id := o.info.ID
	o.mic, o.sys = nil, nil
	o.cancel, o.done = nil, nil
	o.info = Info{}
	o.micSlot.Store(nil)
	o.sysSlot.Store(nil)
	o.metrics.ActiveSessions.Add(ctx, -1)

	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
	}
	observe.Logger(ctx).Info("session stopped", "session_id", id, "recorded", res.Recording != nil)
	return res, err
}

// unwind releases what a failed Start opened.
func (o *Orchestrator) unwind(mic, sys audio.Source, connected bool) {
	if err := errors.Join(closeSource(mic), closeSource(sys)); err != nil {
		slog.Warn("session: release sources after failed start", "err", err)
	}
	if connected {
		_ = o.client.Close()
	}
	if o.record {
		o.rec.Finish()
	}
}

// openSource opens and starts one device. Frames land in slot; fatal errors
// tear down session generation gen.
func (o *Orchestrator) openSource(gen uint64, id string, kind audio.Kind, slot *atomic.Pointer[[]byte]) (audio.Source, error) {
	src, err := o.backend.Open(id, kind)
	if err != nil {
		return nil, fmt.Errorf("session: open %s device %q: %w", kind, id, err)
	}
	onFrame := func(frame []byte) { slot.Store(&frame) }
	onError := func(err error) { o.sourceFailed(gen, kind, err) }
	if err := src.Start(onFrame, onError); err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("session: start %s device %q: %w", kind, id, err)
	}
	return src, nil
}

// sourceFailed runs on the source's reader goroutine, so teardown happens in
// a new goroutine.
func (o *Orchestrator) sourceFailed(gen uint64, kind audio.Kind, err error) {
	if audio.IsBenign(err) {
		slog.Debug("session: benign source error", "source", kind, "err", err)
		return
	}
	slog.Error("session: capture failed", "source", kind, "err", err)
	o.sink.Emit(events.Error(fmt.Sprintf("%s capture failed: %v", kind, err)))

	go func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if !o.active.Load() || o.gen != gen {
			return
		}
		if _, err := o.stopLocked(context.Background()); err != nil {
			slog.Warn("session: teardown after capture failure", "err", err)
		}
	}()
}

// ── Poll loop ──────────────────────────────────────────────────────────────────

func (o *Orchestrator) poll(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	var buf []byte
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			buf = o.mixOnce(ctx, buf)
		}
	}
}

// mixOnce mixes the latest frame pair if both sources produced one since the
// last call. It returns the mix buffer for reuse.
func (o *Orchestrator) mixOnce(ctx context.Context, buf []byte) []byte {
	if o.micSlot.Load() == nil || o.sysSlot.Load() == nil {
		return buf
	}
	mic := *o.micSlot.Swap(nil)
	sys := *o.sysSlot.Swap(nil)

	buf = audio.MixInto(buf, mic, sys)
	o.metrics.FramesMixed.Add(ctx, 1)
	if o.record {
		o.rec.Push(buf)
	}
	o.client.SendAudio(buf)
	o.sink.Emit(events.Event{
		Kind:     events.KindAudioActivity,
		Activity: events.Activity{Mic: audio.Level(mic), System: audio.Level(sys)},
	})
	return buf
}

func closeSource(src audio.Source) error {
	if src == nil {
		return nil
	}
	if err := src.Close(); !audio.IsBenign(err) {
		return fmt.Errorf("session: close source: %w", err)
	}
	return nil
}
