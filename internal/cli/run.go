package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/cuecard/internal/assembler"
	"github.com/MrWong99/cuecard/internal/config"
	"github.com/MrWong99/cuecard/internal/events"
	"github.com/MrWong99/cuecard/internal/health"
	"github.com/MrWong99/cuecard/internal/recording"
	"github.com/MrWong99/cuecard/internal/session"
	"github.com/MrWong99/cuecard/internal/stream"
	"github.com/MrWong99/cuecard/pkg/audio"
	"github.com/MrWong99/cuecard/pkg/provider/realtime"
)

const (
	eventBuffer     = 256
	shutdownTimeout = 10 * time.Second
	livenessTick    = time.Second
)

type runFlags struct {
	mic    string
	system string
	record bool
}

// NewRunCmd starts a session and prints notes until stopped.
func NewRunCmd(deps *Dependencies) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a listening session",
		Long: "Start a session with the configured devices. Type `snap <file.png>` to send a screenshot, " +
			"`status` for session state and `stop` to end the session.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSession(cmd, deps, flags)
		},
	}
	cmd.Flags().StringVar(&flags.mic, "mic", "", "microphone device ID (overrides audio.mic_device)")
	cmd.Flags().StringVar(&flags.system, "system", "", "system audio device ID (overrides audio.system_device)")
	cmd.Flags().BoolVar(&flags.record, "record", false, "save a WAV recording of the session")
	return cmd
}

func runSession(cmd *cobra.Command, deps *Dependencies, flags runFlags) error {
	ctx := cmd.Context()
	out := NewRenderer(cmd.OutOrStdout())

	// ── Configuration ─────────────────────────────────────────────────────────
	loaded, stopWatch, err := watchConfig(cmd, deps)
	if err != nil {
		return err
	}
	defer stopWatch()

	cfg := *loaded
	if flags.mic != "" {
		cfg.Audio.MicDevice = flags.mic
	}
	if flags.system != "" {
		cfg.Audio.SystemDevice = flags.system
	}
	if flags.record {
		cfg.Recording.Enabled = true
	}
	if deps.LevelVar != nil {
		deps.LevelVar.Set(slogLevel(cfg.Server.LogLevel))
	}

	// ── Backends ──────────────────────────────────────────────────────────────
	backend, err := deps.Registry.CreateAudio(cfg.Audio)
	if err != nil {
		return fmt.Errorf("create audio backend: %w", err)
	}
	if c, ok := backend.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				slog.Warn("audio backend close", "err", err)
			}
		}()
	}
	provider, err := deps.Registry.CreateRealtime(cfg.Provider)
	if err != nil {
		return fmt.Errorf("create realtime backend: %w", err)
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	metrics := deps.metrics()
	sink := events.NewChannelSink(eventBuffer)
	asm := assembler.New(sink, assembler.WithMetrics(metrics))
	client := stream.New(stream.Config{
		APIKey: cfg.Provider.APIKey,
		Session: realtime.SessionConfig{
			Instructions: cfg.Provider.SystemInstruction,
			Generation: realtime.GenerationConfig{
				Temperature:     cfg.Provider.Temperature,
				TopP:            cfg.Provider.TopP,
				TopK:            cfg.Provider.TopK,
				MaxOutputTokens: cfg.Provider.MaxOutputTokens,
			},
		},
		Reconnect: stream.ReconnectConfig{
			Enabled:    cfg.Reconnect.Enabled,
			MaxRetries: cfg.Reconnect.MaxRetries,
			Backoff:    cfg.Reconnect.Backoff,
			MaxBackoff: cfg.Reconnect.MaxBackoff,
		},
	}, provider, sink,
		stream.WithMessageHandler(asm.Handle),
		stream.WithMetrics(metrics),
	)
	orch := session.New(session.Config{
		Backend:      backend,
		Client:       client,
		Sink:         sink,
		Assembler:    asm,
		Record:       cfg.Recording.Enabled,
		PollInterval: cfg.Audio.PollInterval,
		Metrics:      metrics,
	})

	opts, err := resolveDevices(backend, cfg.Audio)
	if err != nil {
		return err
	}

	// ── Metrics / health listener (optional) ──────────────────────────────────
	if cfg.Server.ListenAddr != "" {
		srv, err := startMetricsServer(cfg.Server.ListenAddr,
			newMux(metrics, health.Probe("session", orch.Ready)))
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	// ── Session ───────────────────────────────────────────────────────────────
	if err := orch.Start(ctx, opts); err != nil {
		return err
	}
	out.Info(fmt.Sprintf("listening (mic %s, system %s); type `help` for commands", opts.MicDeviceID, opts.SystemDeviceID))

	lines := readLines(cmd.InOrStdin())
	loop := &runLoop{
		out:       out,
		orch:      orch,
		outputDir: cfg.Recording.OutputDir,
	}
	loop.run(ctx, sink.Events(), lines)

	// ── Shutdown ──────────────────────────────────────────────────────────────
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_, stopErr := orch.Stop(sctx)
	loop.drain(sink.Events())
	if n := sink.Dropped(); n > 0 {
		slog.Warn("events dropped while the terminal was busy", "count", n)
	}
	out.Info("session ended")
	if stopErr != nil {
		return fmt.Errorf("stop session: %w", stopErr)
	}
	return nil
}

// watchConfig loads the config through a hot-reload watcher when the file
// exists. Only the log level is applied live.
func watchConfig(cmd *cobra.Command, deps *Dependencies) (*config.Config, func(), error) {
	path, explicit := configPath(cmd)
	if _, err := os.Stat(path); err != nil && !explicit && errors.Is(err, os.ErrNotExist) {
		cfg, err := loadConfig(cmd)
		return cfg, func() {}, err
	}

	w, err := config.NewWatcher(path, func(d config.ConfigDiff, _ *config.Config) {
		if d.LogLevelChanged && deps.LevelVar != nil {
			deps.LevelVar.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if len(d.RestartRequired) > 0 {
			slog.Warn("config change takes effect after restart", "sections", d.RestartRequired)
		}
	})
	if err != nil {
		return nil, nil, err
	}
	return w.Current(), w.Stop, nil
}

// resolveDevices picks the session devices and checks that both exist on
// the backend. An empty mic falls back to the backend's default input.
func resolveDevices(backend audio.Backend, cfg config.AudioConfig) (session.Options, error) {
	opts := session.Options{
		MicDeviceID:    cfg.MicDevice,
		SystemDeviceID: cfg.SystemDevice,
	}
	if opts.SystemDeviceID == "" {
		return opts, fmt.Errorf("%w: set audio.system_device or --system (see `cuecard devices`)", session.ErrNoDevice)
	}
	list, err := backend.Devices()
	if err != nil {
		return opts, fmt.Errorf("list devices: %w", err)
	}
	if opts.MicDeviceID == "" {
		opts.MicDeviceID = list.DefaultInputID
	}
	if opts.MicDeviceID == "" {
		return opts, fmt.Errorf("%w: no default input, set audio.mic_device or --mic", session.ErrNoDevice)
	}
	for _, id := range []string{opts.MicDeviceID, opts.SystemDeviceID} {
		if _, ok := list.Find(id); !ok {
			return opts, fmt.Errorf("%w: device %q not found (see `cuecard devices`)", session.ErrNoDevice, id)
		}
	}
	return opts, nil
}

// readLines scans r in the background. The channel is closed at EOF.
func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	return ch
}

// runLoop multiplexes session events and stdin commands.
type runLoop struct {
	out       *Renderer
	orch      *session.Orchestrator
	outputDir string
}

// run returns when ctx is cancelled, the user stops the session or the
// session ends on its own.
func (l *runLoop) run(ctx context.Context, evs <-chan events.Event, lines <-chan string) {
	tick := time.NewTicker(livenessTick)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-evs:
			l.handleEvent(e)
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if l.handleLine(line) {
				return
			}
		case <-tick.C:
			if !l.orch.Active() {
				return
			}
		}
	}
}

// drain renders the events already queued.
func (l *runLoop) drain(evs <-chan events.Event) {
	for {
		select {
		case e := <-evs:
			l.handleEvent(e)
		default:
			return
		}
	}
}

func (l *runLoop) handleEvent(e events.Event) {
	if e.Kind == events.KindRecordingComplete {
		rec := recording.Recording{WAV: e.Recording.WAV, CapturedAt: e.Recording.CapturedAt}
		path, err := rec.Save(l.outputDir)
		if err != nil {
			l.out.Error(err.Error())
			return
		}
		l.out.Info(fmt.Sprintf("recording saved to %s (%s)", path, rec.Duration().Round(time.Second)))
		return
	}
	l.out.Event(e)
}

// handleLine executes one stdin command and reports whether the loop should
// end.
func (l *runLoop) handleLine(line string) bool {
	c, err := parseCommand(line)
	if err != nil {
		l.out.Error(err.Error())
		return false
	}
	switch c.kind {
	case cmdStop:
		return true
	case cmdHelp:
		l.out.Info(commandHelp)
	case cmdStatus:
		l.out.Info(l.status())
	case cmdSnap:
		png, err := readPNG(c.arg)
		if err != nil {
			l.out.Error(err.Error())
			return false
		}
		if !l.orch.SendImage(png) {
			l.out.Error("image not sent: not connected")
			return false
		}
		l.out.Info("image sent: " + c.arg)
	}
	return false
}

func (l *runLoop) status() string {
	if !l.orch.Active() {
		return "no active session"
	}
	info := l.orch.Info()
	state := "connected"
	if !l.orch.Ready() {
		state = "reconnecting"
	}
	return fmt.Sprintf("%s %s, up %s", info.ID, state, time.Since(info.StartedAt).Round(time.Second))
}
