// Command cuecard is the entry point for the cuecard conversation assistant.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/cuecard/internal/cli"
	"github.com/MrWong99/cuecard/internal/config"
	"github.com/MrWong99/cuecard/internal/observe"
	"github.com/MrWong99/cuecard/internal/version"
	"github.com/MrWong99/cuecard/pkg/audio"
	"github.com/MrWong99/cuecard/pkg/audio/portaudio"
	"github.com/MrWong99/cuecard/pkg/provider/realtime"
	"github.com/MrWong99/cuecard/pkg/provider/realtime/gemini"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "cuecard",
		ServiceVersion: version.Version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()

	// ── Backend registry ──────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltins(reg)

	root := cli.NewRootCmd(&cli.Dependencies{
		Registry: reg,
		LevelVar: level,
	})
	if err := root.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

// registerBuiltins wires the backends that ship with cuecard into reg.
func registerBuiltins(reg *config.Registry) {
	reg.RegisterRealtime("gemini-live", func(entry config.ProviderEntry) (realtime.Provider, error) {
		opts := []gemini.Option{gemini.WithModel(entry.Model)}
		if entry.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(entry.BaseURL))
		}
		return gemini.New(entry.APIKey, opts...), nil
	})

	reg.RegisterAudio("portaudio", func(config.AudioConfig) (audio.Backend, error) {
		b, err := portaudio.New()
		if err != nil {
			return nil, err
		}
		return b, nil
	})
}
