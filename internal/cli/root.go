// Package cli implements the cuecard command tree.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/cuecard/internal/config"
	"github.com/MrWong99/cuecard/internal/observe"
	"github.com/MrWong99/cuecard/internal/version"
)

const defaultConfigPath = "cuecard.yaml"

// Dependencies are the process-wide collaborators shared by all commands.
type Dependencies struct {
	// Registry resolves the configured backends. Required.
	Registry *config.Registry

	// Stdin feeds interactive commands to `run`. Defaults to os.Stdin.
	Stdin io.Reader

	// Stdout and Stderr default to the process streams.
	Stdout io.Writer
	Stderr io.Writer

	// LevelVar, if set, is adjusted to the configured log level and on hot
	// reload.
	LevelVar *slog.LevelVar

	// Metrics defaults to observe.DefaultMetrics.
	Metrics *observe.Metrics
}

func (d *Dependencies) metrics() *observe.Metrics {
	if d.Metrics != nil {
		return d.Metrics
	}
	return observe.DefaultMetrics()
}

// NewRootCmd builds the command tree.
func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cuecard",
		Short: "Live conversation assistant",
		Long: "cuecard listens to your microphone and system audio, streams the mix to a realtime model " +
			"and prints short notes (answers, advice, follow-up questions) as the conversation happens.",
		SilenceUsage: true,
	}

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full() + "\n")
	rootCmd.PersistentFlags().String("config", defaultConfigPath, "path to the YAML configuration file")

	if deps.Stdin != nil {
		rootCmd.SetIn(deps.Stdin)
	}
	if deps.Stdout != nil {
		rootCmd.SetOut(deps.Stdout)
	}
	if deps.Stderr != nil {
		rootCmd.SetErr(deps.Stderr)
	}

	rootCmd.AddCommand(NewRunCmd(deps))
	rootCmd.AddCommand(NewDevicesCmd(deps))
	rootCmd.AddCommand(NewInspectCmd(deps))
	rootCmd.AddCommand(NewVersionCmd(deps))

	return rootCmd
}

// configPath returns the --config value and whether it was set explicitly.
func configPath(cmd *cobra.Command) (string, bool) {
	f := cmd.Flag("config")
	if f == nil {
		return defaultConfigPath, false
	}
	return f.Value.String(), f.Changed
}

// loadConfig loads the file named by --config. A missing default file is not
// an error: defaults plus the environment credential are used instead.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, explicit := configPath(cmd)
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if explicit || !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	slog.Debug("no config file, using defaults", "path", path)
	cfg, err = config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		return nil, err
	}
	config.ApplyEnv(cfg, os.LookupEnv)
	return cfg, nil
}

// slogLevel maps a config log level to its slog equivalent.
func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewVersionCmd prints the build information.
func NewVersionCmd(_ *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Full())
		},
	}
}
