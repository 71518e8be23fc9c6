package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/cuecard/pkg/audio"
)

// APIKeyEnvVars are consulted in order when provider.api_key is empty.
var APIKeyEnvVars = []string{"CUECARD_API_KEY", "GEMINI_API_KEY"}

// ValidProviderNames lists known backend names per kind.
// Used by [Validate] to warn about unrecognised names.
var ValidProviderNames = map[string][]string{
	"realtime": {"gemini-live"},
	"audio":    {"portaudio"},
}

// Load reads the YAML configuration file at path, fills the credential from
// the environment and returns a validated [Config].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := parse(data, os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. The environment is not consulted.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parse is LoadFromReader plus the environment credential override.
func parse(data []byte, lookup func(string) (string, bool)) (*Config, error) {
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	ApplyEnv(cfg, lookup)
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	p := &cfg.Provider
	if p.Name == "" {
		p.Name = DefaultProvider
	}
	if p.Model == "" {
		p.Model = DefaultModel
	}
	if p.Temperature == 0 {
		p.Temperature = DefaultTemperature
	}
	if p.TopP == 0 {
		p.TopP = DefaultTopP
	}
	if p.TopK == 0 {
		p.TopK = DefaultTopK
	}
	if p.MaxOutputTokens == 0 {
		p.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if p.SystemInstruction == "" {
		p.SystemInstruction = DefaultSystemInstruction
	}
	if cfg.Audio.Backend == "" {
		cfg.Audio.Backend = DefaultAudioBackend
	}
	if cfg.Audio.PollInterval == 0 {
		cfg.Audio.PollInterval = audio.FrameDuration / 2
	}
	if cfg.Recording.OutputDir == "" {
		cfg.Recording.OutputDir = "."
	}
}

// ApplyEnv fills an empty provider.api_key from the first set variable in
// [APIKeyEnvVars]. A key present in the file always wins.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if cfg.Provider.APIKey != "" {
		return
	}
	for _, name := range APIKeyEnvVars {
		if v, ok := lookup(name); ok && v != "" {
			cfg.Provider.APIKey = v
			return
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider
	validateProviderName("realtime", cfg.Provider.Name)
	p := cfg.Provider
	if p.Temperature < 0 || p.Temperature > 2 {
		errs = append(errs, fmt.Errorf("provider.temperature %.2f is out of range [0, 2]", p.Temperature))
	}
	if p.TopP < 0 || p.TopP > 1 {
		errs = append(errs, fmt.Errorf("provider.top_p %.2f is out of range [0, 1]", p.TopP))
	}
	if p.TopK < 0 {
		errs = append(errs, fmt.Errorf("provider.top_k %d must not be negative", p.TopK))
	}
	if p.MaxOutputTokens < 0 {
		errs = append(errs, fmt.Errorf("provider.max_output_tokens %d must not be negative", p.MaxOutputTokens))
	}

	// Audio
	validateProviderName("audio", cfg.Audio.Backend)
	if cfg.Audio.PollInterval < 0 || cfg.Audio.PollInterval >= audio.FrameDuration {
		errs = append(errs, fmt.Errorf("audio.poll_interval %s must be shorter than the %s frame cadence", cfg.Audio.PollInterval, audio.FrameDuration))
	}
	if cfg.Audio.MicDevice != "" && cfg.Audio.MicDevice == cfg.Audio.SystemDevice {
		slog.Warn("audio.mic_device and audio.system_device are the same device", "device", cfg.Audio.MicDevice)
	}

	// Reconnect
	rc := cfg.Reconnect
	if rc.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("reconnect.max_retries %d must not be negative", rc.MaxRetries))
	}
	if rc.Backoff < 0 || rc.MaxBackoff < 0 {
		errs = append(errs, errors.New("reconnect.backoff and reconnect.max_backoff must not be negative"))
	}
	if rc.Backoff > 0 && rc.MaxBackoff > 0 && rc.MaxBackoff < rc.Backoff {
		errs = append(errs, fmt.Errorf("reconnect.max_backoff %s is shorter than reconnect.backoff %s", rc.MaxBackoff, rc.Backoff))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown backend name, may be a typo or third-party backend",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
