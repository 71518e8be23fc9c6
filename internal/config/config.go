// Package config provides the configuration schema, loader, and backend
// registry for cuecard.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// DefaultSystemInstruction tells the model to stay silent unless it has
// something worth a note, and to answer in the note schema.
const DefaultSystemInstruction = `You are a discreet assistant listening to a live conversation through the user's microphone and system audio.
Stay silent by default. Only respond when you can add real value: answering a question that was asked, giving concise advice, or suggesting a follow-up question.
When you respond, reply with a single raw JSON object and nothing else:
{"content": "<your note>", "category": "answer" | "advice" | "follow-up"}
Do not wrap the JSON in markdown. Keep content under 300 characters.`

// Defaults applied by [ApplyDefaults].
const (
	DefaultProvider        = "gemini-live"
	DefaultModel           = "gemini-2.0-flash-live-001"
	DefaultTemperature     = 0.4
	DefaultTopP            = 0.95
	DefaultTopK            = 40
	DefaultMaxOutputTokens = 512
	DefaultAudioBackend    = "portaudio"
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Provider  ProviderEntry   `yaml:"provider"`
	Audio     AudioConfig     `yaml:"audio"`
	Recording RecordingConfig `yaml:"recording"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// ServerConfig holds logging and the optional metrics/health listener.
type ServerConfig struct {
	// ListenAddr is the TCP address serving /metrics, /healthz and /readyz
	// (e.g., ":9090"). Empty disables the listener.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProviderEntry configures the realtime backend.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered backend (e.g., "gemini-live").
	Name string `yaml:"name"`

	// APIKey is the backend credential. When empty it is taken from the
	// CUECARD_API_KEY or GEMINI_API_KEY environment variables.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the backend's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects the model within the backend.
	Model string `yaml:"model"`

	Temperature     float64 `yaml:"temperature"`
	TopP            float64 `yaml:"top_p"`
	TopK            int     `yaml:"top_k"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`

	// SystemInstruction replaces [DefaultSystemInstruction].
	SystemInstruction string `yaml:"system_instruction"`
}

// AudioConfig selects the capture devices.
type AudioConfig struct {
	// Backend selects the registered device layer. Defaults to "portaudio".
	Backend string `yaml:"backend"`

	// MicDevice and SystemDevice are backend device IDs. An empty MicDevice
	// falls back to the backend's default input.
	MicDevice    string `yaml:"mic_device"`
	SystemDevice string `yaml:"system_device"`

	// PollInterval is the mixer cadence. Defaults to half the frame duration.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// RecordingConfig controls the session recording.
type RecordingConfig struct {
	Enabled bool `yaml:"enabled"`

	// OutputDir receives the WAV files. Defaults to the working directory.
	OutputDir string `yaml:"output_dir"`
}

// ReconnectConfig controls automatic reconnection after unexpected closes.
type ReconnectConfig struct {
	Enabled    bool          `yaml:"enabled"`
	MaxRetries int           `yaml:"max_retries"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}
