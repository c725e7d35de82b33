// Package config provides the configuration schema, loader, and provider
// registry for the sesquiz voice quiz engine.
package config

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

// Config is the root configuration structure for sesquiz.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Quiz          QuizConfig          `yaml:"quiz"`
	Providers     ProvidersConfig     `yaml:"providers"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

// ServerConfig holds the optional diagnostics listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address for the health and metrics endpoints
	// (e.g., ":8080"). When empty, no HTTP listener is started.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// QuizConfig holds the question set location and playback behaviour.
type QuizConfig struct {
	// File is the path to the JSON question set.
	File string `yaml:"file"`

	// Language is the BCP 47 tag used for answer normalization, speech
	// synthesis voice selection, and recognition (e.g., "tr", "tr-TR").
	// Defaults to "tr".
	Language string `yaml:"language"`

	// PreferredVoices lists voice name fragments tried in order when
	// selecting a synthesis voice. Matching is case-insensitive substring.
	PreferredVoices []string `yaml:"preferred_voices"`

	// Feedback overrides the spoken feedback phrases.
	Feedback FeedbackConfig `yaml:"feedback"`
}

// FeedbackConfig holds the phrases spoken after an answer is evaluated.
// Empty fields fall back to the built-in Turkish phrases.
type FeedbackConfig struct {
	// Correct is spoken after a correct answer.
	Correct string `yaml:"correct"`

	// IncorrectFormat is a fmt format string spoken after an incorrect
	// answer; the single %s verb receives the reference answer.
	IncorrectFormat string `yaml:"incorrect_format"`
}

// ProvidersConfig declares which provider implementation to use for each
// speech direction. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	// Output selects the speech synthesis provider.
	Output ProviderEntry `yaml:"output"`

	// Input selects the speech recognition provider.
	Input ProviderEntry `yaml:"input"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "elevenlabs",
	// "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "nova-3",
	// "eleven_flash_v2_5").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or
	// nested maps.
	Options map[string]any `yaml:"options"`
}

// NotificationsConfig controls desktop notifications.
type NotificationsConfig struct {
	// Enabled turns desktop notifications on.
	Enabled bool `yaml:"enabled"`
}
