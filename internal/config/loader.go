package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"output": {"elevenlabs", "coqui", "openai"},
	"input":  {"deepgram", "whisper"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Quiz
	if cfg.Quiz.File == "" {
		errs = append(errs, errors.New("quiz.file is required"))
	}
	if cfg.Quiz.Language != "" {
		if _, err := language.Parse(cfg.Quiz.Language); err != nil {
			errs = append(errs, fmt.Errorf("quiz.language %q is not a valid BCP 47 tag: %w", cfg.Quiz.Language, err))
		}
	}
	if f := cfg.Quiz.Feedback.IncorrectFormat; f != "" && !strings.Contains(f, "%s") {
		errs = append(errs, fmt.Errorf("quiz.feedback.incorrect_format %q must contain a %%s verb for the reference answer", f))
	}

	// Providers
	if cfg.Providers.Output.Name == "" {
		errs = append(errs, errors.New("providers.output.name is required"))
	}
	if cfg.Providers.Input.Name == "" {
		errs = append(errs, errors.New("providers.input.name is required"))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("output", cfg.Providers.Output.Name)
	validateProviderName("input", cfg.Providers.Input.Name)

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
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
