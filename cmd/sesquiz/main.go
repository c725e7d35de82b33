// Command sesquiz is the voice quiz application entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ogulcanz/sesquiz/internal/app"
	"github.com/ogulcanz/sesquiz/internal/audio"
	"github.com/ogulcanz/sesquiz/internal/config"
	"github.com/ogulcanz/sesquiz/internal/observe"
	"github.com/ogulcanz/sesquiz/pkg/speech/input"
	"github.com/ogulcanz/sesquiz/pkg/speech/input/deepgram"
	"github.com/ogulcanz/sesquiz/pkg/speech/input/whisper"
	"github.com/ogulcanz/sesquiz/pkg/speech/output"
	"github.com/ogulcanz/sesquiz/pkg/speech/output/coqui"
	"github.com/ogulcanz/sesquiz/pkg/speech/output/elevenlabs"
	"github.com/ogulcanz/sesquiz/pkg/speech/output/openai"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "sesquiz: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "sesquiz: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel := new(slog.LevelVar)
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("sesquiz starting",
		"version", version,
		"config", *configPath,
		"quiz_file", cfg.Quiz.File,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		diff := config.Diff(old, new)
		if diff.LogLevelChanged {
			logLevel.Set(slogLevel(diff.NewLogLevel))
			slog.Info("log level changed", "level", diff.NewLogLevel)
		}
		application.ApplyConfigChange(diff)
	})
	if err != nil {
		slog.Warn("config watcher unavailable", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("ready — press Ctrl+C to quit")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in speech provider factories into
// reg. Each factory receives a config.ProviderEntry and constructs the
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Speech output ─────────────────────────────────────────────────────────

	reg.RegisterOutput("elevenlabs", func(entry config.ProviderEntry) (output.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterOutput("coqui", func(entry config.ProviderEntry) (output.Provider, error) {
		// Coqui models emit at their native rate (22.05 kHz for most);
		// the playback device runs at audio.SampleRate.
		opts := []coqui.Option{coqui.WithOutputSampleRate(audio.SampleRate)}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	reg.RegisterOutput("openai", func(entry config.ProviderEntry) (output.Provider, error) {
		// The speech endpoint's PCM is fixed at 24 kHz; resample down to
		// the playback device rate.
		opts := []openai.Option{openai.WithOutputSampleRate(audio.SampleRate)}
		if entry.Model != "" {
			opts = append(opts, openai.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, opts...)
	})

	// ── Speech input ──────────────────────────────────────────────────────────

	reg.RegisterInput("deepgram", func(entry config.ProviderEntry) (input.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterInput("whisper", func(entry config.ProviderEntry) (input.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if ms := optInt(entry.Options, "silence_threshold_ms"); ms > 0 {
			opts = append(opts, whisper.WithSilenceThresholdMs(ms))
		}
		return whisper.New(entry.BaseURL, opts...)
	})
}

// buildProviders instantiates the two providers named in cfg using the
// registry. Both are required; an unknown name is fatal.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	p, err := reg.CreateOutput(cfg.Providers.Output)
	if err != nil {
		return nil, fmt.Errorf("create output provider %q: %w", cfg.Providers.Output.Name, err)
	}
	ps.Output = p
	slog.Info("provider created", "kind", "output", "name", cfg.Providers.Output.Name)

	in, err := reg.CreateInput(cfg.Providers.Input)
	if err != nil {
		return nil, fmt.Errorf("create input provider %q: %w", cfg.Providers.Input.Name, err)
	}
	ps.Input = in
	slog.Info("provider created", "kind", "input", "name", cfg.Providers.Input.Name)

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Sesquiz — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Quiz file", cfg.Quiz.File)
	printRow("Language", cfg.Quiz.Language)
	printProvider("Output", cfg.Providers.Output.Name, cfg.Providers.Output.Model)
	printProvider("Input", cfg.Providers.Input.Name, cfg.Providers.Input.Model)
	if cfg.Notifications.Enabled {
		printRow("Notifications", "enabled")
	} else {
		printRow("Notifications", "(disabled)")
	}
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printRow(kind, value)
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-15s : %-19s ║\n", label, value)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
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

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an int value from a provider Options map[string]any. YAML
// decodes integers as int; anything else yields 0.
func optInt(opts map[string]any, key string) int {
	if opts == nil {
		return 0
	}
	i, _ := opts[key].(int)
	return i
}
