// Package app wires all sesquiz subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the dispatch loop until the player quits or the
// context is cancelled, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithSink, WithCapture,
// WithTerminal, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/ogulcanz/sesquiz/internal/answer"
	"github.com/ogulcanz/sesquiz/internal/audio"
	"github.com/ogulcanz/sesquiz/internal/config"
	"github.com/ogulcanz/sesquiz/internal/health"
	"github.com/ogulcanz/sesquiz/internal/notify"
	"github.com/ogulcanz/sesquiz/internal/observe"
	"github.com/ogulcanz/sesquiz/internal/quiz"
	"github.com/ogulcanz/sesquiz/internal/session"
	"github.com/ogulcanz/sesquiz/internal/turn"
	"github.com/ogulcanz/sesquiz/internal/ui"
	"github.com/ogulcanz/sesquiz/pkg/speech/input"
	"github.com/ogulcanz/sesquiz/pkg/speech/output"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// actionBuf sizes the dispatch channel. Turn callbacks and UI intents both
// feed it; a small buffer keeps them from blocking each other.
const actionBuf = 16

// Providers holds one interface value per speech direction. Populated by
// main.go via the config registry.
type Providers struct {
	Output output.Provider
	Input  input.Provider
}

// App owns all subsystem lifetimes and runs the quiz dispatch loop.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	speaker  *output.Controller
	listener *input.Controller
	turns    *turn.Controller
	render   *ui.Renderer
	reader   *ui.Reader
	notifier *notify.Notifier
	metrics  *observe.Metrics

	// sink and capture are the playback and microphone endpoints. Both
	// default to portaudio devices.
	sink    output.Sink
	capture input.CaptureSource

	// state and turnStart are owned exclusively by the dispatch loop in
	// Run.
	state     session.State
	turnStart time.Time
	actions   chan session.Action

	// turnEvents carries listener state changes into the turn controller
	// after the tee loop has rendered them.
	turnEvents chan input.State

	turnOpts   []turn.Option
	listenOpts []input.Option

	httpSrv *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSink injects a playback sink instead of opening a portaudio output
// device.
func WithSink(s output.Sink) Option {
	return func(a *App) { a.sink = s }
}

// WithCapture injects a microphone source instead of opening a portaudio
// input device.
func WithCapture(c input.CaptureSource) Option {
	return func(a *App) { a.capture = c }
}

// WithTerminal redirects the renderer and command reader, normally bound to
// stdout and stdin.
func WithTerminal(out io.Writer, in io.Reader) Option {
	return func(a *App) {
		a.render = ui.NewRenderer(out)
		a.reader = ui.NewReader(in)
	}
}

// WithNotifier injects a notifier instead of creating one from config.
func WithNotifier(n *notify.Notifier) Option {
	return func(a *App) { a.notifier = n }
}

// WithMetrics injects a metrics bundle instead of using the global meter
// provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithTurnOptions appends extra options to the turn controller, e.g. to
// shorten round delays.
func WithTurnOptions(opts ...turn.Option) Option {
	return func(a *App) { a.turnOpts = append(a.turnOpts, opts...) }
}

// WithListenerOptions appends extra options to the speech input controller,
// e.g. to shorten the silence window.
func WithListenerOptions(opts ...input.Option) Option {
	return func(a *App) { a.listenOpts = append(a.listenOpts, opts...) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: question set loading, audio
// device setup, speech controller construction, and the startup capability
// probe of both providers. Any failure is fatal.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:        cfg,
		providers:  providers,
		actions:    make(chan session.Action, actionBuf),
		turnEvents: make(chan input.State, actionBuf),
	}
	for _, o := range opts {
		o(a)
	}
	if a.render == nil {
		a.render = ui.NewRenderer(os.Stdout)
	}
	if a.reader == nil {
		a.reader = ui.NewReader(os.Stdin)
	}
	if a.notifier == nil {
		a.notifier = notify.New(cfg.Notifications.Enabled)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.providers = &Providers{
		Output: observe.InstrumentOutput(providers.Output, a.metrics, cfg.Providers.Output.Name),
		Input:  observe.InstrumentInput(providers.Input, a.metrics, cfg.Providers.Input.Name),
	}

	// ── 1. Question set ──────────────────────────────────────────────────
	set, err := quiz.Load(cfg.Quiz.File)
	if err != nil {
		return nil, fmt.Errorf("app: load question set: %w", err)
	}
	a.state = session.Reduce(session.Initial(), session.LoadSet{Set: set})
	slog.Info("question set loaded", "title", set.Title, "questions", set.Len())

	// ── 2. Audio devices ─────────────────────────────────────────────────
	if err := a.initAudio(); err != nil {
		return nil, fmt.Errorf("app: init audio: %w", err)
	}

	// ── 3. Speech controllers ────────────────────────────────────────────
	if err := a.initSpeech(); err != nil {
		return nil, fmt.Errorf("app: init speech: %w", err)
	}

	// ── 4. Capability probe ──────────────────────────────────────────────
	if err := a.probe(ctx); err != nil {
		return nil, err
	}

	// ── 5. Turn controller ───────────────────────────────────────────────
	a.initTurns()

	// ── 6. Diagnostics listener ──────────────────────────────────────────
	a.initHTTP()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initAudio opens the portaudio devices unless doubles were injected.
func (a *App) initAudio() error {
	if a.sink == nil {
		player, err := audio.NewPlayer(audio.SampleRate)
		if err != nil {
			return fmt.Errorf("open playback device: %w", err)
		}
		a.sink = player
		a.closers = append(a.closers, player.Close)
	}
	if a.capture == nil {
		rec, err := audio.NewRecorder()
		if err != nil {
			return fmt.Errorf("open microphone: %w", err)
		}
		a.capture = rec
		a.closers = append(a.closers, rec.Close)
	}
	return nil
}

// initSpeech builds the output and input controllers from config.
func (a *App) initSpeech() error {
	lang := a.cfg.Quiz.Language
	if lang == "" {
		lang = "tr"
	}

	a.speaker = output.NewController(a.providers.Output, a.sink,
		output.WithLanguage(lang),
		output.WithPreferredVoices(a.cfg.Quiz.PreferredVoices...),
	)

	listenOpts := append([]input.Option{
		input.WithCapture(a.capture),
		input.WithStreamConfig(input.StreamConfig{
			SampleRate: audio.SampleRate,
			Channels:   audio.Channels,
			Language:   lang,
		}),
	}, a.listenOpts...)
	a.listener = input.NewController(a.providers.Input, listenOpts...)
	return nil
}

// probe verifies at startup that both speech providers are reachable. A
// missing capability is fatal and the error names the configured provider.
func (a *App) probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := a.providers.Output.Voices(probeCtx); err != nil {
		return fmt.Errorf("app: speech output provider %q is not usable: %w",
			a.cfg.Providers.Output.Name, err)
	}

	sess, err := a.providers.Input.StartStream(probeCtx, input.StreamConfig{
		SampleRate: audio.SampleRate,
		Channels:   audio.Channels,
		Language:   a.cfg.Quiz.Language,
	})
	if err != nil {
		return fmt.Errorf("app: speech input provider %q is not usable: %w",
			a.cfg.Providers.Input.Name, err)
	}
	if err := sess.Close(); err != nil {
		slog.Debug("probe session close", "err", err)
	}

	slog.Info("speech providers verified",
		"output", a.cfg.Providers.Output.Name,
		"input", a.cfg.Providers.Input.Name,
	)
	return nil
}

// initTurns builds the per-question turn controller around a listener
// adapter fed by the event tee loop.
func (a *App) initTurns() {
	matchLang := language.Turkish
	if a.cfg.Quiz.Language != "" {
		if tag, err := language.Parse(a.cfg.Quiz.Language); err == nil {
			matchLang = tag
		}
	}

	var opts []turn.Option
	if fb := a.cfg.Quiz.Feedback; fb.Correct != "" || fb.IncorrectFormat != "" {
		correct, format := fb.Correct, fb.IncorrectFormat
		if correct == "" {
			correct = "Doğru!"
		}
		if format == "" {
			format = "Yanlış. Doğru cevap: %s"
		}
		opts = append(opts, turn.WithFeedback(correct, format))
	}

	opts = append(opts, a.turnOpts...)

	a.turns = turn.NewController(
		a.speaker,
		&teeListener{ctrl: a.listener, events: a.turnEvents},
		answer.NewMatcher(matchLang),
		a.Dispatch,
		opts...,
	)
}

// initHTTP prepares the optional health and metrics listener. It does not
// start serving; Run does.
func (a *App) initHTTP() {
	if a.cfg.Server.ListenAddr == "" {
		return
	}

	checker := health.New(
		health.SpeechChecker("speech_output", a.providers.Output),
		health.Checker{
			Name: "quiz",
			Check: func(context.Context) error {
				_, err := os.Stat(a.cfg.Quiz.File)
				return err
			},
		},
	)

	mux := http.NewServeMux()
	checker.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	a.httpSrv = &http.Server{
		Addr:    a.cfg.Server.ListenAddr,
		Handler: observe.Middleware(a.metrics)(mux),
	}
}

// teeListener satisfies [turn.Listener] while letting the app's tee loop
// observe every listener event before the turn controller does.
type teeListener struct {
	ctrl   *input.Controller
	events chan input.State
}

func (t *teeListener) Start(ctx context.Context) error { return t.ctrl.Start(ctx) }
func (t *teeListener) Stop()                           { t.ctrl.Stop() }
func (t *teeListener) Events() <-chan input.State      { return t.events }
func (t *teeListener) Snapshot() input.State           { return t.ctrl.Snapshot() }

var _ turn.Listener = (*teeListener)(nil)

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run executes the application until the player quits, the input stream
// ends, or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	// Turn controller event consumer.
	g.Go(func() error {
		return a.turns.Run(ctx)
	})

	// Tee loop: render listener events, then forward them to the turn
	// controller.
	g.Go(func() error {
		a.teeLoop(ctx)
		return nil
	})

	// Optional diagnostics listener.
	if a.httpSrv != nil {
		g.Go(func() error {
			slog.Info("diagnostics listener started", "addr", a.httpSrv.Addr)
			if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("app: diagnostics listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.httpSrv.Shutdown(shutdownCtx)
		})
	}

	// Main dispatch loop.
	g.Go(func() error {
		defer cancel()
		return a.loop(ctx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// teeLoop renders recognition progress and forwards each event to the turn
// controller.
func (a *App) teeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-a.listener.Events():
			if !ok {
				return
			}
			a.renderListenerState(st)
			select {
			case a.turnEvents <- st:
			case <-ctx.Done():
				return
			}
		}
	}
}

// renderListenerState shows live recognition progress in the terminal.
// Recognition errors other than silence are surfaced as a transient status
// line.
func (a *App) renderListenerState(st input.State) {
	switch {
	case st.Err != nil:
		a.render.Status("tanıma hatası: " + st.Err.Error())
	case st.Listening:
		a.render.Listening(st.Interim)
	case strings.TrimSpace(st.Final) != "":
		a.render.Transcript(st.Final)
	}
}

// ApplyConfigChange applies the hot-reloadable parts of a config change.
// Everything else (provider credentials, audio setup) requires a restart.
func (a *App) ApplyConfigChange(diff config.ConfigDiff) {
	if diff.NotificationsChanged {
		a.notifier.SetEnabled(diff.NotificationsEnabled)
		slog.Info("notifications toggled", "enabled", diff.NotificationsEnabled)
	}
	if diff.FeedbackChanged || diff.QuizFileChanged {
		slog.Info("quiz settings changed, restart to apply")
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		// Silence speech first so devices close cleanly.
		a.turns.Reset()
		a.speaker.Cancel()
		a.listener.Stop()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
