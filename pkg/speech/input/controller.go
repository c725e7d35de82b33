package input

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// defaultSilenceWindow is how long the watchdog waits without new
	// speech activity before stopping the session.
	defaultSilenceWindow = 2 * time.Second

	// eventBuf is the buffer depth of the state change channel. When the
	// consumer lags, the oldest pending state is dropped in favor of the
	// newest — intermediate snapshots are not individually meaningful.
	eventBuf = 256
)

// State is an observable snapshot of the controller.
type State struct {
	// Session numbers the recognition session this snapshot belongs to,
	// starting at 1 and increasing by one with every [Controller.Start].
	// Zero means no session has run yet. Consumers use it to tell a
	// fresh session's states from a late state of an earlier one.
	Session uint64

	// Listening reports whether a recognition session is active.
	Listening bool

	// Interim is the latest provisional transcript. Overwritten freely;
	// cleared when the session ends.
	Interim string

	// Final is the accumulated confirmed transcript for the current or
	// most recent session. Cleared when a new session starts.
	Final string

	// Err is the last recognition error worth surfacing. "No speech"
	// conditions never appear here.
	Err error
}

// Option configures a [Controller].
type Option func(*Controller)

// WithCapture attaches a microphone source whose frames are pumped into
// every session. Without one, audio delivery is the caller's concern
// (useful in tests and with providers that capture internally).
func WithCapture(source CaptureSource) Option {
	return func(c *Controller) {
		c.source = source
	}
}

// WithStreamConfig sets the recognition stream configuration passed to the
// provider on every start.
func WithStreamConfig(cfg StreamConfig) Option {
	return func(c *Controller) {
		c.cfg = cfg
	}
}

// WithSilenceWindow overrides the watchdog window. Default: 2 s.
func WithSilenceWindow(d time.Duration) Option {
	return func(c *Controller) {
		c.silence = d
	}
}

// Controller is the speech input controller. It owns at most one
// recognition session at a time and exposes the session's progress as a
// stream of [State] snapshots.
//
// Every observed transcript — partial or final — resets the silence
// watchdog; when the watchdog fires the session is closed, which is the
// single authoritative way a session stops on its own. Manual [Controller.Stop]
// pre-empts the watchdog.
//
// All methods are safe for concurrent use.
type Controller struct {
	provider Provider
	source   CaptureSource
	cfg      StreamConfig
	silence  time.Duration

	mu    sync.Mutex
	gen   uint64
	sess  SessionHandle
	stop  chan struct{}
	state State

	events chan State
}

// NewController returns a Controller listening through provider.
func NewController(provider Provider, opts ...Option) *Controller {
	c := &Controller{
		provider: provider,
		silence:  defaultSilenceWindow,
		events:   make(chan State, eventBuf),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Events returns the state change stream. Consumers should drain it
// promptly; when they lag, older snapshots are dropped in favor of newer
// ones.
func (c *Controller) Events() <-chan State {
	return c.events
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start opens a recognition session. Calling Start while a session is
// already active is a no-op, so two concurrent sessions can never exist.
// Transcripts from the previous session are cleared.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.sess != nil {
		c.mu.Unlock()
		return nil
	}

	sess, err := c.provider.StartStream(ctx, c.cfg)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("input: start stream: %w", err)
	}

	stop := make(chan struct{})
	c.gen++
	c.sess = sess
	c.stop = stop
	c.state = State{Session: c.gen, Listening: true}
	st := c.state
	c.mu.Unlock()
	c.emit(st)

	if c.source != nil {
		frames, err := c.source.Frames(ctx)
		if err != nil {
			slog.Warn("speech input: capture unavailable", "err", err)
		} else {
			go pump(frames, sess)
		}
	}

	go c.run(ctx, sess, stop)
	return nil
}

// Stop closes the active session, pre-empting the silence watchdog. Safe
// to call when idle.
func (c *Controller) Stop() {
	c.mu.Lock()
	stop := c.stop
	c.stop = nil
	c.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}

// pump forwards capture frames into the session until the source closes or
// the session stops accepting audio.
func pump(frames <-chan []byte, sess SessionHandle) {
	for chunk := range frames {
		if err := sess.SendAudio(chunk); err != nil {
			return
		}
	}
}

// run consumes the session's transcript streams until both close, then
// publishes the end-of-session state with the listening flag cleared —
// exactly once per session, regardless of what ended it.
func (c *Controller) run(ctx context.Context, sess SessionHandle, stop <-chan struct{}) {
	watchdog := time.NewTimer(c.silence)
	defer watchdog.Stop()

	partials := sess.Partials()
	finals := sess.Finals()
	done := ctx.Done()
	closing := false

	closeSession := func() {
		if !closing {
			closing = true
			if err := sess.Close(); err != nil {
				slog.Debug("speech input: session close", "err", err)
			}
		}
	}

	for partials != nil || finals != nil {
		select {
		case tr, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			if tr.Text == "" {
				continue
			}
			c.resetWatchdog(watchdog)
			c.emit(c.update(func(s *State) { s.Interim = tr.Text }))

		case tr, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			if tr.Text == "" {
				continue
			}
			c.resetWatchdog(watchdog)
			c.emit(c.update(func(s *State) {
				if s.Final == "" {
					s.Final = tr.Text
				} else {
					s.Final += " " + tr.Text
				}
			}))

		case <-watchdog.C:
			closeSession()

		case <-stop:
			stop = nil
			closeSession()

		case <-done:
			done = nil
			closeSession()
		}
	}

	err := sess.Err()
	if err != nil && errors.Is(err, ErrNoSpeech) {
		err = nil
	}
	if err != nil {
		slog.Warn("speech input: session ended with error", "err", err)
	}

	c.mu.Lock()
	c.sess = nil
	c.stop = nil
	c.state.Listening = false
	c.state.Interim = ""
	c.state.Err = err
	st := c.state
	c.mu.Unlock()
	c.emit(st)
}

// update applies fn to the state under the lock and returns the new
// snapshot.
func (c *Controller) update(fn func(*State)) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.state)
	return c.state
}

// resetWatchdog restarts the silence window after observed speech
// activity.
func (c *Controller) resetWatchdog(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(c.silence)
}

// emit publishes st, dropping the oldest pending snapshot when the
// consumer lags.
func (c *Controller) emit(st State) {
	for {
		select {
		case c.events <- st:
			return
		default:
			select {
			case <-c.events:
			default:
			}
		}
	}
}
