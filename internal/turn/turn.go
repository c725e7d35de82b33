// Package turn orchestrates a single question round: speak the question,
// open the microphone, evaluate the captured answer, give spoken feedback,
// and advance the quiz.
package turn

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ogulcanz/sesquiz/internal/answer"
	"github.com/ogulcanz/sesquiz/internal/quiz"
	"github.com/ogulcanz/sesquiz/internal/session"
	"github.com/ogulcanz/sesquiz/pkg/speech/input"
)

const (
	defaultPreQuestionDelay = 500 * time.Millisecond
	defaultCorrectDelay     = time.Second
	defaultIncorrectDelay   = 1500 * time.Millisecond

	defaultCorrectPhrase   = "Doğru!"
	defaultIncorrectFormat = "Yanlış. Doğru cevap: %s"
)

// Speaker is the voice output surface the controller drives.
type Speaker interface {
	Speak(ctx context.Context, text string, onDone func())
	Cancel()
}

// Listener is the voice input surface the controller drives.
type Listener interface {
	Start(ctx context.Context) error
	Stop()
	Events() <-chan input.State
	Snapshot() input.State
}

// DispatchFunc delivers a quiz action to the session reducer loop.
type DispatchFunc func(session.Action)

// Option configures a [Controller].
type Option func(*Controller)

// WithPreQuestionDelay sets the pause before a question is spoken.
// Default: 500 ms.
func WithPreQuestionDelay(d time.Duration) Option {
	return func(c *Controller) {
		c.preDelay = d
	}
}

// WithAdvanceDelays sets how long feedback stays up before the quiz
// advances, separately for correct and incorrect answers. Defaults: 1 s
// and 1.5 s.
func WithAdvanceDelays(correct, incorrect time.Duration) Option {
	return func(c *Controller) {
		c.correctDelay = correct
		c.incorrectDelay = incorrect
	}
}

// WithFeedback sets the spoken feedback: the phrase for a correct answer
// and a format string (one %s verb, the expected answer) for an incorrect
// one.
func WithFeedback(correct, incorrectFormat string) Option {
	return func(c *Controller) {
		c.correctPhrase = correct
		c.incorrectFormat = incorrectFormat
	}
}

// Controller runs question rounds. At most one round is active; beginning
// a new round or skipping invalidates every pending callback of the old
// one, so a stale speech completion or timer can never advance the quiz.
//
// All methods are safe for concurrent use. [Controller.Run] must be
// running for answers to be evaluated.
type Controller struct {
	speaker  Speaker
	listener Listener
	match    *answer.Matcher
	dispatch DispatchFunc

	preDelay        time.Duration
	correctDelay    time.Duration
	incorrectDelay  time.Duration
	correctPhrase   string
	incorrectFormat string

	mu         sync.Mutex
	epoch      uint64
	active     bool
	processed  bool
	question   quiz.Question
	minSession uint64
}

// NewController returns a Controller wiring the speech surfaces to the
// dispatch loop.
func NewController(speaker Speaker, listener Listener, match *answer.Matcher, dispatch DispatchFunc, opts ...Option) *Controller {
	c := &Controller{
		speaker:  speaker,
		listener: listener,
		match:    match,
		dispatch: dispatch,

		preDelay:        defaultPreQuestionDelay,
		correctDelay:    defaultCorrectDelay,
		incorrectDelay:  defaultIncorrectDelay,
		correctPhrase:   defaultCorrectPhrase,
		incorrectFormat: defaultIncorrectFormat,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run consumes listener events and evaluates answers until ctx is
// cancelled. It returns nil on cancellation.
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case st := <-c.listener.Events():
			c.handleState(ctx, st)
		}
	}
}

// Begin starts a round for q: any prior round is invalidated, the
// question is spoken after a short pause, and the microphone opens when
// speech completes.
func (c *Controller) Begin(ctx context.Context, q quiz.Question) {
	// Sessions numbered up to here belong to earlier rounds; their
	// end-of-session states may still be in flight and must not be
	// scored against q.
	last := c.listener.Snapshot().Session

	c.mu.Lock()
	c.epoch++
	e := c.epoch
	c.active = true
	c.processed = false
	c.question = q
	c.minSession = last + 1
	c.mu.Unlock()

	c.listener.Stop()

	go func() {
		if !sleepCtx(ctx, c.preDelay) {
			return
		}
		if !c.isCurrent(e) {
			return
		}
		c.speaker.Speak(ctx, q.Question, func() {
			if !c.isCurrent(e) {
				return
			}
			if err := c.listener.Start(ctx); err != nil {
				slog.Warn("turn: open microphone", "err", err)
			}
		})
	}()
}

// Skip abandons the current round and advances immediately. Speech is
// silenced, the microphone closes, and no late transcript from the
// abandoned round can be evaluated.
func (c *Controller) Skip() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.epoch++
	c.active = false
	c.processed = true
	c.mu.Unlock()

	c.speaker.Cancel()
	c.listener.Stop()
	c.dispatch(session.NextQuestion{})
}

// ReopenMic restarts listening for the current round, for when the
// silence watchdog closed the session without a usable transcript. The
// processed guard is cleared so a fresh transcript can be evaluated, and
// any pending feedback or advance of the round is cancelled in its
// favor. No-op when no round is active.
func (c *Controller) ReopenMic(ctx context.Context) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.epoch++
	c.processed = false
	c.mu.Unlock()

	c.speaker.Cancel()
	if err := c.listener.Start(ctx); err != nil {
		slog.Warn("turn: reopen microphone", "err", err)
	}
}

// Reset abandons the current round without advancing, for quiz restarts
// and teardown.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.epoch++
	c.active = false
	c.processed = false
	c.mu.Unlock()

	c.speaker.Cancel()
	c.listener.Stop()
}

// handleState evaluates a finished listening session. A round is scored
// at most once: the first end-of-session state carrying a final
// transcript wins, later states are ignored. States from sessions that
// predate the current round are dropped unseen. An empty final leaves
// the round open so the microphone can be reopened.
func (c *Controller) handleState(ctx context.Context, st input.State) {
	if st.Err != nil {
		slog.Warn("turn: recognition error", "err", st.Err)
	}

	c.mu.Lock()
	if !c.active || st.Listening || c.processed || st.Session < c.minSession || st.Final == "" {
		c.mu.Unlock()
		return
	}
	c.processed = true
	e := c.epoch
	q := c.question
	c.mu.Unlock()

	res := c.match.Evaluate(st.Final, q.Answer)
	slog.Info("turn: answer evaluated",
		"question_id", q.ID,
		"transcript", res.Transcript,
		"expected", res.Reference,
		"distance", res.Distance,
		"correct", res.Correct,
	)
	if !res.Correct && answer.PhoneticallyClose(res.Transcript, res.Reference) {
		slog.Debug("turn: answer phonetically close to expected",
			"transcript", res.Transcript, "expected", res.Reference)
	}

	c.dispatch(session.AnswerQuestion{Correct: res.Correct})

	text := c.correctPhrase
	delay := c.correctDelay
	if !res.Correct {
		text = fmt.Sprintf(c.incorrectFormat, q.Answer)
		delay = c.incorrectDelay
	}

	c.speaker.Speak(ctx, text, func() {
		go func() {
			if !sleepCtx(ctx, delay) {
				return
			}
			if !c.isCurrent(e) {
				return
			}
			c.mu.Lock()
			c.active = false
			c.mu.Unlock()
			c.dispatch(session.NextQuestion{})
		}()
	})
}

func (c *Controller) isCurrent(e uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch == e
}

// sleepCtx waits d or until ctx is cancelled. Reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
