package output

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	defaultVoiceRetries    = 3
	defaultVoiceRetryDelay = 500 * time.Millisecond
)

// Option configures a [Controller].
type Option func(*Controller)

// WithLanguage sets the BCP-47 tag used to filter the voice catalogue.
// Matching compares base languages, so "tr" matches "tr-TR" voices.
func WithLanguage(tag string) Option {
	return func(c *Controller) {
		c.language = tag
	}
}

// WithPreferredVoices sets name substrings tried in priority order among
// the language-matched voices.
func WithPreferredVoices(names ...string) Option {
	return func(c *Controller) {
		c.preferred = names
	}
}

// WithVoiceRetry overrides the bounded retry applied when the voice
// catalogue is still empty at call time. Defaults: 3 attempts, 500 ms
// apart.
func WithVoiceRetry(attempts int, delay time.Duration) Option {
	return func(c *Controller) {
		c.voiceRetries = attempts
		c.voiceRetryDelay = delay
	}
}

// Controller is the speech output controller. It owns at most one active
// utterance: starting a new one always cancels the previous one first.
//
// All methods are safe for concurrent use.
type Controller struct {
	provider Provider
	sink     Sink

	language        string
	preferred       []string
	voiceRetries    int
	voiceRetryDelay time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewController returns a Controller speaking through provider into sink.
func NewController(provider Provider, sink Sink, opts ...Option) *Controller {
	c := &Controller{
		provider:        provider,
		sink:            sink,
		voiceRetries:    defaultVoiceRetries,
		voiceRetryDelay: defaultVoiceRetryDelay,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Speak synthesizes and plays text, then calls onDone exactly once —
// on successful completion, on synthesis or playback error, and on
// cancellation alike. Playback failures are logged and degrade to
// "finished" so callers are never left waiting.
//
// Any utterance still in flight is cancelled before the new one starts.
func (c *Controller) Speak(ctx context.Context, text string, onDone func()) {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	uttCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	var once sync.Once
	done := func() {
		if onDone != nil {
			once.Do(onDone)
		}
	}

	go func() {
		defer cancel()
		defer done()

		voice := c.selectVoice(uttCtx)
		audio, err := c.provider.Synthesize(uttCtx, text, voice)
		if err != nil {
			slog.Warn("speech output: synthesis failed", "err", err)
			return
		}
		if err := c.sink.Play(uttCtx, audio); err != nil && uttCtx.Err() == nil {
			slog.Warn("speech output: playback failed", "err", err)
		}
	}()
}

// Cancel silences any active utterance. Safe to call when idle.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// selectVoice applies the voice selection policy: restrict the catalogue to
// the configured language, prefer the configured names in order, fall back
// to the first language match, and finally to the provider default (zero
// Voice). An empty catalogue is retried a bounded number of times because
// some backends populate their voice list asynchronously.
func (c *Controller) selectVoice(ctx context.Context) Voice {
	for attempt := 0; ; attempt++ {
		voices, err := c.provider.Voices(ctx)
		if err == nil && len(voices) > 0 {
			return c.pick(voices)
		}
		if err != nil {
			slog.Debug("speech output: voice listing failed", "err", err, "attempt", attempt)
		}
		if attempt >= c.voiceRetries {
			slog.Warn("speech output: no voices after retries, using provider default")
			return Voice{}
		}
		select {
		case <-time.After(c.voiceRetryDelay):
		case <-ctx.Done():
			return Voice{}
		}
	}
}

func (c *Controller) pick(voices []Voice) Voice {
	matched := voices
	if c.language != "" {
		base := baseLang(c.language)
		matched = nil
		for _, v := range voices {
			if baseLang(v.Language) == base {
				matched = append(matched, v)
			}
		}
		if len(matched) == 0 {
			return Voice{}
		}
	}

	for _, want := range c.preferred {
		for _, v := range matched {
			if strings.Contains(strings.ToLower(v.Name), strings.ToLower(want)) {
				return v
			}
		}
	}
	return matched[0]
}

// baseLang reduces a BCP-47 tag to its lowercase base language ("tr-TR"
// → "tr").
func baseLang(tag string) string {
	base, _, _ := strings.Cut(tag, "-")
	return strings.ToLower(base)
}
