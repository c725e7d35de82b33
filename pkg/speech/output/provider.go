// Package output defines the Provider contract for speech synthesis
// backends and the Controller that drives them.
//
// A Provider wraps one synthesis backend (a local Coqui server, ElevenLabs,
// the OpenAI speech endpoint) and exposes a uniform batch interface: list
// the voice catalogue, synthesize one utterance to a PCM stream. The
// Controller layers the quiz-facing behavior on top — voice selection with
// a bounded catalogue retry, at-most-one active utterance, and a completion
// callback that fires exactly once whether synthesis succeeds or fails.
//
// Implementations must be safe for concurrent use.
package output

import "context"

// Voice describes one entry in a provider's voice catalogue.
type Voice struct {
	// ID is the provider-specific voice identifier. An empty ID selects
	// the provider's default voice.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Language is the BCP-47 tag of the voice's spoken language.
	Language string
}

// Provider is the abstraction over any speech synthesis backend.
type Provider interface {
	// Voices returns the provider's current voice catalogue. Catalogues
	// may load asynchronously on the provider side, so an empty (but
	// error-free) result is valid and callers should retry.
	Voices(ctx context.Context) ([]Voice, error)

	// Synthesize converts text into a stream of raw PCM audio chunks. The
	// returned channel is closed when synthesis completes or ctx is
	// cancelled. Callers must drain the channel. A zero-valued voice
	// selects the provider default.
	Synthesize(ctx context.Context, text string, voice Voice) (<-chan []byte, error)
}

// Sink plays a stream of PCM audio chunks. Play blocks until the stream is
// drained or ctx is cancelled.
type Sink interface {
	Play(ctx context.Context, audio <-chan []byte) error
}

// Discard is a Sink that drains audio without playing it. Useful in tests
// and headless runs.
type Discard struct{}

// Play drains audio until it closes or ctx is cancelled.
func (Discard) Play(ctx context.Context, audio <-chan []byte) error {
	for {
		select {
		case _, ok := <-audio:
			if !ok {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
