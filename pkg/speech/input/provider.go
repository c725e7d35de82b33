// Package input defines the Provider contract for speech recognition
// backends and the Controller that turns a raw recognition stream into the
// quiz's listening model.
//
// A Provider opens streaming recognition sessions. Each session accepts raw
// PCM audio and emits two transcript streams: low-latency partials
// (provisional, overwritten as better hypotheses arrive) and finals
// (confirmed, appended once). The Controller layers the turn-taking
// behavior on top: a listening flag cleared exactly once per session, a
// silence watchdog that auto-stops after two seconds without speech
// activity, and the error taxonomy where "no speech yet" is swallowed and
// everything else is surfaced without stopping the session.
//
// Implementations must be safe for concurrent use.
package input

import (
	"context"
	"errors"
)

// ErrNoSpeech reports that a recognition session ended without detecting
// any speech. Providers wrap their backend's equivalent condition in this
// sentinel; the Controller ignores it entirely.
var ErrNoSpeech = errors.New("input: no speech detected")

// Transcript is one recognition result, partial or final.
type Transcript struct {
	// Text is the transcribed speech.
	Text string

	// Final indicates a confirmed result rather than a provisional
	// hypothesis.
	Final bool

	// Confidence is the backend's confidence score (0.0–1.0), zero when
	// unreported.
	Confidence float64
}

// StreamConfig describes the audio format and recognition hints for a new
// session.
type StreamConfig struct {
	// SampleRate is the PCM sample rate in Hz.
	SampleRate int

	// Channels is the channel count; 1 is what recognition backends want.
	Channels int

	// Language is the BCP-47 recognition language tag.
	Language string
}

// SessionHandle is one open recognition session.
//
// Callers must Close the session when done; the transcript channels are
// closed by the implementation when the session ends. All methods are safe
// for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM to the recognizer. Calling
	// SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Partials emits provisional transcripts. Closed when the session
	// ends.
	Partials() <-chan Transcript

	// Finals emits confirmed transcripts. Closed when the session ends.
	Finals() <-chan Transcript

	// Err returns the error that ended the session, if any. Valid only
	// after both transcript channels are closed. A session that heard
	// nothing reports [ErrNoSpeech].
	Err() error

	// Close terminates the session and releases its resources. Safe to
	// call more than once.
	Close() error
}

// Provider is the abstraction over any speech recognition backend.
type Provider interface {
	// StartStream opens a recognition session. The returned handle is
	// ready to accept audio immediately; the caller owns it and must
	// Close it.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}

// CaptureSource supplies microphone audio to a session. Frames returns a
// channel of PCM chunks that closes when ctx is cancelled or the device
// stops.
type CaptureSource interface {
	Frames(ctx context.Context) (<-chan []byte, error)
}
