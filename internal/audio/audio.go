// Package audio provides microphone capture and speaker playback through
// PortAudio, in the PCM format the speech providers expect.
package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/ogulcanz/sesquiz/pkg/speech/input"
	"github.com/ogulcanz/sesquiz/pkg/speech/output"
)

const (
	// SampleRate is 16 kHz, the rate the recognition providers expect.
	SampleRate = 16000
	// Channels is mono.
	Channels = 1
	// FramesPerBuffer is the PortAudio buffer size.
	FramesPerBuffer = 1024
)

var (
	_ input.CaptureSource = (*Recorder)(nil)
	_ output.Sink         = (*Player)(nil)
)

// PortAudio initialization is global and refcounted so Recorder and
// Player can be created and closed independently.
var (
	initMu   sync.Mutex
	initRefs int
)

func acquirePortAudio() error {
	initMu.Lock()
	defer initMu.Unlock()
	if initRefs == 0 {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("audio: initialize portaudio: %w", err)
		}
	}
	initRefs++
	return nil
}

func releasePortAudio() {
	initMu.Lock()
	defer initMu.Unlock()
	if initRefs == 0 {
		return
	}
	initRefs--
	if initRefs == 0 {
		_ = portaudio.Terminate()
	}
}

// Recorder captures microphone audio and implements the capture source
// contract of the speech input controller. Each Frames call opens a fresh
// default input stream; the stream closes when the context is cancelled.
type Recorder struct{}

// NewRecorder initializes PortAudio and returns a Recorder. Close must be
// called to release it.
func NewRecorder() (*Recorder, error) {
	if err := acquirePortAudio(); err != nil {
		return nil, err
	}
	return &Recorder{}, nil
}

// Frames opens the default input device and streams 16-bit little-endian
// mono PCM chunks until ctx is cancelled. The returned channel is closed
// when capture stops.
func (r *Recorder) Frames(ctx context.Context) (<-chan []byte, error) {
	buf := make([]int16, FramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(Channels, 0, float64(SampleRate), FramesPerBuffer, buf)
	if err != nil {
		return nil, fmt.Errorf("audio: open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("audio: start input stream: %w", err)
	}

	frames := make(chan []byte, 32)
	go func() {
		defer close(frames)
		defer func() {
			_ = stream.Stop()
			_ = stream.Close()
		}()

		for {
			if ctx.Err() != nil {
				return
			}
			if err := stream.Read(); err != nil {
				// Overflows are transient; anything else ends capture.
				if err == portaudio.InputOverflowed {
					continue
				}
				return
			}
			chunk := make([]byte, len(buf)*2)
			for i, s := range buf {
				binary.LittleEndian.PutUint16(chunk[i*2:], uint16(s))
			}
			select {
			case frames <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	return frames, nil
}

// Close releases the PortAudio handle.
func (r *Recorder) Close() error {
	releasePortAudio()
	return nil
}

// Player renders synthesized PCM on the default output device. It
// implements the playback sink of the speech output controller.
type Player struct {
	sampleRate int
}

// NewPlayer initializes PortAudio and returns a Player emitting at
// sampleRate (16 kHz when zero). Close must be called to release it.
func NewPlayer(sampleRate int) (*Player, error) {
	if err := acquirePortAudio(); err != nil {
		return nil, err
	}
	if sampleRate <= 0 {
		sampleRate = SampleRate
	}
	return &Player{sampleRate: sampleRate}, nil
}

// Play drains audio and writes it to the default output device. It
// returns when the channel closes or ctx is cancelled; cancellation cuts
// playback immediately.
func (p *Player) Play(ctx context.Context, audio <-chan []byte) error {
	out := make([]int16, FramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, Channels, float64(p.sampleRate), FramesPerBuffer, out)
	if err != nil {
		return fmt.Errorf("audio: open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("audio: start output stream: %w", err)
	}
	defer stream.Stop()

	var pending []int16
	writeBlock := func() error {
		copy(out, pending[:FramesPerBuffer])
		pending = pending[FramesPerBuffer:]
		if err := stream.Write(); err != nil && err != portaudio.OutputUnderflowed {
			return fmt.Errorf("audio: write output stream: %w", err)
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-audio:
			if !ok {
				// Flush the tail padded with silence.
				for len(pending) > 0 {
					if len(pending) < FramesPerBuffer {
						pending = append(pending, make([]int16, FramesPerBuffer-len(pending))...)
					}
					if err := writeBlock(); err != nil {
						return err
					}
				}
				return nil
			}
			for i := 0; i+1 < len(chunk); i += 2 {
				pending = append(pending, int16(binary.LittleEndian.Uint16(chunk[i:])))
			}
			for len(pending) >= FramesPerBuffer {
				if err := writeBlock(); err != nil {
					return err
				}
			}
		}
	}
}

// Close releases the PortAudio handle.
func (p *Player) Close() error {
	releasePortAudio()
	return nil
}
