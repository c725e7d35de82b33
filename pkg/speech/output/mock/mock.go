// Package mock provides test doubles for the output package interfaces.
//
// Use Provider to feed a controlled voice catalogue and audio chunks to a
// [output.Controller] and inspect what was synthesized. Use Sink to record
// or block playback.
package mock

import (
	"context"
	"sync"

	"github.com/ogulcanz/sesquiz/pkg/speech/output"
)

// SynthesizeCall records a single invocation of Provider.Synthesize.
type SynthesizeCall struct {
	// Text is the text passed to Synthesize.
	Text string
	// Voice is the voice passed to Synthesize.
	Voice output.Voice
}

// Provider is a mock implementation of output.Provider.
type Provider struct {
	mu sync.Mutex

	// VoicesQueue holds the catalogues returned by successive Voices
	// calls. Each call pops one entry; when the queue is exhausted the
	// last entry is returned again. An empty queue returns no voices.
	VoicesQueue [][]output.Voice

	// VoicesErr, if non-nil, is returned by every Voices call.
	VoicesErr error

	// SynthesizeChunks is the audio emitted on the channel returned by
	// Synthesize.
	SynthesizeChunks [][]byte

	// SynthesizeErr, if non-nil, is returned as the error from Synthesize.
	SynthesizeErr error

	// VoicesCallCount is the number of Voices calls.
	VoicesCallCount int

	// SynthesizeCalls records every Synthesize call in order.
	SynthesizeCalls []SynthesizeCall
}

// Ensure Provider implements output.Provider at compile time.
var _ output.Provider = (*Provider)(nil)

// Voices pops the next catalogue from VoicesQueue.
func (p *Provider) Voices(_ context.Context) ([]output.Voice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.VoicesCallCount++
	if p.VoicesErr != nil {
		return nil, p.VoicesErr
	}
	if len(p.VoicesQueue) == 0 {
		return nil, nil
	}
	head := p.VoicesQueue[0]
	if len(p.VoicesQueue) > 1 {
		p.VoicesQueue = p.VoicesQueue[1:]
	}
	return head, nil
}

// Synthesize records the call and returns a channel fed with
// SynthesizeChunks.
func (p *Provider) Synthesize(ctx context.Context, text string, voice output.Voice) (<-chan []byte, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Text: text, Voice: voice})
	chunks := p.SynthesizeChunks
	err := p.SynthesizeErr
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}

	ch := make(chan []byte, len(chunks))
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// LastSynthesized returns the text of the most recent Synthesize call, or
// "" when none happened. Thread-safe.
func (p *Provider) LastSynthesized() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.SynthesizeCalls) == 0 {
		return "", false
	}
	return p.SynthesizeCalls[len(p.SynthesizeCalls)-1].Text, true
}

// Sink is a mock implementation of output.Sink.
type Sink struct {
	mu sync.Mutex

	// PlayErr, if non-nil, is returned by Play after draining.
	PlayErr error

	// BlockUntilCancel makes Play ignore the audio stream and block until
	// ctx is cancelled. Used to test utterance cancellation.
	BlockUntilCancel bool

	// PlayCallCount is the number of Play calls.
	PlayCallCount int

	// Played records all audio chunks drained across calls.
	Played [][]byte
}

// Ensure Sink implements output.Sink at compile time.
var _ output.Sink = (*Sink)(nil)

// Play drains audio, recording every chunk.
func (s *Sink) Play(ctx context.Context, audio <-chan []byte) error {
	s.mu.Lock()
	s.PlayCallCount++
	block := s.BlockUntilCancel
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}

	for {
		select {
		case chunk, ok := <-audio:
			if !ok {
				s.mu.Lock()
				err := s.PlayErr
				s.mu.Unlock()
				return err
			}
			s.mu.Lock()
			s.Played = append(s.Played, chunk)
			s.mu.Unlock()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
