// Package mock provides call-recording fakes for the speech input
// contracts, for use in tests.
package mock

import (
	"context"
	"sync"

	"github.com/ogulcanz/sesquiz/pkg/speech/input"
)

var (
	_ input.Provider      = (*Provider)(nil)
	_ input.SessionHandle = (*Session)(nil)
	_ input.CaptureSource = (*Capture)(nil)
)

// Session is a scriptable recognition session. Tests drive it with
// EmitPartial and EmitFinal, and end it with Close (or let the code under
// test do so).
type Session struct {
	mu             sync.Mutex
	sent           [][]byte
	closeCallCount int
	closed         bool

	partials chan input.Transcript
	finals   chan input.Transcript

	// ErrValue is what Err reports once the session has ended.
	ErrValue error
	// CloseErr is returned by Close.
	CloseErr error
	// SendErr is returned by SendAudio.
	SendErr error
}

// NewSession returns an open session with buffered transcript streams.
func NewSession() *Session {
	return &Session{
		partials: make(chan input.Transcript, 16),
		finals:   make(chan input.Transcript, 16),
	}
}

// EmitPartial delivers a provisional transcript. No-op after Close.
func (s *Session) EmitPartial(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.partials <- input.Transcript{Text: text}
}

// EmitFinal delivers a confirmed transcript. No-op after Close.
func (s *Session) EmitFinal(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.finals <- input.Transcript{Text: text, Final: true, Confidence: 1}
}

func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendErr != nil {
		return s.SendErr
	}
	s.sent = append(s.sent, chunk)
	return nil
}

func (s *Session) Partials() <-chan input.Transcript { return s.partials }

func (s *Session) Finals() <-chan input.Transcript { return s.finals }

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ErrValue
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCallCount++
	if !s.closed {
		s.closed = true
		close(s.partials)
		close(s.finals)
	}
	return s.CloseErr
}

// CloseCallCount reports how many times Close has been called.
func (s *Session) CloseCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCallCount
}

// SentAudio returns the chunks delivered through SendAudio.
func (s *Session) SentAudio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.sent...)
}

// Provider hands out sessions and records how it was called.
type Provider struct {
	mu       sync.Mutex
	sessions []*Session
	configs  []input.StreamConfig

	// Queue is popped on each StartStream. When empty, a fresh
	// NewSession is created.
	Queue []*Session
	// StartErr, when set, makes StartStream fail.
	StartErr error
}

func (p *Provider) StartStream(_ context.Context, cfg input.StreamConfig) (input.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.configs = append(p.configs, cfg)
	if p.StartErr != nil {
		return nil, p.StartErr
	}
	var sess *Session
	if len(p.Queue) > 0 {
		sess = p.Queue[0]
		p.Queue = p.Queue[1:]
	} else {
		sess = NewSession()
	}
	p.sessions = append(p.sessions, sess)
	return sess, nil
}

// StartCallCount reports how many times StartStream has been called.
func (p *Provider) StartCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.configs)
}

// Configs returns the stream configurations seen so far.
func (p *Provider) Configs() []input.StreamConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]input.StreamConfig(nil), p.configs...)
}

// LastSession returns the most recently started session, or nil.
func (p *Provider) LastSession() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessions) == 0 {
		return nil
	}
	return p.sessions[len(p.sessions)-1]
}

// Capture is a scriptable microphone source.
type Capture struct {
	mu        sync.Mutex
	frameCh   chan []byte
	callCount int

	// FramesErr, when set, makes Frames fail.
	FramesErr error
}

// NewCapture returns a capture source ready to push frames.
func NewCapture() *Capture {
	return &Capture{frameCh: make(chan []byte, 16)}
}

func (c *Capture) Frames(context.Context) (<-chan []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callCount++
	if c.FramesErr != nil {
		return nil, c.FramesErr
	}
	return c.frameCh, nil
}

// Push delivers one frame to the consumer.
func (c *Capture) Push(frame []byte) { c.frameCh <- frame }

// Finish closes the frame stream.
func (c *Capture) Finish() { close(c.frameCh) }

// FramesCallCount reports how many times Frames has been called.
func (c *Capture) FramesCallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callCount
}
