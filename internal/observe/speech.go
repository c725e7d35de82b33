package observe

import (
	"context"
	"time"

	"github.com/ogulcanz/sesquiz/pkg/speech/input"
	"github.com/ogulcanz/sesquiz/pkg/speech/output"
)

// InstrumentOutput wraps a speech output provider so every call records
// request, error and synthesis duration metrics under the given provider
// name.
func InstrumentOutput(p output.Provider, m *Metrics, name string) output.Provider {
	return &instrumentedOutput{next: p, metrics: m, name: name}
}

// InstrumentInput wraps a speech input provider so every recognition session
// records request, error and session duration metrics under the given
// provider name.
func InstrumentInput(p input.Provider, m *Metrics, name string) input.Provider {
	return &instrumentedInput{next: p, metrics: m, name: name}
}

type instrumentedOutput struct {
	next    output.Provider
	metrics *Metrics
	name    string
}

var _ output.Provider = (*instrumentedOutput)(nil)

func (o *instrumentedOutput) Voices(ctx context.Context) ([]output.Voice, error) {
	voices, err := o.next.Voices(ctx)
	o.record(ctx, err)
	return voices, err
}

// Synthesize times the full synthesis stream: the duration histogram covers
// the call up to the closing of the audio channel, not just the dispatch.
func (o *instrumentedOutput) Synthesize(ctx context.Context, text string, voice output.Voice) (<-chan []byte, error) {
	start := time.Now()
	audio, err := o.next.Synthesize(ctx, text, voice)
	o.record(ctx, err)
	if err != nil {
		return nil, err
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		defer func() {
			o.metrics.SpeakDuration.Record(ctx, time.Since(start).Seconds())
		}()
		for chunk := range audio {
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (o *instrumentedOutput) record(ctx context.Context, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		o.metrics.RecordProviderError(ctx, o.name, "tts")
	}
	o.metrics.RecordProviderRequest(ctx, o.name, "tts", status)
}

type instrumentedInput struct {
	next    input.Provider
	metrics *Metrics
	name    string
}

var _ input.Provider = (*instrumentedInput)(nil)

func (i *instrumentedInput) StartStream(ctx context.Context, cfg input.StreamConfig) (input.SessionHandle, error) {
	sess, err := i.next.StartStream(ctx, cfg)
	status := "ok"
	if err != nil {
		status = "error"
		i.metrics.RecordProviderError(ctx, i.name, "stt")
	}
	i.metrics.RecordProviderRequest(ctx, i.name, "stt", status)
	if err != nil {
		return nil, err
	}
	return &instrumentedSession{SessionHandle: sess, metrics: i.metrics, ctx: ctx, start: time.Now()}, nil
}

// instrumentedSession records the session duration, from stream open to the
// first Close call.
type instrumentedSession struct {
	input.SessionHandle
	metrics *Metrics
	ctx     context.Context
	start   time.Time

	recorded bool
}

func (s *instrumentedSession) Close() error {
	if !s.recorded {
		s.recorded = true
		s.metrics.ListenDuration.Record(s.ctx, time.Since(s.start).Seconds())
	}
	return s.SessionHandle.Close()
}
