// Package openai synthesizes speech through the OpenAI audio speech
// endpoint.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ogulcanz/sesquiz/pkg/speech/output"
)

// DefaultModel is the default OpenAI speech model.
const DefaultModel = oai.SpeechModelGPT4oMiniTTS

const (
	audioChanBuf = 256
	pcmChunkSize = 4096

	// nativeSampleRate is the fixed rate of the endpoint's PCM response
	// format; it is not negotiable per request.
	nativeSampleRate = 24000
)

var _ output.Provider = (*Provider)(nil)

// catalogue is the fixed set of voices the speech endpoint offers. The
// voices are multilingual; no per-voice language is reported.
var catalogue = []output.Voice{
	{ID: "alloy", Name: "Alloy"},
	{ID: "ash", Name: "Ash"},
	{ID: "coral", Name: "Coral"},
	{ID: "echo", Name: "Echo"},
	{ID: "fable", Name: "Fable"},
	{ID: "nova", Name: "Nova"},
	{ID: "onyx", Name: "Onyx"},
	{ID: "sage", Name: "Sage"},
	{ID: "shimmer", Name: "Shimmer"},
}

const defaultVoice = "alloy"

// config holds optional configuration for the provider.
type config struct {
	baseURL    string
	model      string
	timeout    time.Duration
	outputRate int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithModel sets the speech model (e.g. "tts-1", "gpt-4o-mini-tts").
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithOutputSampleRate resamples the synthesized PCM to the given rate.
// 0 (default) emits at the endpoint's native 24 kHz.
func WithOutputSampleRate(rate int) Option {
	return func(c *config) {
		c.outputRate = rate
	}
}

// Provider implements output.Provider using the OpenAI API.
type Provider struct {
	client     oai.Client
	model      string
	outputRate int
}

// New constructs a Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai speech: apiKey must not be empty")
	}

	cfg := &config{model: DefaultModel}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: client, model: cfg.model, outputRate: cfg.outputRate}, nil
}

// Voices implements output.Provider. The speech endpoint has a fixed
// multilingual catalogue, so no network call is needed.
func (p *Provider) Voices(_ context.Context) ([]output.Voice, error) {
	voices := make([]output.Voice, len(catalogue))
	copy(voices, catalogue)
	return voices, nil
}

// Synthesize implements output.Provider. The response body is raw 24 kHz
// 16-bit mono PCM, streamed onto the returned channel in fixed-size
// chunks and resampled on the fly when an output rate is configured. The
// channel is closed when the response body is exhausted or ctx is
// cancelled.
func (p *Provider) Synthesize(ctx context.Context, text string, voice output.Voice) (<-chan []byte, error) {
	voiceID := voice.ID
	if voiceID == "" {
		voiceID = defaultVoice
	}

	resp, err := p.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Model:          p.model,
		Input:          text,
		Voice:          oai.AudioSpeechNewParamsVoice(voiceID),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech: synthesize: %w", err)
	}

	audioCh := make(chan []byte, audioChanBuf)

	var rs *resampler
	if p.outputRate > 0 && p.outputRate != nativeSampleRate {
		rs = newResampler(nativeSampleRate, p.outputRate)
	}

	go func() {
		defer close(audioCh)
		defer resp.Body.Close()

		for {
			buf := make([]byte, pcmChunkSize)
			n, err := resp.Body.Read(buf)
			if n > 0 {
				out := buf[:n]
				if rs != nil {
					out = rs.process(out)
				}
				if len(out) > 0 {
					select {
					case audioCh <- out:
					case <-ctx.Done():
						return
					}
				}
			}
			if err != nil {
				return
			}
		}
	}()

	return audioCh, nil
}

// resampler converts a stream of 16-bit little-endian mono PCM from one
// sample rate to another using linear interpolation, carrying state
// across chunks so interpolation stays continuous at chunk boundaries.
type resampler struct {
	ratio float64 // source samples consumed per output sample
	pos   float64 // read position within hist, in source samples
	hist  []int16 // unconsumed source samples
	carry byte    // dangling low byte of a split sample
	half  bool
}

func newResampler(srcRate, dstRate int) *resampler {
	return &resampler{ratio: float64(srcRate) / float64(dstRate)}
}

// process consumes chunk and returns the resampled PCM that can be
// produced so far. The last source sample is held back until a successor
// arrives, so a trailing sub-sample remainder is never emitted.
func (r *resampler) process(chunk []byte) []byte {
	if r.half {
		chunk = append([]byte{r.carry}, chunk...)
		r.half = false
	}
	if len(chunk)%2 != 0 {
		r.carry = chunk[len(chunk)-1]
		r.half = true
		chunk = chunk[:len(chunk)-1]
	}
	for i := 0; i+1 < len(chunk); i += 2 {
		r.hist = append(r.hist, int16(chunk[i])|int16(chunk[i+1])<<8)
	}

	var out []byte
	for {
		idx := int(r.pos)
		if idx+1 >= len(r.hist) {
			break
		}
		frac := r.pos - float64(idx)
		s := int16(float64(r.hist[idx])*(1-frac) + float64(r.hist[idx+1])*frac)
		out = append(out, byte(s), byte(s>>8))
		r.pos += r.ratio
	}

	if drop := int(r.pos); drop > 0 && drop <= len(r.hist) {
		r.hist = r.hist[drop:]
		r.pos -= float64(drop)
	}
	return out
}
