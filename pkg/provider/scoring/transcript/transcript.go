// Package transcript implements [scoring.Provider] by transcribing the
// recording with a speech-to-text backend and comparing the transcript to
// the script text.
//
// The resulting similarity in [0, 1] is mapped onto the raw scale used by
// remote evaluation services, where values above 2.5 are a perfect read and
// values below 1.0 are unintelligible:
//
//	raw = 3.0 * similarity^3
package transcript

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"

	"github.com/MrWong99/recita/pkg/provider/scoring"
	"github.com/MrWong99/recita/pkg/provider/stt"
)

const (
	rawScale    = 3.0
	rawExponent = 3.0
)

var _ scoring.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the language hint passed to the transcriber when the
// request does not carry one.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithPrompt controls whether the script is forwarded to the transcriber as
// a recognition prompt. Off by default: prompting with the expected text
// biases the transcript towards a perfect score.
func WithPrompt(on bool) Option {
	return func(p *Provider) {
		p.prompt = on
	}
}

// Provider scores recordings locally from their transcripts.
type Provider struct {
	stt      stt.Transcriber
	language string
	prompt   bool
}

// New creates a Provider using t for transcription.
func New(t stt.Transcriber, opts ...Option) (*Provider, error) {
	if t == nil {
		return nil, errors.New("transcript: transcriber must not be nil")
	}
	p := &Provider{stt: t}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements [scoring.Provider].
func (p *Provider) Name() string { return "transcript" }

// Evaluate implements [scoring.Provider]. The returned Score is a float64.
func (p *Provider) Evaluate(ctx context.Context, req scoring.Request) (scoring.Response, error) {
	if req.Audio == "" {
		return scoring.Response{}, scoring.ErrEmptyAudio
	}
	wav, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil {
		return scoring.Response{}, fmt.Errorf("transcript: decode audio: %w", err)
	}

	sttReq := stt.Request{Audio: wav, Language: req.Language}
	if sttReq.Language == "" {
		sttReq.Language = p.language
	}
	if p.prompt {
		sttReq.Prompt = req.Script
	}
	text, err := p.stt.Transcribe(ctx, sttReq)
	if err != nil {
		return scoring.Response{}, fmt.Errorf("transcript: transcribe: %w", err)
	}

	return scoring.Response{Score: RawScore(Similarity(text, req.Script))}, nil
}

// RawScore maps a similarity in [0, 1] onto the raw evaluation scale.
func RawScore(similarity float64) float64 {
	s := math.Max(0, math.Min(1, similarity))
	return rawScale * math.Pow(s, rawExponent)
}
