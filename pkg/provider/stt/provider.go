// Package stt defines the batch speech-to-text contract used by the
// transcript-based scoring backend.
//
// A [Transcriber] turns one finished recording into text. Implementations
// wrap a local whisper.cpp server or the OpenAI transcription API and must be
// safe for concurrent use.
package stt

import "context"

// Request is one finished recording to transcribe.
type Request struct {
	// Audio is a complete WAV file.
	Audio []byte

	// Language is an ISO-639-1 hint such as "ko". Empty lets the provider
	// auto-detect or fall back to its configured default.
	Language string

	// Prompt is optional text the provider may use to bias recognition, such
	// as the script the speaker was asked to read.
	Prompt string
}

// Transcriber converts speech to text.
type Transcriber interface {
	// Transcribe returns the recognised text of req.Audio. Empty text with a
	// nil error means no speech was recognised.
	Transcribe(ctx context.Context, req Request) (string, error)
}

// TranscriberFunc adapts an ordinary function to the [Transcriber] interface.
type TranscriberFunc func(ctx context.Context, req Request) (string, error)

// Transcribe calls f(ctx, req).
func (f TranscriberFunc) Transcribe(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
