// Package scoring defines the Provider interface for pronunciation scoring
// backends.
//
// A scoring provider receives one recording together with the script the
// learner was asked to read and returns a raw similarity value. The raw value
// is deliberately left untyped: remote services are free to return numbers,
// numeric strings or garbage, and interpreting it is the caller's job (see
// internal/scoring).
//
// Implementations must be safe for concurrent use and must not retry on their
// own; a failed evaluation is surfaced to the learner, who decides whether to
// try again.
package scoring

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptyAudio is returned by providers when the request carries no audio.
var ErrEmptyAudio = errors.New("scoring: empty audio")

// Request carries everything a backend needs to evaluate one round.
type Request struct {
	// Audio is the recording as a base64-encoded WAV file.
	Audio string

	// Script is the text the learner was asked to read.
	Script string

	// Language is an optional ISO-639-1 hint such as "ko".
	Language string
}

// Response is the backend's answer for one round.
type Response struct {
	// Score is the raw similarity value exactly as the backend produced it.
	// Typical types are float64 and json.Number; anything else is possible.
	Score any
}

// Provider evaluates a recording against a script.
type Provider interface {
	// Evaluate scores req. A non-nil error means no score was produced.
	Evaluate(ctx context.Context, req Request) (Response, error)

	// Name returns a short identifier used in logs and metrics.
	Name() string
}

// StatusError reports an unexpected HTTP status from a scoring service.
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements error.
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("scoring: service returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("scoring: service returned HTTP %d: %s", e.StatusCode, e.Body)
}
