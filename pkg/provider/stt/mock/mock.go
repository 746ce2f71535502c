// Package mock provides a test double for [stt.Transcriber].
//
// Example:
//
//	tr := &mock.Transcriber{Text: "안녕하세요"}
//	text, _ := tr.Transcribe(ctx, stt.Request{Audio: wav})
//	_ = tr.Calls() // one recorded call
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/recita/pkg/provider/stt"
)

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Text is returned by Transcribe when TextFunc is nil.
	Text string

	// TextFunc, if set, computes the result per request.
	TextFunc func(req stt.Request) string

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Requests records every request passed to Transcribe.
	Requests []stt.Request
}

// Transcribe records the call and returns Text (or TextFunc(req)), Err.
func (t *Transcriber) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Requests = append(t.Requests, req)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if t.Err != nil {
		return "", t.Err
	}
	if t.TextFunc != nil {
		return t.TextFunc(req), nil
	}
	return t.Text, nil
}

// Calls returns the number of recorded Transcribe calls. Thread-safe.
func (t *Transcriber) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Requests)
}

var _ stt.Transcriber = (*Transcriber)(nil)
