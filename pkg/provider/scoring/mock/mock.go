// Package mock provides a test double for [scoring.Provider].
//
// Example:
//
//	p := &mock.Provider{Score: 2.1}
//	resp, _ := p.Evaluate(ctx, scoring.Request{Audio: b64, Script: "안녕"})
//	_ = p.Calls() // one recorded call
//
// Set Block to a channel to hold Evaluate until the channel is closed or the
// context is cancelled; useful for exercising in-flight cancellation.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/recita/pkg/provider/scoring"
)

// Provider is a mock implementation of scoring.Provider.
type Provider struct {
	mu sync.Mutex

	// Score is returned as Response.Score when ScoreFunc is nil.
	Score any

	// ScoreFunc, if set, computes the response per request.
	ScoreFunc func(req scoring.Request) (any, error)

	// Err, if non-nil, is returned as the error from Evaluate.
	Err error

	// Block, if non-nil, makes Evaluate wait until it is closed or ctx is done.
	Block chan struct{}

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// Requests records every request passed to Evaluate.
	Requests []scoring.Request
}

// Evaluate records the call and returns the configured response.
func (p *Provider) Evaluate(ctx context.Context, req scoring.Request) (scoring.Response, error) {
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	block := p.Block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return scoring.Response{}, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return scoring.Response{}, p.Err
	}
	if p.ScoreFunc != nil {
		s, err := p.ScoreFunc(req)
		return scoring.Response{Score: s}, err
	}
	return scoring.Response{Score: p.Score}, nil
}

// Name implements scoring.Provider.
func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// Calls returns the number of recorded Evaluate calls. Thread-safe.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}

// Last returns the most recent request, or the zero value if none.
func (p *Provider) Last() scoring.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Requests) == 0 {
		return scoring.Request{}
	}
	return p.Requests[len(p.Requests)-1]
}

// SetErr replaces Err. Thread-safe.
func (p *Provider) SetErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Err = err
}

var _ scoring.Provider = (*Provider)(nil)
