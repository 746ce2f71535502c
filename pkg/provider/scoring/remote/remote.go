// Package remote implements [scoring.Provider] against the pronunciation
// evaluation endpoint of the practice backend:
//
//	POST {baseURL}/users/evaluate-pronunciation
//	{"audioData": "<base64 wav>", "script": "<text>"}
//	→ {"score": <number>}
//
// The score field is passed through untouched; numbers are decoded as
// json.Number so the caller can tell them apart from strings.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/recita/pkg/provider/scoring"
)

const (
	defaultPath    = "/users/evaluate-pronunciation"
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 1 << 20
)

var _ scoring.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithHTTPClient overrides the HTTP client. The default has a 30s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.client = c
	}
}

// WithPath overrides the evaluation path appended to the base URL.
func WithPath(path string) Option {
	return func(p *Provider) {
		p.path = path
	}
}

// WithAPIKey sends key as a bearer token on every request.
func WithAPIKey(key string) Option {
	return func(p *Provider) {
		p.apiKey = key
	}
}

// Provider calls a remote evaluation service over HTTP.
type Provider struct {
	baseURL string
	path    string
	apiKey  string
	client  *http.Client
}

// New creates a Provider for the service at baseURL.
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("remote: baseURL must not be empty")
	}
	p := &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		path:    defaultPath,
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements [scoring.Provider].
func (p *Provider) Name() string { return "remote" }

type evaluateRequest struct {
	AudioData string `json:"audioData"`
	Script    string `json:"script"`
}

// Evaluate implements [scoring.Provider]. Any 2xx status is accepted.
func (p *Provider) Evaluate(ctx context.Context, req scoring.Request) (scoring.Response, error) {
	if req.Audio == "" {
		return scoring.Response{}, scoring.ErrEmptyAudio
	}
	body, err := json.Marshal(evaluateRequest{AudioData: req.Audio, Script: req.Script})
	if err != nil {
		return scoring.Response{}, fmt.Errorf("remote: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+p.path, bytes.NewReader(body))
	if err != nil {
		return scoring.Response{}, fmt.Errorf("remote: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return scoring.Response{}, fmt.Errorf("remote: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return scoring.Response{}, &scoring.StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	var out struct {
		Score any `json:"score"`
	}
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return scoring.Response{}, fmt.Errorf("remote: decode response: %w", err)
	}
	return scoring.Response{Score: out.Score}, nil
}
