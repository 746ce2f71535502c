// Package scoring is the practice session's view of the pronunciation
// scoring service: it sends one round's recording, interprets whatever
// comes back as a raw score and reports failures as recoverable
// [ServiceError] values. It never retries.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/recita/internal/observe"
	"github.com/MrWong99/recita/internal/recording"
	"github.com/MrWong99/recita/internal/resilience"
	provider "github.com/MrWong99/recita/pkg/provider/scoring"
	"go.opentelemetry.io/otel/attribute"
)

const defaultTimeout = 20 * time.Second

// ErrScoringService matches every [ServiceError] via errors.Is.
var ErrScoringService = errors.New("scoring: service error")

// ErrNoAudio is returned by [Client.Score] for payloads without usable audio.
var ErrNoAudio = errors.New("scoring: payload has no audio")

// ServiceError reports that the scoring backend did not produce a score for
// a round. It is per-round and recoverable.
type ServiceError struct {
	Provider string
	Err      error
}

// Error implements error.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("scoring: %s: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ServiceError) Unwrap() error { return e.Err }

// Is reports whether target is [ErrScoringService].
func (e *ServiceError) Is(target error) bool { return target == ErrScoringService }

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithTimeout bounds each scoring call. Default: 20s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithBreaker guards calls with cb. While the breaker is open, Score fails
// fast with a ServiceError wrapping [resilience.ErrCircuitOpen].
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Client) {
		c.breaker = cb
	}
}

// WithMetrics overrides the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithLanguage sets the language hint sent with each request.
func WithLanguage(lang string) Option {
	return func(c *Client) {
		c.language = lang
	}
}

// Client scores recordings through a [provider.Provider]. It is safe for
// concurrent use by many sessions.
type Client struct {
	provider provider.Provider
	breaker  *resilience.CircuitBreaker
	metrics  *observe.Metrics
	timeout  time.Duration
	language string
}

// New creates a Client for p.
func New(p provider.Provider, opts ...Option) (*Client, error) {
	if p == nil {
		return nil, errors.New("scoring: provider must not be nil")
	}
	c := &Client{provider: p, timeout: defaultTimeout}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c, nil
}

// Provider returns the name of the backing provider.
func (c *Client) Provider() string { return c.provider.Name() }

// Breaker returns the circuit breaker guarding the client, or nil.
func (c *Client) Breaker() *resilience.CircuitBreaker { return c.breaker }

// Score evaluates payload against script and returns the raw score. A
// malformed score is replaced by [SentinelRawScore]; a failed call returns a
// *ServiceError.
func (c *Client) Score(ctx context.Context, payload recording.Payload, script string) (raw float64, err error) {
	if !payload.OK() {
		return 0, ErrNoAudio
	}

	ctx, span := observe.StartSpan(ctx, "scoring.Score")
	span.SetAttributes(attribute.String("scoring.provider", c.provider.Name()))
	defer func() { observe.EndSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := provider.Request{Audio: payload.Audio, Script: script, Language: c.language}
	var resp provider.Response
	call := func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.provider.Evaluate(ctx, req)
		return callErr
	}

	start := time.Now()
	if c.breaker != nil {
		err = c.breaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}
	elapsed := time.Since(start).Seconds()

	if err != nil {
		status := "error"
		if errors.Is(err, resilience.ErrCircuitOpen) {
			status = "rejected"
		}
		c.metrics.RecordScoringRequest(ctx, c.provider.Name(), status, elapsed)
		observe.Logger(ctx).Warn("scoring failed",
			"provider", c.provider.Name(),
			"err", err,
		)
		return 0, &ServiceError{Provider: c.provider.Name(), Err: err}
	}

	raw = ParseRaw(resp.Score)
	c.metrics.RecordScoringRequest(ctx, c.provider.Name(), "ok", elapsed)
	span.SetAttributes(attribute.Float64("scoring.raw", raw))
	observe.Logger(ctx).Debug("round scored",
		"provider", c.provider.Name(),
		"raw", raw,
		"duration_s", elapsed,
	)
	return raw, nil
}
