// Package ranking submits finished practice sessions to the leaderboard
// service:
//
//	POST {baseURL}/users/save-score
//	{"name": "<player>", "score": <average>}
package ranking

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

	"github.com/MrWong99/recita/internal/observe"
	"github.com/MrWong99/recita/internal/score"
)

const (
	defaultPath    = "/users/save-score"
	defaultTimeout = 10 * time.Second
	maxNameRunes   = 32
)

// ErrInvalidSubmission is returned for submissions the service would reject.
var ErrInvalidSubmission = errors.New("ranking: invalid submission")

// Submission is one leaderboard entry.
type Submission struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// FromResult builds the submission for a completed session.
func FromResult(name string, res score.AggregateResult) Submission {
	return Submission{Name: strings.TrimSpace(name), Score: res.Average}
}

// Validate checks the name and score range.
func (s Submission) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if n := len([]rune(s.Name)); n > maxNameRunes {
		errs = append(errs, fmt.Errorf("name has %d characters, at most %d allowed", n, maxNameRunes))
	}
	if s.Score < 0 || s.Score > 100 {
		errs = append(errs, fmt.Errorf("score %.1f out of range [0, 100]", s.Score))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidSubmission, errors.Join(errs...))
	}
	return nil
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client. The default has a 10s timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithMetrics overrides the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client posts submissions to the leaderboard service.
type Client struct {
	url     string
	http    *http.Client
	metrics *observe.Metrics
}

// New creates a Client for the service at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("ranking: baseURL must not be empty")
	}
	c := &Client{
		url:  strings.TrimRight(baseURL, "/") + defaultPath,
		http: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c, nil
}

// Submit validates s and posts it. Any 2xx response counts as success.
func (c *Client) Submit(ctx context.Context, s Submission) (err error) {
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		c.metrics.RecordRankingSubmission(ctx, status)
	}()

	if err := s.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("ranking: marshal submission: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ranking: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ranking: http request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ranking: server returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	observe.Logger(ctx).Info("score submitted", "name", s.Name, "score", s.Score)
	return nil
}
