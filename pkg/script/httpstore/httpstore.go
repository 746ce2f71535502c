// Package httpstore implements [script.Repository] against a REST endpoint
// that answers GET {baseURL}/scripts with a JSON array of
// {"content": ..., "level": ...} objects.
package httpstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/recita/pkg/script"
)

// maxBodyBytes bounds the response size accepted from the script service.
const maxBodyBytes = 8 << 20

var _ script.Repository = (*Store)(nil)

// Option is a functional option for configuring a [Store].
type Option func(*Store)

// WithHTTPClient overrides the HTTP client. The default has a 10s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) {
		s.client = c
	}
}

// WithPath overrides the path appended to the base URL. Defaults to "/scripts".
func WithPath(p string) Option {
	return func(s *Store) {
		s.path = p
	}
}

// Store fetches scripts over HTTP on every List call; it keeps no cache.
type Store struct {
	baseURL string
	path    string
	client  *http.Client
}

// New creates a [Store] for baseURL (e.g. "http://localhost:3000").
func New(baseURL string, opts ...Option) (*Store, error) {
	if baseURL == "" {
		return nil, errors.New("httpstore: baseURL must not be empty")
	}
	s := &Store{
		baseURL: strings.TrimRight(baseURL, "/"),
		path:    "/scripts",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// List implements [script.Repository.List].
func (s *Store) List(ctx context.Context) ([]script.Script, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+s.path, nil)
	if err != nil {
		return nil, fmt.Errorf("httpstore: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpstore: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("httpstore: server returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out []script.Script
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&out); err != nil {
		return nil, fmt.Errorf("httpstore: decode response: %w", err)
	}
	return out, nil
}
