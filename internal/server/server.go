// Package server exposes the practice application over HTTP.
//
// Routes:
//
//   - GET /v1/practice  websocket; one practice session per connection at a time
//   - GET /v1/sessions  JSON list of running sessions
//   - GET /healthz, /readyz
//   - GET {telemetry.metrics_path} when a metrics handler is configured
//
// Every route is wrapped with [observe.Middleware].
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/MrWong99/recita/internal/app"
	"github.com/MrWong99/recita/internal/config"
	"github.com/MrWong99/recita/internal/health"
	"github.com/MrWong99/recita/internal/observe"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Option is a functional option for configuring a [Server].
type Option func(*Server)

// WithMetricsHandler serves h at path, typically [observe.MetricsHandler].
func WithMetricsHandler(path string, h http.Handler) Option {
	return func(s *Server) {
		s.metricsPath = path
		s.metricsHandler = h
	}
}

// WithOriginPatterns sets the host patterns allowed to open the practice
// websocket from a browser. Same-origin requests are always allowed.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) {
		s.originPatterns = patterns
	}
}

// Server serves the practice websocket and the operational endpoints.
type Server struct {
	app *app.App
	cfg config.ServerConfig

	metricsPath    string
	metricsHandler http.Handler
	originPatterns []string

	handler http.Handler
}

// New creates a Server for a.
func New(a *app.App, cfg config.ServerConfig, opts ...Option) *Server {
	s := &Server{app: a, cfg: cfg}
	for _, o := range opts {
		o(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/practice", s.handlePractice)
	mux.HandleFunc("GET /v1/sessions", s.handleSessions)
	health.New(a.HealthCheckers()...).Register(mux)
	if s.metricsHandler != nil {
		mux.Handle("GET "+s.metricsPath, s.metricsHandler)
	}

	s.handler = observe.Middleware(a.Metrics())(mux)
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves until ctx is cancelled, then shuts the listener down
// gracefully. Running websocket sessions are ended by the app's Shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is like ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", ln.Addr().String(), "tls", s.cfg.TLS != nil)
		if tls := s.cfg.TLS; tls != nil {
			errCh <- srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
			return
		}
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	slog.Info("http server stopped")
	return nil
}

// handleSessions lists the running sessions.
func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	type sessionView struct {
		SessionID string    `json:"session_id"`
		Name      string    `json:"name,omitempty"`
		StartedAt time.Time `json:"started_at"`
	}
	infos := s.app.Sessions().List()
	out := make([]sessionView, 0, len(infos))
	for _, i := range infos {
		out = append(out, sessionView{SessionID: i.SessionID, Name: i.Name, StartedAt: i.StartedAt})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"active":     len(out),
		"max_active": s.app.Sessions().MaxActive(),
		"sessions":   out,
	})
}
