// Package app wires all recita subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, the [SessionManager] runs practice sessions on demand, and
// Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithScorer,
// WithMetrics, etc.). When an option is not provided, New builds the real
// implementation from the config and the providers.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/recita/internal/config"
	"github.com/MrWong99/recita/internal/countdown"
	"github.com/MrWong99/recita/internal/health"
	"github.com/MrWong99/recita/internal/observe"
	"github.com/MrWong99/recita/internal/practice"
	"github.com/MrWong99/recita/internal/ranking"
	"github.com/MrWong99/recita/internal/recording"
	"github.com/MrWong99/recita/internal/resilience"
	"github.com/MrWong99/recita/internal/score"
	"github.com/MrWong99/recita/internal/scoring"
	"github.com/MrWong99/recita/pkg/audio"
	provider "github.com/MrWong99/recita/pkg/provider/scoring"
	"github.com/MrWong99/recita/pkg/script"
)

// ErrRankingDisabled is returned by [App.SubmitResult] when no ranking
// service is configured.
var ErrRankingDisabled = errors.New("app: ranking submission is not configured")

// Providers holds the externally constructed collaborators. Populated by
// main.go via the config registry.
type Providers struct {
	// Scoring evaluates recordings. Required unless WithScorer is used.
	Scoring provider.Provider

	// Scripts supplies the script pool. Required.
	Scripts script.Repository

	// Closers release provider resources during Shutdown, in order.
	Closers []func() error
}

// App owns all subsystem lifetimes of the practice server.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics  *observe.Metrics
	breaker  *resilience.CircuitBreaker
	scorer   practice.Scorer
	ranking  *ranking.Client
	sessions *SessionManager

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithScorer injects a scorer instead of building a scoring client from
// Providers.Scoring.
func WithScorer(s practice.Scorer) Option {
	return func(a *App) { a.scorer = s }
}

// WithMetrics overrides the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithRanking injects a ranking client instead of creating one from config.
func WithRanking(c *ranking.Client) Option {
	return func(a *App) { a.ranking = c }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.closers = append(a.closers, providers.Closers...)

	if providers.Scripts == nil {
		return nil, errors.New("app: a script repository is required")
	}

	// ── 1. Scoring ───────────────────────────────────────────────────────
	if err := a.initScoring(); err != nil {
		return nil, fmt.Errorf("app: init scoring: %w", err)
	}

	// ── 2. Ranking ───────────────────────────────────────────────────────
	a.initRanking()

	// ── 3. Session manager ───────────────────────────────────────────────
	a.sessions = NewSessionManager(SessionManagerConfig{
		Scripts:      providers.Scripts,
		Scorer:       a.scorer,
		Quality:      QualityFromConfig(cfg.Session),
		Schedule:     ScheduleFromConfig(cfg.Session),
		RecordingDir: cfg.Session.RecordingDir,
		MaxActive:    cfg.Session.MaxActive,
		Metrics:      a.metrics,
	})

	slog.Info("app initialised",
		"scripts", cfg.Scripts.Source,
		"scoring", cfg.Scoring.Name,
		"ranking", a.ranking != nil,
		"max_active", cfg.Session.MaxActive,
	)
	_ = ctx // reserved for provider warm-up
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initScoring builds the breaker-guarded scoring client unless a scorer was
// injected.
func (a *App) initScoring() error {
	if a.scorer != nil {
		return nil
	}
	if a.providers.Scoring == nil {
		return errors.New("no scoring provider configured")
	}

	cb := a.cfg.Scoring.CircuitBreaker
	a.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "scoring/" + a.providers.Scoring.Name(),
		MaxFailures:  cb.MaxFailures,
		ResetTimeout: cb.ResetTimeout,
		HalfOpenMax:  cb.HalfOpenMax,
		OnStateChange: func(name string, _, to resilience.State) {
			a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
		},
	})

	opts := []scoring.Option{
		scoring.WithTimeout(a.cfg.Scoring.Timeout),
		scoring.WithBreaker(a.breaker),
		scoring.WithMetrics(a.metrics),
	}
	if lang, ok := a.cfg.Scoring.OptionString("language"); ok {
		opts = append(opts, scoring.WithLanguage(lang))
	}
	client, err := scoring.New(a.providers.Scoring, opts...)
	if err != nil {
		return err
	}
	a.scorer = client
	return nil
}

// initRanking creates the leaderboard client when a base URL is configured.
func (a *App) initRanking() {
	if a.ranking != nil || a.cfg.Ranking.BaseURL == "" {
		return
	}
	c, err := ranking.New(a.cfg.Ranking.BaseURL,
		ranking.WithHTTPClient(&http.Client{Timeout: a.cfg.Ranking.Timeout}),
		ranking.WithMetrics(a.metrics),
	)
	if err != nil {
		slog.Warn("ranking disabled", "err", err)
		return
	}
	a.ranking = c
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Sessions returns the practice session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Metrics returns the metrics sink shared by all subsystems.
func (a *App) Metrics() *observe.Metrics { return a.metrics }

// Config returns the configuration the app was built from.
func (a *App) Config() *config.Config { return a.cfg }

// Scripts returns the script repository sessions sample from.
func (a *App) Scripts() script.Repository { return a.providers.Scripts }

// StartSession starts a practice session capturing from device.
func (a *App) StartSession(ctx context.Context, req StartRequest, device audio.Device) (*Session, error) {
	req.Device = device
	return a.sessions.Start(ctx, req)
}

// SubmitResult posts a completed session's average to the leaderboard.
func (a *App) SubmitResult(ctx context.Context, name string, res score.AggregateResult) error {
	if a.ranking == nil {
		return ErrRankingDisabled
	}
	return a.ranking.Submit(ctx, ranking.FromResult(name, res))
}

// HealthCheckers returns the readiness checks for the running app.
func (a *App) HealthCheckers() []health.Checker {
	checks := []health.Checker{
		health.ScriptsChecker(a.providers.Scripts, score.Rounds),
		health.CapacityChecker(a.sessions.Active, a.sessions.MaxActive),
	}
	if a.breaker != nil {
		checks = append(checks, health.BreakerChecker(a.breaker))
	}
	return checks
}

// ApplyConfig applies the hot-reloadable parts of a changed config. Running
// sessions keep the schedule they started with.
func (a *App) ApplyConfig(next *config.Config, d config.ConfigDiff) {
	if d.ScheduleChanged {
		a.sessions.SetSchedule(ScheduleFromConfig(next.Session))
		slog.Info("recording schedule updated", "default", next.Session.DefaultDuration)
	}
	if d.MaxActiveChanged {
		a.sessions.SetMaxActive(d.NewMaxActive)
		slog.Info("session cap updated", "max_active", d.NewMaxActive)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown exits every running session and then tears down all subsystems
// in order. It respects the context deadline: if ctx expires before all
// closers finish, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "sessions", a.sessions.Active(), "closers", len(a.closers))

		if err := a.sessions.StopAll(ctx); err != nil {
			slog.Warn("sessions did not stop cleanly", "err", err)
			shutdownErr = err
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// ScheduleFromConfig converts the session config to a recording schedule.
func ScheduleFromConfig(sc config.SessionConfig) countdown.Schedule {
	levels := make(map[script.Level]time.Duration, len(sc.LevelDurations))
	for l, d := range sc.LevelDurations {
		levels[script.Level(l)] = d
	}
	return countdown.Schedule{Levels: levels, Default: sc.DefaultDuration}
}

// QualityFromConfig converts the session config to a recording quality.
func QualityFromConfig(sc config.SessionConfig) recording.Quality {
	q := recording.DefaultQuality()
	if sc.SampleRate > 0 {
		q.Format.SampleRate = sc.SampleRate
	}
	if sc.Channels > 0 {
		q.Format.Channels = sc.Channels
	}
	if sc.MaxRecording > 0 {
		q.MaxDuration = sc.MaxRecording
	}
	return q
}
