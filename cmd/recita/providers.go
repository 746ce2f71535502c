package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/MrWong99/recita/internal/app"
	"github.com/MrWong99/recita/internal/config"
	"github.com/MrWong99/recita/internal/resilience"
	"github.com/MrWong99/recita/pkg/provider/scoring"
	"github.com/MrWong99/recita/pkg/provider/scoring/remote"
	"github.com/MrWong99/recita/pkg/provider/scoring/transcript"
	"github.com/MrWong99/recita/pkg/provider/stt"
	oaistt "github.com/MrWong99/recita/pkg/provider/stt/openai"
	"github.com/MrWong99/recita/pkg/provider/stt/whisper"
	"github.com/MrWong99/recita/pkg/script"
	"github.com/MrWong99/recita/pkg/script/httpstore"
	"github.com/MrWong99/recita/pkg/script/postgres"
	"github.com/MrWong99/recita/pkg/script/sqlite"
)

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in factories into reg. The
// transcript scoring backend resolves its transcriber from
// cfg.Transcription through the same registry.
func registerBuiltinProviders(reg *config.Registry, cfg *config.Config) {
	// ── Scoring ───────────────────────────────────────────────────────────────

	reg.RegisterScoring("remote", func(entry config.ProviderEntry) (scoring.Provider, error) {
		opts := []remote.Option{
			remote.WithHTTPClient(&http.Client{Timeout: cfg.Scoring.Timeout}),
		}
		if entry.APIKey != "" {
			opts = append(opts, remote.WithAPIKey(entry.APIKey))
		}
		if path, ok := entry.OptionString("path"); ok {
			opts = append(opts, remote.WithPath(path))
		}
		return remote.New(entry.BaseURL, opts...)
	})

	reg.RegisterScoring("transcript", func(entry config.ProviderEntry) (scoring.Provider, error) {
		t, err := reg.CreateTranscriber(cfg.Transcription)
		if err != nil {
			return nil, fmt.Errorf("transcription %q: %w", cfg.Transcription.Name, err)
		}
		var opts []transcript.Option
		if lang, ok := entry.OptionString("language"); ok {
			opts = append(opts, transcript.WithLanguage(lang))
		}
		if prompt, ok := entry.Options["prompt"].(bool); ok {
			opts = append(opts, transcript.WithPrompt(prompt))
		}
		return transcript.New(t, opts...)
	})

	// ── Transcription ─────────────────────────────────────────────────────────

	reg.RegisterTranscriber("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang, ok := entry.OptionString("language"); ok {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterTranscriber("openai", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []oaistt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		if lang, ok := entry.OptionString("language"); ok {
			opts = append(opts, oaistt.WithLanguage(lang))
		}
		return oaistt.New(entry.APIKey, entry.Model, opts...)
	})

	// ── Scripts ───────────────────────────────────────────────────────────────

	reg.RegisterScripts(config.SourceFile, func(_ context.Context, sc config.ScriptsConfig) (config.ScriptStore, error) {
		ms, err := script.LoadFile(sc.Path)
		if err != nil {
			return config.ScriptStore{}, err
		}
		return config.ScriptStore{Repository: ms}, nil
	})

	reg.RegisterScripts(config.SourceHTTP, func(_ context.Context, sc config.ScriptsConfig) (config.ScriptStore, error) {
		s, err := httpstore.New(sc.URL)
		if err != nil {
			return config.ScriptStore{}, err
		}
		return config.ScriptStore{Repository: s}, nil
	})

	reg.RegisterScripts(config.SourcePostgres, func(ctx context.Context, sc config.ScriptsConfig) (config.ScriptStore, error) {
		s, closeConn, err := postgres.Open(ctx, sc.DSN)
		if err != nil {
			return config.ScriptStore{}, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = closeConn(context.Background())
			return config.ScriptStore{}, err
		}
		return config.ScriptStore{
			Repository: s,
			Close:      func() error { return closeConn(context.Background()) },
		}, nil
	})

	reg.RegisterScripts(config.SourceSQLite, func(ctx context.Context, sc config.ScriptsConfig) (config.ScriptStore, error) {
		s, err := sqlite.Open(ctx, sc.Path)
		if err != nil {
			return config.ScriptStore{}, err
		}
		return config.ScriptStore{Repository: s, Close: s.Close}, nil
	})

	for _, kind := range []string{"scoring", "transcription", "scripts"} {
		for _, name := range reg.Names(kind) {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates the providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to
// consume. Script closers are registered even when a later step fails so
// the caller can release them.
func buildProviders(ctx context.Context, cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	repo, closers, err := openScripts(ctx, cfg.Scripts, reg)
	ps.Closers = closers
	if err != nil {
		return ps, err
	}
	ps.Scripts = repo

	p, err := reg.CreateScoring(cfg.Scoring.ProviderEntry)
	if err != nil {
		return ps, fmt.Errorf("create scoring provider %q: %w", cfg.Scoring.Name, err)
	}
	ps.Scoring = p
	slog.Info("provider created", "kind", "scoring", "name", cfg.Scoring.Name)
	return ps, nil
}

// openScripts opens the primary script source and its fallbacks. A fallback
// that cannot be opened is skipped with a warning; the primary is required.
func openScripts(ctx context.Context, sc config.ScriptsConfig, reg *config.Registry) (script.Repository, []func() error, error) {
	var closers []func() error
	track := func(s config.ScriptStore) {
		if s.Close != nil {
			closers = append(closers, s.Close)
		}
	}

	primary, err := reg.OpenScripts(ctx, sc)
	if err != nil {
		return nil, closers, fmt.Errorf("open scripts %q: %w", sc.Source, err)
	}
	track(primary)
	slog.Info("script source opened", "source", sc.Source)

	if len(sc.Fallbacks) == 0 {
		return primary.Repository, closers, nil
	}

	fb := resilience.NewScriptFallback(primary.Repository, string(sc.Source), resilience.FallbackConfig{})
	for i, fc := range sc.Fallbacks {
		s, err := reg.OpenScripts(ctx, fc)
		if err != nil {
			if errors.Is(err, config.ErrProviderNotRegistered) {
				return nil, closers, err
			}
			slog.Warn("script fallback unavailable", "index", i, "source", fc.Source, "err", err)
			continue
		}
		track(s)
		fb.AddFallback(fmt.Sprintf("%s#%d", fc.Source, i+1), s.Repository)
	}
	slog.Info("script fallbacks configured", "sources", fb.Sources())
	return fb, closers, nil
}
