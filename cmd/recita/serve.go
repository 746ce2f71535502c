package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/recita/internal/app"
	"github.com/MrWong99/recita/internal/config"
	"github.com/MrWong99/recita/internal/observe"
	"github.com/MrWong99/recita/internal/server"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(configPath *string) *cobra.Command {
	var (
		origins []string
		watch   bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve practice sessions over websocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), *configPath, origins, watch)
		},
	}
	cmd.Flags().StringSliceVar(&origins, "allow-origin", nil, "host patterns allowed to open the practice websocket cross-origin")
	cmd.Flags().BoolVar(&watch, "watch", true, "reload hot-reloadable settings when the config file changes")
	return cmd
}

func serve(parent context.Context, configPath string, origins []string, watch bool) error {
	cfg, level, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	slog.Info("recita starting",
		"version", version,
		"config", configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	registry := prometheus.NewRegistry()
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Registry:       registry,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg)

	providers, err := buildProviders(ctx, cfg, reg)
	if err != nil {
		closeAll(providers.Closers)
		return fmt.Errorf("build providers: %w", err)
	}
	providers.Closers = append(providers.Closers, func() error {
		return shutdownTelemetry(context.Background())
	})

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		closeAll(providers.Closers)
		return fmt.Errorf("initialise application: %w", err)
	}

	// ── Hot reload ────────────────────────────────────────────────────────────
	if watch {
		w, err := config.NewWatcher(configPath, func(_, next *config.Config, d config.ConfigDiff) {
			if d.LogLevelChanged {
				level.Set(slogLevel(d.NewLogLevel))
				slog.Info("log level updated", "level", d.NewLogLevel)
			}
			application.ApplyConfig(next, d)
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	srv := server.New(application, cfg.Server,
		server.WithMetricsHandler(cfg.Telemetry.MetricsPath, observe.MetricsHandler(registry)),
		server.WithOriginPatterns(origins...),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})

	slog.Info("server ready; press Ctrl+C to shut down")
	runErr := g.Wait()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("server error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("goodbye")
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func closeAll(closers []func() error) {
	for _, c := range closers {
		if err := c(); err != nil {
			slog.Warn("closer error", "err", err)
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Fprintln(os.Stderr, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(os.Stderr, "║          recita, startup summary      ║")
	fmt.Fprintln(os.Stderr, "╠═══════════════════════════════════════╣")
	printRow("Scripts", string(cfg.Scripts.Source))
	printRow("Fallbacks", fmt.Sprint(len(cfg.Scripts.Fallbacks)))
	printRow("Scoring", cfg.Scoring.Name)
	if cfg.Scoring.Name == "transcript" {
		printRow("Transcription", cfg.Transcription.Name)
	}
	if cfg.Ranking.BaseURL != "" {
		printRow("Ranking", "enabled")
	} else {
		printRow("Ranking", "(disabled)")
	}
	if cfg.Session.MaxActive > 0 {
		printRow("Max sessions", fmt.Sprint(cfg.Session.MaxActive))
	} else {
		printRow("Max sessions", "unlimited")
	}
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Fprintln(os.Stderr, "╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "..."
	}
	fmt.Fprintf(os.Stderr, "║  %-14s  : %-19s ║\n", label, value)
}
