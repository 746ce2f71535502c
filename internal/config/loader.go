package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"scoring":       {"remote", "transcript"},
	"transcription": {"whisper", "openai"},
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr      = ":8080"
	DefaultScoringTimeout  = 20 * time.Second
	DefaultSampleRate      = 16000
	DefaultChannels        = 1
	DefaultMaxRecording    = time.Minute
	DefaultServiceName     = "recita"
	DefaultMetricsPath     = "/metrics"
	DefaultRankingTimeout  = 10 * time.Second
	DefaultSessionDuration = 3000 * time.Millisecond
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults and
// validates the result. ${VAR} references are expanded from the environment
// before decoding so secrets can stay out of the file.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Scripts.Source == "" {
		cfg.Scripts.Source = SourceFile
	}
	if cfg.Scoring.Timeout == 0 {
		cfg.Scoring.Timeout = DefaultScoringTimeout
	}
	if cfg.Session.SampleRate == 0 {
		cfg.Session.SampleRate = DefaultSampleRate
	}
	if cfg.Session.Channels == 0 {
		cfg.Session.Channels = DefaultChannels
	}
	if cfg.Session.MaxRecording == 0 {
		cfg.Session.MaxRecording = DefaultMaxRecording
	}
	if cfg.Session.DefaultDuration == 0 {
		cfg.Session.DefaultDuration = DefaultSessionDuration
	}
	if cfg.Ranking.Timeout == 0 {
		cfg.Ranking.Timeout = DefaultRankingTimeout
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
	if cfg.Telemetry.MetricsPath == "" {
		cfg.Telemetry.MetricsPath = DefaultMetricsPath
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Scripts
	errs = append(errs, validateScripts("scripts", cfg.Scripts)...)

	// Scoring
	validateProviderName("scoring", cfg.Scoring.Name)
	switch cfg.Scoring.Name {
	case "":
		errs = append(errs, errors.New("scoring.name is required"))
	case "remote":
		if cfg.Scoring.BaseURL == "" {
			errs = append(errs, errors.New("scoring.base_url is required for the remote scoring provider"))
		} else if err := checkURL(cfg.Scoring.BaseURL); err != nil {
			errs = append(errs, fmt.Errorf("scoring.base_url: %w", err))
		}
	case "transcript":
		if cfg.Transcription.Name == "" {
			errs = append(errs, errors.New("scoring provider \"transcript\" requires transcription.name"))
		}
	}
	if cfg.Scoring.Timeout < 0 {
		errs = append(errs, fmt.Errorf("scoring.timeout %s must not be negative", cfg.Scoring.Timeout))
	}
	cb := cfg.Scoring.CircuitBreaker
	if cb.MaxFailures < 0 || cb.HalfOpenMax < 0 || cb.ResetTimeout < 0 {
		errs = append(errs, errors.New("scoring.circuit_breaker values must not be negative"))
	}

	// Transcription
	validateProviderName("transcription", cfg.Transcription.Name)
	if cfg.Transcription.Name != "" && cfg.Scoring.Name != "transcript" {
		slog.Warn("transcription is configured but scoring.name is not \"transcript\"; it will not be used",
			"scoring", cfg.Scoring.Name,
		)
	}

	// Session
	s := cfg.Session
	if s.SampleRate < 8000 || s.SampleRate > 48000 {
		errs = append(errs, fmt.Errorf("session.sample_rate %d is out of range [8000, 48000]", s.SampleRate))
	}
	if s.Channels != 1 && s.Channels != 2 {
		errs = append(errs, fmt.Errorf("session.channels %d is invalid; valid values: 1, 2", s.Channels))
	}
	if s.DefaultDuration < 0 || s.MaxRecording < 0 {
		errs = append(errs, errors.New("session durations must not be negative"))
	}
	for level, d := range s.LevelDurations {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("session.level_durations[%q] must be positive", level))
		}
	}
	if s.MaxActive < 0 {
		errs = append(errs, fmt.Errorf("session.max_active %d must not be negative", s.MaxActive))
	}
	if s.SampleRate != DefaultSampleRate || s.Channels != DefaultChannels {
		slog.Warn("session recording format differs from 16 kHz mono; the scoring backend may reject it",
			"sample_rate", s.SampleRate,
			"channels", s.Channels,
		)
	}

	// Ranking
	if cfg.Ranking.BaseURL != "" {
		if err := checkURL(cfg.Ranking.BaseURL); err != nil {
			errs = append(errs, fmt.Errorf("ranking.base_url: %w", err))
		}
	}

	// Telemetry
	if cfg.Telemetry.MetricsPath != "" && !strings.HasPrefix(cfg.Telemetry.MetricsPath, "/") {
		errs = append(errs, fmt.Errorf("telemetry.metrics_path %q must start with /", cfg.Telemetry.MetricsPath))
	}

	return errors.Join(errs...)
}

func validateScripts(prefix string, sc ScriptsConfig) []error {
	var errs []error
	switch sc.Source {
	case SourceFile, SourceSQLite:
		if sc.Path == "" {
			errs = append(errs, fmt.Errorf("%s.path is required when source is %s", prefix, sc.Source))
		}
	case SourceHTTP:
		if sc.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when source is http", prefix))
		} else if err := checkURL(sc.URL); err != nil {
			errs = append(errs, fmt.Errorf("%s.url: %w", prefix, err))
		}
	case SourcePostgres:
		if sc.DSN == "" {
			errs = append(errs, fmt.Errorf("%s.dsn is required when source is postgres", prefix))
		}
	default:
		errs = append(errs, fmt.Errorf("%s.source %q is invalid; valid values: file, http, postgres, sqlite", prefix, sc.Source))
	}
	for i, fb := range sc.Fallbacks {
		if len(fb.Fallbacks) > 0 {
			errs = append(errs, fmt.Errorf("%s.fallbacks[%d] must not declare nested fallbacks", prefix, i))
		}
		errs = append(errs, validateScripts(fmt.Sprintf("%s.fallbacks[%d]", prefix, i), fb)...)
	}
	return errs
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q must be an http or https URL", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
