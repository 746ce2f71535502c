package config_test

import (
	"strings"
	"testing"
)

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "missing scoring name",
			yaml: `
scripts:
  path: scripts.yaml
`,
			want: []string{"scoring.name is required"},
		},
		{
			name: "remote without base url",
			yaml: `
scripts:
  path: scripts.yaml
scoring:
  name: remote
`,
			want: []string{"scoring.base_url is required"},
		},
		{
			name: "transcript without transcription",
			yaml: `
scripts:
  path: scripts.yaml
scoring:
  name: transcript
`,
			want: []string{"requires transcription.name"},
		},
		{
			name: "invalid log level",
			yaml: `
server:
  log_level: loud
scripts:
  path: scripts.yaml
scoring:
  name: remote
  base_url: http://localhost
`,
			want: []string{"server.log_level"},
		},
		{
			name: "source fields",
			yaml: `
scripts:
  source: http
  fallbacks:
    - source: postgres
    - source: sqlite
scoring:
  name: remote
  base_url: http://localhost
`,
			want: []string{
				"scripts.url is required",
				"scripts.fallbacks[0].dsn is required",
				"scripts.fallbacks[1].path is required",
			},
		},
		{
			name: "unknown source",
			yaml: `
scripts:
  source: s3
scoring:
  name: remote
  base_url: http://localhost
`,
			want: []string{`scripts.source "s3" is invalid`},
		},
		{
			name: "bad urls",
			yaml: `
scripts:
  source: http
  url: ftp://example.com
scoring:
  name: remote
  base_url: "localhost:8000"
ranking:
  base_url: "https://"
`,
			want: []string{"scripts.url", "scoring.base_url", "ranking.base_url"},
		},
		{
			name: "session values",
			yaml: `
scripts:
  path: scripts.yaml
scoring:
  name: remote
  base_url: http://localhost
session:
  sample_rate: 4000
  channels: 6
  max_active: -1
  level_durations:
    "2": 0s
`,
			want: []string{
				"session.sample_rate 4000",
				"session.channels 6",
				"session.max_active -1",
				`session.level_durations["2"]`,
			},
		},
		{
			name: "tls and metrics path",
			yaml: `
server:
  tls:
    cert_file: cert.pem
scripts:
  path: scripts.yaml
scoring:
  name: remote
  base_url: http://localhost
telemetry:
  metrics_path: metrics
`,
			want: []string{"server.tls", "telemetry.metrics_path"},
		},
		{
			name: "negative breaker",
			yaml: `
scripts:
  path: scripts.yaml
scoring:
  name: remote
  base_url: http://localhost
  circuit_breaker:
    max_failures: -1
`,
			want: []string{"scoring.circuit_breaker"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := loadYAML(tt.yaml)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error should mention %q, got: %v", w, err)
				}
			}
		})
	}
}

func TestValidate_TranscriptScoringAccepted(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, `
scripts:
  source: sqlite
  path: scripts.db
scoring:
  name: transcript
transcription:
  name: whisper
  base_url: http://localhost:8081
  options:
    language: ko
`)
	if lang, _ := cfg.Transcription.OptionString("language"); lang != "ko" {
		t.Errorf("transcription language = %q, want ko", lang)
	}
}

func TestValidate_EmptyDocumentStillRequiresScoring(t *testing.T) {
	t.Parallel()
	_, err := loadYAML("")
	if err == nil || !strings.Contains(err.Error(), "scoring.name is required") {
		t.Fatalf("err = %v, want scoring.name error", err)
	}
}
