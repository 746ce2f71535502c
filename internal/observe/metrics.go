// Package observe provides application-wide observability primitives for
// recita: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all recita metrics.
const meterName = "github.com/MrWong99/recita"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ScoringDuration tracks the round trip of one scoring call. Use with
	// attributes: attribute.String("provider", ...), attribute.String("status", ...)
	ScoringDuration metric.Float64Histogram

	// ScriptFetchDuration tracks how long loading a session's scripts takes.
	ScriptFetchDuration metric.Float64Histogram

	// --- Score distributions ---

	// RawScores records the raw similarity value of every scored round.
	RawScores metric.Float64Histogram

	// DisplayScores records the banded 0–100 value of every scored round.
	DisplayScores metric.Int64Histogram

	// SessionAverages records the final average of every completed session.
	SessionAverages metric.Float64Histogram

	// --- Counters ---

	// RoundsStarted counts round attempts. Use with attribute:
	//   attribute.String("level", ...)
	RoundsStarted metric.Int64Counter

	// ScoringRequests counts scoring calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	ScoringRequests metric.Int64Counter

	// RecordingFailures counts rounds whose recording produced no usable audio.
	RecordingFailures metric.Int64Counter

	// Cancellations counts user-initiated pauses of a running round.
	Cancellations metric.Int64Counter

	// StaleEvents counts events discarded because their round epoch had
	// already advanced. Use with attribute: attribute.String("kind", ...)
	StaleEvents metric.Int64Counter

	// SessionOutcomes counts finished sessions. Use with attribute:
	//   attribute.String("outcome", "complete"|"exited"|"failed")
	SessionOutcomes metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Use with
	// attributes: attribute.String("breaker", ...), attribute.String("to", ...)
	BreakerTransitions metric.Int64Counter

	// RankingSubmissions counts leaderboard submissions by status.
	RankingSubmissions metric.Int64Counter

	// AudioFramesDropped counts client audio frames discarded because the
	// capture buffer was full.
	AudioFramesDropped metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live practice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// remote calls that include audio upload and evaluation.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// rawScoreBuckets follow the normalisation band edges.
var rawScoreBuckets = []float64{
	1.0, 1.2, 1.24, 1.3, 1.36, 1.41, 1.45, 1.55, 1.95, 2.3, 2.5,
}

var displayScoreBuckets = []float64{
	50, 60, 65, 70, 75, 80, 85, 90, 95, 100,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ScoringDuration, err = m.Float64Histogram("recita.scoring.duration",
		metric.WithDescription("Latency of pronunciation scoring calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ScriptFetchDuration, err = m.Float64Histogram("recita.scripts.fetch.duration",
		metric.WithDescription("Latency of loading a session's scripts."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RawScores, err = m.Float64Histogram("recita.round.raw_score",
		metric.WithDescription("Raw similarity score of scored rounds."),
		metric.WithExplicitBucketBoundaries(rawScoreBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DisplayScores, err = m.Int64Histogram("recita.round.display_score",
		metric.WithDescription("Display score (0-100) of scored rounds."),
		metric.WithExplicitBucketBoundaries(displayScoreBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionAverages, err = m.Float64Histogram("recita.session.average_score",
		metric.WithDescription("Average display score of completed sessions."),
		metric.WithExplicitBucketBoundaries(displayScoreBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.RoundsStarted, err = m.Int64Counter("recita.rounds.started",
		metric.WithDescription("Total round attempts by script level."),
	); err != nil {
		return nil, err
	}
	if met.ScoringRequests, err = m.Int64Counter("recita.scoring.requests",
		metric.WithDescription("Total scoring requests by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.RecordingFailures, err = m.Int64Counter("recita.recording.failures",
		metric.WithDescription("Total rounds whose recording produced no usable audio."),
	); err != nil {
		return nil, err
	}
	if met.Cancellations, err = m.Int64Counter("recita.rounds.cancelled",
		metric.WithDescription("Total user-initiated round cancellations."),
	); err != nil {
		return nil, err
	}
	if met.StaleEvents, err = m.Int64Counter("recita.events.stale",
		metric.WithDescription("Total events dropped because their round epoch was outdated."),
	); err != nil {
		return nil, err
	}
	if met.SessionOutcomes, err = m.Int64Counter("recita.sessions.finished",
		metric.WithDescription("Total finished sessions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("recita.breaker.transitions",
		metric.WithDescription("Total circuit breaker state transitions."),
	); err != nil {
		return nil, err
	}
	if met.RankingSubmissions, err = m.Int64Counter("recita.ranking.submissions",
		metric.WithDescription("Total leaderboard submissions by status."),
	); err != nil {
		return nil, err
	}
	if met.AudioFramesDropped, err = m.Int64Counter("recita.audio.frames_dropped",
		metric.WithDescription("Client audio frames dropped on a full capture buffer."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("recita.active_sessions",
		metric.WithDescription("Number of live practice sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("recita.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordScoringRequest records one scoring call with its latency.
func (m *Metrics) RecordScoringRequest(ctx context.Context, provider, status string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("status", status),
	)
	m.ScoringRequests.Add(ctx, 1, attrs)
	m.ScoringDuration.Record(ctx, seconds, attrs)
}

// RecordRoundStarted records the start of a round attempt.
func (m *Metrics) RecordRoundStarted(ctx context.Context, level string) {
	m.RoundsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("level", level)))
}

// RecordRoundScored records the raw and display score of a finished round.
func (m *Metrics) RecordRoundScored(ctx context.Context, raw float64, display int) {
	m.RawScores.Record(ctx, raw)
	m.DisplayScores.Record(ctx, int64(display))
}

// RecordStaleEvent records an event dropped for an outdated epoch.
func (m *Metrics) RecordStaleEvent(ctx context.Context, kind string) {
	m.StaleEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordSessionOutcome records how a session ended.
func (m *Metrics) RecordSessionOutcome(ctx context.Context, outcome string) {
	m.SessionOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordBreakerTransition records a circuit breaker moving into state to.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, to string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("breaker", breaker),
			attribute.String("to", to),
		),
	)
}

// RecordRankingSubmission records a leaderboard submission attempt.
func (m *Metrics) RecordRankingSubmission(ctx context.Context, status string) {
	m.RankingSubmissions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordFramesDropped adds n dropped client audio frames.
func (m *Metrics) RecordFramesDropped(ctx context.Context, n int64) {
	m.AudioFramesDropped.Add(ctx, n)
}
